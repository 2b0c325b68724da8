// Package storage caches fetched test run views in sqlite so reports and
// history survive without a live server connection.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/perfana/perfana-dash/pkg/logger"
)

const (
	tableSnapshots     = "snapshots"
	tableMetricHistory = "metric_history"

	// rows per metric insert; sqlite caps bind variables per statement
	metricBatchSize = 100
)

// ErrNotFound is returned when no snapshot exists for a test run
var ErrNotFound = errors.New("snapshot not found")

// Database handles cached test run snapshots
type Database struct {
	db   *sql.DB
	path string
}

// Snapshot is the cached state of one test run
type Snapshot struct {
	TestRunID       string          `json:"testRunId"`
	Application     string          `json:"application"`
	TestEnvironment string          `json:"testEnvironment"`
	TestType        string          `json:"testType"`
	Start           time.Time       `json:"start"`
	End             time.Time       `json:"end"`
	CapturedAt      time.Time       `json:"capturedAt"`
	Health          string          `json:"health"`
	Regressions     int             `json:"regressions"`
	Improvements    int             `json:"improvements"`
	Total           int             `json:"total"`
	Payload         json.RawMessage `json:"payload"`
	Metrics         []MetricRecord  `json:"metrics,omitempty"`
}

// MetricRecord is one compared metric of a snapshot
type MetricRecord struct {
	DashboardUID string   `json:"dashboardUid"`
	PanelID      int      `json:"panelId"`
	MetricName   string   `json:"metricName"`
	Conclusion   string   `json:"conclusion"`
	Test         *float64 `json:"test,omitempty"`
	PctDiff      *float64 `json:"pctDiff,omitempty"`
}

// MetricPoint is one metric of one historical test run
type MetricPoint struct {
	TestRunID  string    `json:"testRunId"`
	Start      time.Time `json:"start"`
	Conclusion string    `json:"conclusion"`
	Test       *float64  `json:"test,omitempty"`
	PctDiff    *float64  `json:"pctDiff,omitempty"`
}

// Workload selects the runs of one application, environment and test type
type Workload struct {
	Application     string
	TestEnvironment string
	TestType        string
}

func (w Workload) where() sq.Eq {
	eq := sq.Eq{}
	if w.Application != "" {
		eq["application"] = w.Application
	}
	if w.TestEnvironment != "" {
		eq["test_environment"] = w.TestEnvironment
	}
	if w.TestType != "" {
		eq["test_type"] = w.TestType
	}
	return eq
}

// NewDatabase creates or opens the cache at path
func NewDatabase(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	logger.Debugf("Opening cache at: %s", path)

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{db: db, path: path}
	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return database, nil
}

// Path returns the database file
func (d *Database) Path() string {
	return d.path
}

func (d *Database) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			test_run_id TEXT PRIMARY KEY,
			application TEXT NOT NULL,
			test_environment TEXT NOT NULL,
			test_type TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			captured_at TEXT NOT NULL,
			health TEXT,
			regressions INTEGER,
			improvements INTEGER,
			total INTEGER,
			payload TEXT
		)`,

		`CREATE INDEX IF NOT EXISTS idx_snapshot_workload
		 ON snapshots(application, test_environment, test_type, start_time DESC)`,

		`CREATE TABLE IF NOT EXISTS metric_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			test_run_id TEXT NOT NULL,
			dashboard_uid TEXT NOT NULL,
			panel_id INTEGER NOT NULL,
			metric_name TEXT NOT NULL,
			conclusion TEXT,
			test_value REAL,
			pct_diff REAL,
			FOREIGN KEY (test_run_id) REFERENCES snapshots(test_run_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_metric_key
		 ON metric_history(dashboard_uid, panel_id, metric_name)`,
	}

	for i, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}

// SaveSnapshot stores or replaces the snapshot of a test run with its metrics
func (d *Database) SaveSnapshot(s *Snapshot) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Replace(tableSnapshots).
		Columns("test_run_id", "application", "test_environment", "test_type",
			"start_time", "end_time", "captured_at", "health", "regressions", "improvements", "total", "payload").
		Values(s.TestRunID, s.Application, s.TestEnvironment, s.TestType,
			s.Start.UTC().Format(time.RFC3339), s.End.UTC().Format(time.RFC3339), s.CapturedAt.UTC().Format(time.RFC3339),
			s.Health, s.Regressions, s.Improvements, s.Total, string(s.Payload)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build snapshot insert: %w", err)
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	query, args, err = sq.Delete(tableMetricHistory).Where(sq.Eq{"test_run_id": s.TestRunID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build metric delete: %w", err)
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to clear metrics: %w", err)
	}

	for from := 0; from < len(s.Metrics); from += metricBatchSize {
		to := from + metricBatchSize
		if to > len(s.Metrics) {
			to = len(s.Metrics)
		}
		insert := sq.Insert(tableMetricHistory).
			Columns("test_run_id", "dashboard_uid", "panel_id", "metric_name", "conclusion", "test_value", "pct_diff")
		for _, m := range s.Metrics[from:to] {
			insert = insert.Values(s.TestRunID, m.DashboardUID, m.PanelID, m.MetricName, m.Conclusion, m.Test, m.PctDiff)
		}
		query, args, err = insert.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build metric insert: %w", err)
		}
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to save metrics: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	logger.Debugf("Saved snapshot of %s with %d metrics", s.TestRunID, len(s.Metrics))
	return nil
}

var snapshotColumns = []string{
	"test_run_id", "application", "test_environment", "test_type",
	"start_time", "end_time", "captured_at", "health", "regressions", "improvements", "total", "payload",
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (*Snapshot, error) {
	var s Snapshot
	var start, end, captured, payload string
	var health sql.NullString
	err := row.Scan(&s.TestRunID, &s.Application, &s.TestEnvironment, &s.TestType,
		&start, &end, &captured, &health, &s.Regressions, &s.Improvements, &s.Total, &payload)
	if err != nil {
		return nil, err
	}
	s.Start, _ = time.Parse(time.RFC3339, start)
	s.End, _ = time.Parse(time.RFC3339, end)
	s.CapturedAt, _ = time.Parse(time.RFC3339, captured)
	s.Health = health.String
	if payload != "" {
		s.Payload = json.RawMessage(payload)
	}
	return &s, nil
}

// GetSnapshot returns the cached snapshot of a test run
func (d *Database) GetSnapshot(testRunID string) (*Snapshot, error) {
	query, args, err := sq.Select(snapshotColumns...).
		From(tableSnapshots).
		Where(sq.Eq{"test_run_id": testRunID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot query: %w", err)
	}

	s, err := scanSnapshot(d.db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", testRunID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return s, nil
}

// RecentSnapshots lists the latest snapshots of a workload, newest first.
// Payloads are not loaded.
func (d *Database) RecentSnapshots(w Workload, limit int) ([]Snapshot, error) {
	builder := sq.Select(snapshotColumns[:len(snapshotColumns)-1]...).
		Column("'' AS payload").
		From(tableSnapshots).
		Where(w.where()).
		OrderBy("start_time DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot list query: %w", err)
	}
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			logger.Warnf("skipping unreadable snapshot row: %v", err)
			continue
		}
		snapshots = append(snapshots, *s)
	}
	return snapshots, rows.Err()
}

// MetricHistory returns one metric across the cached runs of a workload, newest first
func (d *Database) MetricHistory(w Workload, dashboardUID string, panelID int, metricName string, limit int) ([]MetricPoint, error) {
	where := sq.And{
		sq.Eq{"m.dashboard_uid": dashboardUID, "m.panel_id": panelID, "m.metric_name": metricName},
	}
	for col, v := range w.where() {
		where = append(where, sq.Eq{"s." + col: v})
	}

	builder := sq.Select("m.test_run_id", "s.start_time", "m.conclusion", "m.test_value", "m.pct_diff").
		From(tableMetricHistory + " m").
		Join(tableSnapshots + " s ON s.test_run_id = m.test_run_id").
		Where(where).
		OrderBy("s.start_time DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build metric history query: %w", err)
	}
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric history: %w", err)
	}
	defer rows.Close()

	var points []MetricPoint
	for rows.Next() {
		var p MetricPoint
		var start string
		var conclusion sql.NullString
		var test, pct sql.NullFloat64
		if err := rows.Scan(&p.TestRunID, &start, &conclusion, &test, &pct); err != nil {
			continue
		}
		p.Start, _ = time.Parse(time.RFC3339, start)
		p.Conclusion = conclusion.String
		if test.Valid {
			p.Test = &test.Float64
		}
		if pct.Valid {
			p.PctDiff = &pct.Float64
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// CleanupOldData removes snapshots captured more than retentionDays ago
func (d *Database) CleanupOldData(retentionDays int, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -retentionDays).UTC().Format(time.RFC3339)
	stale := sq.Select("test_run_id").From(tableSnapshots).Where(sq.Lt{"captured_at": cutoff})

	staleSQL, staleArgs, err := stale.ToSql()
	if err != nil {
		return 0, err
	}
	query, args, err := sq.Delete(tableMetricHistory).
		Where(sq.Expr("test_run_id IN ("+staleSQL+")", staleArgs...)).
		ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := d.db.Exec(query, args...); err != nil {
		return 0, fmt.Errorf("failed to cleanup %s: %w", tableMetricHistory, err)
	}

	query, args, err = sq.Delete(tableSnapshots).Where(sq.Lt{"captured_at": cutoff}).ToSql()
	if err != nil {
		return 0, err
	}
	result, err := d.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup %s: %w", tableSnapshots, err)
	}

	n, _ := result.RowsAffected()
	if n > 0 {
		logger.Infof("Cleaned up %d old snapshots", n)
	}
	return n, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
