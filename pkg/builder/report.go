package builder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/analytics"
	"github.com/perfana/perfana-dash/pkg/checks"
	"github.com/perfana/perfana-dash/pkg/links"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/storage"
	"github.com/perfana/perfana-dash/pkg/store"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

// CheckCounts totals the checks of a test run
type CheckCounts struct {
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Summary is the header of a test run page
type Summary struct {
	TestRun   *models.TestRun    `json:"testRun"`
	Duration  string             `json:"duration"`
	Previous  *models.TestRun    `json:"previous,omitempty"`
	Analytics *analytics.Summary `json:"analytics,omitempty"`
	Checks    *CheckCounts       `json:"checks,omitempty"`
	Links     []links.Link       `json:"links"`
	ReadOnly  bool               `json:"readOnly"`
}

// Summary builds the test run header. Comparison and check totals are left
// out while their subscriptions are not ready.
func (b *Builder) Summary(route testrun.RouteParams) (*Summary, bool) {
	run, ok := testrun.Resolve(b.store, route)
	if !ok {
		return nil, false
	}

	s := &Summary{
		TestRun:  run,
		Duration: analytics.FormatDuration(run.Duration()),
		Links:    b.linksFor(run),
		ReadOnly: b.readOnly(run.TestRunID),
	}
	if prev, found := testrun.Previous(b.store, route, run); found {
		s.Previous = prev
	}
	if results, ready := b.results(run); ready {
		summary := b.engine.Summarize(results)
		s.Analytics = &summary
	}
	if b.store.IsReady(store.CheckResults, run.TestRunID) {
		counts := &CheckCounts{}
		for _, c := range store.Find[models.CheckResult](b.store, store.CheckResults, nil) {
			if c.TestRunID != run.TestRunID {
				continue
			}
			counts.Total++
			if c.Failed() {
				counts.Failed++
			}
		}
		s.Checks = counts
	}
	return s, true
}

// Links returns the outbound links of the route's test run
func (b *Builder) Links(route testrun.RouteParams) ([]links.Link, bool) {
	run, ok := testrun.Resolve(b.store, route)
	if !ok {
		return nil, false
	}
	return b.linksFor(run), true
}

func (b *Builder) linksFor(run *models.TestRun) []links.Link {
	dashboards := store.Find(b.store, store.GrafanaDashboards, func(d *models.GrafanaDashboard) bool {
		return d.Application == run.Application && (d.TestEnvironment == "" || d.TestEnvironment == run.TestEnvironment)
	})
	snapshots := store.Find(b.store, store.Snapshots, func(s *models.Snapshot) bool {
		return s.TestRunID == run.TestRunID
	})
	out := links.ForTestRun(b.bases, run, dashboards, snapshots, b.now())
	if out == nil {
		out = []links.Link{}
	}
	return out
}

// Report is everything known about one test run, as exported and cached
type Report struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	Summary     *Summary         `json:"summary"`
	Comparison  *ComparisonView  `json:"comparison,omitempty"`
	Checks      *CheckView       `json:"checks,omitempty"`
	Trend       *analytics.Trend `json:"trend,omitempty"`
}

// Report builds the unfiltered report of a test run
func (b *Builder) Report(route testrun.RouteParams) (*Report, bool) {
	summary, ok := b.Summary(route)
	if !ok {
		return nil, false
	}
	r := &Report{GeneratedAt: b.now().UTC(), Summary: summary}
	if view, ready := b.Comparison(route, adapt.Filter{}, adapt.SortSpec{}); ready {
		r.Comparison = view
	}
	if view, ready := b.Checks(route, checks.Options{}); ready {
		r.Checks = view
	}
	return r, true
}

// ToSnapshot converts a report into its cached form
func ToSnapshot(r *Report) (*storage.Snapshot, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	run := r.Summary.TestRun
	snap := &storage.Snapshot{
		TestRunID:       run.TestRunID,
		Application:     run.Application,
		TestEnvironment: run.TestEnvironment,
		TestType:        run.TestType,
		Start:           run.Start,
		End:             run.End,
		CapturedAt:      r.GeneratedAt,
		Health:          string(analytics.HealthClean),
		Payload:         payload,
	}
	if a := r.Summary.Analytics; a != nil {
		snap.Health = string(a.Health)
		snap.Regressions = a.Regressions
		snap.Improvements = a.Improvements
		snap.Total = a.Total
	}
	if r.Comparison != nil {
		for _, row := range r.Comparison.Rows {
			m := row.Result
			rec := storage.MetricRecord{
				DashboardUID: m.DashboardUID,
				PanelID:      m.PanelID,
				MetricName:   m.MetricName,
				Conclusion:   string(m.Conclusion.Label),
			}
			if m.Statistic != nil {
				test, pct := m.Statistic.Test, m.Statistic.PctDiff
				rec.Test = &test
				rec.PctDiff = &pct
			}
			snap.Metrics = append(snap.Metrics, rec)
		}
	}
	return snap, nil
}

// FromSnapshot decodes the report cached in a snapshot
func FromSnapshot(s *storage.Snapshot) (*Report, error) {
	var r Report
	if err := json.Unmarshal(s.Payload, &r); err != nil {
		return nil, fmt.Errorf("failed to decode cached report of %s: %w", s.TestRunID, err)
	}
	return &r, nil
}

// HistoryTrend follows the regression rate of the cached runs of a workload
func HistoryTrend(db *storage.Database, run *models.TestRun, limit int) (analytics.Trend, error) {
	snaps, err := db.RecentSnapshots(storage.Workload{
		Application:     run.Application,
		TestEnvironment: run.TestEnvironment,
		TestType:        run.TestType,
	}, limit)
	if err != nil {
		return analytics.Trend{}, err
	}
	points := make([]analytics.HistoryPoint, 0, len(snaps))
	for _, s := range snaps {
		points = append(points, analytics.HistoryPoint{
			TestRunID:   s.TestRunID,
			Start:       s.Start,
			Regressions: s.Regressions,
			Total:       s.Total,
			Health:      analytics.Health(s.Health),
		})
	}
	return analytics.ComputeTrend(points), nil
}
