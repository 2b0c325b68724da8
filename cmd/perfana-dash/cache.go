package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/generator"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/storage"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

const trendRuns = 20

func cacheCommands() []*cobra.Command {
	var syncCmd = &cobra.Command{
		Use:   "sync [testRunId...]",
		Short: "Store test run snapshots in the local cache",
		Long:  "Fetch the views of the given test runs and store them in the sqlite snapshot cache for offline reports and history.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSync,
	}

	var exportCmd = &cobra.Command{
		Use:   "export [testRunId...]",
		Short: "Export test runs as a static report",
		Long:  "Write an HTML report site, plus JSON or YAML documents, for live test runs or for the cached runs of a workload.",
		RunE:  runExport,
	}
	exportCmd.Flags().StringP("dir", "d", "", "Output directory (default reports_dir)")
	exportCmd.Flags().StringSliceP("formats", "f", nil, "Export formats: html, json, yaml (default export_formats)")
	exportCmd.Flags().String("theme", "", "Theme directory (default theme_path)")
	exportCmd.Flags().Bool("from-cache", false, "Export the cached runs of the workload instead of live runs")
	exportCmd.Flags().Int("limit", trendRuns, "Number of cached runs to export")

	var historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show cached runs of a workload",
		Long:  "List the cached runs of a workload with their regression trend, or the history of one metric.",
		RunE:  runHistory,
	}
	historyCmd.Flags().Int("limit", trendRuns, "Number of runs")
	historyCmd.Flags().String("dashboard", "", "Dashboard uid of a metric")
	historyCmd.Flags().Int("panel", -1, "Panel id of a metric")
	historyCmd.Flags().String("metric", "", "Metric name")

	cmds := []*cobra.Command{syncCmd, exportCmd, historyCmd}
	for _, c := range cmds {
		addRouteFlags(c)
	}
	return cmds
}

func openCache() (*storage.Database, error) {
	if cfg.CacheDB == "" {
		return nil, fmt.Errorf("cache_db is not configured")
	}
	return storage.NewDatabase(cfg.CacheDB)
}

// liveReport builds the report of a loaded test run, with the trend of the
// cached runs when a cache is at hand
func liveReport(p *perfana, db *storage.Database, route testrun.RouteParams) (*builder.Report, error) {
	report, ok := p.views.Report(route)
	if !ok {
		return nil, fmt.Errorf("test run %s: %w", route.TestRunID, errNotFound)
	}
	if db != nil {
		if trend, err := builder.HistoryTrend(db, report.Summary.TestRun, trendRuns); err == nil {
			report.Trend = &trend
		} else {
			logger.Warnf("No history for %s: %v", route.TestRunID, err)
		}
	}
	return report, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	db, err := openCache()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := commandContext()
	defer stop()
	p, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	for _, id := range args {
		route := routeFrom(cmd, id)
		if _, err := p.load(ctx, route); err != nil {
			return err
		}
		report, err := liveReport(p, nil, route)
		if err != nil {
			return err
		}
		snap, err := builder.ToSnapshot(report)
		if err != nil {
			return err
		}
		if err := db.SaveSnapshot(snap); err != nil {
			return err
		}
		logger.Infof("Cached %s (%d metrics, health %s)", id, snap.Total, snap.Health)
	}

	if cfg.RetentionDays > 0 {
		if n, err := db.CleanupOldData(cfg.RetentionDays, time.Now()); err != nil {
			logger.Warnf("Snapshot cleanup failed: %v", err)
		} else if n > 0 {
			logger.Infof("Removed %d expired snapshots", n)
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	dir := mustString(cmd, "dir")
	if dir == "" {
		dir = cfg.ReportsDir
	}
	formats, _ := cmd.Flags().GetStringSlice("formats")
	if len(formats) == 0 {
		formats = cfg.ExportFormats
	}
	theme := mustString(cmd, "theme")
	if theme == "" {
		theme = cfg.ThemePath
	}
	fromCache, _ := cmd.Flags().GetBool("from-cache")
	limit, _ := cmd.Flags().GetInt("limit")

	gen, err := generator.NewGenerator(generator.Options{Theme: theme, Formats: formats})
	if err != nil {
		return err
	}

	if fromCache {
		db, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()
		route := routeFrom(cmd, "")
		return gen.GenerateFromDatabase(db, storage.Workload{
			Application:     route.Application,
			TestEnvironment: route.TestEnvironment,
			TestType:        route.TestType,
		}, limit, dir)
	}

	if len(args) == 0 {
		return fmt.Errorf("give test run ids or --from-cache")
	}

	var db *storage.Database
	if cfg.CacheDB != "" {
		if _, statErr := os.Stat(cfg.CacheDB); statErr == nil {
			if db, err = storage.NewDatabase(cfg.CacheDB); err != nil {
				logger.Warnf("Snapshot cache unavailable: %v", err)
			} else {
				defer db.Close()
			}
		}
	}

	ctx, stop := commandContext()
	defer stop()
	p, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	reports, err := loadReports(ctx, p, db, cmd, args)
	if err != nil {
		return err
	}
	return gen.Generate(reports, dir)
}

func loadReports(ctx context.Context, p *perfana, db *storage.Database, cmd *cobra.Command, ids []string) ([]*builder.Report, error) {
	reports := make([]*builder.Report, 0, len(ids))
	for _, id := range ids {
		route := routeFrom(cmd, id)
		if _, err := p.load(ctx, route); err != nil {
			return nil, err
		}
		report, err := liveReport(p, db, route)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := openCache()
	if err != nil {
		return err
	}
	defer db.Close()

	route := routeFrom(cmd, "")
	w := storage.Workload{Application: route.Application, TestEnvironment: route.TestEnvironment, TestType: route.TestType}
	limit, _ := cmd.Flags().GetInt("limit")

	if dashboard := mustString(cmd, "dashboard"); dashboard != "" {
		panel, _ := cmd.Flags().GetInt("panel")
		metric := mustString(cmd, "metric")
		if panel < 0 || metric == "" {
			return fmt.Errorf("--panel and --metric are required with --dashboard")
		}
		points, err := db.MetricHistory(w, dashboard, panel, metric, limit)
		if err != nil {
			return err
		}
		return printMetricHistory(os.Stdout, points)
	}

	snaps, err := db.RecentSnapshots(w, limit)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No cached test runs")
		return nil
	}
	trend, err := builder.HistoryTrend(db, &models.TestRun{
		Application:     w.Application,
		TestEnvironment: w.TestEnvironment,
		TestType:        w.TestType,
	}, limit)
	if err != nil {
		return err
	}
	return printHistory(os.Stdout, snaps, trend)
}
