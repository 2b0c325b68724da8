package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/export"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/renderer"
	"github.com/perfana/perfana-dash/pkg/storage"
	"github.com/perfana/perfana-dash/pkg/themes"
)

const (
	maxConcurrentPages = 4
	searchIndexPath    = "search-index.json"
	historyLimit       = 20
)

// Options controls a static report site
type Options struct {
	Title   string
	Theme   string
	Formats []string
}

// Generator writes static report sites from test run reports
type Generator struct {
	options  Options
	renderer *renderer.Renderer
	exporter *export.Exporter
	themes   *themes.Manager
}

// NewGenerator creates a new report generator
func NewGenerator(opts Options) (*Generator, error) {
	r, err := renderer.NewRenderer()
	if err != nil {
		return nil, err
	}
	if opts.Title == "" {
		opts.Title = "Perfana test runs"
	}
	for _, f := range opts.Formats {
		if !isKnownFormat(f) {
			return nil, fmt.Errorf("unsupported export format %q", f)
		}
	}
	return &Generator{
		options:  opts,
		renderer: r,
		exporter: export.NewExporter(r),
		themes:   themes.NewManager(opts.Theme),
	}, nil
}

func isKnownFormat(format string) bool {
	for _, f := range export.Formats {
		if f == format {
			return true
		}
	}
	return false
}

// GenerateFromDatabase builds the site from the cached snapshots of a workload
func (g *Generator) GenerateFromDatabase(db *storage.Database, w storage.Workload, limit int, outputDir string) error {
	listed, err := db.RecentSnapshots(w, limit)
	if err != nil {
		return err
	}

	reports := make([]*builder.Report, 0, len(listed))
	for _, s := range listed {
		snap, err := db.GetSnapshot(s.TestRunID)
		if err != nil {
			logger.Warnf("Skipping %s: %v", s.TestRunID, err)
			continue
		}
		report, err := builder.FromSnapshot(snap)
		if err != nil {
			logger.Warnf("Skipping %s: %v", s.TestRunID, err)
			continue
		}
		if report.Trend == nil && report.Summary != nil && report.Summary.TestRun != nil {
			if trend, err := builder.HistoryTrend(db, report.Summary.TestRun, historyLimit); err == nil {
				report.Trend = &trend
			}
		}
		reports = append(reports, report)
	}
	return g.Generate(reports, outputDir)
}

// Generate writes an index page, one page per report, a search index and
// the configured extra export formats
func (g *Generator) Generate(reports []*builder.Report, outputDir string) error {
	startTime := time.Now()
	logger.Infof("Generating report site for %d test runs...", len(reports))

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	logger.Debug("Copying theme assets...")
	if err := g.themes.CopyAssets(outputDir); err != nil {
		return fmt.Errorf("failed to copy theme assets: %w", err)
	}

	sorted := make([]*builder.Report, 0, len(reports))
	for _, r := range reports {
		if r == nil || r.Summary == nil || r.Summary.TestRun == nil {
			logger.Warn("Skipping report without a test run")
			continue
		}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Summary.TestRun.Start.After(sorted[j].Summary.TestRun.Start)
	})

	entries := make([]renderer.IndexEntry, 0, len(sorted))
	for _, r := range sorted {
		entries = append(entries, renderer.EntryFor(r))
	}
	if err := g.renderer.RenderIndex(g.options.Title, entries, filepath.Join(outputDir, "index.html")); err != nil {
		return fmt.Errorf("failed to render index: %w", err)
	}

	if err := g.renderRunPages(sorted, outputDir); err != nil {
		return fmt.Errorf("failed to render test run pages: %w", err)
	}

	if err := writeSearchIndex(entries, outputDir); err != nil {
		logger.Warnf("Failed to generate search index: %v", err)
	}

	g.exportToFormats(sorted, outputDir)

	logger.Infof("Report site generated in %v", time.Since(startTime))
	logger.Infof("Open: file://%s/index.html", outputDir)
	return nil
}

func (g *Generator) renderRunPages(reports []*builder.Report, outputDir string) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(reports))
	semaphore := make(chan struct{}, maxConcurrentPages)

	for _, report := range reports {
		wg.Add(1)
		go func(r *builder.Report) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			path := filepath.Join(outputDir, renderer.PageName(r.Summary.TestRun.TestRunID))
			if err := g.renderer.RenderRun(r, path); err != nil {
				errs <- fmt.Errorf("%s: %w", r.Summary.TestRun.TestRunID, err)
			}
		}(report)
	}

	wg.Wait()
	close(errs)

	var firstError error
	for err := range errs {
		if firstError == nil {
			firstError = err
		}
		logger.Errorf("Failed to render test run page: %v", err)
	}
	return firstError
}

func writeSearchIndex(entries []renderer.IndexEntry, outputDir string) error {
	data, err := json.Marshal(map[string]interface{}{"runs": entries})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, searchIndexPath), data, 0644)
}

// exportToFormats writes the non-HTML formats next to the pages
func (g *Generator) exportToFormats(reports []*builder.Report, outputDir string) {
	for _, format := range g.options.Formats {
		if format == export.FormatHTML {
			continue
		}
		dir := filepath.Join(outputDir, format)
		for _, r := range reports {
			if _, err := g.exporter.Export(r, dir, format); err != nil {
				logger.Warnf("Failed to export %s to %s: %v", r.Summary.TestRun.TestRunID, format, err)
			}
		}
	}
}
