package builder

import (
	"context"

	"github.com/perfana/perfana-dash/pkg/charts"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/store"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

// ComparePrevious selects the previous run as the chart baseline
const ComparePrevious = "previous"

// SeriesSource fetches chart data that is not published through subscriptions
type SeriesSource interface {
	GetDsMetrics(ctx context.Context, testRunID string, key models.MetricKey) ([]models.MetricSeries, error)
	GetDsTrackedRegressions(ctx context.Context, key models.MetricKey) ([]models.TrackedRegressionPoint, error)
}

// MetricChart plots one panel metric of the route's test run. With compareWith
// set to ComparePrevious or a test run id the first series is overlaid with the
// same metric of that run. It reports false while the test run, or the run to
// compare with, is unknown.
func (b *Builder) MetricChart(ctx context.Context, src SeriesSource, route testrun.RouteParams, key models.MetricKey, compareWith string) (*charts.Figure, bool, error) {
	run, ok := testrun.Resolve(b.store, route)
	if !ok {
		return nil, false, nil
	}
	key = b.scopeKey(run, key)

	series, err := src.GetDsMetrics(ctx, run.TestRunID, key)
	if err != nil {
		return nil, false, err
	}

	if compareWith == "" {
		fig := charts.TestRunChart(run, series, charts.Options{Title: b.chartTitle(run, key)})
		return &fig, true, nil
	}

	var other *models.TestRun
	if compareWith == ComparePrevious {
		other, ok = testrun.Previous(b.store, route, run)
	} else {
		other, ok = testrun.Baseline(b.store, route, run, compareWith)
	}
	if !ok {
		return nil, false, nil
	}
	otherSeries, err := src.GetDsMetrics(ctx, other.TestRunID, key)
	if err != nil {
		return nil, false, err
	}

	var test, baseline models.MetricSeries
	if len(series) > 0 {
		test = series[0]
	}
	baseline = matchingSeries(otherSeries, test.Name)
	if test.Name == "" {
		test.Name = b.chartTitle(run, key)
	}
	fig := charts.ComparisonChart(run, other, test, baseline, b.baselineLabel)
	return &fig, true, nil
}

// TrackedChart plots a metric of the route's workload over historical runs
func (b *Builder) TrackedChart(ctx context.Context, src SeriesSource, route testrun.RouteParams, key models.MetricKey) (*charts.Figure, bool, error) {
	run, ok := testrun.Resolve(b.store, route)
	if !ok {
		return nil, false, nil
	}
	key = b.scopeKey(run, key)

	points, err := src.GetDsTrackedRegressions(ctx, key)
	if err != nil {
		return nil, false, err
	}
	unit := ""
	if m, found := b.comparisonFor(run, key); found {
		unit = m.Unit
	}
	fig := charts.TrackedRegressionChart(points, key.MetricName, unit)
	return &fig, true, nil
}

// fills the workload of key from the test run
func (b *Builder) scopeKey(run *models.TestRun, key models.MetricKey) models.MetricKey {
	key.Application = run.Application
	key.TestEnvironment = run.TestEnvironment
	key.TestType = run.TestType
	return key
}

func (b *Builder) comparisonFor(run *models.TestRun, key models.MetricKey) (*models.MetricComparisonResult, bool) {
	return store.FindOne(b.store, store.DsAdaptResults, func(m *models.MetricComparisonResult) bool {
		return m.TestRunID == run.TestRunID &&
			m.DashboardUID == key.DashboardUID &&
			(key.PanelID == nil || m.PanelID == *key.PanelID) &&
			(key.MetricName == "" || m.MetricName == key.MetricName)
	})
}

func (b *Builder) chartTitle(run *models.TestRun, key models.MetricKey) string {
	if m, found := b.comparisonFor(run, key); found {
		return m.PanelTitle
	}
	return key.MetricName
}

func matchingSeries(series []models.MetricSeries, name string) models.MetricSeries {
	for _, s := range series {
		if s.Name == name {
			return s
		}
	}
	if len(series) > 0 {
		return series[0]
	}
	return models.MetricSeries{}
}
