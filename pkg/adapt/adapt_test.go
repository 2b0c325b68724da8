package adapt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfana/perfana-dash/pkg/models"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }
func catPtr(c models.Category) *models.Category {
	return &c
}
func conPtr(c models.ConclusionLabel) *models.ConclusionLabel {
	return &c
}

func result(panel, metric string, cat models.Category, label models.ConclusionLabel, score float64) *models.MetricComparisonResult {
	return &models.MetricComparisonResult{
		ID:         panel + "/" + metric,
		PanelTitle: panel,
		MetricName: metric,
		Category:   cat,
		Conclusion: models.Conclusion{Label: label},
		Score:      score,
	}
}

func fixture() []*models.MetricComparisonResult {
	return []*models.MetricComparisonResult{
		result("Throughput", "tps", models.CategoryRedRate, models.ConclusionNoDifference, 1),
		result("Errors", "5xx", models.CategoryRedErrors, models.ConclusionRegression, 5),
		result("Latency", "p95", models.CategoryRedDuration, models.ConclusionRegression, 9),
		result("CPU", "pod-a", models.CategoryUseUtilization, models.ConclusionImprovement, 2),
		result("CPU", "pod-b", models.CategoryUseUtilization, models.ConclusionNoDifference, 0),
	}
}

func ids(rows []*models.MetricComparisonResult) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestApply_NoFilters(t *testing.T) {
	view := Apply(fixture(), Filter{})

	assert.Len(t, view.Rows, 5)
	assert.Equal(t, 5, view.Total)
	assert.Equal(t, []models.Category{
		models.CategoryRedRate,
		models.CategoryRedErrors,
		models.CategoryRedDuration,
		models.CategoryUseUtilization,
	}, view.CategoryOptions)
	assert.Equal(t, []models.ConclusionLabel{
		models.ConclusionRegression,
		models.ConclusionImprovement,
		models.ConclusionNoDifference,
	}, view.ConclusionOptions)
}

func TestApply_BothFiltersAreAConjunction(t *testing.T) {
	view := Apply(fixture(), Filter{
		Category:   catPtr(models.CategoryUseUtilization),
		Conclusion: conPtr(models.ConclusionNoDifference),
	})

	assert.Equal(t, []string{"CPU/pod-b"}, ids(view.Rows))
	// conclusions offered are those of USE_UTILIZATION rows only
	assert.Equal(t, []models.ConclusionLabel{
		models.ConclusionImprovement,
		models.ConclusionNoDifference,
	}, view.ConclusionOptions)
	// categories offered are those of "no difference" rows only
	assert.Equal(t, []models.Category{
		models.CategoryRedRate,
		models.CategoryUseUtilization,
	}, view.CategoryOptions)
}

func TestApply_SingleFilterKeepsItsOwnOptions(t *testing.T) {
	view := Apply(fixture(), Filter{Category: catPtr(models.CategoryRedErrors)})

	assert.Equal(t, []string{"Errors/5xx"}, ids(view.Rows))
	assert.Len(t, view.CategoryOptions, 4)
	assert.Equal(t, []models.ConclusionLabel{models.ConclusionRegression}, view.ConclusionOptions)
}

func TestApply_OfferedOptionsNeverYieldEmptyTables(t *testing.T) {
	results := fixture()
	base := Filter{Category: catPtr(models.CategoryUseUtilization)}
	view := Apply(results, base)

	for _, c := range view.ConclusionOptions {
		next := Apply(results, Filter{Category: base.Category, Conclusion: conPtr(c)})
		assert.NotEmpty(t, next.Rows, "conclusion %s", c)
	}
}

func TestApply_IgnoreTriState(t *testing.T) {
	results := fixture()
	results[1].Conclusion.Ignore = true

	ignored := Apply(results, Filter{Ignore: boolPtr(true)})
	assert.Equal(t, []string{"Errors/5xx"}, ids(ignored.Rows))
	assert.Equal(t, []models.Category{models.CategoryRedErrors}, ignored.CategoryOptions)

	notIgnored := Apply(results, Filter{Ignore: boolPtr(false)})
	assert.Len(t, notIgnored.Rows, 4)

	all := Apply(results, Filter{})
	assert.Len(t, all.Rows, 5)
}

func TestApply_EmptyResultIsNotNil(t *testing.T) {
	view := Apply(nil, Filter{Category: catPtr(models.CategoryRedRate)})
	require.NotNil(t, view.Rows)

	data, err := json.Marshal(view)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rows":[]`)
}

func TestGroupByFamilyAndCount(t *testing.T) {
	rows := fixture()
	rows = append(rows, result("Custom", "x", models.CategoryUnknown, models.ConclusionIncomparable, 0))

	groups := GroupByFamily(rows)
	assert.Len(t, groups[models.FamilyRED], 3)
	assert.Len(t, groups[models.FamilyUSE], 2)
	assert.Len(t, groups[models.FamilyUnclassified], 1)

	counts := CountByConclusion(rows)
	assert.Equal(t, 2, counts[models.ConclusionRegression])
	assert.Equal(t, 2, counts[models.ConclusionNoDifference])
	assert.Equal(t, 1, counts[models.ConclusionIncomparable])
}

func TestSort_DefaultSurfacesRegressionsByScore(t *testing.T) {
	rows := fixture()
	Sort(rows, SortSpec{})

	assert.Equal(t, []string{
		"Latency/p95",
		"Errors/5xx",
		"CPU/pod-a",
		"Throughput/tps",
		"CPU/pod-b",
	}, ids(rows))
}

func TestSort_ExplicitConclusionBreaksTiesByName(t *testing.T) {
	rows := fixture()
	Sort(rows, SortSpec{Field: SortConclusion})
	assert.Equal(t, []string{
		"Errors/5xx",
		"Latency/p95",
		"CPU/pod-a",
		"CPU/pod-b",
		"Throughput/tps",
	}, ids(rows))

	Sort(rows, SortSpec{Field: SortConclusion, Desc: true})
	assert.Equal(t, "CPU/pod-b", rows[0].ID)
	assert.Equal(t, "Latency/p95", rows[len(rows)-1].ID)
}

func TestSort_ByPctDiff(t *testing.T) {
	rows := fixture()
	rows[0].Statistic = &models.Statistic{PctDiff: 0.5}
	rows[2].Statistic = &models.Statistic{PctDiff: -0.1}

	Sort(rows, SortSpec{Field: SortPctDiff, Desc: true})
	assert.Equal(t, "Throughput/tps", rows[0].ID)
	assert.Equal(t, "Latency/p95", rows[len(rows)-1].ID)
}

func TestParseSortField(t *testing.T) {
	f, err := ParseSortField("conclusion")
	require.NoError(t, err)
	assert.Equal(t, SortConclusion, f)

	_, err = ParseSortField("color")
	assert.Error(t, err)
}

func TestScopeFor(t *testing.T) {
	assert.Equal(t, models.SourceMetric, ScopeFor(models.MetricKey{MetricName: "p95"}))
	assert.Equal(t, models.SourceMetric, ScopeFor(models.MetricKey{PanelID: intPtr(3), MetricName: "p95"}))
	assert.Equal(t, models.SourcePanel, ScopeFor(models.MetricKey{DashboardUID: "d", PanelID: intPtr(3)}))
	assert.Equal(t, models.SourceDashboard, ScopeFor(models.MetricKey{DashboardUID: "d"}))
}

func TestNewConfigUpdate(t *testing.T) {
	update := NewConfigUpdate(
		models.MetricKey{Application: "shop", DashboardUID: "d", PanelID: intPtr(3)},
		ThresholdEdit{Pct: floatPtr(0.1)},
	)
	assert.Equal(t, models.SourcePanel, update.Source)

	data, err := json.Marshal(update)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"application": "shop",
		"testEnvironment": "",
		"testType": "",
		"dashboardUid": "d",
		"panelId": 3,
		"pctThreshold": 0.1,
		"source": "panel"
	}`, string(data))

	assert.True(t, ThresholdEdit{}.Empty())
	assert.False(t, update.ThresholdEdit.Empty())
}

func TestKeyOf(t *testing.T) {
	r := &models.MetricComparisonResult{DashboardUID: "d", PanelID: 7, MetricName: "p95"}
	key := KeyOf(r)
	require.NotNil(t, key.PanelID)
	assert.Equal(t, 7, *key.PanelID)
	assert.Equal(t, models.SourceMetric, ScopeFor(key))
}

func TestResolveThresholds(t *testing.T) {
	rules := []models.ThresholdRule{
		{ID: "default", Pct: floatPtr(0.15), IQR: floatPtr(1.5), Abs: floatPtr(0)},
		{ID: "dash", DashboardUID: "d", Pct: floatPtr(0.2)},
		{ID: "panel", DashboardUID: "d", PanelID: intPtr(3), IQR: floatPtr(2), Ignore: boolPtr(true)},
		{ID: "metric", DashboardUID: "d", PanelID: intPtr(3), MetricName: "p95", Pct: floatPtr(0.05), Ignore: boolPtr(false)},
		{ID: "other-panel", DashboardUID: "d", PanelID: intPtr(4), Abs: floatPtr(99)},
	}

	cfg := ResolveThresholds(rules, models.MetricKey{DashboardUID: "d", PanelID: intPtr(3), MetricName: "p95"})
	assert.Equal(t, models.SourceMetric, cfg.Pct.Source)
	assert.Equal(t, 0.05, *cfg.Pct.Value)
	assert.Equal(t, models.SourcePanel, cfg.IQR.Source)
	assert.Equal(t, 2.0, *cfg.IQR.Value)
	assert.Equal(t, models.SourceDefault, cfg.Abs.Source)
	assert.Equal(t, 0.0, *cfg.Abs.Value)
	assert.Equal(t, models.IgnoreValue{Value: false, Source: models.SourceMetric}, cfg.Ignore)

	sibling := ResolveThresholds(rules, models.MetricKey{DashboardUID: "d", PanelID: intPtr(3), MetricName: "p99"})
	assert.Equal(t, models.SourceDashboard, sibling.Pct.Source)
	assert.Equal(t, models.IgnoreValue{Value: true, Source: models.SourcePanel}, sibling.Ignore)
}

func TestResolveThresholds_OrderDoesNotMatter(t *testing.T) {
	rules := []models.ThresholdRule{
		{ID: "metric", DashboardUID: "d", MetricName: "p95", Pct: floatPtr(0.05)},
		{ID: "dash", DashboardUID: "d", Pct: floatPtr(0.2)},
	}
	key := models.MetricKey{DashboardUID: "d", PanelID: intPtr(1), MetricName: "p95"}

	forward := ResolveThresholds(rules, key)
	rules[0], rules[1] = rules[1], rules[0]
	backward := ResolveThresholds(rules, key)

	assert.Equal(t, forward, backward)
	assert.Equal(t, models.SourceMetric, forward.Pct.Source)
}

func TestResolveThresholds_NothingConfigured(t *testing.T) {
	cfg := ResolveThresholds(nil, models.MetricKey{DashboardUID: "d"})
	assert.Nil(t, cfg.Pct.Value)
	assert.Equal(t, models.SourceDefault, cfg.Pct.Source)
	assert.False(t, cfg.Ignore.Value)
}

func TestLookupClassification(t *testing.T) {
	entries := []models.Classification{
		{ID: "default", Application: "shop", Category: models.CategoryUnknown},
		{ID: "panel", Application: "shop", DashboardUID: "d", PanelID: intPtr(3), Category: models.CategoryRedDuration, HigherIsBetter: boolPtr(false)},
		{ID: "metric", Application: "shop", DashboardUID: "d", PanelID: intPtr(3), MetricName: "rps", Category: models.CategoryRedRate, HigherIsBetter: boolPtr(true)},
		{ID: "other-app", Application: "bank", DashboardUID: "d", PanelID: intPtr(3), MetricName: "p95", Category: models.CategoryUseErrors},
	}

	tests := []struct {
		name     string
		key      models.MetricKey
		expected string
		found    bool
	}{
		{name: "exact metric", key: models.MetricKey{Application: "shop", DashboardUID: "d", PanelID: intPtr(3), MetricName: "rps"}, expected: "metric", found: true},
		{name: "panel fallback", key: models.MetricKey{Application: "shop", DashboardUID: "d", PanelID: intPtr(3), MetricName: "p95"}, expected: "panel", found: true},
		{name: "default fallback", key: models.MetricKey{Application: "shop", DashboardUID: "d", PanelID: intPtr(9), MetricName: "p95"}, expected: "default", found: true},
		{name: "no entry for application", key: models.MetricKey{Application: "blog", DashboardUID: "x"}, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := LookupClassification(entries, tt.key)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.expected, c.ID)
		})
	}
}

func TestNewClassificationUpdate(t *testing.T) {
	key := models.MetricKey{Application: "shop", DashboardUID: "d", PanelID: intPtr(3)}
	c := NewClassificationUpdate(key, models.CategoryUseSaturation, boolPtr(false))
	assert.Equal(t, models.CategoryUseSaturation, c.Category)
	assert.Equal(t, 3, *c.PanelID)
	assert.Empty(t, c.MetricName)
}
