package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestRun_Duration(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		end      time.Time
		expected time.Duration
	}{
		{name: "regular run", end: start.Add(30 * time.Minute), expected: 30 * time.Minute},
		{name: "end before start", end: start.Add(-time.Minute), expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &TestRun{Start: start, End: tt.end}
			assert.Equal(t, tt.expected, run.Duration())
		})
	}
}

func TestTestRun_RampUpEnd(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	run := &TestRun{Start: start, RampUp: 120}
	assert.Equal(t, start.Add(2*time.Minute), run.RampUpEnd())
}

func TestCategory_Family(t *testing.T) {
	tests := []struct {
		category Category
		expected Family
	}{
		{CategoryRedRate, FamilyRED},
		{CategoryRedErrors, FamilyRED},
		{CategoryRedDuration, FamilyRED},
		{CategoryUseUtilization, FamilyUSE},
		{CategoryUseSaturation, FamilyUSE},
		{CategoryUseErrors, FamilyUSE},
		{CategoryUnknown, FamilyUnclassified},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.category.Family())
		})
	}
}

func TestCategory_UnmarshalUnknownFoldsToUnknown(t *testing.T) {
	var c Category
	require.NoError(t, json.Unmarshal([]byte(`"SOMETHING_ELSE"`), &c))
	assert.Equal(t, CategoryUnknown, c)

	require.NoError(t, json.Unmarshal([]byte(`"USE_SATURATION"`), &c))
	assert.Equal(t, CategoryUseSaturation, c)
}

func TestConclusionLabel_ClosedSet(t *testing.T) {
	assert.Len(t, Conclusions, 10)

	var c ConclusionLabel
	require.NoError(t, json.Unmarshal([]byte(`"partial regression"`), &c))
	assert.Equal(t, ConclusionPartialRegression, c)

	err := json.Unmarshal([]byte(`"worse"`), &c)
	assert.Error(t, err)
}

func TestConclusionLabel_RankPutsRegressionsFirst(t *testing.T) {
	assert.Equal(t, 0, ConclusionRegression.Rank())
	assert.Less(t, ConclusionPartialRegression.Rank(), ConclusionImprovement.Rank())
	assert.Less(t, ConclusionImprovement.Rank(), ConclusionNoDifference.Rank())
	assert.True(t, ConclusionPartialRegression.IsRegression())
	assert.False(t, ConclusionIncrease.IsRegression())
	assert.True(t, ConclusionPartialImprovement.IsImprovement())
}

func TestThresholdRule_Source(t *testing.T) {
	panel := 4
	assert.Equal(t, SourceMetric, ThresholdRule{DashboardUID: "d", PanelID: &panel, MetricName: "p95"}.Source())
	assert.Equal(t, SourcePanel, ThresholdRule{DashboardUID: "d", PanelID: &panel}.Source())
	assert.Equal(t, SourceDashboard, ThresholdRule{DashboardUID: "d"}.Source())
	assert.Equal(t, SourceDefault, ThresholdRule{}.Source())
}

func TestMetricComparisonResult_Decode(t *testing.T) {
	raw := `{
		"_id": "abc",
		"testRunId": "run-1",
		"panelId": 3,
		"metricName": "p95",
		"statistic": {"test": 120, "control": 100, "diff": 20, "pctDiff": 0.2},
		"category": "RED_DURATION",
		"higherIsBetter": false,
		"conclusion": {"label": "regression", "ignore": false},
		"checks": {"pct": {"valid": true, "isDifference": true}, "iqr": {"valid": false, "isDifference": null, "invalidReasons": ["no spread"]}}
	}`

	var m MetricComparisonResult
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, CategoryRedDuration, m.Category)
	require.NotNil(t, m.HigherIsBetter)
	assert.False(t, *m.HigherIsBetter)
	assert.Equal(t, ConclusionRegression, m.Conclusion.Label)

	pct, ok := m.Check(CheckPct)
	require.True(t, ok)
	assert.True(t, pct.Evaluated())

	iqr, ok := m.Check(CheckIQR)
	require.True(t, ok)
	assert.False(t, iqr.Evaluated())
	assert.Nil(t, iqr.IsDifference)
}

func TestDisplayUnit(t *testing.T) {
	assert.Equal(t, "%", DisplayUnit("percentunit"))
	assert.Equal(t, "req/s", DisplayUnit("reqps"))
	assert.Equal(t, "", DisplayUnit("short"))
	assert.Equal(t, "widgets", DisplayUnit("widgets"))
}

func TestCheckResult_Failed(t *testing.T) {
	no := false
	yes := true
	assert.True(t, (&CheckResult{MeetsRequirement: &no}).Failed())
	assert.False(t, (&CheckResult{MeetsRequirement: &yes}).Failed())
	assert.False(t, (&CheckResult{}).Failed())
}
