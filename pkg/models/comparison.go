package models

import (
	"encoding/json"
	"fmt"
)

// Category is the RED/USE classification of a metric
type Category string

const (
	CategoryRedRate        Category = "RED_RATE"
	CategoryRedErrors      Category = "RED_ERRORS"
	CategoryRedDuration    Category = "RED_DURATION"
	CategoryUseUtilization Category = "USE_UTILIZATION"
	CategoryUseSaturation  Category = "USE_SATURATION"
	CategoryUseErrors      Category = "USE_ERRORS"
	CategoryUnknown        Category = "UNKNOWN"
)

// Categories lists every category in display order
var Categories = []Category{
	CategoryRedRate,
	CategoryRedErrors,
	CategoryRedDuration,
	CategoryUseUtilization,
	CategoryUseSaturation,
	CategoryUseErrors,
	CategoryUnknown,
}

// Family groups categories for triage
type Family string

const (
	FamilyRED          Family = "RED"
	FamilyUSE          Family = "USE"
	FamilyUnclassified Family = "UNCLASSIFIED"
)

// Families lists every family in display order
var Families = []Family{FamilyRED, FamilyUSE, FamilyUnclassified}

// ParseCategory maps a raw category string; anything unrecognised is UNKNOWN
func ParseCategory(s string) Category {
	for _, c := range Categories {
		if string(c) == s {
			return c
		}
	}
	return CategoryUnknown
}

// Family returns the taxonomy family of the category
func (c Category) Family() Family {
	switch c {
	case CategoryRedRate, CategoryRedErrors, CategoryRedDuration:
		return FamilyRED
	case CategoryUseUtilization, CategoryUseSaturation, CategoryUseErrors:
		return FamilyUSE
	default:
		return FamilyUnclassified
	}
}

// Index returns the display position of the category
func (c Category) Index() int {
	for i, cat := range Categories {
		if cat == c {
			return i
		}
	}
	return len(Categories)
}

// UnmarshalJSON accepts any string and folds unknown values into UNKNOWN
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = ParseCategory(s)
	return nil
}

// ConclusionLabel is the verdict of a metric comparison
type ConclusionLabel string

const (
	ConclusionRegression         ConclusionLabel = "regression"
	ConclusionPartialRegression  ConclusionLabel = "partial regression"
	ConclusionImprovement        ConclusionLabel = "improvement"
	ConclusionPartialImprovement ConclusionLabel = "partial improvement"
	ConclusionIncrease           ConclusionLabel = "increase"
	ConclusionPartialIncrease    ConclusionLabel = "partial increase"
	ConclusionDecrease           ConclusionLabel = "decrease"
	ConclusionPartialDecrease    ConclusionLabel = "partial decrease"
	ConclusionNoDifference       ConclusionLabel = "no difference"
	ConclusionIncomparable       ConclusionLabel = "incomparable"
)

// Conclusions lists every label in triage order: regressions first
var Conclusions = []ConclusionLabel{
	ConclusionRegression,
	ConclusionPartialRegression,
	ConclusionIncrease,
	ConclusionPartialIncrease,
	ConclusionDecrease,
	ConclusionPartialDecrease,
	ConclusionIncomparable,
	ConclusionPartialImprovement,
	ConclusionImprovement,
	ConclusionNoDifference,
}

// ParseConclusion validates a raw conclusion label
func ParseConclusion(s string) (ConclusionLabel, error) {
	for _, c := range Conclusions {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown conclusion label %q", s)
}

// Rank returns the triage position of the label; lower sorts first
func (c ConclusionLabel) Rank() int {
	for i, l := range Conclusions {
		if l == c {
			return i
		}
	}
	return len(Conclusions)
}

// IsRegression reports whether the label is a full or partial regression
func (c ConclusionLabel) IsRegression() bool {
	return c == ConclusionRegression || c == ConclusionPartialRegression
}

// IsImprovement reports whether the label is a full or partial improvement
func (c ConclusionLabel) IsImprovement() bool {
	return c == ConclusionImprovement || c == ConclusionPartialImprovement
}

// UnmarshalJSON rejects labels outside the closed set
func (c *ConclusionLabel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	label, err := ParseConclusion(s)
	if err != nil {
		return err
	}
	*c = label
	return nil
}

// Statistic holds the test and control group values of a compared metric
type Statistic struct {
	Test    float64  `json:"test"`
	Control float64  `json:"control"`
	Diff    float64  `json:"diff"`
	PctDiff float64  `json:"pctDiff"`
	IQRDiff *float64 `json:"iqrDiff,omitempty"`
}

// Conclusion is the verdict and ignore state of one comparison
type Conclusion struct {
	Label  ConclusionLabel `json:"label"`
	Ignore bool            `json:"ignore"`
}

// CheckKey names one of the threshold checks
type CheckKey string

const (
	CheckPct    CheckKey = "pct"
	CheckIQR    CheckKey = "iqr"
	CheckAbs    CheckKey = "abs"
	CheckIgnore CheckKey = "ignore"
)

// ThresholdCheck is the server side evaluation of one threshold
type ThresholdCheck struct {
	Valid          bool     `json:"valid"`
	IsDifference   *bool    `json:"isDifference"`
	InvalidReasons []string `json:"invalidReasons,omitempty"`
}

// Evaluated reports whether the threshold produced a verdict
func (t ThresholdCheck) Evaluated() bool {
	return t.Valid && t.IsDifference != nil
}

// MetricComparisonResult compares one metric of a test run against its control group
type MetricComparisonResult struct {
	ID              string                      `json:"_id"`
	Application     string                      `json:"application"`
	TestEnvironment string                      `json:"testEnvironment"`
	TestType        string                      `json:"testType"`
	TestRunID       string                      `json:"testRunId"`
	ControlGroupID  string                      `json:"controlGroupId,omitempty"`
	DashboardUID    string                      `json:"dashboardUid"`
	DashboardLabel  string                      `json:"dashboardLabel"`
	PanelID         int                         `json:"panelId"`
	PanelTitle      string                      `json:"panelTitle"`
	MetricName      string                      `json:"metricName"`
	Unit            string                      `json:"unit,omitempty"`
	Statistic       *Statistic                  `json:"statistic,omitempty"`
	Category        Category                    `json:"category"`
	HigherIsBetter  *bool                       `json:"higherIsBetter"`
	Conclusion      Conclusion                  `json:"conclusion"`
	Checks          map[CheckKey]ThresholdCheck `json:"checks,omitempty"`
	Score           float64                     `json:"score"`
}

// Check returns the named threshold check, if present
func (m *MetricComparisonResult) Check(key CheckKey) (ThresholdCheck, bool) {
	c, ok := m.Checks[key]
	return c, ok
}

// ThresholdSource records where a threshold value came from
type ThresholdSource string

const (
	SourceDefault   ThresholdSource = "default"
	SourcePanel     ThresholdSource = "panel"
	SourceMetric    ThresholdSource = "metric"
	SourceDashboard ThresholdSource = "dashboard"
)

// Specificity orders sources; higher wins
func (s ThresholdSource) Specificity() int {
	switch s {
	case SourceMetric:
		return 3
	case SourcePanel:
		return 2
	case SourceDashboard:
		return 1
	default:
		return 0
	}
}

// ThresholdValue is a threshold with its provenance
type ThresholdValue struct {
	Value  *float64        `json:"value"`
	Source ThresholdSource `json:"source"`
}

// IgnoreValue is the ignore flag with its provenance
type IgnoreValue struct {
	Value  bool            `json:"value"`
	Source ThresholdSource `json:"source"`
}

// ThresholdConfig is the effective threshold configuration of a metric
type ThresholdConfig struct {
	Pct    ThresholdValue `json:"pct"`
	IQR    ThresholdValue `json:"iqr"`
	Abs    ThresholdValue `json:"abs"`
	Ignore IgnoreValue    `json:"ignore"`
}

// MetricKey identifies a metric within a dashboard panel for one workload
type MetricKey struct {
	Application     string `json:"application"`
	TestEnvironment string `json:"testEnvironment"`
	TestType        string `json:"testType"`
	DashboardUID    string `json:"dashboardUid,omitempty"`
	PanelID         *int   `json:"panelId,omitempty"`
	MetricName      string `json:"metricName,omitempty"`
}

// ThresholdRule is one stored configuration entry; unset fields are nil
type ThresholdRule struct {
	ID              string   `json:"_id"`
	Application     string   `json:"application,omitempty"`
	TestEnvironment string   `json:"testEnvironment,omitempty"`
	TestType        string   `json:"testType,omitempty"`
	DashboardUID    string   `json:"dashboardUid,omitempty"`
	PanelID         *int     `json:"panelId,omitempty"`
	MetricName      string   `json:"metricName,omitempty"`
	Pct             *float64 `json:"pctThreshold,omitempty"`
	IQR             *float64 `json:"iqrThreshold,omitempty"`
	Abs             *float64 `json:"absThreshold,omitempty"`
	Ignore          *bool    `json:"ignore,omitempty"`
}

// AppliesTo reports whether the rule belongs to the workload of run. Unset
// workload fields match any run.
func (r ThresholdRule) AppliesTo(run *TestRun) bool {
	return (r.Application == "" || r.Application == run.Application) &&
		(r.TestEnvironment == "" || r.TestEnvironment == run.TestEnvironment) &&
		(r.TestType == "" || r.TestType == run.TestType)
}

// Source derives the scope a rule applies at
func (r ThresholdRule) Source() ThresholdSource {
	switch {
	case r.MetricName != "":
		return SourceMetric
	case r.PanelID != nil:
		return SourcePanel
	case r.DashboardUID != "":
		return SourceDashboard
	default:
		return SourceDefault
	}
}

// Classification maps a dashboard panel, optionally a single metric, to a category
type Classification struct {
	ID              string   `json:"_id,omitempty"`
	Application     string   `json:"application"`
	TestEnvironment string   `json:"testEnvironment"`
	TestType        string   `json:"testType"`
	DashboardUID    string   `json:"dashboardUid,omitempty"`
	PanelID         *int     `json:"panelId,omitempty"`
	MetricName      string   `json:"metricName,omitempty"`
	Category        Category `json:"metricClassification"`
	HigherIsBetter  *bool    `json:"higherIsBetter"`
}

// DsCompareStatistics is the detailed per-statistic comparison of one metric
type DsCompareStatistics struct {
	Panel               string             `json:"panel"`
	Statistic           string             `json:"statistic"`
	DsCompareStatistics []CompareStatistic `json:"dsCompareStatistics"`
}

// CompareStatistic is one statistic row (median, mean, min, max) of a comparison
type CompareStatistic struct {
	Name    string   `json:"name"`
	Test    *float64 `json:"test"`
	Control *float64 `json:"control"`
	Diff    *float64 `json:"diff"`
	PctDiff *float64 `json:"pctDiff"`
}
