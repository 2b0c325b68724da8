package models

import (
	"time"
)

// TestRun represents a single load test execution as published by the Perfana server
type TestRun struct {
	ID                 string              `json:"_id"`
	TestRunID          string              `json:"testRunId"`
	Application        string              `json:"application"`
	TestEnvironment    string              `json:"testEnvironment"`
	TestType           string              `json:"testType"`
	Version            string              `json:"applicationRelease,omitempty"`
	Start              time.Time           `json:"start"`
	End                time.Time           `json:"end"`
	RampUp             int                 `json:"rampUp"` // seconds
	Tags               []string            `json:"tags,omitempty"`
	Completed          bool                `json:"completed"`
	Valid              bool                `json:"valid"`
	ReasonsNotValid    []string            `json:"reasonsNotValid,omitempty"`
	Annotations        string              `json:"annotations,omitempty"`
	CIBuildResultsURL  string              `json:"CIBuildResultsUrl,omitempty"`
	ConsolidatedResult *ConsolidatedResult `json:"consolidatedResult,omitempty"`
}

// ConsolidatedResult holds the overall verdicts of a test run
type ConsolidatedResult struct {
	Overall                    *bool `json:"overall,omitempty"`
	MeetsRequirement           *bool `json:"meetsRequirement,omitempty"`
	BenchmarkResultPreviousOK  *bool `json:"benchmarkResultPreviousOK,omitempty"`
	BenchmarkBaselineTestRunOK *bool `json:"benchmarkBaselineTestRunOK,omitempty"`
	AdaptTestRunOK             *bool `json:"adaptTestRunOK,omitempty"`
}

// Duration returns the wall clock duration of the test run
func (t *TestRun) Duration() time.Duration {
	if t.End.Before(t.Start) {
		return 0
	}
	return t.End.Sub(t.Start)
}

// RampUpEnd returns the moment the warm-up period ends
func (t *TestRun) RampUpEnd() time.Time {
	return t.Start.Add(time.Duration(t.RampUp) * time.Second)
}

// Workload is an alias kept for readability in views; Perfana calls it testType
func (t *TestRun) Workload() string {
	return t.TestType
}

// CheckKind distinguishes absolute requirements from benchmark comparisons
type CheckKind string

const (
	CheckKindRequirement       CheckKind = "requirement"
	CheckKindBenchmarkPrevious CheckKind = "benchmarkPrevious"
	CheckKindBenchmarkBaseline CheckKind = "benchmarkBaseline"
)

// CheckStatus is the evaluation status reported by the server
type CheckStatus string

const (
	CheckStatusNew        CheckStatus = "NEW"
	CheckStatusComplete   CheckStatus = "COMPLETE"
	CheckStatusError      CheckStatus = "ERROR"
	CheckStatusReEvaluate CheckStatus = "RE_EVALUATE"
)

// Requirement is an absolute service level objective for a panel
type Requirement struct {
	Operator string  `json:"operator"` // "lt" or "gt"
	Value    float64 `json:"value"`
}

// Benchmark is an allowed deviation against a previous or baseline test run
type Benchmark struct {
	Operator                 string   `json:"operator"` // "pst-pct", "ngt-pct", "pst", "ngt"
	Value                    float64  `json:"value"`
	AbsoluteFailureThreshold *float64 `json:"absoluteFailureThreshold,omitempty"`
}

// CheckTarget is the evaluation of a single series within a checked panel
type CheckTarget struct {
	Target           string   `json:"target"`
	Value            *float64 `json:"value,omitempty"`
	BaselineValue    *float64 `json:"benchmarkValue,omitempty"`
	PctDiff          *float64 `json:"benchmarkPctDiff,omitempty"`
	MeetsRequirement *bool    `json:"meetsRequirement,omitempty"`
}

// CheckResult is a requirement or benchmark result for one panel of one test run
type CheckResult struct {
	ID               string        `json:"_id"`
	Application      string        `json:"application"`
	TestEnvironment  string        `json:"testEnvironment"`
	TestType         string        `json:"testType"`
	TestRunID        string        `json:"testRunId"`
	BaselineRunID    string        `json:"benchmarkBaselineTestRunId,omitempty"`
	DashboardUID     string        `json:"dashboardUid"`
	DashboardLabel   string        `json:"dashboardLabel"`
	PanelID          int           `json:"panelId"`
	PanelTitle       string        `json:"panelTitle"`
	Kind             CheckKind     `json:"kind"`
	Status           CheckStatus   `json:"status"`
	Message          string        `json:"message,omitempty"`
	MeetsRequirement *bool         `json:"meetsRequirement,omitempty"`
	Requirement      *Requirement  `json:"requirement,omitempty"`
	Benchmark        *Benchmark    `json:"benchmark,omitempty"`
	Targets          []CheckTarget `json:"targets,omitempty"`
	Unit             string        `json:"panelYAxesFormat,omitempty"`
}

// Failed reports whether the check was evaluated and did not meet its objective
func (c *CheckResult) Failed() bool {
	return c.MeetsRequirement != nil && !*c.MeetsRequirement
}

// Application is a system under test and the team that owns it
type Application struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Team string `json:"team"`
}

// GrafanaDashboard links a test environment to a Grafana dashboard
type GrafanaDashboard struct {
	ID              string            `json:"_id"`
	Application     string            `json:"application"`
	TestEnvironment string            `json:"testEnvironment"`
	Grafana         string            `json:"grafana"`
	DashboardUID    string            `json:"dashboardUid"`
	DashboardName   string            `json:"dashboardName"`
	DashboardLabel  string            `json:"dashboardLabel"`
	Slug            string            `json:"slug,omitempty"`
	Variables       map[string]string `json:"variables,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
}

// SnapshotStatus reports whether a Grafana snapshot has been created
type SnapshotStatus string

const (
	SnapshotStatusInProgress SnapshotStatus = "IN_PROGRESS"
	SnapshotStatusComplete   SnapshotStatus = "COMPLETE"
	SnapshotStatusError      SnapshotStatus = "ERROR"
)

// Snapshot is a Grafana snapshot taken of a dashboard for one test run
type Snapshot struct {
	ID             string         `json:"_id"`
	Application    string         `json:"application"`
	TestRunID      string         `json:"testRunId"`
	DashboardUID   string         `json:"dashboardUid"`
	DashboardLabel string         `json:"dashboardLabel"`
	Grafana        string         `json:"grafana"`
	URL            string         `json:"url"`
	DeleteURL      string         `json:"deleteUrl,omitempty"`
	Status         SnapshotStatus `json:"status"`
	Expires        *time.Time     `json:"expires,omitempty"`
}

// TrackedRegressionPoint is one historical test run in a tracked regression chart
type TrackedRegressionPoint struct {
	TestRunID  string    `json:"testRunId"`
	Start      time.Time `json:"start"`
	Value      float64   `json:"value"`
	Lower      *float64  `json:"lower,omitempty"`
	Upper      *float64  `json:"upper,omitempty"`
	Resolution string    `json:"resolution,omitempty"`
	Regression bool      `json:"regression"`
}

// DataPoint is a timestamped metric sample
type DataPoint struct {
	Time  time.Time `json:"t"`
	Value float64   `json:"v"`
}

// MetricSeries is a metric time series for one test run
type MetricSeries struct {
	Name            string      `json:"name"`
	DashboardUID    string      `json:"dashboardUid"`
	PanelID         int         `json:"panelId"`
	MetricName      string      `json:"metricName"`
	Unit            string      `json:"unit"`
	Points          []DataPoint `json:"points"`
	DefaultIfNoData *float64    `json:"defaultIfNoData,omitempty"`
}

// Values returns the sampled values in order
func (s *MetricSeries) Values() []float64 {
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Value
	}
	return values
}

// Resolution is the verdict given to a tracked regression
type Resolution string

const (
	ResolutionAccepted Resolution = "ACCEPTED"
	ResolutionDenied   Resolution = "DENIED"
)

// Valid reports whether r is one of the accepted resolutions
func (r Resolution) Valid() bool {
	return r == ResolutionAccepted || r == ResolutionDenied
}
