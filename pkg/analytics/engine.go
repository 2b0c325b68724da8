// Package analytics condenses the comparison results of a test run into a
// health verdict and follows that verdict across historical test runs.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/perfana/perfana-dash/pkg/format"
	"github.com/perfana/perfana-dash/pkg/models"
)

// Health is the overall verdict of a comparison
type Health string

const (
	HealthRegressions Health = "regressions"
	HealthSuspicious  Health = "suspicious"
	HealthClean       Health = "clean"
)

// Highlight is one notable comparison row
type Highlight struct {
	DashboardLabel string                 `json:"dashboardLabel" yaml:"dashboardLabel"`
	PanelTitle     string                 `json:"panelTitle" yaml:"panelTitle"`
	MetricName     string                 `json:"metricName" yaml:"metricName"`
	Conclusion     models.ConclusionLabel `json:"conclusion" yaml:"conclusion"`
	Difference     string                 `json:"difference" yaml:"difference"`
	Score          float64                `json:"score" yaml:"score"`
}

// Summary counts the comparison results of one test run
type Summary struct {
	Total          int                            `json:"total" yaml:"total"`
	Ignored        int                            `json:"ignored" yaml:"ignored"`
	Regressions    int                            `json:"regressions" yaml:"regressions"`
	Suspicious     int                            `json:"suspicious" yaml:"suspicious"`
	Improvements   int                            `json:"improvements" yaml:"improvements"`
	Health         Health                         `json:"health" yaml:"health"`
	ByConclusion   map[models.ConclusionLabel]int `json:"byConclusion" yaml:"byConclusion"`
	ByCategory     map[models.Category]int        `json:"byCategory" yaml:"byCategory"`
	ByFamily       map[models.Family]int          `json:"byFamily" yaml:"byFamily"`
	TopRegressions []Highlight                    `json:"topRegressions" yaml:"topRegressions"`
}

// Engine computes summaries
type Engine struct {
	baselineLabel string
	top           int
}

// NewEngine returns an engine that highlights at most five regressions
func NewEngine(baselineLabel string) *Engine {
	return &Engine{baselineLabel: baselineLabel, top: 5}
}

// Summarize counts results and derives the health verdict. Ignored results
// are counted but never affect the verdict. A regression direction whose
// threshold check did not confirm a difference counts as suspicious.
func (e *Engine) Summarize(results []*models.MetricComparisonResult) Summary {
	summary := Summary{
		ByConclusion:   make(map[models.ConclusionLabel]int),
		ByCategory:     make(map[models.Category]int),
		ByFamily:       make(map[models.Family]int),
		TopRegressions: []Highlight{},
	}

	var regressions []*models.MetricComparisonResult
	for _, m := range results {
		summary.Total++
		summary.ByConclusion[m.Conclusion.Label]++
		summary.ByCategory[m.Category]++
		summary.ByFamily[m.Category.Family()]++

		if m.Conclusion.Ignore {
			summary.Ignored++
			continue
		}

		switch format.RenderComparison(m, e.baselineLabel).Color {
		case format.ColorRed:
			summary.Regressions++
			regressions = append(regressions, m)
		case format.ColorOrange:
			summary.Suspicious++
		case format.ColorGreen:
			summary.Improvements++
		}
	}

	switch {
	case summary.Regressions > 0:
		summary.Health = HealthRegressions
	case summary.Suspicious > 0:
		summary.Health = HealthSuspicious
	default:
		summary.Health = HealthClean
	}

	sort.SliceStable(regressions, func(i, j int) bool {
		return regressions[i].Score > regressions[j].Score
	})
	if len(regressions) > e.top {
		regressions = regressions[:e.top]
	}
	for _, m := range regressions {
		summary.TopRegressions = append(summary.TopRegressions, Highlight{
			DashboardLabel: m.DashboardLabel,
			PanelTitle:     m.PanelTitle,
			MetricName:     m.MetricName,
			Conclusion:     m.Conclusion.Label,
			Difference:     format.RenderComparison(m, e.baselineLabel).Difference,
			Score:          m.Score,
		})
	}

	return summary
}

// Direction of a trend over historical runs
type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionDegrading Direction = "degrading"
	DirectionStable    Direction = "stable"
	DirectionBaseline  Direction = "baseline"
)

// HistoryPoint is the summary of one past test run
type HistoryPoint struct {
	TestRunID   string    `json:"testRunId" yaml:"testRunId"`
	Start       time.Time `json:"start" yaml:"start"`
	Regressions int       `json:"regressions" yaml:"regressions"`
	Total       int       `json:"total" yaml:"total"`
	Health      Health    `json:"health" yaml:"health"`
}

// RegressionRate returns the share of regressed metrics in percent
func (p HistoryPoint) RegressionRate() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Regressions) / float64(p.Total) * 100
}

// Trend is the direction of the regression rate over time
type Trend struct {
	Direction Direction      `json:"direction" yaml:"direction"`
	Slope     float64        `json:"slope" yaml:"slope"` // percentage points per run
	Points    []HistoryPoint `json:"points" yaml:"points"`
}

// stableBand is the slope, in percentage points per run, below which the
// regression rate is considered flat
const stableBand = 5.0

// ComputeTrend fits a line through the regression rate of the runs, oldest
// first. Fewer than two runs form a baseline.
func ComputeTrend(points []HistoryPoint) Trend {
	sorted := append([]HistoryPoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	trend := Trend{Direction: DirectionBaseline, Points: sorted}
	if len(sorted) < 2 {
		return trend
	}

	xs := make([]float64, len(sorted))
	ys := make([]float64, len(sorted))
	for i, p := range sorted {
		xs[i] = float64(i)
		ys[i] = p.RegressionRate()
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	trend.Slope = slope

	switch {
	case slope > stableBand:
		trend.Direction = DirectionDegrading
	case slope < -stableBand:
		trend.Direction = DirectionImproving
	default:
		trend.Direction = DirectionStable
	}
	return trend
}

// FormatDuration formats a duration to a readable string
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
