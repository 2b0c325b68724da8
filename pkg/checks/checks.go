// Package checks filters and describes requirement and benchmark results of a test run.
package checks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/perfana/perfana-dash/pkg/format"
	"github.com/perfana/perfana-dash/pkg/models"
)

// Status icons
const (
	IconError   = "error"
	IconCheck   = "check"
	IconTimes   = "times"
	IconPending = "pending"
)

// Options are the triage toggles of the checks view
type Options struct {
	FailedOnly        bool   `json:"failedOnly"`
	ShowPassedDetails bool   `json:"showPassedDetails"`
	Text              string `json:"filter,omitempty"`
}

// Row is one panel check as displayed
type Row struct {
	Check       *models.CheckResult  `json:"check"`
	Icon        string               `json:"icon"`
	Expanded    bool                 `json:"expanded"`
	Description string               `json:"description"`
	Targets     []models.CheckTarget `json:"targets"`
}

// Group holds the rows of one dashboard
type Group struct {
	DashboardUID   string `json:"dashboardUid"`
	DashboardLabel string `json:"dashboardLabel"`
	Rows           []Row  `json:"rows"`
}

// View is the filtered checks of a test run
type View struct {
	Groups []Group                  `json:"groups"`
	Counts map[models.CheckKind]int `json:"counts"`
	Failed int                      `json:"failed"`
	Total  int                      `json:"total"`
}

// StatusIcon picks the icon of a check. An ERROR status wins over any pass/fail verdict.
func StatusIcon(status models.CheckStatus, meets *bool) string {
	switch {
	case status == models.CheckStatusError:
		return IconError
	case meets == nil:
		return IconPending
	case *meets:
		return IconCheck
	default:
		return IconTimes
	}
}

// Matches applies the free text filter to a check: a case-insensitive substring of
// the panel title or the dashboard label.
func Matches(c *models.CheckResult, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	needle := strings.ToLower(text)
	return strings.Contains(strings.ToLower(c.PanelTitle), needle) ||
		strings.Contains(strings.ToLower(c.DashboardLabel), needle)
}

// Apply filters checks and shapes them into dashboard groups.
// FailedOnly keeps failing and errored checks and expands them. Expanded rows list
// only failing targets unless ShowPassedDetails is set.
func Apply(results []*models.CheckResult, opts Options) View {
	view := View{
		Groups: []Group{},
		Counts: make(map[models.CheckKind]int),
		Total:  len(results),
	}

	index := make(map[string]int)
	for _, c := range results {
		if !Matches(c, opts.Text) {
			continue
		}
		failing := c.Failed() || c.Status == models.CheckStatusError
		if opts.FailedOnly && !failing {
			continue
		}

		row := Row{
			Check:       c,
			Icon:        StatusIcon(c.Status, c.MeetsRequirement),
			Expanded:    opts.FailedOnly && failing,
			Description: Describe(c),
			Targets:     visibleTargets(c.Targets, opts.ShowPassedDetails),
		}

		i, ok := index[c.DashboardUID]
		if !ok {
			i = len(view.Groups)
			index[c.DashboardUID] = i
			view.Groups = append(view.Groups, Group{
				DashboardUID:   c.DashboardUID,
				DashboardLabel: c.DashboardLabel,
			})
		}
		view.Groups[i].Rows = append(view.Groups[i].Rows, row)
		view.Counts[c.Kind]++
		if failing {
			view.Failed++
		}
	}

	sort.SliceStable(view.Groups, func(i, j int) bool {
		return view.Groups[i].DashboardLabel < view.Groups[j].DashboardLabel
	})
	for _, g := range view.Groups {
		sort.SliceStable(g.Rows, func(i, j int) bool {
			return g.Rows[i].Check.PanelTitle < g.Rows[j].Check.PanelTitle
		})
	}

	return view
}

func visibleTargets(targets []models.CheckTarget, showPassed bool) []models.CheckTarget {
	out := make([]models.CheckTarget, 0, len(targets))
	for _, t := range targets {
		passed := t.MeetsRequirement != nil && *t.MeetsRequirement
		if passed && !showPassed {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Describe renders the objective of a check in words
func Describe(c *models.CheckResult) string {
	switch c.Kind {
	case models.CheckKindRequirement:
		if c.Requirement != nil {
			return DescribeRequirement(*c.Requirement, c.Unit)
		}
	case models.CheckKindBenchmarkPrevious, models.CheckKindBenchmarkBaseline:
		if c.Benchmark != nil {
			return DescribeBenchmark(*c.Benchmark, c.Unit)
		}
	}
	return ""
}

// DescribeRequirement renders e.g. "< 500 ms"
func DescribeRequirement(r models.Requirement, unit string) string {
	op := "<"
	if r.Operator == "gt" {
		op = ">"
	}
	return fmt.Sprintf("%s %s", op, format.FormatValue(r.Value, unit))
}

// DescribeBenchmark renders the allowed deviation of a benchmark,
// e.g. "allowed deviation 10%" or "allowed increase 20 ms"
func DescribeBenchmark(b models.Benchmark, unit string) string {
	var direction string
	switch b.Operator {
	case "pst-pct", "pst":
		direction = "allowed decrease"
	case "ngt-pct", "ngt":
		direction = "allowed increase"
	default:
		direction = "allowed deviation"
	}

	var allowed string
	if strings.HasSuffix(b.Operator, "-pct") || b.Operator == "" {
		allowed = format.FormatNumber(b.Value) + "%"
	} else {
		allowed = format.FormatValue(b.Value, unit)
	}

	description := fmt.Sprintf("%s %s", direction, allowed)
	if b.AbsoluteFailureThreshold != nil {
		description += fmt.Sprintf(", fails above %s", format.FormatValue(*b.AbsoluteFailureThreshold, unit))
	}
	return description
}
