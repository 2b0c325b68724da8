// Package adapt organises externally computed metric comparison results for triage.
package adapt

import (
	"sort"

	"github.com/perfana/perfana-dash/pkg/models"
)

// Filter selects comparison results. Nil fields do not filter.
type Filter struct {
	Category   *models.Category        `json:"category,omitempty"`
	Conclusion *models.ConclusionLabel `json:"conclusion,omitempty"`
	Ignore     *bool                   `json:"ignore,omitempty"`
}

// View is the filtered result set plus the choices each filter may offer next
type View struct {
	Rows              []*models.MetricComparisonResult `json:"rows"`
	CategoryOptions   []models.Category                `json:"categoryOptions"`
	ConclusionOptions []models.ConclusionLabel         `json:"conclusionOptions"`
	Total             int                              `json:"total"`
}

// Apply filters results and computes each filter's options from the rows that
// the other filters leave, so no offered option can produce an empty table and
// an active filter never hides its own selected value.
func Apply(results []*models.MetricComparisonResult, f Filter) View {
	base := make([]*models.MetricComparisonResult, 0, len(results))
	for _, r := range results {
		if f.Ignore != nil && r.Conclusion.Ignore != *f.Ignore {
			continue
		}
		base = append(base, r)
	}

	var rows, byCategory, byConclusion []*models.MetricComparisonResult
	for _, r := range base {
		catOK := f.Category == nil || r.Category == *f.Category
		conOK := f.Conclusion == nil || r.Conclusion.Label == *f.Conclusion
		if catOK {
			byCategory = append(byCategory, r)
		}
		if conOK {
			byConclusion = append(byConclusion, r)
		}
		if catOK && conOK {
			rows = append(rows, r)
		}
	}

	if rows == nil {
		rows = []*models.MetricComparisonResult{}
	}

	return View{
		Rows:              rows,
		CategoryOptions:   categoryOptions(byConclusion),
		ConclusionOptions: conclusionOptions(byCategory),
		Total:             len(results),
	}
}

func categoryOptions(rows []*models.MetricComparisonResult) []models.Category {
	seen := make(map[models.Category]bool)
	options := make([]models.Category, 0)
	for _, r := range rows {
		if !seen[r.Category] {
			seen[r.Category] = true
			options = append(options, r.Category)
		}
	}
	sort.Slice(options, func(i, j int) bool {
		return options[i].Index() < options[j].Index()
	})
	return options
}

func conclusionOptions(rows []*models.MetricComparisonResult) []models.ConclusionLabel {
	seen := make(map[models.ConclusionLabel]bool)
	options := make([]models.ConclusionLabel, 0)
	for _, r := range rows {
		if !seen[r.Conclusion.Label] {
			seen[r.Conclusion.Label] = true
			options = append(options, r.Conclusion.Label)
		}
	}
	sort.Slice(options, func(i, j int) bool {
		return options[i].Rank() < options[j].Rank()
	})
	return options
}

// GroupByFamily buckets rows into RED, USE and unclassified
func GroupByFamily(rows []*models.MetricComparisonResult) map[models.Family][]*models.MetricComparisonResult {
	groups := make(map[models.Family][]*models.MetricComparisonResult)
	for _, r := range rows {
		family := r.Category.Family()
		groups[family] = append(groups[family], r)
	}
	return groups
}

// CountByConclusion counts rows per conclusion label
func CountByConclusion(rows []*models.MetricComparisonResult) map[models.ConclusionLabel]int {
	counts := make(map[models.ConclusionLabel]int)
	for _, r := range rows {
		counts[r.Conclusion.Label]++
	}
	return counts
}
