package adapt

import (
	"fmt"
	"sort"

	"github.com/perfana/perfana-dash/pkg/models"
)

// SortField names the column a view is sorted by
type SortField string

const (
	SortDefault    SortField = ""
	SortConclusion SortField = "conclusion"
	SortMetric     SortField = "metric"
	SortPctDiff    SortField = "pctDiff"
)

// SortSpec is a requested ordering
type SortSpec struct {
	Field SortField `json:"field,omitempty"`
	Desc  bool      `json:"desc,omitempty"`
}

// ParseSortField validates a sort field from a query string
func ParseSortField(s string) (SortField, error) {
	switch SortField(s) {
	case SortDefault, SortConclusion, SortMetric, SortPctDiff:
		return SortField(s), nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

// Sort orders rows in place.
// The default order puts regressions first and breaks ties by descending score.
// An explicit conclusion sort follows the same ranking in the requested direction
// and breaks ties by panel and metric name.
func Sort(rows []*models.MetricComparisonResult, spec SortSpec) {
	var less func(a, b *models.MetricComparisonResult) bool

	switch spec.Field {
	case SortConclusion:
		less = func(a, b *models.MetricComparisonResult) bool {
			ra, rb := a.Conclusion.Label.Rank(), b.Conclusion.Label.Rank()
			if ra != rb {
				if spec.Desc {
					return ra > rb
				}
				return ra < rb
			}
			return byName(a, b)
		}
	case SortMetric:
		less = func(a, b *models.MetricComparisonResult) bool {
			if spec.Desc {
				return byName(b, a)
			}
			return byName(a, b)
		}
	case SortPctDiff:
		less = func(a, b *models.MetricComparisonResult) bool {
			pa, pb := pctDiff(a), pctDiff(b)
			if pa != pb {
				if spec.Desc {
					return pa > pb
				}
				return pa < pb
			}
			return byName(a, b)
		}
	default:
		less = func(a, b *models.MetricComparisonResult) bool {
			ra, rb := a.Conclusion.Label.Rank(), b.Conclusion.Label.Rank()
			if ra != rb {
				return ra < rb
			}
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			return byName(a, b)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return less(rows[i], rows[j])
	})
}

func byName(a, b *models.MetricComparisonResult) bool {
	if a.PanelTitle != b.PanelTitle {
		return a.PanelTitle < b.PanelTitle
	}
	return a.MetricName < b.MetricName
}

func pctDiff(m *models.MetricComparisonResult) float64 {
	if m.Statistic == nil {
		return 0
	}
	return m.Statistic.PctDiff
}
