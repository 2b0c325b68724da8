package format

import (
	"github.com/perfana/perfana-dash/pkg/models"
)

// deciding check order when several thresholds were evaluated
var checkPrecedence = []models.CheckKey{models.CheckPct, models.CheckIQR, models.CheckAbs}

// Rendered is the display form of one metric comparison
type Rendered struct {
	Test       string          `json:"test"`
	Control    string          `json:"control"`
	Difference string          `json:"difference"`
	Color      Color           `json:"color"`
	Icon       string          `json:"icon"`
	DecidedBy  models.CheckKey `json:"decidedBy,omitempty"`
}

// RenderComparison formats the statistic of a comparison result and colors it
// by the first evaluated threshold check.
func RenderComparison(m *models.MetricComparisonResult, baselineLabel string) Rendered {
	if m.Statistic == nil {
		return Rendered{
			Difference: FormatDifference(0, 0, m.Unit, false, baselineLabel),
			Color:      ColorBlue,
			Icon:       Icon(ColorBlue),
		}
	}

	stat := m.Statistic
	key, isDifference := decidingCheck(m)
	color := ResultColor(stat.Diff, m.HigherIsBetter, isDifference)

	return Rendered{
		Test:       FormatValue(stat.Test, m.Unit),
		Control:    FormatValue(stat.Control, m.Unit),
		Difference: FormatDifference(stat.Diff, stat.PctDiff, m.Unit, true, baselineLabel),
		Color:      color,
		Icon:       Icon(color),
		DecidedBy:  key,
	}
}

// decidingCheck returns the first valid check with an evaluated verdict.
// A nil verdict means no threshold was evaluated.
func decidingCheck(m *models.MetricComparisonResult) (models.CheckKey, *bool) {
	for _, key := range checkPrecedence {
		check, ok := m.Check(key)
		if !ok || !check.Evaluated() {
			continue
		}
		return key, check.IsDifference
	}
	return "", nil
}
