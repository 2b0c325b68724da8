package format

import (
	"math"

	"github.com/perfana/perfana-dash/pkg/models"
)

// ScaleSeries adapts a whole series to a readable unit.
// percentunit is multiplied by 100, second series entirely below 1 become
// milliseconds and millisecond series above 1000 become seconds. The decision
// uses the extrema of the full series so a series is never shown in mixed units.
// Applying ScaleSeries to its own output changes nothing.
func ScaleSeries(values []float64, unit string) ([]float64, string) {
	if len(values) == 0 {
		return values, unit
	}

	magnitude := maxMagnitude(values)

	switch {
	case unit == models.UnitPercentUnit:
		return multiply(values, 100), models.UnitPercent
	case unit == models.UnitSeconds && magnitude < 1:
		return multiply(values, 1000), models.UnitMillis
	case unit == models.UnitMillis && magnitude > 1000:
		return divide(values, 1000), models.UnitSeconds
	default:
		return values, unit
	}
}

// ScaleValue applies the factor ScaleSeries chose for a series to a single value,
// e.g. a threshold line drawn on the same axis.
func ScaleValue(value float64, from, to string) float64 {
	switch {
	case from == models.UnitPercentUnit && to == models.UnitPercent:
		return value * 100
	case from == models.UnitSeconds && to == models.UnitMillis:
		return value * 1000
	case from == models.UnitMillis && to == models.UnitSeconds:
		return value / 1000
	default:
		return value
	}
}

func maxMagnitude(values []float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0
	}
	return math.Max(math.Abs(lo), math.Abs(hi))
}

func multiply(values []float64, factor float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * factor
	}
	return out
}

func divide(values []float64, divisor float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v / divisor
	}
	return out
}
