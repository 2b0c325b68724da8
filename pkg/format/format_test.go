package format

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/perfana/perfana-dash/pkg/models"
)

func boolPtr(b bool) *bool { return &b }

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected string
	}{
		{name: "zero", value: 0, expected: "0"},
		{name: "small value keeps significant digits", value: 0.001, expected: "0.001"},
		{name: "small value is truncated not rounded", value: 0.0012399, expected: "0.00123"},
		{name: "tiny value truncates to zero", value: 0.0000001, expected: "0"},
		{name: "negative small value", value: -0.0042, expected: "-0.0042"},
		{name: "whole number", value: 12.0, expected: "12"},
		{name: "rounds half up", value: 12.345, expected: "12.35"},
		{name: "two decimals kept", value: 3.1, expected: "3.10"},
		{name: "rounds to whole", value: 7.999, expected: "8"},
		{name: "boundary value", value: 0.01, expected: "0.01"},
		{name: "negative", value: -20, expected: "-20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatNumber(tt.value))
		})
	}
}

func TestResultColor(t *testing.T) {
	tests := []struct {
		name           string
		delta          float64
		higherIsBetter *bool
		isDifference   *bool
		expected       Color
	}{
		{name: "improvement higher is better", delta: 5, higherIsBetter: boolPtr(true), isDifference: boolPtr(true), expected: ColorGreen},
		{name: "improvement lower is better", delta: -5, higherIsBetter: boolPtr(false), isDifference: boolPtr(true), expected: ColorGreen},
		{name: "confirmed regression", delta: -5, higherIsBetter: boolPtr(true), isDifference: boolPtr(true), expected: ColorRed},
		{name: "suspicious regression", delta: -5, higherIsBetter: boolPtr(true), isDifference: boolPtr(false), expected: ColorOrange},
		{name: "regression not evaluated", delta: -5, higherIsBetter: boolPtr(true), isDifference: nil, expected: ColorBlue},
		{name: "no direction hint", delta: -5, higherIsBetter: nil, isDifference: boolPtr(true), expected: ColorBlue},
		{name: "no direction hint positive", delta: 5, higherIsBetter: nil, isDifference: boolPtr(false), expected: ColorBlue},
		{name: "no change", delta: 0, higherIsBetter: boolPtr(true), isDifference: boolPtr(true), expected: ColorBlue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResultColor(tt.delta, tt.higherIsBetter, tt.isDifference))
		})
	}
}

func TestIcon(t *testing.T) {
	assert.Equal(t, "check", Icon(ColorGreen))
	assert.Equal(t, "times", Icon(ColorRed))
	assert.Equal(t, "exclamation-triangle", Icon(ColorOrange))
	assert.Equal(t, "minus", Icon(ColorBlue))
}

func TestFormatDifference(t *testing.T) {
	assert.Equal(t, "+20 (20%)", FormatDifference(20, 0.2, "", true, "baseline"))
	assert.Equal(t, "-1.50 (-3.33%)", FormatDifference(-1.5, -0.03333, "", true, "baseline"))
	assert.Equal(t, "0 (0%)", FormatDifference(0, 0, "", true, "baseline"))
	assert.Equal(t, "+20 ms (20%)", FormatDifference(20, 0.2, models.UnitMillis, true, "baseline"))
	assert.Equal(t, "+10% (25%)", FormatDifference(0.1, 0.25, models.UnitPercentUnit, true, "baseline"))
	assert.Equal(t, "Not in control group", FormatDifference(0, 0, models.UnitMillis, false, "control group"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "25%", FormatValue(0.25, models.UnitPercentUnit))
	assert.Equal(t, "120 ms", FormatValue(120, models.UnitMillis))
	assert.Equal(t, "42", FormatValue(42, models.UnitShort))
}

func TestScaleSeries(t *testing.T) {
	t.Run("percentunit is multiplied", func(t *testing.T) {
		values, unit := ScaleSeries([]float64{0.1, 0.25}, models.UnitPercentUnit)
		assert.Equal(t, models.UnitPercent, unit)
		assert.InDeltaSlice(t, []float64{10, 25}, values, 1e-9)
	})

	t.Run("sub second series become milliseconds", func(t *testing.T) {
		values, unit := ScaleSeries([]float64{0.2, 0.5, 0.9}, models.UnitSeconds)
		assert.Equal(t, models.UnitMillis, unit)
		assert.InDeltaSlice(t, []float64{200, 500, 900}, values, 1e-9)

		again, unitAgain := ScaleSeries(values, unit)
		assert.Equal(t, models.UnitMillis, unitAgain)
		assert.Equal(t, values, again)
	})

	t.Run("decision uses the whole series", func(t *testing.T) {
		values, unit := ScaleSeries([]float64{0.2, 1.5}, models.UnitSeconds)
		assert.Equal(t, models.UnitSeconds, unit)
		assert.Equal(t, []float64{0.2, 1.5}, values)
	})

	t.Run("large millisecond series become seconds", func(t *testing.T) {
		values, unit := ScaleSeries([]float64{800, 2500}, models.UnitMillis)
		assert.Equal(t, models.UnitSeconds, unit)
		assert.InDeltaSlice(t, []float64{0.8, 2.5}, values, 1e-9)

		again, unitAgain := ScaleSeries(values, unit)
		assert.Equal(t, models.UnitSeconds, unitAgain)
		assert.Equal(t, values, again)
	})

	t.Run("negative extrema count as magnitude", func(t *testing.T) {
		_, unit := ScaleSeries([]float64{-1500, 10}, models.UnitMillis)
		assert.Equal(t, models.UnitSeconds, unit)
	})

	t.Run("empty series untouched", func(t *testing.T) {
		values, unit := ScaleSeries(nil, models.UnitSeconds)
		assert.Empty(t, values)
		assert.Equal(t, models.UnitSeconds, unit)
	})
}

func TestScaleValue(t *testing.T) {
	assert.InDelta(t, 250.0, ScaleValue(0.25, models.UnitSeconds, models.UnitMillis), 1e-9)
	assert.InDelta(t, 1.2, ScaleValue(1200, models.UnitMillis, models.UnitSeconds), 1e-9)
	assert.InDelta(t, 3.0, ScaleValue(3, models.UnitShort, models.UnitShort), 1e-9)
}

func TestRenderComparison_RegressionScenario(t *testing.T) {
	result := &models.MetricComparisonResult{
		MetricName:     "p95",
		Statistic:      &models.Statistic{Test: 120, Control: 100, Diff: 20, PctDiff: 0.2},
		HigherIsBetter: boolPtr(false),
		Checks: map[models.CheckKey]models.ThresholdCheck{
			models.CheckPct: {Valid: true, IsDifference: boolPtr(true)},
		},
	}

	confirmed := RenderComparison(result, "control group")
	assert.Equal(t, "+20 (20%)", confirmed.Difference)
	assert.Equal(t, ColorRed, confirmed.Color)
	assert.Equal(t, "times", confirmed.Icon)
	assert.Equal(t, models.CheckPct, confirmed.DecidedBy)

	result.Checks[models.CheckPct] = models.ThresholdCheck{Valid: true, IsDifference: boolPtr(false)}
	suspicious := RenderComparison(result, "control group")
	assert.Equal(t, confirmed.Difference, suspicious.Difference)
	assert.Equal(t, confirmed.Test, suspicious.Test)
	assert.Equal(t, ColorOrange, suspicious.Color)
}

func TestRenderComparison_SkipsInvalidChecks(t *testing.T) {
	result := &models.MetricComparisonResult{
		Statistic:      &models.Statistic{Test: 80, Control: 100, Diff: -20, PctDiff: -0.2},
		HigherIsBetter: boolPtr(true),
		Checks: map[models.CheckKey]models.ThresholdCheck{
			models.CheckPct: {Valid: false, IsDifference: nil, InvalidReasons: []string{"control group too small"}},
			models.CheckAbs: {Valid: true, IsDifference: boolPtr(true)},
		},
	}

	rendered := RenderComparison(result, "control group")
	assert.Equal(t, models.CheckAbs, rendered.DecidedBy)
	assert.Equal(t, ColorRed, rendered.Color)
}

func TestRenderComparison_NoStatistic(t *testing.T) {
	rendered := RenderComparison(&models.MetricComparisonResult{}, "control group")
	assert.Equal(t, "Not in control group", rendered.Difference)
	assert.Equal(t, ColorBlue, rendered.Color)
}

func TestRenderComparison_PercentUnit(t *testing.T) {
	result := &models.MetricComparisonResult{
		MetricName: "cpu",
		Unit:       models.UnitPercentUnit,
		Statistic:  &models.Statistic{Test: 0.5, Control: 0.4, Diff: 0.1, PctDiff: 0.25},
	}

	rendered := RenderComparison(result, "control group")
	assert.Equal(t, "50%", rendered.Test)
	assert.Equal(t, "40%", rendered.Control)
	assert.Equal(t, "+10% (25%)", rendered.Difference)
}
