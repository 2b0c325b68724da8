// Package format turns raw comparison numbers into display strings, colors and icons.
package format

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/perfana/perfana-dash/pkg/models"
)

// Color is the display color of a compared value
type Color string

const (
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
	ColorOrange Color = "orange"
	ColorBlue   Color = "blue"
)

var smallThreshold = decimal.New(1, -2)

// FormatNumber renders a number for display.
// Zero is "0", values below 0.01 in magnitude keep up to 5 truncated decimals,
// everything else is rounded to 2 decimals and printed without a fraction when whole.
func FormatNumber(value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Sprint(value)
	}

	d := decimal.NewFromFloat(value)
	if d.IsZero() {
		return "0"
	}

	if d.Abs().LessThan(smallThreshold) {
		// String() strips trailing zeros
		return d.Truncate(5).String()
	}

	rounded := d.Round(2)
	if rounded.Equal(rounded.Truncate(0)) {
		return rounded.StringFixed(0)
	}
	return rounded.StringFixed(2)
}

// ResultColor classifies a delta for display.
// Without a higherIsBetter hint the result is always neutral. An improvement is green.
// A regression is red when the threshold confirmed a difference, orange when it did not,
// and neutral when the threshold was not evaluated.
func ResultColor(delta float64, higherIsBetter *bool, isDifference *bool) Color {
	if higherIsBetter == nil || delta == 0 || math.IsNaN(delta) {
		return ColorBlue
	}

	improved := (delta > 0 && *higherIsBetter) || (delta < 0 && !*higherIsBetter)
	if improved {
		return ColorGreen
	}

	if isDifference == nil {
		return ColorBlue
	}
	if *isDifference {
		return ColorRed
	}
	return ColorOrange
}

// Icon returns the icon name that goes with a result color
func Icon(c Color) string {
	switch c {
	case ColorGreen:
		return "check"
	case ColorRed:
		return "times"
	case ColorOrange:
		return "exclamation-triangle"
	default:
		return "minus"
	}
}

// FormatDifference renders a diff in the metric's unit with an explicit sign
// and its relative change. pctDiff is a fraction of the baseline (0.2 means
// 20%). When the metric is absent from the baseline the label says so instead
// of printing a zero.
func FormatDifference(diff, pctDiff float64, unit string, inBaseline bool, baselineLabel string) string {
	if !inBaseline {
		return fmt.Sprintf("Not in %s", baselineLabel)
	}
	return fmt.Sprintf("%s (%s%%)", signed(diff, unit), FormatNumber(pctDiff*100))
}

func signed(v float64, unit string) string {
	s := FormatValue(v, unit)
	if v > 0 && FormatNumber(displayValue(v, unit)) != "0" {
		return "+" + s
	}
	return s
}

func displayValue(value float64, unit string) float64 {
	if unit == models.UnitPercentUnit {
		return value * 100
	}
	return value
}

// FormatValue renders a value with its display unit
func FormatValue(value float64, unit string) string {
	value = displayValue(value, unit)
	display := models.DisplayUnit(unit)
	if display == "" {
		return FormatNumber(value)
	}
	if display == "%" {
		return FormatNumber(value) + "%"
	}
	return FormatNumber(value) + " " + display
}
