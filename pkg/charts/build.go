package charts

import (
	"fmt"
	"time"

	"github.com/perfana/perfana-dash/pkg/format"
	"github.com/perfana/perfana-dash/pkg/models"
)

// Options tune a test run chart
type Options struct {
	Title      string
	Thresholds *Band
}

// TestRunChart plots the series of one test run against wall clock time.
// Series without samples but with a default-if-no-data value are drawn as a dashed
// line over the whole run.
func TestRunChart(run *models.TestRun, series []models.MetricSeries, opts Options) Figure {
	unit := commonUnit(series)
	values := make([][]float64, len(series))
	var all []float64
	for i := range series {
		values[i] = series[i].Values()
		all = append(all, values[i]...)
	}
	_, display := format.ScaleSeries(all, unit)

	fig := Figure{
		Data: []Trace{},
		Layout: Layout{
			Title:      opts.Title,
			XAxis:      Axis{Type: AxisDate},
			YAxis:      Axis{Title: models.DisplayUnit(display)},
			ShowLegend: true,
			HoverMode:  "closest",
		},
	}

	start, end := millis(run.Start), millis(run.End)
	for i, s := range series {
		color := paletteColor(i)
		if len(s.Points) == 0 {
			if s.DefaultIfNoData != nil {
				y := format.ScaleValue(*s.DefaultIfNoData, unit, display)
				fig.Data = append(fig.Data, defaultTrace(s.Name, start, end, y, color))
			}
			continue
		}

		xs := make([]float64, len(s.Points))
		ys := make([]float64, len(s.Points))
		for j, p := range s.Points {
			xs[j] = millis(p.Time)
			ys[j] = format.ScaleValue(p.Value, unit, display)
		}
		fig.Data = append(fig.Data, seriesTrace(s.Name, xs, ys, color))
	}

	if opts.Thresholds != nil {
		fig.Data = append(fig.Data, bandTraces(*opts.Thresholds, start, end, unit, display)...)
	}

	if run.RampUp > 0 {
		fig.Layout.Shapes = append(fig.Layout.Shapes, rampUpShape(start, millis(run.RampUpEnd())))
	}

	return fig
}

// ComparisonChart overlays a test run series with the same metric of a baseline run.
// Both are aligned on seconds elapsed since their own start.
func ComparisonChart(test, baseline *models.TestRun, testSeries, baselineSeries models.MetricSeries, baselineLabel string) Figure {
	unit := testSeries.Unit
	if unit == "" {
		unit = baselineSeries.Unit
	}
	all := append(testSeries.Values(), baselineSeries.Values()...)
	_, display := format.ScaleSeries(all, unit)

	fig := Figure{
		Data: []Trace{},
		Layout: Layout{
			Title:      testSeries.Name,
			XAxis:      Axis{Title: "elapsed (s)", Type: AxisLinear},
			YAxis:      Axis{Title: models.DisplayUnit(display)},
			ShowLegend: true,
			HoverMode:  "x",
		},
	}

	add := func(run *models.TestRun, s models.MetricSeries, name, color string) {
		if len(s.Points) == 0 {
			if s.DefaultIfNoData != nil {
				y := format.ScaleValue(*s.DefaultIfNoData, unit, display)
				fig.Data = append(fig.Data, defaultTrace(name, 0, run.Duration().Seconds(), y, color))
			}
			return
		}
		xs := make([]float64, len(s.Points))
		ys := make([]float64, len(s.Points))
		for i, p := range s.Points {
			xs[i] = p.Time.Sub(run.Start).Seconds()
			ys[i] = format.ScaleValue(p.Value, unit, display)
		}
		fig.Data = append(fig.Data, seriesTrace(name, xs, ys, color))
	}

	add(test, testSeries, test.TestRunID, paletteColor(0))
	add(baseline, baselineSeries, fmt.Sprintf("%s (%s)", baseline.TestRunID, baselineLabel), colorBaseline)

	if test.RampUp > 0 {
		fig.Layout.Shapes = append(fig.Layout.Shapes, rampUpShape(0, float64(test.RampUp)))
	}

	return fig
}

// TrackedRegressionChart plots a metric across historical test runs.
// Every point carries its test run id in the hover text so a click can navigate to it.
func TrackedRegressionChart(points []models.TrackedRegressionPoint, metricName, unit string) Figure {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	_, display := format.ScaleSeries(values, unit)

	fig := Figure{
		Data: []Trace{},
		Layout: Layout{
			Title:      metricName,
			XAxis:      Axis{Type: AxisDate},
			YAxis:      Axis{Title: models.DisplayUnit(display)},
			ShowLegend: true,
			HoverMode:  "closest",
		},
	}
	if len(points) == 0 {
		return fig
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	texts := make([]string, len(points))
	var lowX, lowY, upX, upY []float64
	var regX, regY []float64
	var regText []string

	for i, p := range points {
		xs[i] = millis(p.Start)
		ys[i] = format.ScaleValue(p.Value, unit, display)
		texts[i] = HoverText(p.TestRunID, p.Resolution)

		if p.Lower != nil && p.Upper != nil {
			lowX = append(lowX, xs[i])
			lowY = append(lowY, format.ScaleValue(*p.Lower, unit, display))
			upX = append(upX, xs[i])
			upY = append(upY, format.ScaleValue(*p.Upper, unit, display))
		}
		if p.Regression {
			regX = append(regX, xs[i])
			regY = append(regY, ys[i])
			regText = append(regText, texts[i])
		}
	}

	if len(lowX) > 0 {
		fig.Data = append(fig.Data,
			Trace{Type: TypeScatter, Mode: ModeLines, Name: "lower", X: lowX, Y: lowY, HoverInfo: "skip",
				Line: &Line{Color: colorThreshold, Width: 1}},
			Trace{Type: TypeScatter, Mode: ModeLines, Name: "upper", X: upX, Y: upY, HoverInfo: "skip",
				Line: &Line{Color: colorThreshold, Width: 1}, Fill: FillToNextY, FillColor: colorBand},
		)
	}

	value := seriesTrace(metricName, xs, ys, paletteColor(0))
	value.Text = texts
	value.HoverInfo = "text+y"
	fig.Data = append(fig.Data, value)

	if len(regX) > 0 {
		fig.Data = append(fig.Data, Trace{
			Type:      TypeScatter,
			Mode:      ModeMarkers,
			Name:      "regression",
			X:         regX,
			Y:         regY,
			Text:      regText,
			HoverInfo: "text+y",
			Marker:    &Marker{Color: colorRegression, Size: 10},
		})
	}

	return fig
}

// seriesTrace picks the representation of a sampled series: a single sample is a
// bar, anything longer a line with markers.
func seriesTrace(name string, xs, ys []float64, color string) Trace {
	if len(xs) == 1 {
		return Trace{
			Type:   TypeBar,
			Name:   name,
			X:      xs,
			Y:      ys,
			Marker: &Marker{Color: color},
		}
	}
	return Trace{
		Type:   TypeScatter,
		Mode:   ModeLinesMarkers,
		Name:   name,
		X:      xs,
		Y:      ys,
		Line:   &Line{Color: color},
		Marker: &Marker{Color: color, Size: 4},
	}
}

func defaultTrace(name string, x0, x1, y float64, color string) Trace {
	return Trace{
		Type: TypeScatter,
		Mode: ModeLines,
		Name: name + " (default)",
		X:    []float64{x0, x1},
		Y:    []float64{y, y},
		Line: &Line{Color: color, Dash: "dash"},
	}
}

func bandTraces(band Band, x0, x1 float64, unit, display string) []Trace {
	line := func(name string, v float64) Trace {
		y := format.ScaleValue(v, unit, display)
		return Trace{
			Type: TypeScatter,
			Mode: ModeLines,
			Name: name,
			X:    []float64{x0, x1},
			Y:    []float64{y, y},
			Line: &Line{Color: colorThreshold, Width: 1},
		}
	}

	var traces []Trace
	if band.Lower != nil {
		traces = append(traces, line("lower threshold", *band.Lower))
	}
	if band.Upper != nil {
		upper := line("upper threshold", *band.Upper)
		if band.Lower != nil {
			upper.Fill = FillToNextY
			upper.FillColor = colorBand
		}
		traces = append(traces, upper)
	}
	return traces
}

func rampUpShape(x0, x1 float64) Shape {
	return Shape{
		Type:      "rect",
		XRef:      "x",
		YRef:      "paper",
		X0:        x0,
		X1:        x1,
		Y0:        0,
		Y1:        1,
		FillColor: colorRampUp,
		Opacity:   0.3,
		Layer:     "below",
	}
}

func commonUnit(series []models.MetricSeries) string {
	for _, s := range series {
		if s.Unit != "" {
			return s.Unit
		}
	}
	return ""
}

func millis(t time.Time) float64 {
	return float64(t.UnixMilli())
}
