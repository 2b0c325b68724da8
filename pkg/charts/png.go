package charts

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrEmptyFigure is returned when a figure has nothing to draw
var ErrEmptyFigure = errors.New("figure has no data")

// RenderPNG draws fig as a PNG image.
// A figure made only of bars becomes a bar chart; otherwise every trace is drawn
// as a line, a single sample being widened to a flat segment.
func RenderPNG(fig Figure, w io.Writer, width, height int) error {
	if len(fig.Data) == 0 {
		return ErrEmptyFigure
	}

	if allBars(fig.Data) {
		return renderBars(fig, w, width, height)
	}

	yMax := math.Inf(-1)
	for _, t := range fig.Data {
		for _, y := range t.Y {
			yMax = math.Max(yMax, y)
		}
	}

	dates := fig.Layout.XAxis.Type == AxisDate
	var series []chart.Series

	// shapes go first so they are painted below the data
	for _, s := range fig.Layout.Shapes {
		style := chart.Style{
			StrokeWidth: 0,
			FillColor:   parseColor(s.FillColor).WithAlpha(uint8(255 * s.Opacity)),
		}
		series = append(series, toSeries("ramp-up", []float64{s.X0, s.X1}, []float64{yMax, yMax}, dates, style))
	}

	for i, t := range fig.Data {
		if len(t.X) == 0 || len(t.X) != len(t.Y) {
			continue
		}
		xs, ys := t.X, t.Y
		if len(xs) == 1 {
			xs = []float64{xs[0], xs[0] + 1}
			ys = []float64{ys[0], ys[0]}
		}
		series = append(series, toSeries(t.Name, xs, ys, dates, traceStyle(t, i)))
	}

	if len(series) == 0 {
		return ErrEmptyFigure
	}

	ch := chart.Chart{
		Title:      fig.Layout.Title,
		Width:      width,
		Height:     height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 12}},
		XAxis:      chart.XAxis{Name: fig.Layout.XAxis.Title},
		YAxis:      chart.YAxis{Name: fig.Layout.YAxis.Title},
		Series:     series,
	}
	if fig.Layout.ShowLegend {
		ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func renderBars(fig Figure, w io.Writer, width, height int) error {
	var bars []chart.Value
	for i, t := range fig.Data {
		color := paletteColor(i)
		if t.Marker != nil && t.Marker.Color != "" {
			color = t.Marker.Color
		}
		for _, y := range t.Y {
			bars = append(bars, chart.Value{
				Label: t.Name,
				Value: y,
				Style: chart.Style{FillColor: parseColor(color), StrokeColor: parseColor(color)},
			})
		}
	}
	if len(bars) == 0 {
		return ErrEmptyFigure
	}

	bc := chart.BarChart{
		Title:    fig.Layout.Title,
		Width:    width,
		Height:   height,
		BarWidth: 60,
		Bars:     bars,
	}
	if err := bc.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render bar chart: %w", err)
	}
	return nil
}

func toSeries(name string, xs, ys []float64, dates bool, style chart.Style) chart.Series {
	if !dates {
		return chart.ContinuousSeries{Name: name, XValues: xs, YValues: ys, Style: style}
	}
	times := make([]time.Time, len(xs))
	for i, x := range xs {
		times[i] = time.UnixMilli(int64(x))
	}
	return chart.TimeSeries{Name: name, XValues: times, YValues: ys, Style: style}
}

func traceStyle(t Trace, i int) chart.Style {
	color := paletteColor(i)
	if t.Line != nil && t.Line.Color != "" {
		color = t.Line.Color
	} else if t.Marker != nil && t.Marker.Color != "" {
		color = t.Marker.Color
	}

	style := chart.Style{
		StrokeColor: parseColor(color),
		StrokeWidth: 2,
	}
	if t.Mode == ModeMarkers {
		style.StrokeWidth = 0
		style.DotColor = parseColor(color)
		style.DotWidth = 5
	}
	if t.Mode == ModeLinesMarkers {
		style.DotColor = parseColor(color)
		style.DotWidth = 2
	}
	if t.Line != nil && t.Line.Dash != "" {
		style.StrokeDashArray = []float64{5, 5}
	}
	if t.Fill == FillToNextY {
		style.FillColor = parseColor(colorThreshold).WithAlpha(50)
	}
	return style
}

func allBars(traces []Trace) bool {
	for _, t := range traces {
		if t.Type != TypeBar {
			return false
		}
	}
	return true
}

// parseColor accepts "#rrggbb" and falls back to gray for anything else
func parseColor(s string) drawing.Color {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 3 {
		return chart.ColorAlternateGray
	}
	return drawing.ColorFromHex(hex).WithAlpha(255)
}
