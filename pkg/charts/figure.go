// Package charts builds plotly-shaped chart specifications for test run metrics
// and renders them to PNG for reports and the terminal.
package charts

// Trace types and modes
const (
	TypeBar     = "bar"
	TypeScatter = "scatter"

	ModeLinesMarkers = "lines+markers"
	ModeLines        = "lines"
	ModeMarkers      = "markers"

	FillToNextY = "tonexty"
)

// Axis types
const (
	AxisDate   = "date"
	AxisLinear = "linear"
)

// Figure is a complete chart specification
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is one plotted series.
// X holds epoch milliseconds on a date axis and seconds on a linear axis.
type Trace struct {
	Type      string    `json:"type"`
	Mode      string    `json:"mode,omitempty"`
	Name      string    `json:"name"`
	X         []float64 `json:"x"`
	Y         []float64 `json:"y"`
	Text      []string  `json:"text,omitempty"`
	HoverInfo string    `json:"hoverinfo,omitempty"`
	Line      *Line     `json:"line,omitempty"`
	Marker    *Marker   `json:"marker,omitempty"`
	Fill      string    `json:"fill,omitempty"`
	FillColor string    `json:"fillcolor,omitempty"`
}

type Line struct {
	Color string  `json:"color,omitempty"`
	Dash  string  `json:"dash,omitempty"`
	Width float64 `json:"width,omitempty"`
}

type Marker struct {
	Color string  `json:"color,omitempty"`
	Size  float64 `json:"size,omitempty"`
}

type Layout struct {
	Title      string  `json:"title,omitempty"`
	XAxis      Axis    `json:"xaxis"`
	YAxis      Axis    `json:"yaxis"`
	Shapes     []Shape `json:"shapes,omitempty"`
	ShowLegend bool    `json:"showlegend"`
	HoverMode  string  `json:"hovermode,omitempty"`
}

type Axis struct {
	Title      string `json:"title,omitempty"`
	Type       string `json:"type,omitempty"`
	TickSuffix string `json:"ticksuffix,omitempty"`
}

// Shape is a layout decoration; only rectangles are produced
type Shape struct {
	Type      string  `json:"type"`
	XRef      string  `json:"xref"`
	YRef      string  `json:"yref"`
	X0        float64 `json:"x0"`
	X1        float64 `json:"x1"`
	Y0        float64 `json:"y0"`
	Y1        float64 `json:"y1"`
	FillColor string  `json:"fillcolor"`
	Opacity   float64 `json:"opacity"`
	Layer     string  `json:"layer"`
	Line      *Line   `json:"line,omitempty"`
}

// Band is an accepted-variability range drawn around a series
type Band struct {
	Lower *float64
	Upper *float64
}

var palette = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#9467bd", "#8c564b", "#e377c2", "#17becf"}

const (
	colorRampUp     = "#cccccc"
	colorThreshold  = "#7f7f7f"
	colorBand       = "rgba(127,127,127,0.2)"
	colorRegression = "#d62728"
	colorBaseline   = "#aec7e8"
)

func paletteColor(i int) string {
	return palette[i%len(palette)]
}
