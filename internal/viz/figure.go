package viz

import (
	"encoding/json"
	"fmt"
)

// Chart kinds understood by the renderer.
const (
	KindBar     = "bar"
	KindLine    = "line"
	KindScatter = "scatter"
)

// Figure is a declarative chart specification. Generated code builds one and
// assigns it to `fig`; the executor serializes it through JSON().
type Figure struct {
	Kind   string    `json:"kind"`
	Title  string    `json:"title,omitempty"`
	XLabel string    `json:"x_label,omitempty"`
	YLabel string    `json:"y_label,omitempty"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// NewFigure creates an empty figure of the given kind.
func NewFigure(kind, title string) *Figure {
	return &Figure{Kind: kind, Title: title}
}

// Add appends one labeled data point.
func (f *Figure) Add(label string, value float64) *Figure {
	f.Labels = append(f.Labels, label)
	f.Values = append(f.Values, value)
	return f
}

// JSON exports the figure as its structured wire form.
func (f *Figure) JSON() (string, error) {
	if f.Kind == "" {
		return "", fmt.Errorf("figure has no kind")
	}
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("marshal figure: %w", err)
	}
	return string(b), nil
}

// Artifact is a captured visualization output: either a structured figure
// spec or an embedded raster image.
type Artifact struct {
	Type string `json:"type"` // "figure_json" | "image_png"
	Data string `json:"data"` // JSON text or base64-encoded PNG
}

// Canvas is the imperative plotting surface bound into a sandbox session as
// `plot`. Calls replace the active figure; the executor renders and clears it
// after each execution, so state never leaks across queries.
type Canvas struct {
	active *Figure
}

// NewCanvas returns an empty canvas.
func NewCanvas() *Canvas { return &Canvas{} }

// Bar plots labeled values as a bar chart.
func (c *Canvas) Bar(title string, labels []string, values []float64) {
	c.active = &Figure{Kind: KindBar, Title: title, Labels: labels, Values: values}
}

// Line plots values as a line chart.
func (c *Canvas) Line(title string, labels []string, values []float64) {
	c.active = &Figure{Kind: KindLine, Title: title, Labels: labels, Values: values}
}

// Scatter plots values as a scatter chart.
func (c *Canvas) Scatter(title string, labels []string, values []float64) {
	c.active = &Figure{Kind: KindScatter, Title: title, Labels: labels, Values: values}
}

// Active returns the current figure, nil when nothing was plotted.
func (c *Canvas) Active() *Figure { return c.active }

// Clear drops the current figure.
func (c *Canvas) Clear() { c.active = nil }
