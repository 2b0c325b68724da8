package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/renderer"
)

// Export formats
const (
	FormatHTML = "html"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the supported export formats
var Formats = []string{FormatHTML, FormatJSON, FormatYAML}

// Exporter handles exporting reports to various formats
type Exporter struct {
	renderer *renderer.Renderer
}

// NewExporter creates a new exporter
func NewExporter(r *renderer.Renderer) *Exporter {
	return &Exporter{renderer: r}
}

// Export writes the report to outputDir in the given format and returns the
// file it wrote
func (e *Exporter) Export(report *builder.Report, outputDir, format string) (string, error) {
	if report == nil || report.Summary == nil || report.Summary.TestRun == nil {
		return "", fmt.Errorf("report has no test run")
	}
	data, err := e.Encode(report, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := strings.TrimSuffix(renderer.PageName(report.Summary.TestRun.TestRunID), ".html")
	path := filepath.Join(outputDir, base+"."+format)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Encode renders the report in the given format
func (e *Exporter) Encode(report *builder.Report, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(report, "", "  ")
	case FormatYAML:
		return toYAML(report)
	case FormatHTML:
		var buf bytes.Buffer
		if err := e.renderer.WriteRun(&buf, report); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (supported: %s)", format, strings.Join(Formats, ", "))
	}
}

// toYAML goes through JSON so YAML keys match the JSON field names
func toYAML(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}
