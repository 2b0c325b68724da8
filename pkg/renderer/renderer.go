package renderer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"github.com/perfana/perfana-dash/pkg/builder"
)

//go:embed templates/*.html
var templateFS embed.FS

// IndexEntry is one test run listed on the index page
type IndexEntry struct {
	TestRunID       string    `json:"testRunId"`
	Application     string    `json:"application"`
	TestEnvironment string    `json:"testEnvironment"`
	TestType        string    `json:"testType"`
	Start           time.Time `json:"start"`
	Health          string    `json:"health"`
	Regressions     int       `json:"regressions"`
	Total           int       `json:"total"`
	Page            string    `json:"page"`
}

// EntryFor summarizes a report for the index page
func EntryFor(r *builder.Report) IndexEntry {
	run := r.Summary.TestRun
	e := IndexEntry{
		TestRunID:       run.TestRunID,
		Application:     run.Application,
		TestEnvironment: run.TestEnvironment,
		TestType:        run.TestType,
		Start:           run.Start,
		Health:          "pending",
		Page:            PageName(run.TestRunID),
	}
	if a := r.Summary.Analytics; a != nil {
		e.Health = string(a.Health)
		e.Regressions = a.Regressions
		e.Total = a.Total
	}
	return e
}

// PageName is the file name of the page of a test run
func PageName(testRunID string) string {
	return sanitize(testRunID) + ".html"
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}

// Renderer handles HTML template rendering
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the built-in templates
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"timestamp": timestamp,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// RenderIndex renders the index page listing test runs
func (r *Renderer) RenderIndex(title string, entries []IndexEntry, outputPath string) error {
	return r.renderFile("index", struct {
		Title   string
		Entries []IndexEntry
	}{title, entries}, outputPath)
}

// RenderRun renders the page of one test run
func (r *Renderer) RenderRun(report *builder.Report, outputPath string) error {
	if err := validReport(report); err != nil {
		return err
	}
	return r.renderFile("run", report, outputPath)
}

// WriteRun writes the page of one test run to w
func (r *Renderer) WriteRun(w io.Writer, report *builder.Report) error {
	if err := validReport(report); err != nil {
		return err
	}
	return r.templates.ExecuteTemplate(w, "run", report)
}

func validReport(report *builder.Report) error {
	if report == nil || report.Summary == nil || report.Summary.TestRun == nil {
		return fmt.Errorf("report has no test run")
	}
	return nil
}

// renderFile renders into memory first so a failed template leaves no partial page
func (r *Renderer) renderFile(name string, data interface{}, outputPath string) error {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return os.WriteFile(outputPath, buf.Bytes(), 0644)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
