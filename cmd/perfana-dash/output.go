package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/liggitt/tabwriter"

	"github.com/perfana/perfana-dash/pkg/analytics"
	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/format"
	"github.com/perfana/perfana-dash/pkg/storage"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

var resultColors = map[format.Color]*color.Color{
	format.ColorRed:    color.New(color.FgRed),
	format.ColorGreen:  color.New(color.FgGreen),
	format.ColorOrange: color.New(color.FgYellow),
	format.ColorBlue:   color.New(color.FgBlue),
}

var healthColors = map[analytics.Health]*color.Color{
	analytics.HealthRegressions: color.New(color.FgRed, color.Bold),
	analytics.HealthSuspicious:  color.New(color.FgYellow),
	analytics.HealthClean:       color.New(color.FgGreen),
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 6, 4, 3, ' ', tabwriter.RememberWidths)
}

func paint(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	return c.Sprint(s)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, s *builder.Summary) {
	run := s.TestRun
	fmt.Fprintf(w, "%s  %s / %s / %s  (%s)\n", color.New(color.Bold).Sprint(run.TestRunID),
		run.Application, run.TestEnvironment, run.TestType, s.Duration)
	if s.Previous != nil {
		fmt.Fprintf(w, "previous: %s\n", s.Previous.TestRunID)
	}
	if a := s.Analytics; a != nil {
		fmt.Fprintf(w, "health: %s (%d regressions, %d improvements of %d)\n",
			paint(healthColors[a.Health], string(a.Health)), a.Regressions, a.Improvements, a.Total)
	}
	if c := s.Checks; c != nil {
		fmt.Fprintf(w, "checks: %d of %d failed\n", c.Failed, c.Total)
	}
	for _, l := range s.Links {
		fmt.Fprintf(w, "  %-10s %s  %s\n", l.Kind, l.Label, l.URL)
	}
}

// printComparison keeps the colored column last so escape codes do not
// disturb the alignment
func printComparison(w io.Writer, v *builder.ComparisonView) error {
	t := newTable(w)
	fmt.Fprintln(t, "DASHBOARD\tPANEL\tMETRIC\tTEST\tBASELINE\tDIFFERENCE\tCONCLUSION")
	for _, row := range v.Rows {
		m := row.Result
		fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			m.DashboardLabel, m.PanelTitle, m.MetricName,
			row.Display.Test, row.Display.Control, row.Display.Difference,
			paint(resultColors[row.Display.Color], string(m.Conclusion.Label)))
	}
	if err := t.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d of %d results", len(v.Rows), v.Total)
	if v.ReadOnly {
		fmt.Fprint(w, " (update in progress)")
	}
	fmt.Fprintln(w)
	return nil
}

func printChecks(w io.Writer, v *builder.CheckView) error {
	t := newTable(w)
	fmt.Fprintln(t, "DASHBOARD\tPANEL\tKIND\tDESCRIPTION\tSTATUS")
	for _, g := range v.Groups {
		for _, row := range g.Rows {
			c := color.New(color.FgGreen)
			if row.Check.Failed() {
				c = color.New(color.FgRed)
			}
			fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%s\n",
				g.DashboardLabel, row.Check.PanelTitle, row.Check.Kind, row.Description, paint(c, row.Icon))
		}
	}
	if err := t.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d of %d checks failed\n", v.Failed, v.Total)
	return nil
}

func printHistory(w io.Writer, snaps []storage.Snapshot, trend analytics.Trend) error {
	t := newTable(w)
	fmt.Fprintln(t, "TEST RUN\tSTART\tREGRESSIONS\tIMPROVEMENTS\tMETRICS\tHEALTH")
	for _, s := range snaps {
		fmt.Fprintf(t, "%s\t%s\t%d\t%d\t%d\t%s\n",
			s.TestRunID, s.Start.Format("2006-01-02 15:04"), s.Regressions, s.Improvements, s.Total,
			paint(healthColors[analytics.Health(s.Health)], s.Health))
	}
	if err := t.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\ntrend: %s (%.1f points per run)\n", trend.Direction, trend.Slope)
	return nil
}

func printMetricHistory(w io.Writer, points []storage.MetricPoint) error {
	t := newTable(w)
	fmt.Fprintln(t, "TEST RUN\tSTART\tVALUE\tDIFFERENCE\tCONCLUSION")
	for _, p := range points {
		value, diff := "-", "-"
		if p.Test != nil {
			value = format.FormatNumber(*p.Test)
		}
		if p.PctDiff != nil {
			diff = strconv.FormatFloat(*p.PctDiff*100, 'f', 1, 64) + "%"
		}
		fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%s\n", p.TestRunID, p.Start.Format("2006-01-02 15:04"), value, diff, p.Conclusion)
	}
	return t.Flush()
}
