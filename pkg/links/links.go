// Package links builds outbound links of a test run: Grafana dashboards and
// snapshots, profiles, traces and Dynatrace dashboards.
package links

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/perfana/perfana-dash/pkg/models"
)

// Link is a labelled outbound URL
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Kind  string `json:"kind"`
}

// Link kinds
const (
	KindGrafana   = "grafana"
	KindSnapshot  = "snapshot"
	KindProfile   = "profile"
	KindTrace     = "trace"
	KindDynatrace = "dynatrace"
)

// DynatraceSource marks dashboard records that live in Dynatrace instead of Grafana
const DynatraceSource = "dynatrace"

// Bases holds the base URLs of the linked tools; empty bases produce no links
type Bases struct {
	Grafana   string `json:"grafana" yaml:"grafana" mapstructure:"grafana"`
	Pyroscope string `json:"pyroscope" yaml:"pyroscope" mapstructure:"pyroscope"`
	Tracing   string `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Dynatrace string `json:"dynatrace" yaml:"dynatrace" mapstructure:"dynatrace"`
	// TracingDatasource is the Grafana datasource uid used in explore links
	TracingDatasource string `json:"tracingDatasource" yaml:"tracingDatasource" mapstructure:"tracing_datasource"`
}

// GrafanaURL links a dashboard for the time range of a test run.
// Dashboard template variables become var- query parameters, extra variables
// override them.
func GrafanaURL(base string, d *models.GrafanaDashboard, run *models.TestRun, extra map[string]string) string {
	q := url.Values{}
	q.Set("orgId", "1")
	q.Set("from", epochMillis(run.Start))
	q.Set("to", epochMillis(run.End))

	vars := make(map[string]string, len(d.Variables)+len(extra))
	for k, v := range d.Variables {
		vars[k] = v
	}
	for k, v := range extra {
		vars[k] = v
	}
	for k, v := range vars {
		q.Set("var-"+k, v)
	}

	slug := d.Slug
	if slug == "" {
		slug = Slugify(d.DashboardName)
	}
	return fmt.Sprintf("%s/d/%s/%s?%s", strings.TrimRight(base, "/"), url.PathEscape(d.DashboardUID), slug, q.Encode())
}

// DashboardLinks returns the Grafana links of the dashboards of a test run's
// application and environment, sorted by label
func DashboardLinks(base string, dashboards []*models.GrafanaDashboard, run *models.TestRun) []Link {
	if base == "" {
		return nil
	}
	var links []Link
	for _, d := range dashboards {
		if d.Application != run.Application || d.TestEnvironment != run.TestEnvironment || d.Grafana == DynatraceSource {
			continue
		}
		label := d.DashboardLabel
		if label == "" {
			label = d.DashboardName
		}
		links = append(links, Link{Label: label, URL: GrafanaURL(base, d, run, nil), Kind: KindGrafana})
	}
	sortLinks(links)
	return links
}

// SnapshotLinks lists the completed, unexpired snapshots of a test run, sorted by label
func SnapshotLinks(snapshots []*models.Snapshot, testRunID string, now time.Time) []Link {
	var links []Link
	for _, s := range snapshots {
		if s.TestRunID != testRunID || s.Status != models.SnapshotStatusComplete || s.URL == "" {
			continue
		}
		if s.Expires != nil && s.Expires.Before(now) {
			continue
		}
		links = append(links, Link{Label: s.DashboardLabel, URL: s.URL, Kind: KindSnapshot})
	}
	sortLinks(links)
	return links
}

// PyroscopeURL links the profiles of an application during a test run
func PyroscopeURL(base, application string, run *models.TestRun) string {
	q := url.Values{}
	q.Set("query", fmt.Sprintf(`process_cpu:cpu:nanoseconds:cpu:nanoseconds{service_name="%s"}`, application))
	q.Set("from", strconv.FormatInt(run.Start.Unix(), 10))
	q.Set("until", strconv.FormatInt(run.End.Unix(), 10))
	return fmt.Sprintf("%s/?%s", strings.TrimRight(base, "/"), q.Encode())
}

type explorePane struct {
	Datasource string         `json:"datasource"`
	Queries    []exploreQuery `json:"queries"`
	Range      exploreRange   `json:"range"`
}

type exploreQuery struct {
	RefID     string `json:"refId"`
	QueryType string `json:"queryType"`
	Query     string `json:"query"`
}

type exploreRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TracingURL links a Grafana explore view of the traces of a test run, selected
// by the perfana-test-run-id span attribute
func TracingURL(base, datasource string, run *models.TestRun) (string, error) {
	panes := map[string]explorePane{
		"trace": {
			Datasource: datasource,
			Queries: []exploreQuery{{
				RefID:     "A",
				QueryType: "traceql",
				Query:     fmt.Sprintf(`{ .perfana-test-run-id = "%s" }`, run.TestRunID),
			}},
			Range: exploreRange{From: epochMillis(run.Start), To: epochMillis(run.End)},
		},
	}
	data, err := json.Marshal(panes)
	if err != nil {
		return "", fmt.Errorf("failed to encode explore state: %w", err)
	}

	q := url.Values{}
	q.Set("schemaVersion", "1")
	q.Set("panes", string(data))
	return fmt.Sprintf("%s/explore?%s", strings.TrimRight(base, "/"), q.Encode()), nil
}

// DynatraceURL links a Dynatrace dashboard with the custom timeframe of a test run
func DynatraceURL(base, dashboardID string, run *models.TestRun) string {
	return fmt.Sprintf("%s/#dashboard;id=%s;gtf=c_%s_%s",
		strings.TrimRight(base, "/"), dashboardID, epochMillis(run.Start), epochMillis(run.End))
}

// ForTestRun gathers every link of a test run for which a base URL is configured
func ForTestRun(bases Bases, run *models.TestRun, dashboards []*models.GrafanaDashboard, snapshots []*models.Snapshot, now time.Time) []Link {
	links := DashboardLinks(bases.Grafana, dashboards, run)
	links = append(links, SnapshotLinks(snapshots, run.TestRunID, now)...)

	if bases.Pyroscope != "" {
		links = append(links, Link{Label: "Profiles", URL: PyroscopeURL(bases.Pyroscope, run.Application, run), Kind: KindProfile})
	}
	if bases.Tracing != "" {
		if u, err := TracingURL(bases.Tracing, bases.TracingDatasource, run); err == nil {
			links = append(links, Link{Label: "Traces", URL: u, Kind: KindTrace})
		}
	}
	if bases.Dynatrace != "" {
		for _, d := range dashboards {
			if d.Grafana != DynatraceSource || d.Application != run.Application {
				continue
			}
			links = append(links, Link{Label: d.DashboardLabel, URL: DynatraceURL(bases.Dynatrace, d.DashboardUID, run), Kind: KindDynatrace})
		}
	}
	return links
}

// Slugify turns a dashboard title into a Grafana url slug
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func sortLinks(links []Link) {
	sort.SliceStable(links, func(i, j int) bool {
		return strings.ToLower(links[i].Label) < strings.ToLower(links[j].Label)
	})
}

func epochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
