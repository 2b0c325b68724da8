package links

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfana/perfana-dash/pkg/models"
)

var (
	start = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	run   = &models.TestRun{
		TestRunID:       "shop-12",
		Application:     "shop",
		TestEnvironment: "acc",
		TestType:        "load",
		Start:           start,
		End:             start.Add(time.Hour),
	}
)

func TestGrafanaURL(t *testing.T) {
	d := &models.GrafanaDashboard{
		DashboardUID:  "abc123",
		DashboardName: "Gatling Overview (k8s)",
		Variables:     map[string]string{"system_under_test": "shop", "service": "all"},
	}

	raw := GrafanaURL("https://grafana.example.com/", d, run, map[string]string{"service": "checkout"})
	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "/d/abc123/gatling-overview-k8s", u.Path)
	q := u.Query()
	assert.Equal(t, "1", q.Get("orgId"))
	assert.Equal(t, "1714557600000", q.Get("from"))
	assert.Equal(t, "1714561200000", q.Get("to"))
	assert.Equal(t, "shop", q.Get("var-system_under_test"))
	assert.Equal(t, "checkout", q.Get("var-service"))
}

func TestDashboardLinks(t *testing.T) {
	dashboards := []*models.GrafanaDashboard{
		{Application: "shop", TestEnvironment: "acc", DashboardUID: "b", DashboardLabel: "JVM", Slug: "jvm"},
		{Application: "shop", TestEnvironment: "acc", DashboardUID: "a", DashboardLabel: "gatling", Slug: "gatling"},
		{Application: "shop", TestEnvironment: "prod", DashboardUID: "c", DashboardLabel: "Prod only"},
		{Application: "shop", TestEnvironment: "acc", Grafana: DynatraceSource, DashboardUID: "dt", DashboardLabel: "Dynatrace"},
	}

	links := DashboardLinks("https://grafana", dashboards, run)
	require.Len(t, links, 2)
	assert.Equal(t, "gatling", links[0].Label)
	assert.Equal(t, "JVM", links[1].Label)

	assert.Nil(t, DashboardLinks("", dashboards, run))
}

func TestSnapshotLinks(t *testing.T) {
	past := start.Add(-time.Hour)
	future := start.Add(24 * time.Hour)
	snapshots := []*models.Snapshot{
		{TestRunID: "shop-12", DashboardLabel: "Zipkin", URL: "https://s/z", Status: models.SnapshotStatusComplete},
		{TestRunID: "shop-12", DashboardLabel: "Gatling", URL: "https://s/g", Status: models.SnapshotStatusComplete, Expires: &future},
		{TestRunID: "shop-12", DashboardLabel: "JVM", URL: "https://s/j", Status: models.SnapshotStatusInProgress},
		{TestRunID: "shop-12", DashboardLabel: "Old", URL: "https://s/o", Status: models.SnapshotStatusComplete, Expires: &past},
		{TestRunID: "shop-11", DashboardLabel: "Other run", URL: "https://s/x", Status: models.SnapshotStatusComplete},
	}

	links := SnapshotLinks(snapshots, "shop-12", start)
	require.Len(t, links, 2)
	assert.Equal(t, "Gatling", links[0].Label)
	assert.Equal(t, "Zipkin", links[1].Label)
}

func TestPyroscopeURL(t *testing.T) {
	u, err := url.Parse(PyroscopeURL("https://pyroscope", "shop", run))
	require.NoError(t, err)
	assert.Equal(t, "1714557600", u.Query().Get("from"))
	assert.Equal(t, "1714561200", u.Query().Get("until"))
	assert.Contains(t, u.Query().Get("query"), `service_name="shop"`)
}

func TestTracingURL(t *testing.T) {
	raw, err := TracingURL("https://grafana", "tempo", run)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/explore", u.Path)

	var panes map[string]explorePane
	require.NoError(t, json.Unmarshal([]byte(u.Query().Get("panes")), &panes))
	assert.Equal(t, "tempo", panes["trace"].Datasource)
	assert.Contains(t, panes["trace"].Queries[0].Query, `"shop-12"`)
}

func TestDynatraceURL(t *testing.T) {
	assert.Equal(t,
		"https://dt.example.com/#dashboard;id=d-1;gtf=c_1714557600000_1714561200000",
		DynatraceURL("https://dt.example.com/", "d-1", run))
}

func TestForTestRun(t *testing.T) {
	dashboards := []*models.GrafanaDashboard{
		{Application: "shop", TestEnvironment: "acc", DashboardUID: "a", DashboardLabel: "Gatling", Slug: "gatling"},
		{Application: "shop", TestEnvironment: "acc", Grafana: DynatraceSource, DashboardUID: "dt", DashboardLabel: "Services"},
	}
	snapshots := []*models.Snapshot{
		{TestRunID: "shop-12", DashboardLabel: "Gatling", URL: "https://s/g", Status: models.SnapshotStatusComplete},
	}

	all := ForTestRun(Bases{Grafana: "https://g", Pyroscope: "https://p", Tracing: "https://g", Dynatrace: "https://dt"}, run, dashboards, snapshots, start)
	kinds := make([]string, len(all))
	for i, l := range all {
		kinds[i] = l.Kind
	}
	assert.Equal(t, []string{KindGrafana, KindSnapshot, KindProfile, KindTrace, KindDynatrace}, kinds)

	onlySnapshots := ForTestRun(Bases{}, run, dashboards, snapshots, start)
	require.Len(t, onlySnapshots, 1)
	assert.Equal(t, KindSnapshot, onlySnapshots[0].Kind)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "gatling-overview-k8s", Slugify("Gatling Overview (k8s)"))
	assert.Equal(t, "jvm", Slugify("  JVM  "))
	assert.Equal(t, "", Slugify("---"))
}
