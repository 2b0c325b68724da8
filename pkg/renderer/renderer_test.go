package renderer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/checks"
	"github.com/perfana/perfana-dash/pkg/models"
)

func TestPageName(t *testing.T) {
	assert.Equal(t, "run-1.html", PageName("run-1"))
	assert.Equal(t, "shop_acc_2024.05.html", PageName("shop/acc 2024.05"))
}

func TestRenderIndex(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	dir := t.TempDir()

	path := filepath.Join(dir, "index.html")
	require.NoError(t, r.RenderIndex("Runs", nil, path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No test runs")

	entry := IndexEntry{TestRunID: "run-1", Application: "shop", Health: "clean", Page: "run-1.html",
		Start: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, r.RenderIndex("Runs", []IndexEntry{entry}, path))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<tr class="health-clean">`)
	assert.Contains(t, string(data), "2024-05-01 10:00:00 UTC")
}

func TestWriteRunWithChecksOnly(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	report := &builder.Report{
		Summary: &builder.Summary{
			TestRun: &models.TestRun{TestRunID: "run-1", Application: "shop"},
			Checks:  &builder.CheckCounts{Failed: 1, Total: 2},
		},
		Checks: &builder.CheckView{View: checks.View{Groups: []checks.Group{{
			DashboardLabel: "Service",
			Rows:           []checks.Row{{Check: &models.CheckResult{PanelTitle: "Latency"}, Icon: "x"}},
		}}}},
	}

	var buf bytes.Buffer
	require.NoError(t, r.WriteRun(&buf, report))
	page := buf.String()
	assert.Contains(t, page, "1 of 2 failed")
	assert.Contains(t, page, "<h3>Service</h3>")
	assert.NotContains(t, page, "<h2>Comparison</h2>")

	assert.Error(t, r.WriteRun(&buf, &builder.Report{}))
}
