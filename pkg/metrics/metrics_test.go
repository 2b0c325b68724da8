package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveRemoteCall(t *testing.T) {
	ObserveRemoteCall("resolveRegression", 20*time.Millisecond, "")
	ObserveRemoteCall("resolveRegression", 40*time.Millisecond, "application")

	body := scrape(t)
	assert.Contains(t, body, `perfana_dash_remote_call_total{method="resolveRegression"}`)
	assert.Contains(t, body, `perfana_dash_remote_call_error_total{kind="application",method="resolveRegression"} 1`)
	assert.Contains(t, body, `perfana_dash_remote_call_duration_seconds_count{method="resolveRegression"}`)
}

func TestGauges(t *testing.T) {
	SetSubscriptionReady("testRuns", true)
	assert.Contains(t, scrape(t), `perfana_dash_ddp_subscription_ready{name="testRuns"} 1`)
	SetSubscriptionReady("testRuns", false)
	assert.Contains(t, scrape(t), `perfana_dash_ddp_subscription_ready{name="testRuns"} 0`)

	SetPending(3)
	assert.Contains(t, scrape(t), "perfana_dash_actions_pending 3")
	SetPending(0)
}

func TestObserveHTTP(t *testing.T) {
	ObserveHTTP("/api/test-runs/{testRunId}", http.MethodGet, http.StatusOK, time.Millisecond)

	assert.Contains(t, scrape(t), `perfana_dash_http_request_total{code="200",method="GET",route="/api/test-runs/{testRunId}"}`)
}
