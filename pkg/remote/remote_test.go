package remote

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/ddp"
	"github.com/perfana/perfana-dash/pkg/models"
)

type call struct {
	method string
	params []interface{}
}

func fake(result string, err error) (*Client, *[]call) {
	var calls []call
	caller := CallerFunc(func(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
		calls = append(calls, call{method: method, params: params})
		if err != nil {
			return nil, err
		}
		return json.RawMessage(result), nil
	})
	return New(caller, 0), &calls
}

func paramsJSON(t *testing.T, c call) string {
	t.Helper()
	data, err := json.Marshal(c.params)
	require.NoError(t, err)
	return string(data)
}

func intPtr(i int) *int { return &i }

func TestUpdateDsCompareConfig(t *testing.T) {
	client, calls := fake(`null`, nil)
	pct := 15.0
	key := models.MetricKey{
		Application: "shop", TestEnvironment: "acc", TestType: "load",
		DashboardUID: "d1", PanelID: intPtr(3), MetricName: "p95",
	}

	err := client.UpdateDsCompareConfig(context.Background(), adapt.NewConfigUpdate(key, adapt.ThresholdEdit{Pct: &pct}), "run-1")

	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, MethodUpdateDsCompareConfig, (*calls)[0].method)
	assert.JSONEq(t, `[{
		"application":"shop","testEnvironment":"acc","testType":"load",
		"dashboardUid":"d1","panelId":3,"metricName":"p95",
		"pctThreshold":15,"source":"metric"
	}, "run-1", "metric"]`, paramsJSON(t, (*calls)[0]))
}

func TestUpdateMetricClassificationParams(t *testing.T) {
	client, calls := fake(`null`, nil)

	err := client.UpdateMetricClassification(context.Background(), models.Classification{Application: "shop", Category: models.CategoryRedDuration}, "run-1")

	require.NoError(t, err)
	params := (*calls)[0].params
	require.Len(t, params, 2)
	assert.Equal(t, "run-1", params[1])
	cl, ok := params[0].(models.Classification)
	require.True(t, ok)
	assert.Equal(t, models.CategoryRedDuration, cl.Category)
}

func TestDeleteIgnoreParams(t *testing.T) {
	client, calls := fake(`null`, nil)

	err := client.DeleteDsMetricComparisonIgnores(context.Background(), IgnoreRemoval{
		ID: "c1", Scope: models.SourcePanel, Rule: "r1", MetricName: "p95",
	})

	require.NoError(t, err)
	assert.Equal(t, MethodDeleteDsMetricComparisonIgnores, (*calls)[0].method)
	assert.JSONEq(t, `["c1","panel","r1","p95"]`, paramsJSON(t, (*calls)[0]))
}

func TestApplicationError(t *testing.T) {
	client, _ := fake("", &ddp.Error{
		Code:    json.RawMessage(`"not-authorized"`),
		Reason:  "Not allowed",
		Message: "Not allowed [not-authorized]",
	})

	err := client.UpdateMetricClassification(context.Background(), models.Classification{Application: "shop"}, "run-1")

	var remoteErr *Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, MethodUpdateMetricClassification, remoteErr.Method)
	assert.Equal(t, "not-authorized", remoteErr.Code)
	assert.Equal(t, "updateMetricClassification: Not allowed [not-authorized]", err.Error())
}

func TestTransportError(t *testing.T) {
	client, _ := fake("", ddp.ErrClosed)

	err := client.ProcessPendingDsCompareConfigChanges(context.Background(), &models.TestRun{TestRunID: "run-1"}, false)

	require.Error(t, err)
	var remoteErr *Error
	assert.False(t, errors.As(err, &remoteErr))
	assert.ErrorIs(t, err, ddp.ErrClosed)
}

func TestGetMetricClassification(t *testing.T) {
	client, _ := fake(`{"application":"shop","testEnvironment":"acc","testType":"load","metricClassification":"RED_DURATION","higherIsBetter":false}`, nil)

	cl, ok, err := client.GetMetricClassification(context.Background(), models.MetricKey{Application: "shop"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.CategoryRedDuration, cl.Category)
	require.NotNil(t, cl.HigherIsBetter)
	assert.False(t, *cl.HigherIsBetter)

	none, _ := fake(`null`, nil)
	_, ok, err = none.GetMetricClassification(context.Background(), models.MetricKey{Application: "shop"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetDsTrackedRegressions(t *testing.T) {
	client, _ := fake(`[
		{"testRunId":"run-1","start":"2024-05-01T10:00:00Z","value":120,"lower":100,"upper":140},
		{"testRunId":"run-2","start":"2024-05-02T10:00:00Z","value":180,"regression":true}
	]`, nil)

	points, err := client.GetDsTrackedRegressions(context.Background(), models.MetricKey{Application: "shop"})

	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "run-2", points[1].TestRunID)
	assert.True(t, points[1].Regression)
	assert.Nil(t, points[1].Lower)
}

func TestDecodeFailure(t *testing.T) {
	client, _ := fake(`{"not":"a list"}`, nil)

	_, err := client.GetDsMetrics(context.Background(), "run-1", models.MetricKey{})

	assert.ErrorContains(t, err, "failed to decode getDsMetrics result")
}

func TestProcessPendingParams(t *testing.T) {
	client, calls := fake(`null`, nil)
	run := &models.TestRun{TestRunID: "run-1", Application: "shop"}

	require.NoError(t, client.ProcessPendingDsCompareConfigChanges(context.Background(), run, true))
	require.NoError(t, client.ProcessPendingDsCompareConfigChanges(context.Background(), run, false))
	assert.Error(t, client.ProcessPendingDsCompareConfigChanges(context.Background(), nil, false))

	require.Len(t, *calls, 2)
	assert.Equal(t, []interface{}{run, true}, (*calls)[0].params)
	assert.Equal(t, []interface{}{run, false}, (*calls)[1].params)
}

func TestResolveRegressionParams(t *testing.T) {
	client, calls := fake(`null`, nil)
	run := &models.TestRun{TestRunID: "run-1"}

	err := client.ResolveRegression(context.Background(), run, "MAYBE", false)
	assert.Error(t, err)
	assert.Empty(t, *calls)

	err = client.ResolveRegression(context.Background(), run, models.ResolutionAccepted, true)
	require.NoError(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, MethodResolveRegression, (*calls)[0].method)
	assert.Equal(t, []interface{}{run, models.ResolutionAccepted, true}, (*calls)[0].params)
}

func TestTimeout(t *testing.T) {
	caller := CallerFunc(func(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	client := New(caller, 20*time.Millisecond)

	err := client.UpdateDsCompareConfig(context.Background(), adapt.ConfigUpdate{}, "run-1")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLogin(t *testing.T) {
	client, calls := fake(`{"id":"u1","token":"tok","tokenExpires":"2024-08-01T00:00:00Z"}`, nil)

	res, err := client.Login(context.Background(), "resume-token")

	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)
	assert.JSONEq(t, `[{"resume":"resume-token"}]`, paramsJSON(t, (*calls)[0]))
}
