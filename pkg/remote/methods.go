package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/models"
)

// StatisticsQuery identifies one compared metric for getDsCompareStatistics
type StatisticsQuery struct {
	TestRunID      string `json:"testRunId"`
	ControlGroupID string `json:"controlGroupId,omitempty"`
	DashboardUID   string `json:"dashboardUid"`
	PanelID        int    `json:"panelId"`
	MetricName     string `json:"metricName"`
}

// QueryFor builds the statistics query of a comparison result
func QueryFor(m *models.MetricComparisonResult) StatisticsQuery {
	return StatisticsQuery{
		TestRunID:      m.TestRunID,
		ControlGroupID: m.ControlGroupID,
		DashboardUID:   m.DashboardUID,
		PanelID:        m.PanelID,
		MetricName:     m.MetricName,
	}
}

// IgnoreRemoval removes an ignore rule at the given scope
type IgnoreRemoval struct {
	ID         string
	Scope      models.ThresholdSource
	Rule       string
	MetricName string
}

// LoginResult is the session established by a resume token
type LoginResult struct {
	UserID       string    `json:"id"`
	Token        string    `json:"token"`
	TokenExpires time.Time `json:"tokenExpires"`
}

// GetDsCompareStatistics fetches the detailed statistics of one comparison
func (c *Client) GetDsCompareStatistics(ctx context.Context, q StatisticsQuery) ([]models.DsCompareStatistics, error) {
	var out []models.DsCompareStatistics
	if err := c.call(ctx, MethodGetDsCompareStatistics, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateDsCompareConfig stores a threshold edit made on a test run. The
// server applies it at the update's source scope.
func (c *Client) UpdateDsCompareConfig(ctx context.Context, u adapt.ConfigUpdate, testRunID string) error {
	return c.call(ctx, MethodUpdateDsCompareConfig, nil, u, testRunID, u.Source)
}

// UpdateMetricClassification stores a classification made on a test run
func (c *Client) UpdateMetricClassification(ctx context.Context, cl models.Classification, testRunID string) error {
	return c.call(ctx, MethodUpdateMetricClassification, nil, cl, testRunID)
}

// GetMetricClassification returns the server side classification of a metric.
// It reports false when none exists.
func (c *Client) GetMetricClassification(ctx context.Context, key models.MetricKey) (*models.Classification, bool, error) {
	var out *models.Classification
	if err := c.call(ctx, MethodGetMetricClassification, &out, key); err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// DeleteDsMetricComparisonIgnores removes an ignore rule
func (c *Client) DeleteDsMetricComparisonIgnores(ctx context.Context, r IgnoreRemoval) error {
	return c.call(ctx, MethodDeleteDsMetricComparisonIgnores, nil, r.ID, r.Scope, r.Rule, r.MetricName)
}

// GetDsTrackedRegressions fetches the history of a tracked metric
func (c *Client) GetDsTrackedRegressions(ctx context.Context, key models.MetricKey) ([]models.TrackedRegressionPoint, error) {
	var out []models.TrackedRegressionPoint
	if err := c.call(ctx, MethodGetDsTrackedRegressions, &out, key); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDsMetrics fetches the series of a panel, optionally of a single metric
func (c *Client) GetDsMetrics(ctx context.Context, testRunID string, key models.MetricKey) ([]models.MetricSeries, error) {
	var out []models.MetricSeries
	if err := c.call(ctx, MethodGetDsMetrics, &out, testRunID, key); err != nil {
		return nil, err
	}
	return out, nil
}

// ProcessPendingDsCompareConfigChanges asks the server to re-evaluate a test
// run, optionally re-selecting its control group as well
func (c *Client) ProcessPendingDsCompareConfigChanges(ctx context.Context, run *models.TestRun, includeControlGroup bool) error {
	if run == nil {
		return fmt.Errorf("%s: no test run", MethodProcessPendingDsCompareConfigChanges)
	}
	return c.call(ctx, MethodProcessPendingDsCompareConfigChanges, nil, run, includeControlGroup)
}

// ResolveRegression records the verdict on the regressions of a test run.
// updateControlGroup asks the server to recompute control group membership.
func (c *Client) ResolveRegression(ctx context.Context, run *models.TestRun, resolution models.Resolution, updateControlGroup bool) error {
	if !resolution.Valid() {
		return fmt.Errorf("invalid resolution %q", resolution)
	}
	if run == nil {
		return fmt.Errorf("%s: no test run", MethodResolveRegression)
	}
	return c.call(ctx, MethodResolveRegression, nil, run, resolution, updateControlGroup)
}

// Login authenticates the connection with a resume token
func (c *Client) Login(ctx context.Context, token string) (*LoginResult, error) {
	var out LoginResult
	if err := c.call(ctx, MethodLogin, &out, map[string]string{"resume": token}); err != nil {
		return nil, err
	}
	return &out, nil
}
