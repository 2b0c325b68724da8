package adapt

import (
	"github.com/perfana/perfana-dash/pkg/models"
)

// ScopeFor returns the granularity an edit of key applies at.
// A metric name wins over a panel id; with neither the edit targets the whole dashboard.
func ScopeFor(key models.MetricKey) models.ThresholdSource {
	switch {
	case key.MetricName != "":
		return models.SourceMetric
	case key.PanelID != nil:
		return models.SourcePanel
	default:
		return models.SourceDashboard
	}
}

// ThresholdEdit carries the values a user changed; nil fields are left as they are
type ThresholdEdit struct {
	Pct    *float64 `json:"pctThreshold,omitempty"`
	IQR    *float64 `json:"iqrThreshold,omitempty"`
	Abs    *float64 `json:"absThreshold,omitempty"`
	Ignore *bool    `json:"ignore,omitempty"`
}

// Empty reports whether the edit changes nothing
func (e ThresholdEdit) Empty() bool {
	return e.Pct == nil && e.IQR == nil && e.Abs == nil && e.Ignore == nil
}

// ConfigUpdate is the payload of updateDsCompareConfig
type ConfigUpdate struct {
	models.MetricKey
	ThresholdEdit
	Source models.ThresholdSource `json:"source"`
}

// NewConfigUpdate tags an edit with the scope derived from its key.
// Fields finer than the scope are cleared so the server never sees a panel id on a
// dashboard-wide update.
func NewConfigUpdate(key models.MetricKey, edit ThresholdEdit) ConfigUpdate {
	source := ScopeFor(key)
	if source == models.SourceDashboard {
		key.PanelID = nil
	}
	return ConfigUpdate{
		MetricKey:     key,
		ThresholdEdit: edit,
		Source:        source,
	}
}

// KeyOf returns the metric key of a comparison result
func KeyOf(m *models.MetricComparisonResult) models.MetricKey {
	panelID := m.PanelID
	return models.MetricKey{
		Application:     m.Application,
		TestEnvironment: m.TestEnvironment,
		TestType:        m.TestType,
		DashboardUID:    m.DashboardUID,
		PanelID:         &panelID,
		MetricName:      m.MetricName,
	}
}
