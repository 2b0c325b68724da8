package adapt

import (
	"github.com/perfana/perfana-dash/pkg/models"
)

// LookupClassification finds the classification of the metric at key.
// An entry for the exact metric wins, then the panel-wide entry, then the default
// entry that names neither dashboard nor panel.
func LookupClassification(entries []models.Classification, key models.MetricKey) (models.Classification, bool) {
	var panelMatch, defaultMatch *models.Classification

	for i := range entries {
		e := &entries[i]
		if !sameWorkload(e, key) {
			continue
		}

		switch {
		case e.DashboardUID == "" && e.PanelID == nil && e.MetricName == "":
			if defaultMatch == nil {
				defaultMatch = e
			}
		case e.DashboardUID != key.DashboardUID || !samePanel(e.PanelID, key.PanelID):
			continue
		case e.MetricName != "" && e.MetricName == key.MetricName:
			return *e, true
		case e.MetricName == "":
			if panelMatch == nil {
				panelMatch = e
			}
		}
	}

	if panelMatch != nil {
		return *panelMatch, true
	}
	if defaultMatch != nil {
		return *defaultMatch, true
	}
	return models.Classification{}, false
}

// NewClassificationUpdate builds the payload of updateMetricClassification for key
func NewClassificationUpdate(key models.MetricKey, category models.Category, higherIsBetter *bool) models.Classification {
	return models.Classification{
		Application:     key.Application,
		TestEnvironment: key.TestEnvironment,
		TestType:        key.TestType,
		DashboardUID:    key.DashboardUID,
		PanelID:         key.PanelID,
		MetricName:      key.MetricName,
		Category:        category,
		HigherIsBetter:  higherIsBetter,
	}
}

func sameWorkload(e *models.Classification, key models.MetricKey) bool {
	return (e.Application == "" || e.Application == key.Application) &&
		(e.TestEnvironment == "" || e.TestEnvironment == key.TestEnvironment) &&
		(e.TestType == "" || e.TestType == key.TestType)
}

func samePanel(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
