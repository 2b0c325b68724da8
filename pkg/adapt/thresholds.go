package adapt

import (
	"github.com/perfana/perfana-dash/pkg/models"
)

// ResolveThresholds computes the effective configuration of the metric at key from
// the rules of its workload. Each threshold kind resolves independently to the most
// specific matching rule that sets it (metric > panel > dashboard > default); on a
// tie the earlier rule wins.
func ResolveThresholds(rules []models.ThresholdRule, key models.MetricKey) models.ThresholdConfig {
	cfg := models.ThresholdConfig{
		Pct:    models.ThresholdValue{Source: models.SourceDefault},
		IQR:    models.ThresholdValue{Source: models.SourceDefault},
		Abs:    models.ThresholdValue{Source: models.SourceDefault},
		Ignore: models.IgnoreValue{Source: models.SourceDefault},
	}
	best := map[models.CheckKey]int{
		models.CheckPct:    -1,
		models.CheckIQR:    -1,
		models.CheckAbs:    -1,
		models.CheckIgnore: -1,
	}

	for _, rule := range rules {
		if !ruleMatches(rule, key) {
			continue
		}
		source := rule.Source()
		spec := source.Specificity()

		if rule.Pct != nil && spec > best[models.CheckPct] {
			best[models.CheckPct] = spec
			cfg.Pct = models.ThresholdValue{Value: rule.Pct, Source: source}
		}
		if rule.IQR != nil && spec > best[models.CheckIQR] {
			best[models.CheckIQR] = spec
			cfg.IQR = models.ThresholdValue{Value: rule.IQR, Source: source}
		}
		if rule.Abs != nil && spec > best[models.CheckAbs] {
			best[models.CheckAbs] = spec
			cfg.Abs = models.ThresholdValue{Value: rule.Abs, Source: source}
		}
		if rule.Ignore != nil && spec > best[models.CheckIgnore] {
			best[models.CheckIgnore] = spec
			cfg.Ignore = models.IgnoreValue{Value: *rule.Ignore, Source: source}
		}
	}

	return cfg
}

// a rule matches when every field it sets equals the key
func ruleMatches(rule models.ThresholdRule, key models.MetricKey) bool {
	if rule.DashboardUID != "" && rule.DashboardUID != key.DashboardUID {
		return false
	}
	if rule.PanelID != nil && (key.PanelID == nil || *rule.PanelID != *key.PanelID) {
		return false
	}
	if rule.MetricName != "" && rule.MetricName != key.MetricName {
		return false
	}
	return true
}
