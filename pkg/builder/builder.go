package builder

import (
	"time"

	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/analytics"
	"github.com/perfana/perfana-dash/pkg/checks"
	"github.com/perfana/perfana-dash/pkg/config"
	"github.com/perfana/perfana-dash/pkg/format"
	"github.com/perfana/perfana-dash/pkg/links"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/store"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

// Subscription names one publication and the parameters it is opened with
type Subscription struct {
	Name   string        `json:"name"`
	Params []interface{} `json:"params"`
}

// RouteSubscriptions are the subscriptions a test run page needs before its
// test run is known
func RouteSubscriptions(route testrun.RouteParams) []Subscription {
	return []Subscription{
		{Name: store.TestRuns, Params: route.SubscriptionParams()},
		{Name: store.DsAdaptResults, Params: []interface{}{route.TestRunID}},
		{Name: store.CheckResults, Params: []interface{}{route.TestRunID}},
		{Name: store.Snapshots, Params: []interface{}{route.TestRunID}},
		{Name: store.Applications, Params: []interface{}{}},
	}
}

// WorkloadSubscriptions are the subscriptions that depend on the resolved
// test run's application, environment and workload
func WorkloadSubscriptions(run *models.TestRun) []Subscription {
	return []Subscription{
		{Name: store.GrafanaDashboards, Params: []interface{}{run.Application, run.TestEnvironment}},
		{Name: store.DsCompareConfig, Params: []interface{}{run.Application, run.TestEnvironment, run.TestType}},
		{Name: store.DsMetricClassification, Params: []interface{}{run.Application, run.TestEnvironment, run.TestType}},
	}
}

// Builder assembles views from the local store
type Builder struct {
	store         *store.Store
	engine        *analytics.Engine
	baselineLabel string
	bases         links.Bases
	readOnly      func(scope string) bool
	now           func() time.Time
}

// NewBuilder creates a view builder. readOnly reports whether a mutation is
// pending for a scope; nil means never.
func NewBuilder(s *store.Store, cfg *config.Config, readOnly func(scope string) bool) *Builder {
	if readOnly == nil {
		readOnly = func(string) bool { return false }
	}
	return &Builder{
		store:         s,
		engine:        analytics.NewEngine(cfg.BaselineLabel),
		baselineLabel: cfg.BaselineLabel,
		bases:         cfg.Links,
		readOnly:      readOnly,
		now:           time.Now,
	}
}

// Store returns the store views are built from
func (b *Builder) Store() *store.Store {
	return b.store
}

// ComparisonRow is one comparison result with everything the table shows
type ComparisonRow struct {
	Result         *models.MetricComparisonResult `json:"result"`
	Display        format.Rendered                `json:"display"`
	Thresholds     models.ThresholdConfig         `json:"thresholds"`
	Classification *models.Classification         `json:"classification,omitempty"`
}

// ComparisonView is the filtered and sorted comparison table of a test run
type ComparisonView struct {
	TestRun           *models.TestRun                `json:"testRun"`
	Filter            adapt.Filter                   `json:"filter"`
	Sort              adapt.SortSpec                 `json:"sort"`
	Rows              []ComparisonRow                `json:"rows"`
	CategoryOptions   []models.Category              `json:"categoryOptions"`
	ConclusionOptions []models.ConclusionLabel       `json:"conclusionOptions"`
	Families          map[models.Family]int          `json:"families"`
	Counts            map[models.ConclusionLabel]int `json:"counts"`
	Total             int                            `json:"total"`
	ReadOnly          bool                           `json:"readOnly"`
}

// Comparison builds the comparison table. It reports false until both the
// test run and its comparison results are available.
func (b *Builder) Comparison(route testrun.RouteParams, filter adapt.Filter, spec adapt.SortSpec) (*ComparisonView, bool) {
	run, ok := testrun.Resolve(b.store, route)
	if !ok {
		return nil, false
	}
	results, ok := b.results(run)
	if !ok {
		return nil, false
	}

	view := adapt.Apply(results, filter)
	adapt.Sort(view.Rows, spec)

	rules := b.thresholdRules(run)
	classifications := b.classifications()

	out := &ComparisonView{
		TestRun:           run,
		Filter:            filter,
		Sort:              spec,
		Rows:              make([]ComparisonRow, 0, len(view.Rows)),
		CategoryOptions:   view.CategoryOptions,
		ConclusionOptions: view.ConclusionOptions,
		Families:          make(map[models.Family]int),
		Counts:            adapt.CountByConclusion(view.Rows),
		Total:             view.Total,
		ReadOnly:          b.readOnly(run.TestRunID),
	}
	for family, rows := range adapt.GroupByFamily(view.Rows) {
		out.Families[family] = len(rows)
	}
	for _, m := range view.Rows {
		key := adapt.KeyOf(m)
		row := ComparisonRow{
			Result:     m,
			Display:    format.RenderComparison(m, b.baselineLabel),
			Thresholds: adapt.ResolveThresholds(rules, key),
		}
		if c, found := adapt.LookupClassification(classifications, key); found {
			row.Classification = &c
		}
		out.Rows = append(out.Rows, row)
	}
	return out, true
}

// Result returns one comparison result of the route's test run by document id
func (b *Builder) Result(route testrun.RouteParams, id string) (*models.MetricComparisonResult, bool) {
	run, ok := testrun.Resolve(b.store, route)
	if !ok {
		return nil, false
	}
	m, ok := store.GetAs[models.MetricComparisonResult](b.store, store.DsAdaptResults, id)
	if !ok || m.TestRunID != run.TestRunID {
		return nil, false
	}
	return m, true
}

// CheckView is the checks of a test run
type CheckView struct {
	TestRun *models.TestRun `json:"testRun"`
	Options checks.Options  `json:"options"`
	checks.View
}

// Checks builds the checks view. It reports false until the test run and its
// check results are available.
func (b *Builder) Checks(route testrun.RouteParams, opts checks.Options) (*CheckView, bool) {
	run, ok := testrun.Resolve(b.store, route)
	if !ok || !b.store.IsReady(store.CheckResults, run.TestRunID) {
		return nil, false
	}
	results := store.Find(b.store, store.CheckResults, func(c *models.CheckResult) bool {
		return c.TestRunID == run.TestRunID
	})
	return &CheckView{TestRun: run, Options: opts, View: checks.Apply(results, opts)}, true
}

func (b *Builder) results(run *models.TestRun) ([]*models.MetricComparisonResult, bool) {
	if !b.store.IsReady(store.DsAdaptResults, run.TestRunID) {
		return nil, false
	}
	return store.Find(b.store, store.DsAdaptResults, func(m *models.MetricComparisonResult) bool {
		return m.TestRunID == run.TestRunID
	}), true
}

func (b *Builder) thresholdRules(run *models.TestRun) []models.ThresholdRule {
	found := store.Find(b.store, store.DsCompareConfig, func(r *models.ThresholdRule) bool { return r.AppliesTo(run) })
	rules := make([]models.ThresholdRule, len(found))
	for i, r := range found {
		rules[i] = *r
	}
	return rules
}

// workload matching is left to adapt.LookupClassification
func (b *Builder) classifications() []models.Classification {
	found := store.Find[models.Classification](b.store, store.DsMetricClassification, nil)
	entries := make([]models.Classification, len(found))
	for i, c := range found {
		entries[i] = *c
	}
	return entries
}
