// Package testrun resolves the test run a view is about from its route parameters.
package testrun

import (
	"sort"

	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/store"
)

// RouteParams identify a test run page. Only TestRunID is required; the
// other fields narrow the lookup when set.
type RouteParams struct {
	TestRunID       string `json:"testRunId"`
	Application     string `json:"application,omitempty"`
	TestEnvironment string `json:"testEnvironment,omitempty"`
	TestType        string `json:"testType,omitempty"`
}

// Query is the selector sent as the testRuns subscription parameter
func (p RouteParams) Query() map[string]interface{} {
	q := map[string]interface{}{}
	if p.Application != "" {
		q["application"] = p.Application
	}
	if p.TestEnvironment != "" {
		q["testEnvironment"] = p.TestEnvironment
	}
	if p.TestType != "" {
		q["testType"] = p.TestType
	}
	return q
}

// SubscriptionParams are the parameters the testRuns subscription of this
// route is opened with
func (p RouteParams) SubscriptionParams() []interface{} {
	return []interface{}{p.Query()}
}

func (p RouteParams) matches(run *models.TestRun) bool {
	return (p.Application == "" || run.Application == p.Application) &&
		(p.TestEnvironment == "" || run.TestEnvironment == p.TestEnvironment) &&
		(p.TestType == "" || run.TestType == p.TestType)
}

// Resolve returns the test run of the route. It reports false while the
// testRuns subscription is not ready or when no run matches.
func Resolve(s *store.Store, p RouteParams) (*models.TestRun, bool) {
	if p.TestRunID == "" || !s.IsReady(store.TestRuns, p.SubscriptionParams()...) {
		return nil, false
	}
	return store.FindOne(s, store.TestRuns, func(run *models.TestRun) bool {
		return run.TestRunID == p.TestRunID && p.matches(run)
	})
}

// Previous returns the latest completed run of the same workload that started
// before run
func Previous(s *store.Store, p RouteParams, run *models.TestRun) (*models.TestRun, bool) {
	history := History(s, p, run)
	for _, prev := range history {
		if prev.Start.Before(run.Start) {
			return prev, true
		}
	}
	return nil, false
}

// Baseline resolves the run named as baseline within the same workload
func Baseline(s *store.Store, p RouteParams, run *models.TestRun, baselineID string) (*models.TestRun, bool) {
	if baselineID == "" || baselineID == run.TestRunID {
		return nil, false
	}
	return Resolve(s, RouteParams{
		TestRunID:       baselineID,
		Application:     p.Application,
		TestEnvironment: p.TestEnvironment,
		TestType:        p.TestType,
	})
}

// History lists the completed runs of run's workload, newest first
func History(s *store.Store, p RouteParams, run *models.TestRun) []*models.TestRun {
	if !s.IsReady(store.TestRuns, p.SubscriptionParams()...) {
		return nil
	}
	runs := store.Find(s, store.TestRuns, func(r *models.TestRun) bool {
		return r.Completed &&
			r.TestRunID != run.TestRunID &&
			r.Application == run.Application &&
			r.TestEnvironment == run.TestEnvironment &&
			r.TestType == run.TestType
	})
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Start.After(runs[j].Start)
	})
	return runs
}
