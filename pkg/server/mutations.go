package server

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/perfana/perfana-dash/pkg/actions"
	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/auth"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/remote"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

type accepted struct {
	Accepted bool   `json:"accepted"`
	Action   string `json:"action"`
	Scope    string `json:"scope"`
}

// dispatch authorizes a write on collection for application and starts it
// in the background. The reply is 202; failures surface as notifications of
// the caller's session, which is started here when the request has none.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, collection string, op auth.Operation, application, scope, name string, action actions.Action) {
	if err := s.rules.Authorize(collection, op, s.userFrom(r), application, s.teamOf); err != nil {
		status := http.StatusForbidden
		if !s.userFrom(r).Authenticated() {
			status = http.StatusUnauthorized
		}
		writeError(w, status, err.Error())
		return
	}
	vc := s.viewContext(w, r, routeOf(r))
	s.actions.Dispatch(vc.ID, scope, name, action)
	writeJSON(w, http.StatusAccepted, accepted{Accepted: true, Action: name, Scope: scope})
}

// resultKey resolves the comparison result a mutation refers to and its key
// narrowed to scope
func (s *Server) resultKey(w http.ResponseWriter, route testrun.RouteParams, resultID string, scope models.ThresholdSource) (*models.MetricComparisonResult, models.MetricKey, bool) {
	if resultID == "" {
		writeError(w, http.StatusBadRequest, "resultId is required")
		return nil, models.MetricKey{}, false
	}
	m, ok := s.views.Result(route, resultID)
	if !ok {
		s.notAvailable(w, route)
		return nil, models.MetricKey{}, false
	}
	return m, narrow(adapt.KeyOf(m), scope), true
}

type configRequest struct {
	ResultID string                 `json:"resultId"`
	Scope    models.ThresholdSource `json:"scope,omitempty"`
	adapt.ThresholdEdit
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	var req configRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.ThresholdEdit.Empty() {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	m, key, ok := s.resultKey(w, route, req.ResultID, req.Scope)
	if !ok {
		return
	}
	update := adapt.NewConfigUpdate(key, req.ThresholdEdit)
	s.dispatch(w, r, auth.CollectionDsCompareConfig, auth.Update, key.Application, route.TestRunID, remote.MethodUpdateDsCompareConfig,
		func(ctx context.Context) error { return s.remote.UpdateDsCompareConfig(ctx, update, m.TestRunID) })
}

type classificationRequest struct {
	ResultID       string                 `json:"resultId"`
	Scope          models.ThresholdSource `json:"scope,omitempty"`
	Category       string                 `json:"metricClassification"`
	HigherIsBetter *bool                  `json:"higherIsBetter"`
}

func (s *Server) handleUpdateClassification(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	var req classificationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	category := models.ParseCategory(req.Category)
	if category == models.CategoryUnknown && req.Category != string(models.CategoryUnknown) {
		writeError(w, http.StatusBadRequest, "unknown metric classification "+req.Category)
		return
	}
	m, key, ok := s.resultKey(w, route, req.ResultID, req.Scope)
	if !ok {
		return
	}
	update := adapt.NewClassificationUpdate(key, category, req.HigherIsBetter)
	s.dispatch(w, r, auth.CollectionDsMetricClassification, auth.Update, key.Application, route.TestRunID, remote.MethodUpdateMetricClassification,
		func(ctx context.Context) error { return s.remote.UpdateMetricClassification(ctx, update, m.TestRunID) })
}

func (s *Server) handleDeleteIgnore(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	q := r.URL.Query()
	scope := models.ThresholdSource(q.Get("scope"))
	switch scope {
	case "":
		scope = models.SourceMetric
	case models.SourceMetric, models.SourcePanel, models.SourceDashboard:
	default:
		writeError(w, http.StatusBadRequest, "unknown scope "+string(scope))
		return
	}
	m, key, ok := s.resultKey(w, route, mux.Vars(r)["id"], scope)
	if !ok {
		return
	}
	removal := remote.IgnoreRemoval{
		ID:         m.ID,
		Scope:      scope,
		Rule:       q.Get("rule"),
		MetricName: m.MetricName,
	}
	s.dispatch(w, r, auth.CollectionDsCompareConfig, auth.Remove, key.Application, route.TestRunID, remote.MethodDeleteDsMetricComparisonIgnores,
		func(ctx context.Context) error { return s.remote.DeleteDsMetricComparisonIgnores(ctx, removal) })
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	run, ok := testrun.Resolve(s.store, route)
	if !ok {
		s.notAvailable(w, route)
		return
	}
	includeControlGroup, err := parseBool(r.URL.Query(), "controlGroup")
	if err != nil {
		writeError(w, http.StatusBadRequest, "controlGroup: "+err.Error())
		return
	}
	s.dispatch(w, r, auth.CollectionDsCompareConfig, auth.Update, run.Application, run.TestRunID, remote.MethodProcessPendingDsCompareConfigChanges,
		func(ctx context.Context) error {
			return s.remote.ProcessPendingDsCompareConfigChanges(ctx, run, includeControlGroup)
		})
}

type resolveRequest struct {
	Resolution         models.Resolution `json:"resolution"`
	UpdateControlGroup bool              `json:"updateControlGroup"`
}

func (s *Server) handleResolveRegression(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if !req.Resolution.Valid() {
		writeError(w, http.StatusBadRequest, "resolution must be ACCEPTED or DENIED")
		return
	}
	run, ok := testrun.Resolve(s.store, route)
	if !ok {
		s.notAvailable(w, route)
		return
	}
	s.dispatch(w, r, auth.CollectionDsChangepoints, auth.Update, run.Application, run.TestRunID, remote.MethodResolveRegression,
		func(ctx context.Context) error {
			return s.remote.ResolveRegression(ctx, run, req.Resolution, req.UpdateControlGroup)
		})
}
