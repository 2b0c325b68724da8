package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/auth"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/session"
	"github.com/perfana/perfana-dash/pkg/store"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

// Session and identity transport
const (
	SessionHeader = "X-Session-Id"
	SessionCookie = "perfana_dash_session"
	UserHeader    = "X-Perfana-User"
	RolesHeader   = "X-Perfana-Roles"
	TeamsHeader   = "X-Perfana-Teams"
)

// UserFromHeaders reads the identity an authenticating proxy put on the request.
// Roles and teams are comma separated.
func UserFromHeaders(r *http.Request) *auth.User {
	id := r.Header.Get(UserHeader)
	if id == "" {
		return nil
	}
	return &auth.User{
		ID:    id,
		Roles: splitList(r.Header.Get(RolesHeader)),
		Teams: splitList(r.Header.Get(TeamsHeader)),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Ready *bool  `json:"ready,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// routeOf reads the test run route from the path and the optional workload query
func routeOf(r *http.Request) testrun.RouteParams {
	q := r.URL.Query()
	return testrun.RouteParams{
		TestRunID:       mux.Vars(r)["testRunId"],
		Application:     q.Get("application"),
		TestEnvironment: q.Get("testEnvironment"),
		TestType:        q.Get("testType"),
	}
}

// sessionID finds the session of a request by header, cookie or query
func sessionID(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("session")
}

// viewContext returns the session of the request pointed at route, starting
// a new one when the request carries none that is alive
func (s *Server) viewContext(w http.ResponseWriter, r *http.Request, route testrun.RouteParams) session.ViewContext {
	if id := sessionID(r); id != "" {
		if vc, err := s.sessions.Update(id, func(vc *session.ViewContext) { vc.Route = route }); err == nil {
			return vc
		}
	}
	vc := s.sessions.Create(route)
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: vc.ID, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	w.Header().Set(SessionHeader, vc.ID)
	return vc
}

// prepare opens the subscriptions of a test run page
func (s *Server) prepare(route testrun.RouteParams) {
	s.subs.Prepare(route)
}

// notAvailable answers a view that cannot be built: 404 once the test run
// list is loaded and lacks the run, 503 while data is still arriving
func (s *Server) notAvailable(w http.ResponseWriter, route testrun.RouteParams) {
	if s.store.IsReady(store.TestRuns, route.SubscriptionParams()...) {
		if _, ok := testrun.Resolve(s.store, route); !ok {
			writeError(w, http.StatusNotFound, "test run not found")
			return
		}
	}
	ready := false
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "data not ready", Ready: &ready})
}

func parseBool(q map[string][]string, name string) (bool, error) {
	v := ""
	if vs := q[name]; len(vs) > 0 {
		v = vs[0]
	}
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// parseFilter reads the comparison filter and sort from the query. Absent
// parameters keep the session's current values.
func parseFilter(r *http.Request, vc *session.ViewContext) error {
	q := r.URL.Query()
	if _, ok := q["category"]; ok {
		vc.Filter.Category = nil
		if v := q.Get("category"); v != "" {
			c := models.ParseCategory(v)
			vc.Filter.Category = &c
		}
	}
	if _, ok := q["conclusion"]; ok {
		vc.Filter.Conclusion = nil
		if v := q.Get("conclusion"); v != "" {
			c, err := models.ParseConclusion(v)
			if err != nil {
				return err
			}
			vc.Filter.Conclusion = &c
		}
	}
	if _, ok := q["ignore"]; ok {
		vc.Filter.Ignore = nil
		if v := q.Get("ignore"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			vc.Filter.Ignore = &b
		}
	}
	if _, ok := q["sort"]; ok {
		field, err := adapt.ParseSortField(q.Get("sort"))
		if err != nil {
			return err
		}
		vc.Sort.Field = field
	}
	if _, ok := q["desc"]; ok {
		desc, err := parseBool(q, "desc")
		if err != nil {
			return err
		}
		vc.Sort.Desc = desc
	}
	return nil
}

// metricKeyOf reads a metric key from the query
func metricKeyOf(r *http.Request) (models.MetricKey, error) {
	q := r.URL.Query()
	key := models.MetricKey{
		Application:     q.Get("application"),
		TestEnvironment: q.Get("testEnvironment"),
		TestType:        q.Get("testType"),
		DashboardUID:    q.Get("dashboardUid"),
		MetricName:      q.Get("metricName"),
	}
	if v := q.Get("panelId"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return key, err
		}
		key.PanelID = &id
	}
	return key, nil
}

// narrow trims key to the granularity of scope; an empty scope keeps the key
func narrow(key models.MetricKey, scope models.ThresholdSource) models.MetricKey {
	switch scope {
	case models.SourcePanel:
		key.MetricName = ""
	case models.SourceDashboard:
		key.MetricName = ""
		key.PanelID = nil
	}
	return key
}
