package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/perfana/perfana-dash/pkg/charts"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/remote"
	"github.com/perfana/perfana-dash/pkg/session"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	vc, ok := s.sessions.Get(sessionID(r))
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrUnknownSession.Error())
		return
	}
	writeJSON(w, http.StatusOK, vc)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	s.viewContext(w, r, route)
	s.prepare(route)

	summary, ok := s.views.Summary(route)
	if !ok {
		s.notAvailable(w, route)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	s.prepare(route)

	out, ok := s.views.Links(route)
	if !ok {
		s.notAvailable(w, route)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleComparison(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	vc := s.viewContext(w, r, route)

	next := vc
	if err := parseFilter(r, &next); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vc, err := s.sessions.Update(vc.ID, func(vc *session.ViewContext) {
		vc.Filter, vc.Sort = next.Filter, next.Sort
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.prepare(route)

	view, ok := s.views.Comparison(route, vc.Filter, vc.Sort)
	if !ok {
		s.notAvailable(w, route)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	vc := s.viewContext(w, r, route)

	q := r.URL.Query()
	opts := vc.Checks
	var err error
	if _, ok := q["failedOnly"]; ok {
		if opts.FailedOnly, err = parseBool(q, "failedOnly"); err != nil {
			writeError(w, http.StatusBadRequest, "failedOnly: "+err.Error())
			return
		}
	}
	if _, ok := q["showPassedDetails"]; ok {
		if opts.ShowPassedDetails, err = parseBool(q, "showPassedDetails"); err != nil {
			writeError(w, http.StatusBadRequest, "showPassedDetails: "+err.Error())
			return
		}
	}
	if _, ok := q["filter"]; ok {
		opts.Text = q.Get("filter")
	}
	if _, err := s.sessions.Update(vc.ID, func(vc *session.ViewContext) { vc.Checks = opts }); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.prepare(route)

	view, ok := s.views.Checks(route, opts)
	if !ok {
		s.notAvailable(w, route)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	s.prepare(route)

	m, ok := s.views.Result(route, r.URL.Query().Get("id"))
	if !ok {
		s.notAvailable(w, route)
		return
	}
	stats, err := s.remote.GetDsCompareStatistics(r.Context(), remote.QueryFor(m))
	if err != nil {
		s.remoteFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetClassification(w http.ResponseWriter, r *http.Request) {
	key, err := metricKeyOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "panelId: "+err.Error())
		return
	}
	if key.Application == "" || key.DashboardUID == "" {
		writeError(w, http.StatusBadRequest, "application and dashboardUid are required")
		return
	}
	cl, found, err := s.remote.GetMetricClassification(r.Context(), key)
	if err != nil {
		s.remoteFailed(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no classification")
		return
	}
	writeJSON(w, http.StatusOK, cl)
}

func (s *Server) handleMetricChart(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	s.prepare(route)

	key, err := metricKeyOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "panelId: "+err.Error())
		return
	}
	fig, ok, err := s.views.MetricChart(r.Context(), s.remote, route, key, r.URL.Query().Get("compare"))
	s.writeFigure(w, r, route, fig, ok, err)
}

func (s *Server) handleTrackedChart(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)
	s.prepare(route)

	key, err := metricKeyOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "panelId: "+err.Error())
		return
	}
	fig, ok, err := s.views.TrackedChart(r.Context(), s.remote, route, key)
	s.writeFigure(w, r, route, fig, ok, err)
}

// writeFigure answers a chart as plotly JSON, or as PNG with format=png
func (s *Server) writeFigure(w http.ResponseWriter, r *http.Request, route testrun.RouteParams, fig *charts.Figure, ok bool, err error) {
	if err != nil {
		s.remoteFailed(w, err)
		return
	}
	if !ok {
		s.notAvailable(w, route)
		return
	}

	q := r.URL.Query()
	if q.Get("format") != "png" {
		writeJSON(w, http.StatusOK, fig)
		return
	}
	width, height := 1024, 480
	if v, err := strconv.Atoi(q.Get("width")); err == nil && v > 0 {
		width = v
	}
	if v, err := strconv.Atoi(q.Get("height")); err == nil && v > 0 {
		height = v
	}
	w.Header().Set("Content-Type", "image/png")
	if err := charts.RenderPNG(*fig, w, width, height); err != nil {
		logger.Errorf("failed to render chart: %v", err)
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.notes.List(sessionID(r)))
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if !s.notes.Dismiss(sessionID(r), mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "no such notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClientError(w http.ResponseWriter, r *http.Request) {
	var report logger.ClientError
	if err := decodeBody(r, &report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid client error: "+err.Error())
		return
	}
	if report.UserAgent == "" {
		report.UserAgent = r.UserAgent()
	}
	if report.SessionID == "" {
		report.SessionID = sessionID(r)
	}
	if report.URL == "" {
		report.URL = r.Referer()
	}
	logger.LogClientError(report)
	w.WriteHeader(http.StatusNoContent)
}

// remoteFailed answers a failed synchronous read from the Perfana server
func (s *Server) remoteFailed(w http.ResponseWriter, err error) {
	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) {
		logger.WithFields(logger.Fields{"method": remoteErr.Method, "code": remoteErr.Code}).Warnf("remote call rejected: %v", err)
	} else {
		logger.Errorf("remote call failed: %v", err)
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
