package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/perfana/perfana-dash/pkg/actions"
	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/auth"
	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/config"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/metrics"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/notify"
	"github.com/perfana/perfana-dash/pkg/remote"
	"github.com/perfana/perfana-dash/pkg/session"
	"github.com/perfana/perfana-dash/pkg/store"
)

// Remote is the part of the Perfana server the HTTP API calls into
type Remote interface {
	builder.SeriesSource
	GetDsCompareStatistics(ctx context.Context, q remote.StatisticsQuery) ([]models.DsCompareStatistics, error)
	UpdateDsCompareConfig(ctx context.Context, u adapt.ConfigUpdate, testRunID string) error
	UpdateMetricClassification(ctx context.Context, cl models.Classification, testRunID string) error
	GetMetricClassification(ctx context.Context, key models.MetricKey) (*models.Classification, bool, error)
	DeleteDsMetricComparisonIgnores(ctx context.Context, r remote.IgnoreRemoval) error
	ProcessPendingDsCompareConfigChanges(ctx context.Context, run *models.TestRun, includeControlGroup bool) error
	ResolveRegression(ctx context.Context, run *models.TestRun, resolution models.Resolution, updateControlGroup bool) error
}

// Options wires the server to the rest of the process
type Options struct {
	Store         *store.Store
	Remote        Remote
	Subscriber    builder.Subscriber
	// Subscriptions is shared with other front ends of the same store;
	// built from Subscriber when nil
	Subscriptions *builder.Subscriptions
	Sessions      *session.Manager
	Notifications *notify.Center
	Actions       *actions.Dispatcher
	Rules         auth.Rules
	// UserFromRequest identifies the caller of a mutation; defaults to the
	// identity headers set by an authenticating proxy
	UserFromRequest func(r *http.Request) *auth.User
}

// Server serves the dashboard views over HTTP and websockets
type Server struct {
	router   *mux.Router
	http     *http.Server
	store    *store.Store
	views    *builder.Builder
	remote   Remote
	subs     *builder.Subscriptions
	sessions *session.Manager
	notes    *notify.Center
	actions  *actions.Dispatcher
	rules    auth.Rules
	userFrom func(r *http.Request) *auth.User

	pushInterval time.Duration
}

// NewServer creates the dashboard server. Missing collaborators get defaults
// built from cfg.
func NewServer(cfg *config.Config, opts Options) *Server {
	if opts.Store == nil {
		opts.Store = store.New()
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(cfg.SessionTTL)
	}
	if opts.Notifications == nil {
		opts.Notifications = notify.NewCenter(cfg.NotificationTTL)
	}
	if opts.Actions == nil {
		opts.Actions = actions.NewDispatcher(context.Background(), opts.Notifications)
	}
	if opts.Rules == nil {
		opts.Rules = auth.DefaultRules()
	}
	if opts.UserFromRequest == nil {
		opts.UserFromRequest = UserFromHeaders
	}
	if opts.Subscriptions == nil {
		opts.Subscriptions = builder.NewSubscriptions(opts.Store, opts.Subscriber)
	}

	s := &Server{
		router:       mux.NewRouter(),
		store:        opts.Store,
		views:        builder.NewBuilder(opts.Store, cfg, opts.Actions.ReadOnly),
		remote:       opts.Remote,
		subs:         opts.Subscriptions,
		sessions:     opts.Sessions,
		notes:        opts.Notifications,
		actions:      opts.Actions,
		rules:        opts.Rules,
		userFrom:     opts.UserFromRequest,
		pushInterval: 250 * time.Millisecond,
	}
	s.setupRoutes()
	s.http = &http.Server{Addr: cfg.Addr(), Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called. After Shutdown it returns at once.
func (s *Server) Start() error {
	logger.Infof("Server running at http://%s", s.http.Addr)

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(recoverMiddleware, metricsMiddleware)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws/test-runs/{testRunId}/adapt", s.handleAdaptSocket)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.handleSession).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}", s.handleDismissNotification).Methods(http.MethodDelete)
	api.HandleFunc("/client-errors", s.handleClientError).Methods(http.MethodPost)
	api.HandleFunc("/classification", s.handleGetClassification).Methods(http.MethodGet)

	run := api.PathPrefix("/test-runs/{testRunId}").Subrouter()
	run.HandleFunc("", s.handleSummary).Methods(http.MethodGet)
	run.HandleFunc("/links", s.handleLinks).Methods(http.MethodGet)
	run.HandleFunc("/checks", s.handleChecks).Methods(http.MethodGet)
	run.HandleFunc("/adapt", s.handleComparison).Methods(http.MethodGet)
	run.HandleFunc("/adapt/statistics", s.handleStatistics).Methods(http.MethodGet)
	run.HandleFunc("/adapt/config", s.handleUpdateConfig).Methods(http.MethodPost)
	run.HandleFunc("/adapt/classification", s.handleUpdateClassification).Methods(http.MethodPost)
	run.HandleFunc("/adapt/ignores/{id}", s.handleDeleteIgnore).Methods(http.MethodDelete)
	run.HandleFunc("/adapt/reprocess", s.handleReprocess).Methods(http.MethodPost)
	run.HandleFunc("/regressions/resolve", s.handleResolveRegression).Methods(http.MethodPost)
	run.HandleFunc("/charts/metric", s.handleMetricChart).Methods(http.MethodGet)
	run.HandleFunc("/charts/tracked", s.handleTrackedChart).Methods(http.MethodGet)
}

// teamOf looks up the team owning an application in the applications publication
func (s *Server) teamOf(application string) (string, bool) {
	app, ok := store.FindOne(s.store, store.Applications, func(a *models.Application) bool {
		return a.Name == application
	})
	if !ok {
		return "", false
	}
	return app.Team, true
}
