package rpcserver

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/checks"
	"github.com/perfana/perfana-dash/pkg/config"
	"github.com/perfana/perfana-dash/pkg/ddp"
	"github.com/perfana/perfana-dash/pkg/models"
	"github.com/perfana/perfana-dash/pkg/store"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

func boolPtr(b bool) *bool { return &b }

func add(t *testing.T, s *store.Store, collection, id string, doc interface{}) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	delete(fields, "_id")
	s.Added(collection, id, fields)
}

func result(id, metric string, label models.ConclusionLabel) models.MetricComparisonResult {
	return models.MetricComparisonResult{
		ID:              id,
		Application:     "shop",
		TestEnvironment: "acc",
		TestType:        "load",
		TestRunID:       "run-1",
		DashboardUID:    "d1",
		DashboardLabel:  "Service",
		PanelID:         3,
		PanelTitle:      "Latency",
		MetricName:      metric,
		Category:        models.CategoryRedDuration,
		Statistic:       &models.Statistic{Test: 120, Control: 100, Diff: 20, PctDiff: 0.2},
		Conclusion:      models.Conclusion{Label: label},
	}
}

type harness struct {
	store  *store.Store
	route  testrun.RouteParams
	client *Client
	conn   *grpc.ClientConn
}

func newHarness(t *testing.T) *harness {
	s := store.New()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	add(t, s, store.TestRuns, "doc-1", models.TestRun{
		TestRunID: "run-1", Application: "shop", TestEnvironment: "acc", TestType: "load",
		Start: start, End: start.Add(10 * time.Minute), Completed: true,
	})
	add(t, s, store.DsAdaptResults, "c1", result("c1", "p95", models.ConclusionRegression))
	add(t, s, store.DsAdaptResults, "c2", result("c2", "avg", models.ConclusionNoDifference))
	add(t, s, store.CheckResults, "k1", models.CheckResult{
		TestRunID: "run-1", DashboardUID: "d1", DashboardLabel: "Service", PanelID: 3, PanelTitle: "Latency",
		Kind: models.CheckKindRequirement, Status: models.CheckStatusComplete, MeetsRequirement: boolPtr(false),
	})

	route := testrun.RouteParams{TestRunID: "run-1", Application: "shop"}
	s.SetReady(store.TestRuns, true, route.SubscriptionParams()...)

	conn := dial(t, NewService(builder.NewBuilder(s, config.NewConfig(), nil), nil))
	return &harness{store: s, route: route, client: NewClient(conn), conn: conn}
}

func dial(t *testing.T, svc *Service) *grpc.ClientConn {
	t.Helper()
	srv := NewServer(svc)
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// publisher fills the store the way the live server does once a
// subscription is opened
type publisher struct {
	t     *testing.T
	store *store.Store

	mu    sync.Mutex
	names []string
}

func (p *publisher) Subscribe(name string, params ...interface{}) (*ddp.Subscription, error) {
	p.mu.Lock()
	p.names = append(p.names, name)
	p.mu.Unlock()

	switch name {
	case store.TestRuns:
		start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		add(p.t, p.store, store.TestRuns, "doc-1", models.TestRun{
			TestRunID: "run-1", Application: "shop", TestEnvironment: "acc", TestType: "load",
			Start: start, End: start.Add(10 * time.Minute), Completed: true,
		})
	case store.DsAdaptResults:
		add(p.t, p.store, store.DsAdaptResults, "c1", result("c1", "p95", models.ConclusionRegression))
	}
	p.store.SetReady(name, true, params...)
	return &ddp.Subscription{Name: name, Params: params}, nil
}

func (p *publisher) subscribed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.names...)
}

func (h *harness) ready() {
	h.store.SetReady(store.DsAdaptResults, true, "run-1")
	h.store.SetReady(store.CheckResults, true, "run-1")
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestComparisonViewWaitsForData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.ComparisonView(ctx, ComparisonRequest{RouteParams: h.route})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	h.ready()
	view, err := h.client.ComparisonView(ctx, ComparisonRequest{RouteParams: h.route})
	require.NoError(t, err)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, "p95", view.Rows[0].Result.MetricName)
	assert.Equal(t, 2, view.Total)
}

func TestQueriesOpenSubscriptions(t *testing.T) {
	s := store.New()
	pub := &publisher{t: t, store: s}
	subs := builder.NewSubscriptions(s, pub)
	client := NewClient(dial(t, NewService(builder.NewBuilder(s, config.NewConfig(), nil), subs)))
	route := testrun.RouteParams{TestRunID: "run-1", Application: "shop"}

	view, err := client.ComparisonView(context.Background(), ComparisonRequest{RouteParams: route})
	require.NoError(t, err)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "p95", view.Rows[0].Result.MetricName)

	names := pub.subscribed()
	assert.Contains(t, names, store.TestRuns)
	assert.Contains(t, names, store.DsAdaptResults)
	assert.Contains(t, names, store.DsCompareConfig)

	_, err = client.TestRunSummary(context.Background(), route)
	require.NoError(t, err)
	assert.Len(t, pub.subscribed(), len(names), "subscriptions are opened once")
}

func TestComparisonViewFilter(t *testing.T) {
	h := newHarness(t)
	h.ready()

	label := models.ConclusionNoDifference
	view, err := h.client.ComparisonView(context.Background(), ComparisonRequest{
		RouteParams: h.route,
		Filter:      adapt.Filter{Conclusion: &label},
	})
	require.NoError(t, err)
	require.Len(t, view.Rows, 1)
	assert.Equal(t, "avg", view.Rows[0].Result.MetricName)
}

func TestCheckViewAndSummary(t *testing.T) {
	h := newHarness(t)
	h.ready()
	ctx := context.Background()

	checkView, err := h.client.CheckView(ctx, CheckRequest{RouteParams: h.route, Options: checks.Options{FailedOnly: true}})
	require.NoError(t, err)
	assert.Equal(t, 1, checkView.Failed)
	require.Len(t, checkView.Groups, 1)

	summary, err := h.client.TestRunSummary(ctx, h.route)
	require.NoError(t, err)
	assert.Equal(t, "run-1", summary.TestRun.TestRunID)
	require.NotNil(t, summary.Checks)
	assert.Equal(t, 1, summary.Checks.Failed)
}

func TestErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.TestRunSummary(ctx, testrun.RouteParams{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	missing := testrun.RouteParams{TestRunID: "nope", Application: "shop"}
	h.store.SetReady(store.TestRuns, true, missing.SubscriptionParams()...)
	_, err = h.client.TestRunSummary(ctx, missing)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
