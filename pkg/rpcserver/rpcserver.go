// Package rpcserver exposes the dashboard views over gRPC. Requests and
// responses are google.protobuf.Struct values carrying the same JSON documents
// the HTTP API serves.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/checks"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/store"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "perfana.dashboard.v1.DashboardQuery"

// DashboardQueryServer is the server API of the query service
type DashboardQueryServer interface {
	ComparisonView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CheckView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	TestRunSummary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(srv DashboardQueryServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DashboardQueryServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(DashboardQueryServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes the query service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DashboardQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ComparisonView", Handler: unaryHandler("ComparisonView", DashboardQueryServer.ComparisonView)},
		{MethodName: "CheckView", Handler: unaryHandler("CheckView", DashboardQueryServer.CheckView)},
		{MethodName: "TestRunSummary", Handler: unaryHandler("TestRunSummary", DashboardQueryServer.TestRunSummary)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "perfana/dashboard/v1/dashboard.proto",
}

// Client calls the query service
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req interface{}, out interface{}) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, resp); err != nil {
		return err
	}
	return fromStruct(resp, out)
}

// ComparisonView fetches the comparison table of a test run
func (c *Client) ComparisonView(ctx context.Context, req ComparisonRequest) (*builder.ComparisonView, error) {
	var out builder.ComparisonView
	if err := c.invoke(ctx, "ComparisonView", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckView fetches the checks of a test run
func (c *Client) CheckView(ctx context.Context, req CheckRequest) (*builder.CheckView, error) {
	var out builder.CheckView
	if err := c.invoke(ctx, "CheckView", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestRunSummary fetches the header of a test run
func (c *Client) TestRunSummary(ctx context.Context, route testrun.RouteParams) (*builder.Summary, error) {
	var out builder.Summary
	if err := c.invoke(ctx, "TestRunSummary", route, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ComparisonRequest selects and arranges a comparison table
type ComparisonRequest struct {
	testrun.RouteParams
	Filter adapt.Filter   `json:"filter"`
	Sort   adapt.SortSpec `json:"sort"`
}

// CheckRequest selects a checks view
type CheckRequest struct {
	testrun.RouteParams
	Options checks.Options `json:"options"`
}

// Service answers queries from the local store. Each query opens the
// subscriptions of its test run, so a run no other client has looked at
// answers Unavailable until its data has arrived.
type Service struct {
	views *builder.Builder
	subs  *builder.Subscriptions
}

// NewService creates the query service. subs may be nil when the store is
// filled elsewhere.
func NewService(views *builder.Builder, subs *builder.Subscriptions) *Service {
	return &Service{views: views, subs: subs}
}

// ComparisonView implements DashboardQueryServer
func (s *Service) ComparisonView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var q ComparisonRequest
	if err := fromStruct(req, &q); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	s.prepare(q.RouteParams)
	view, ok := s.views.Comparison(q.RouteParams, q.Filter, q.Sort)
	if !ok {
		return nil, s.unavailable(q.RouteParams)
	}
	return toStruct(view)
}

// CheckView implements DashboardQueryServer
func (s *Service) CheckView(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var q CheckRequest
	if err := fromStruct(req, &q); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	s.prepare(q.RouteParams)
	view, ok := s.views.Checks(q.RouteParams, q.Options)
	if !ok {
		return nil, s.unavailable(q.RouteParams)
	}
	return toStruct(view)
}

// TestRunSummary implements DashboardQueryServer
func (s *Service) TestRunSummary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var route testrun.RouteParams
	if err := fromStruct(req, &route); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	s.prepare(route)
	summary, ok := s.views.Summary(route)
	if !ok {
		return nil, s.unavailable(route)
	}
	return toStruct(summary)
}

func (s *Service) prepare(route testrun.RouteParams) {
	if route.TestRunID != "" {
		s.subs.Prepare(route)
	}
}

func (s *Service) unavailable(route testrun.RouteParams) error {
	if route.TestRunID == "" {
		return status.Error(codes.InvalidArgument, "testRunId is required")
	}
	st := s.views.Store()
	if st.IsReady(store.TestRuns, route.SubscriptionParams()...) {
		if _, ok := testrun.Resolve(st, route); !ok {
			return status.Errorf(codes.NotFound, "test run %s not found", route.TestRunID)
		}
	}
	return status.Error(codes.Unavailable, "data not ready")
}

func toStruct(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode: %v", err)
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v interface{}) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Server hosts the query service and the standard health service
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer registers service on a new gRPC server
func NewServer(service DashboardQueryServer) *Server {
	s := &Server{
		grpc:   grpc.NewServer(grpc.MaxRecvMsgSize(16*1024*1024), grpc.UnaryInterceptor(logCalls)),
		health: health.NewServer(),
	}
	s.grpc.RegisterService(&ServiceDesc, service)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve accepts connections on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	logger.Infof("gRPC server ready on %s", lis.Addr())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC server error: %w", err)
	}
	return nil
}

// ListenAndServe listens on the TCP port and serves
func (s *Server) ListenAndServe(port int) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Stop marks the service not serving and drains in-flight calls
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	entry := logger.WithFields(logger.Fields{
		"method":   info.FullMethod,
		"duration": time.Since(start).String(),
		"code":     status.Code(err).String(),
	})
	if err != nil && status.Code(err) != codes.Unavailable {
		entry.Warnf("gRPC call failed: %v", err)
	} else {
		entry.Debug("gRPC call")
	}
	return resp, err
}
