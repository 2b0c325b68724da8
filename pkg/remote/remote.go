// Package remote is a typed client for the methods the Perfana server exposes
// to the dashboard.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/perfana/perfana-dash/pkg/ddp"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/metrics"
)

// Server methods
const (
	MethodGetDsCompareStatistics               = "getDsCompareStatistics"
	MethodUpdateDsCompareConfig                = "updateDsCompareConfig"
	MethodUpdateMetricClassification           = "updateMetricClassification"
	MethodGetMetricClassification              = "getMetricClassification"
	MethodDeleteDsMetricComparisonIgnores      = "deleteDsMetricComparisonIgnores"
	MethodGetDsTrackedRegressions              = "getDsTrackedRegressions"
	MethodGetDsMetrics                         = "getDsMetrics"
	MethodProcessPendingDsCompareConfigChanges = "processPendingDsCompareConfigChanges"
	MethodResolveRegression                    = "resolveRegression"
	MethodLogin                                = "login"
)

// Caller issues one remote method call. *ddp.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
}

// CallerFunc adapts a function to Caller
type CallerFunc func(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)

// Call implements Caller
func (f CallerFunc) Call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	return f(ctx, method, params...)
}

// Error is an application level error raised by a server method
type Error struct {
	Method  string          `json:"method"`
	Code    string          `json:"error"`
	Reason  string          `json:"reason,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Reason
	}
	if msg == "" {
		msg = "error " + e.Code
	}
	return fmt.Sprintf("%s: %s", e.Method, msg)
}

// Client wraps a Caller with typed methods
type Client struct {
	caller  Caller
	timeout time.Duration
}

// New returns a client. A zero timeout lets calls wait until the server
// answers or the connection ends.
func New(caller Caller, timeout time.Duration) *Client {
	return &Client{caller: caller, timeout: timeout}
}

func (c *Client) call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := c.caller.Call(ctx, method, params...)
	if err != nil {
		var ddpErr *ddp.Error
		if errors.As(err, &ddpErr) {
			metrics.ObserveRemoteCall(method, time.Since(start), "application")
			return &Error{
				Method:  method,
				Code:    ddpErr.CodeString(),
				Reason:  ddpErr.Reason,
				Message: ddpErr.Message,
				Details: ddpErr.Details,
			}
		}
		metrics.ObserveRemoteCall(method, time.Since(start), "transport")
		return fmt.Errorf("%s failed: %w", method, err)
	}
	metrics.ObserveRemoteCall(method, time.Since(start), "")
	logger.Debugf("remote %s answered in %s", method, time.Since(start))

	if out == nil || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
