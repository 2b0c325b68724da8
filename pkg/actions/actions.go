// Package actions dispatches user mutations to the server without blocking the
// caller. Failures become notifications; the affected scope stays read-only
// until its round trip completes.
package actions

import (
	"context"
	"errors"
	"sync"

	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/metrics"
	"github.com/perfana/perfana-dash/pkg/notify"
	"github.com/perfana/perfana-dash/pkg/remote"
)

// Action performs one remote mutation
type Action func(ctx context.Context) error

// Dispatcher runs actions in the background
type Dispatcher struct {
	ctx      context.Context
	notifier *notify.Center

	mu      sync.Mutex
	pending map[string]int
	total   int
	version uint64
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher whose actions run under ctx
func NewDispatcher(ctx context.Context, notifier *notify.Center) *Dispatcher {
	return &Dispatcher{
		ctx:      ctx,
		notifier: notifier,
		pending:  make(map[string]int),
	}
}

// Dispatch starts action for session. scope names what the action mutates,
// usually a test run id; ReadOnly(scope) is true until it returns.
func (d *Dispatcher) Dispatch(session, scope, name string, action Action) {
	d.begin(scope)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.end(scope)

		err := action(d.ctx)
		if err == nil {
			logger.WithFields(logger.Fields{"action": name, "scope": scope}).Debug("action completed")
			return
		}

		fields := logger.Fields{"action": name, "scope": scope, "session": session}
		var remoteErr *remote.Error
		if errors.As(err, &remoteErr) {
			fields["code"] = remoteErr.Code
			logger.WithFields(fields).Warnf("server rejected action: %v", err)
		} else {
			logger.WithFields(fields).Errorf("action failed: %v", err)
		}
		if d.notifier != nil {
			d.notifier.Error(session, err)
		}
	}()
}

// ReadOnly reports whether a mutation of scope is in flight
func (d *Dispatcher) ReadOnly(scope string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending[scope] > 0
}

// Pending returns the number of in-flight actions
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.total
}

// Version changes whenever an action starts or ends, so views that show
// read-only state can depend on the dispatcher
func (d *Dispatcher) Version() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.version
}

// Wait blocks until every dispatched action has returned
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) begin(scope string) {
	d.mu.Lock()
	d.pending[scope]++
	d.total++
	d.version++
	n := d.total
	d.mu.Unlock()
	metrics.SetPending(n)
}

func (d *Dispatcher) end(scope string) {
	d.mu.Lock()
	d.pending[scope]--
	if d.pending[scope] <= 0 {
		delete(d.pending, scope)
	}
	d.total--
	d.version++
	n := d.total
	d.mu.Unlock()
	metrics.SetPending(n)
}
