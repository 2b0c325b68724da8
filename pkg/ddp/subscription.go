package ddp

import (
	"context"
	"sync"
)

// Subscription is one active publication
type Subscription struct {
	ID     string
	Name   string
	Params []interface{}

	client *Client
	ready  chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	isReady bool
	stopped bool
	err     error
}

// Ready is closed once the initial data set has been delivered
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed once the subscription has ended, by Stop, nosub or a lost
// connection
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// IsReady reports whether the initial data set has been delivered
func (s *Subscription) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isReady
}

// Err returns why the server ended the subscription, if it did
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the subscription is ready, fails or ctx ends
func (s *Subscription) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop unsubscribes
func (s *Subscription) Stop() error {
	return s.client.unsubscribe(s)
}

func (s *Subscription) markReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isReady || s.stopped {
		return
	}
	s.isReady = true
	close(s.ready)
}

// stop ends the subscription; a subscription that never became ready
// unblocks its waiters with err
func (s *Subscription) stop(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
	if !s.isReady {
		s.err = err
		close(s.ready)
	}
}
