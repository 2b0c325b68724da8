package builder

import (
	"sync"

	"github.com/perfana/perfana-dash/pkg/ddp"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/store"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

// Subscriber opens publications whose documents land in the store
type Subscriber interface {
	Subscribe(name string, params ...interface{}) (*ddp.Subscription, error)
}

// Subscriptions opens the publications views are built from, each once per
// process. A subscription that ends is opened again on the next Prepare.
type Subscriptions struct {
	store *store.Store
	sub   Subscriber

	mu     sync.Mutex
	opened map[string]bool
}

// NewSubscriptions creates a subscription tracker. A nil subscriber makes
// Prepare a no-op, for stores filled by other means.
func NewSubscriptions(s *store.Store, sub Subscriber) *Subscriptions {
	return &Subscriptions{store: s, sub: sub, opened: make(map[string]bool)}
}

// Prepare opens the subscriptions of a test run page and, once the test run
// resolves, those of its workload
func (t *Subscriptions) Prepare(route testrun.RouteParams) {
	if t == nil || t.sub == nil {
		return
	}
	t.Ensure(RouteSubscriptions(route))
	if run, ok := testrun.Resolve(t.store, route); ok {
		t.Ensure(WorkloadSubscriptions(run))
	}
}

// Ensure opens the subscriptions not opened yet. Failures are logged and
// retried on the next call.
func (t *Subscriptions) Ensure(subs []Subscription) {
	if t == nil || t.sub == nil {
		return
	}
	for _, sub := range subs {
		key := store.SubscriptionKey(sub.Name, sub.Params...)

		t.mu.Lock()
		if t.opened[key] {
			t.mu.Unlock()
			continue
		}
		t.opened[key] = true
		t.mu.Unlock()

		opened, err := t.sub.Subscribe(sub.Name, sub.Params...)
		if err != nil {
			logger.Warnf("failed to subscribe to %s: %v", sub.Name, err)
			t.forget(key)
			continue
		}
		if done := opened.Done(); done != nil {
			go func(key string) {
				<-done
				t.forget(key)
			}(key)
		}
	}
}

func (t *Subscriptions) forget(key string) {
	t.mu.Lock()
	delete(t.opened, key)
	t.mu.Unlock()
}
