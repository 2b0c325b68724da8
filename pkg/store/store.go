// Package store mirrors the collections published by the Perfana server and
// tracks which subscriptions have delivered their initial data set.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/perfana/perfana-dash/pkg/ddp"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/metrics"
)

// Published collections
const (
	TestRuns               = "testRuns"
	DsAdaptResults         = "dsAdaptResults"
	CheckResults           = "checkResults"
	GrafanaDashboards      = "grafanaDashboards"
	Snapshots              = "snapshots"
	Applications           = "applications"
	DsCompareConfig        = "dsCompareConfig"
	DsMetricClassification = "dsMetricClassification"
)

type document map[string]json.RawMessage

type collection struct {
	docs    map[string]document
	version uint64
}

// Store is a concurrency safe mirror of published documents. It implements
// ddp.Handler so a DDP client can feed it directly.
type Store struct {
	mu           sync.RWMutex
	collections  map[string]*collection
	ready        map[string]bool
	readyVersion uint64

	listenMu  sync.Mutex
	nextLis   int
	listeners map[int]func(collection string)
}

var _ ddp.Handler = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		collections: make(map[string]*collection),
		ready:       make(map[string]bool),
		listeners:   make(map[int]func(string)),
	}
}

// SubscriptionKey identifies a subscription by name and parameters
func SubscriptionKey(name string, params ...interface{}) string {
	if len(params) == 0 {
		return name
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s%v", name, params)
	}
	return name + string(data)
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]document)}
		s.collections[name] = c
	}
	return c
}

// Added stores a new document
func (s *Store) Added(name, id string, fields map[string]json.RawMessage) {
	s.mu.Lock()
	c := s.coll(name)
	doc := make(document, len(fields))
	for k, v := range fields {
		doc[k] = v
	}
	c.docs[id] = doc
	c.version++
	n := len(c.docs)
	s.mu.Unlock()

	metrics.SetDocuments(name, n)
	s.notify(name)
}

// Changed merges fields into a document and drops the cleared ones
func (s *Store) Changed(name, id string, fields map[string]json.RawMessage, cleared []string) {
	s.mu.Lock()
	c := s.coll(name)
	doc, ok := c.docs[id]
	if !ok {
		doc = make(document, len(fields))
		c.docs[id] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}
	for _, k := range cleared {
		delete(doc, k)
	}
	c.version++
	s.mu.Unlock()

	s.notify(name)
}

// Removed deletes a document
func (s *Store) Removed(name, id string) {
	s.mu.Lock()
	c := s.coll(name)
	delete(c.docs, id)
	c.version++
	n := len(c.docs)
	s.mu.Unlock()

	metrics.SetDocuments(name, n)
	s.notify(name)
}

// Ready marks the subscription's initial data set as complete
func (s *Store) Ready(sub *ddp.Subscription) {
	s.SetReady(sub.Name, true, sub.Params...)
}

// NoSub clears readiness of an ended subscription
func (s *Store) NoSub(sub *ddp.Subscription, err error) {
	if err != nil {
		logger.Warnf("subscription %s ended: %v", sub.Name, err)
	}
	s.SetReady(sub.Name, false, sub.Params...)
}

// SetReady records readiness of the subscription name+params
func (s *Store) SetReady(name string, ready bool, params ...interface{}) {
	key := SubscriptionKey(name, params...)
	s.mu.Lock()
	if s.ready[key] == ready {
		s.mu.Unlock()
		return
	}
	if ready {
		s.ready[key] = true
	} else {
		delete(s.ready, key)
	}
	s.readyVersion++
	s.mu.Unlock()

	metrics.SetSubscriptionReady(name, ready)
	s.notify(name)
}

// IsReady reports whether the subscription name+params has delivered its data
func (s *Store) IsReady(name string, params ...interface{}) bool {
	key := SubscriptionKey(name, params...)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready[key]
}

// Count returns the number of documents in a collection
func (s *Store) Count(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.docs)
	}
	return 0
}

// Get returns one document encoded as JSON, with its _id
func (s *Store) Get(name, id string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, false
	}
	doc, ok := c.docs[id]
	if !ok {
		return nil, false
	}
	return encode(id, doc), true
}

// All returns every document of a collection ordered by _id
func (s *Store) All(name string) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(c.docs))
	for id := range c.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, encode(id, c.docs[id]))
	}
	return out
}

func encode(id string, doc document) json.RawMessage {
	full := make(map[string]json.RawMessage, len(doc)+1)
	for k, v := range doc {
		full[k] = v
	}
	idJSON, _ := json.Marshal(id)
	full["_id"] = idJSON
	data, _ := json.Marshal(full)
	return data
}

// Watch registers fn to be called after any change to a collection or to
// readiness; the returned func unregisters it
func (s *Store) Watch(fn func(collection string)) func() {
	s.listenMu.Lock()
	id := s.nextLis
	s.nextLis++
	s.listeners[id] = fn
	s.listenMu.Unlock()

	return func() {
		s.listenMu.Lock()
		delete(s.listeners, id)
		s.listenMu.Unlock()
	}
}

func (s *Store) notify(name string) {
	s.listenMu.Lock()
	fns := make([]func(string), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenMu.Unlock()

	for _, fn := range fns {
		fn(name)
	}
}
