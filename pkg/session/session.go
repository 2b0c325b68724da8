// Package session holds the per browser session view state: which test run is
// open and how its views are filtered and sorted.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perfana/perfana-dash/pkg/adapt"
	"github.com/perfana/perfana-dash/pkg/checks"
	"github.com/perfana/perfana-dash/pkg/reactive"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

// ErrUnknownSession is returned for ids that never existed or expired
var ErrUnknownSession = errors.New("unknown session")

// ViewContext is the selection state of one session
type ViewContext struct {
	ID         string              `json:"id"`
	Route      testrun.RouteParams `json:"route"`
	Filter     adapt.Filter        `json:"filter"`
	Sort       adapt.SortSpec      `json:"sort"`
	Checks     checks.Options      `json:"checks"`
	BaselineID string              `json:"baselineTestRunId,omitempty"`
}

type entry struct {
	view     *reactive.Var[ViewContext]
	lastSeen time.Time
}

// Manager owns the live sessions
type Manager struct {
	mu        sync.Mutex
	ttl       time.Duration
	sessions  map[string]*entry
	lastSweep time.Time
	now       func() time.Time
}

// NewManager returns a manager that forgets sessions idle for longer than ttl
func NewManager(ttl time.Duration) *Manager {
	return &Manager{
		ttl:      ttl,
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Create starts a session. Expired sessions are swept at most once per ttl
// as new ones come in.
func (m *Manager) Create(route testrun.RouteParams) ViewContext {
	vc := ViewContext{ID: uuid.NewString(), Route: route}

	m.mu.Lock()
	now := m.now()
	if m.ttl > 0 && now.Sub(m.lastSweep) >= m.ttl {
		m.sweep(now)
	}
	m.sessions[vc.ID] = &entry{view: reactive.NewVar(vc), lastSeen: now}
	m.mu.Unlock()
	return vc
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && m.now().Sub(e.lastSeen) > m.ttl {
		delete(m.sessions, id)
		return nil, false
	}
	e.lastSeen = m.now()
	return e, true
}

// Get returns a copy of the session's view context
func (m *Manager) Get(id string) (ViewContext, bool) {
	e, ok := m.lookup(id)
	if !ok {
		return ViewContext{}, false
	}
	return e.view.Get(), true
}

// Update applies fn to the session's view context
func (m *Manager) Update(id string, fn func(*ViewContext)) (ViewContext, error) {
	e, ok := m.lookup(id)
	if !ok {
		return ViewContext{}, ErrUnknownSession
	}
	vc := e.view.Get()
	fn(&vc)
	vc.ID = id
	e.view.Set(vc)
	return vc, nil
}

// Source returns the change counter of the session's view context
func (m *Manager) Source(id string) (reactive.Source, bool) {
	e, ok := m.lookup(id)
	if !ok {
		return nil, false
	}
	return e.view, true
}

// Sweep drops expired sessions and returns how many were removed
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ttl <= 0 {
		return 0
	}
	return m.sweep(m.now())
}

func (m *Manager) sweep(now time.Time) int {
	m.lastSweep = now
	removed := 0
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
