// Package notify keeps the transient notifications (toasts) shown to a session.
package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/perfana/perfana-dash/pkg/metrics"
)

// Level of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Broadcast addresses every session
const Broadcast = "*"

// Notification is one toast
type Notification struct {
	ID      string    `json:"id"`
	Session string    `json:"session,omitempty"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
}

// Center stores notifications until they expire or are dismissed
type Center struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]*entry
	now   func() time.Time
}

type entry struct {
	Notification
	// sessions that dismissed a broadcast
	dismissed map[string]bool
}

func (e *entry) visibleTo(session string) bool {
	if e.Session == Broadcast {
		return session != "" && !e.dismissed[session]
	}
	return e.Session == session
}

// NewCenter returns a center whose notifications live for ttl
func NewCenter(ttl time.Duration) *Center {
	return &Center{
		ttl:   ttl,
		items: make(map[string]*entry),
		now:   time.Now,
	}
}

// Push adds a notification for session, or for everyone with Broadcast.
// A notification without a session has no reader and is not kept.
func (c *Center) Push(session string, level Level, message string) Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := Notification{
		ID:      uuid.NewString(),
		Session: session,
		Level:   level,
		Message: message,
		Created: now,
		Expires: now.Add(c.ttl),
	}
	if session != "" {
		c.items[n.ID] = &entry{Notification: n}
	}
	metrics.Notified(string(level))
	return n
}

// Error pushes the raw error message
func (c *Center) Error(session string, err error) Notification {
	return c.Push(session, LevelError, err.Error())
}

// List returns the live notifications of session, oldest first
func (c *Center) List(session string) []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purge()

	out := []Notification{}
	for _, e := range c.items {
		if e.visibleTo(session) {
			out = append(out, e.Notification)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out
}

// Dismiss removes a notification of session. A broadcast is only hidden
// from the dismissing session.
func (c *Center) Dismiss(session, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[id]
	if !ok || !e.visibleTo(session) {
		return false
	}
	if e.Session == Broadcast {
		if e.dismissed == nil {
			e.dismissed = make(map[string]bool)
		}
		e.dismissed[session] = true
		return true
	}
	delete(c.items, id)
	return true
}

func (c *Center) purge() {
	now := c.now()
	for id, e := range c.items {
		if !now.Before(e.Expires) {
			delete(c.items, id)
		}
	}
}
