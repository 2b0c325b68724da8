package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perfana/perfana-dash/pkg/builder"
	"github.com/perfana/perfana-dash/pkg/logger"
	"github.com/perfana/perfana-dash/pkg/metrics"
	"github.com/perfana/perfana-dash/pkg/notify"
	"github.com/perfana/perfana-dash/pkg/reactive"
	"github.com/perfana/perfana-dash/pkg/session"
	"github.com/perfana/perfana-dash/pkg/store"
	"github.com/perfana/perfana-dash/pkg/testrun"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Push message types
const (
	PushView          = "view"
	PushNotifications = "notifications"
)

// PushMessage is one frame sent to a websocket client
type PushMessage struct {
	Type          string                  `json:"type"`
	Session       string                  `json:"session"`
	Ready         bool                    `json:"ready"`
	View          *builder.ComparisonView `json:"view,omitempty"`
	Notifications []notify.Notification   `json:"notifications,omitempty"`
}

// handleAdaptSocket pushes the session's comparison view whenever the data
// or the session's filters change, and its notifications as they arrive
func (s *Server) handleAdaptSocket(w http.ResponseWriter, r *http.Request) {
	route := routeOf(r)

	vc, ok := s.sessions.Get(sessionID(r))
	if ok {
		vc, _ = s.sessions.Update(vc.ID, func(vc *session.ViewContext) { vc.Route = route })
	} else {
		vc = s.sessions.Create(route)
	}
	source, _ := s.sessions.Source(vc.ID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	metrics.WebsocketConnected(1)
	defer metrics.WebsocketConnected(-1)

	changed := make(chan struct{}, 1)
	unwatch := s.store.Watch(func(string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unwatch()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	id := vc.ID
	view := reactive.NewComputed(func() PushMessage {
		current, _ := s.sessions.Get(id)
		msg := PushMessage{Type: PushView, Session: id}
		msg.View, msg.Ready = s.views.Comparison(current.Route, current.Filter, current.Sort)
		return msg
	}, reactive.Versions{
		s.store.Source(store.TestRuns),
		s.store.Source(store.DsAdaptResults),
		s.store.Source(store.DsCompareConfig),
		s.store.Source(store.DsMetricClassification),
		source,
		s.actions,
	})

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	var sentVersion uint64
	var lastNotes []byte
	resolved := false
	for {
		if !resolved {
			s.prepare(route)
			_, resolved = testrun.Resolve(s.store, route)
		}

		if v := view.Version(); v != sentVersion {
			if err := s.send(conn, view.Get()); err != nil {
				logger.Debugf("websocket closed: %v", err)
				return
			}
			sentVersion = v
		}

		if notes := s.notes.List(id); len(notes) > 0 || lastNotes != nil {
			encoded, _ := json.Marshal(notes)
			if !bytes.Equal(encoded, lastNotes) {
				if err := s.send(conn, PushMessage{Type: PushNotifications, Session: id, Ready: true, Notifications: notes}); err != nil {
					logger.Debugf("websocket closed: %v", err)
					return
				}
				lastNotes = encoded
			}
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-changed:
		case <-ticker.C:
		}
	}
}

func (s *Server) send(conn *websocket.Conn, msg PushMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
