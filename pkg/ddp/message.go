// Package ddp is a client for the Meteor distributed data protocol spoken by the
// Perfana server: remote method calls plus published collection subscriptions.
package ddp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message kinds
const (
	MsgConnect   = "connect"
	MsgConnected = "connected"
	MsgFailed    = "failed"
	MsgPing      = "ping"
	MsgPong      = "pong"
	MsgMethod    = "method"
	MsgResult    = "result"
	MsgUpdated   = "updated"
	MsgSub       = "sub"
	MsgUnsub     = "unsub"
	MsgReady     = "ready"
	MsgNoSub     = "nosub"
	MsgAdded     = "added"
	MsgChanged   = "changed"
	MsgRemoved   = "removed"
	MsgError     = "error"
)

// Version is the protocol version requested on connect
const Version = "1"

var supportedVersions = []string{"1", "pre2", "pre1"}

// Message is a DDP frame; only the fields of its kind are set
type Message struct {
	Msg        string                     `json:"msg"`
	ID         string                     `json:"id,omitempty"`
	Session    string                     `json:"session,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Support    []string                   `json:"support,omitempty"`
	Method     string                     `json:"method,omitempty"`
	Name       string                     `json:"name,omitempty"`
	Params     []interface{}              `json:"params,omitempty"`
	Result     json.RawMessage            `json:"result,omitempty"`
	Error      *Error                     `json:"error,omitempty"`
	Collection string                     `json:"collection,omitempty"`
	Fields     map[string]json.RawMessage `json:"fields,omitempty"`
	Cleared    []string                   `json:"cleared,omitempty"`
	Subs       []string                   `json:"subs,omitempty"`
	Methods    []string                   `json:"methods,omitempty"`
	Reason     string                     `json:"reason,omitempty"`
}

// Error is an error raised by a server method or publication
type Error struct {
	Code      json.RawMessage `json:"error,omitempty"` // string or number
	Reason    string          `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
	ErrorType string          `json:"errorType,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// CodeString returns the error code without JSON quoting
func (e *Error) CodeString() string {
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(e.Code))
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Reason != "":
		return fmt.Sprintf("%s [%s]", e.Reason, e.CodeString())
	default:
		return fmt.Sprintf("server error [%s]", e.CodeString())
	}
}
