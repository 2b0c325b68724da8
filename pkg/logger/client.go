package logger

import (
	"strings"
	"unicode/utf8"
)

// ClientError is an uncaught exception reported by a browser
type ClientError struct {
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
	Source    string `json:"source,omitempty"`
	Line      int    `json:"line,omitempty"`
	Column    int    `json:"column,omitempty"`
	Rejection bool   `json:"unhandledRejection,omitempty"`
	URL       string `json:"url,omitempty"`
	Viewport  string `json:"viewport,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	TestRunID string `json:"testRunId,omitempty"`
}

const maxStackLength = 4000

// LogClientError writes a browser reported exception with its context
func LogClientError(e ClientError) {
	kind := "exception"
	if e.Rejection {
		kind = "unhandled rejection"
	}

	stack := truncate(e.Stack, maxStackLength)

	fields := Fields{
		"kind":      kind,
		"url":       e.URL,
		"viewport":  e.Viewport,
		"userAgent": e.UserAgent,
		"session":   e.SessionID,
	}
	if e.Source != "" {
		fields["source"] = e.Source
		fields["line"] = e.Line
		fields["column"] = e.Column
	}
	if e.TestRunID != "" {
		fields["testRunId"] = e.TestRunID
	}
	if stack != "" {
		fields["stack"] = strings.TrimSpace(stack)
	}

	WithFields(fields).Errorf("client error: %s", e.Message)
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
