package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel("info")
	})
	return &buf
}

func TestSetLevel(t *testing.T) {
	capture(t)

	SetLevel("debug")
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	SetLevel("error")
	assert.Equal(t, logrus.ErrorLevel, log.GetLevel())
	SetLevel("bogus")
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
}

func TestLevelFilters(t *testing.T) {
	buf := capture(t)

	SetLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)

	assert.NotContains(t, buf.String(), "hidden 1")
	assert.Contains(t, buf.String(), "shown 2")
}

func TestLogClientError(t *testing.T) {
	buf := capture(t)

	LogClientError(ClientError{
		Message:   "TypeError: x is undefined",
		Stack:     strings.Repeat("a", maxStackLength+10),
		URL:       "/test-run/shop-1",
		Viewport:  "1280x800",
		UserAgent: "Firefox",
		SessionID: "s-1",
		Rejection: true,
	})

	out := buf.String()
	assert.Contains(t, out, "client error: TypeError: x is undefined")
	assert.Contains(t, out, `kind="unhandled rejection"`)
	assert.Contains(t, out, "viewport=1280x800")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, strings.Repeat("a", maxStackLength+1))
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...", truncate("abcd", 2))

	cut := truncate("éé", 3)
	assert.Equal(t, "é...", cut)
	assert.True(t, utf8.ValidString(cut))
}
