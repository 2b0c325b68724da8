package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfana/perfana-dash/pkg/notify"
	"github.com/perfana/perfana-dash/pkg/remote"
)

func TestDispatchSuccess(t *testing.T) {
	center := notify.NewCenter(time.Minute)
	d := NewDispatcher(context.Background(), center)
	release := make(chan struct{})

	d.Dispatch("s1", "run-1", "updateDsCompareConfig", func(ctx context.Context) error {
		<-release
		return nil
	})

	assert.True(t, d.ReadOnly("run-1"))
	assert.False(t, d.ReadOnly("run-2"))
	assert.Equal(t, 1, d.Pending())
	started := d.Version()

	close(release)
	d.Wait()
	assert.Greater(t, d.Version(), started)

	assert.False(t, d.ReadOnly("run-1"))
	assert.Equal(t, 0, d.Pending())
	assert.Empty(t, center.List("s1"))
}

func TestDispatchFailureNotifies(t *testing.T) {
	center := notify.NewCenter(time.Minute)
	d := NewDispatcher(context.Background(), center)

	d.Dispatch("s1", "run-1", "updateMetricClassification", func(ctx context.Context) error {
		return &remote.Error{Method: "updateMetricClassification", Code: "not-authorized", Reason: "Not allowed"}
	})
	d.Dispatch("s1", "run-1", "resolveRegression", func(ctx context.Context) error {
		return errors.New("resolveRegression failed: ddp: connection closed")
	})
	d.Wait()

	list := center.List("s1")
	require.Len(t, list, 2)
	messages := []string{list[0].Message, list[1].Message}
	assert.ElementsMatch(t, []string{
		"updateMetricClassification: Not allowed",
		"resolveRegression failed: ddp: connection closed",
	}, messages)
	assert.Equal(t, notify.LevelError, list[0].Level)
	assert.False(t, d.ReadOnly("run-1"))
}

func TestConcurrentActionsSameScope(t *testing.T) {
	d := NewDispatcher(context.Background(), nil)
	first := make(chan struct{})
	second := make(chan struct{})

	d.Dispatch("s1", "run-1", "a", func(ctx context.Context) error { <-first; return nil })
	d.Dispatch("s1", "run-1", "b", func(ctx context.Context) error { <-second; return nil })

	close(first)
	require.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, time.Millisecond)
	assert.True(t, d.ReadOnly("run-1"))

	close(second)
	d.Wait()
	assert.False(t, d.ReadOnly("run-1"))
}
