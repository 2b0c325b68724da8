package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type run struct {
	ID        string `json:"_id"`
	TestRunID string `json:"testRunId"`
	Completed bool   `json:"completed"`
}

func fields(t *testing.T, v map[string]interface{}) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(v))
	for k, val := range v {
		data, err := json.Marshal(val)
		require.NoError(t, err)
		out[k] = data
	}
	return out
}

func TestAddedChangedRemoved(t *testing.T) {
	s := New()
	s.Added(TestRuns, "a", fields(t, map[string]interface{}{"testRunId": "run-1", "completed": false}))

	doc, ok := GetAs[run](s, TestRuns, "a")
	require.True(t, ok)
	assert.Equal(t, "a", doc.ID)
	assert.Equal(t, "run-1", doc.TestRunID)
	assert.False(t, doc.Completed)

	s.Changed(TestRuns, "a", fields(t, map[string]interface{}{"completed": true}), nil)
	doc, _ = GetAs[run](s, TestRuns, "a")
	assert.True(t, doc.Completed)
	assert.Equal(t, "run-1", doc.TestRunID)

	s.Changed(TestRuns, "a", nil, []string{"testRunId"})
	doc, _ = GetAs[run](s, TestRuns, "a")
	assert.Empty(t, doc.TestRunID)

	s.Removed(TestRuns, "a")
	_, ok = s.Get(TestRuns, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Count(TestRuns))
}

func TestFind(t *testing.T) {
	s := New()
	s.Added(TestRuns, "b", fields(t, map[string]interface{}{"testRunId": "run-2", "completed": true}))
	s.Added(TestRuns, "a", fields(t, map[string]interface{}{"testRunId": "run-1", "completed": true}))
	s.Added(TestRuns, "c", fields(t, map[string]interface{}{"testRunId": "run-3", "completed": false}))
	s.Added(TestRuns, "bad", map[string]json.RawMessage{"completed": json.RawMessage(`"yes"`)})

	done := Find(s, TestRuns, func(r *run) bool { return r.Completed })
	require.Len(t, done, 2)
	assert.Equal(t, "run-1", done[0].TestRunID)
	assert.Equal(t, "run-2", done[1].TestRunID)

	all := Find[run](s, TestRuns, nil)
	assert.Len(t, all, 3)

	_, ok := FindOne(s, TestRuns, func(r *run) bool { return r.TestRunID == "missing" })
	assert.False(t, ok)
}

func TestReadinessKeyedByParams(t *testing.T) {
	s := New()
	params := map[string]interface{}{"application": "shop"}

	assert.False(t, s.IsReady(TestRuns, params))

	s.SetReady(TestRuns, true, params)
	assert.True(t, s.IsReady(TestRuns, params))
	assert.False(t, s.IsReady(TestRuns))
	assert.False(t, s.IsReady(TestRuns, map[string]interface{}{"application": "other"}))

	s.SetReady(TestRuns, false, params)
	assert.False(t, s.IsReady(TestRuns, params))
}

func TestSourceVersion(t *testing.T) {
	s := New()
	src := s.Source(DsAdaptResults)
	v0 := src.Version()

	s.Added(TestRuns, "a", nil)
	assert.Equal(t, v0, src.Version())

	s.Added(DsAdaptResults, "x", nil)
	v1 := src.Version()
	assert.Greater(t, v1, v0)

	s.SetReady(DsAdaptResults, true, "run-1")
	assert.Greater(t, src.Version(), v1)
}

func TestWatch(t *testing.T) {
	s := New()
	var seen []string
	cancel := s.Watch(func(c string) { seen = append(seen, c) })

	s.Added(Snapshots, "a", nil)
	s.SetReady(Snapshots, true)
	cancel()
	s.Removed(Snapshots, "a")

	assert.Equal(t, []string{Snapshots, Snapshots}, seen)
}
