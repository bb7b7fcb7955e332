package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"0 2 * * *", "@hourly", "@every 15m", "*/5 * * * 1-5"} {
		_, err := ParseSchedule(expr)
		assert.NoError(t, err, expr)
	}
	for _, expr := range []string{"", "   ", "not a cron", "0 0 2 * * *", "61 * * * *"} {
		_, err := ParseSchedule(expr)
		assert.Error(t, err, expr)
	}
}

func TestNextAfter(t *testing.T) {
	t.Parallel()

	sched, err := ParseSchedule("30 2 * * *")
	require.NoError(t, err)
	from := time.Date(2024, 1, 8, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 9, 2, 30, 0, 0, time.UTC), nextAfter(sched, from))
}

func TestAddRemoveEntries(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2024, 1, 8, 10, 15, 0, 0, time.UTC)
	s := New(func(string) {})
	s.now = func() time.Time { return fixed }

	require.NoError(t, s.Add("nightly", "0 2 * * *"))
	require.NoError(t, s.Add("hourly", "@hourly"))
	assert.Error(t, s.Add("broken", "nope"))

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "hourly", entries[0].Name)
	assert.Equal(t, time.Date(2024, 1, 8, 11, 0, 0, 0, time.UTC), entries[0].NextRun)
	assert.Equal(t, "nightly", entries[1].Name)
	assert.Equal(t, time.Date(2024, 1, 9, 2, 0, 0, 0, time.UTC), entries[1].NextRun)

	require.NoError(t, s.Add("hourly", "30 * * * *"))
	next, ok := s.NextRun("hourly")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 8, 10, 30, 0, 0, time.UTC), next)
	assert.Len(t, s.Entries(), 2)

	s.Remove("nightly")
	s.Remove("unknown")
	_, ok = s.NextRun("nightly")
	assert.False(t, ok)
}

func TestReplace(t *testing.T) {
	t.Parallel()

	clock := time.Date(2024, 1, 8, 10, 15, 0, 0, time.UTC)
	s := New(func(string) {})
	s.now = func() time.Time { return clock }

	require.NoError(t, s.Replace(map[string]string{"a": "@hourly", "b": "0 2 * * *"}))
	before, _ := s.NextRun("a")

	clock = clock.Add(3 * time.Hour)
	require.NoError(t, s.Replace(map[string]string{"a": "@hourly", "c": "@daily"}))

	after, ok := s.NextRun("a")
	require.True(t, ok)
	assert.Equal(t, before, after, "unchanged schedule keeps its next run")
	_, ok = s.NextRun("b")
	assert.False(t, ok)
	_, ok = s.NextRun("c")
	assert.True(t, ok)

	assert.Error(t, s.Replace(map[string]string{"a": "bad"}))
	assert.Len(t, s.Entries(), 2)
}

func TestSchedulerFires(t *testing.T) {
	t.Parallel()

	fired := make(chan string, 4)
	s := New(func(name string) { fired <- name })
	require.NoError(t, s.Add("fast", "@every 1s"))
	s.Start()
	s.Start()
	defer s.Stop()

	select {
	case name := <-fired:
		assert.Equal(t, "fast", name)
	case <-time.After(5 * time.Second):
		t.Fatal("schedule did not fire")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(func(string) {})
	s.Start()
	s.Stop()
	s.Stop()
}
