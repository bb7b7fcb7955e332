package refcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls atomic.Int32
	ts    time.Time
	ok    bool
	err   error
	delay time.Duration
}

func (f *fakeSource) MaxObservedTimestamp(context.Context) (time.Time, bool, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.ts, f.ok, f.err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestGetCachesWithinTTL(t *testing.T) {
	t.Parallel()

	ref := time.Date(2023, 1, 25, 18, 13, 22, 0, time.UTC)
	src := &fakeSource{ts: ref, ok: true}
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(src, time.Minute)
	c.SetClock(clk.Now)

	for i := 0; i < 3; i++ {
		got, err := c.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ref, got)
	}
	assert.EqualValues(t, 1, src.calls.Load())

	clk.Advance(2 * time.Minute)
	_, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestInvalidateForcesReload(t *testing.T) {
	t.Parallel()

	src := &fakeSource{ts: time.Unix(100, 0), ok: true}
	c := New(src, time.Hour)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	c.Invalidate()
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestEmptySourceFallsBackToNowUncached(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{}
	c := New(src, time.Hour)
	c.SetClock(func() time.Time { return now })

	got, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now, got)

	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestSourceErrorIsWrapped(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	c := New(&fakeSource{err: boom}, 0)

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestConcurrentMissesShareQuery(t *testing.T) {
	t.Parallel()

	src := &fakeSource{ts: time.Unix(500, 0), ok: true, delay: 50 * time.Millisecond}
	c := New(src, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Get(context.Background())
			assert.NoError(t, err)
			assert.True(t, got.Equal(time.Unix(500, 0)))
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, src.calls.Load(), int32(2))
}
