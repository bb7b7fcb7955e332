// Package refcache memoizes the report reference instant, the latest
// observation timestamp across all stores.
package refcache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/patrickspencer/storewatch/internal/metrics"
)

// DefaultTTL bounds how stale a cached reference may get.
const DefaultTTL = 5 * time.Minute

// Source reports the latest observation timestamp. ok is false when no
// observations exist.
type Source interface {
	MaxObservedTimestamp(ctx context.Context) (ts time.Time, ok bool, err error)
}

type entry struct {
	value   time.Time
	fetched time.Time
}

// Cache holds one reference value. Concurrent misses share a single query.
type Cache struct {
	src Source
	ttl time.Duration

	cur   atomic.Pointer[entry]
	group singleflight.Group

	mu  sync.Mutex
	now func() time.Time
}

// New creates a cache over src. A non-positive ttl uses DefaultTTL.
func New(src Source, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{src: src, ttl: ttl, now: time.Now}
}

// SetClock replaces the clock used for expiry and the empty-data fallback.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Cache) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

// Get returns the cached reference, querying the source when the value is
// missing or older than the TTL. With no observations it returns the current
// UTC time and caches nothing.
func (c *Cache) Get(ctx context.Context) (time.Time, error) {
	now := c.clock()
	if e := c.cur.Load(); e != nil && now.Sub(e.fetched) < c.ttl {
		metrics.IncReferenceCache("hit")
		return e.value, nil
	}

	metrics.IncReferenceCache("miss")
	v, err, _ := c.group.Do("reference", func() (any, error) {
		ts, ok, err := c.src.MaxObservedTimestamp(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return c.clock().UTC(), nil
		}
		ts = ts.UTC()
		c.cur.Store(&entry{value: ts, fetched: c.clock()})
		return ts, nil
	})
	if err != nil {
		metrics.IncReferenceCache("error")
		return time.Time{}, fmt.Errorf("load reference timestamp: %w", err)
	}
	return v.(time.Time), nil
}

// Invalidate drops the cached value so the next Get queries the source.
func (c *Cache) Invalidate() {
	c.cur.Store(nil)
}
