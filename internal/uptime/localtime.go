package uptime

import (
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LocalInstant resolves the wall clock time clock on the calendar date
// year-month-day in loc to an absolute instant.
//
// Ambiguous wall times (a clock set back) resolve to the earlier instant, which
// is the offset in force before the transition. Wall times that do not exist
// (a clock set forward) resolve to the first valid instant after the gap.
// clock may exceed 24h to address the following days.
func LocalInstant(year int, month time.Month, day int, clock TimeOfDay, loc *time.Location) time.Time {
	wall := time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Add(time.Duration(clock))

	before := offsetAt(wall.Add(-24*time.Hour), loc)
	after := offsetAt(wall.Add(24*time.Hour), loc)

	var best time.Time
	found := false
	for _, off := range []int{before, after} {
		t := wall.Add(-time.Duration(off) * time.Second).In(loc)
		if _, got := t.Zone(); got != off {
			continue
		}
		if !found || t.Before(best) {
			best, found = t, true
		}
	}
	if found {
		return best
	}

	// Inside a gap: the pre-transition offset lands past the transition, and the
	// zone in force there starts at the first valid instant.
	t := wall.Add(-time.Duration(before) * time.Second).In(loc)
	if start, _ := t.ZoneBounds(); !start.IsZero() {
		return start.In(loc)
	}
	return t
}

func offsetAt(instant time.Time, loc *time.Location) int {
	_, off := instant.In(loc).Zone()
	return off
}

// LocationCache loads IANA timezones once and keeps the most recently used.
type LocationCache struct {
	cache    *lru.Cache[string, *time.Location]
	fallback string
}

// NewLocationCache creates a cache holding up to size locations. Empty names
// resolve to fallback.
func NewLocationCache(size int, fallback string) (*LocationCache, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New[string, *time.Location](size)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(fallback) == "" {
		fallback = DefaultTimezone
	}
	if _, err := time.LoadLocation(fallback); err != nil {
		return nil, fmt.Errorf("load default timezone %q: %w", fallback, err)
	}
	return &LocationCache{cache: c, fallback: fallback}, nil
}

// Fallback returns the timezone used for stores without one.
func (c *LocationCache) Fallback() string {
	return c.fallback
}

// Load returns the location for name.
func (c *LocationCache) Load(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.fallback
	}
	if loc, ok := c.cache.Get(name); ok {
		return loc, nil
	}
	if name == "Local" {
		return nil, fmt.Errorf("timezone %q is not an IANA identifier", name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	c.cache.Add(name, loc)
	return loc, nil
}
