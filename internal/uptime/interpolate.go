package uptime

import (
	"sort"
	"time"
)

// DefaultStatus is assumed for any span with no earlier observation.
const DefaultStatus = StatusActive

// Interpolate rebuilds a gapless status timeline over [start, end) from sparse
// observations. The returned intervals are sorted, contiguous, never overlap
// and exactly cover the range.
//
// Observations before start only seed the initial status; observations at or
// after end are ignored. When several observations share an instant the last
// one in input order wins.
func Interpolate(observations []Observation, start, end time.Time) []Interval {
	if !start.Before(end) {
		return nil
	}

	sorted := make([]Observation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	current := DefaultStatus
	var points []Observation
	for _, o := range sorted {
		switch {
		case o.Timestamp.Before(start):
			current = o.Status
		case o.Timestamp.Before(end):
			if n := len(points); n > 0 && points[n-1].Timestamp.Equal(o.Timestamp) {
				points[n-1] = o
				continue
			}
			points = append(points, o)
		}
	}

	out := make([]Interval, 0, len(points)+1)
	cursor := start
	for _, p := range points {
		out = appendInterval(out, cursor, p.Timestamp, current)
		cursor = p.Timestamp
		current = p.Status
	}
	return appendInterval(out, cursor, end, current)
}

// appendInterval adds [from, to) to out, merging with the previous interval
// when the status is unchanged. Empty spans are dropped.
func appendInterval(out []Interval, from, to time.Time, status Status) []Interval {
	if !from.Before(to) {
		return out
	}
	if n := len(out); n > 0 && out[n-1].Status == status && out[n-1].End.Equal(from) {
		out[n-1].End = to
		return out
	}
	return append(out, Interval{Start: from, End: to, Status: status})
}
