package uptime

import "time"

// Totals is the time a store spent up and down inside its business windows.
type Totals struct {
	Uptime   time.Duration
	Downtime time.Duration
}

// Aggregate intersects status intervals with business windows. Both inputs
// must be sorted and individually non-overlapping, as produced by Interpolate
// and BusinessWindows. Time outside every window is not counted.
func Aggregate(intervals []Interval, windows []Window) Totals {
	var t Totals
	i, j := 0, 0
	for i < len(intervals) && j < len(windows) {
		iv, w := intervals[i], windows[j]

		lo := iv.Start
		if w.Start.After(lo) {
			lo = w.Start
		}
		hi := iv.End
		if w.End.Before(hi) {
			hi = w.End
		}
		if lo.Before(hi) {
			switch iv.Status {
			case StatusActive:
				t.Uptime += hi.Sub(lo)
			case StatusInactive:
				t.Downtime += hi.Sub(lo)
			}
		}

		// Advance whichever span finishes first; the other may still overlap
		// the next one.
		if iv.End.Before(w.End) {
			i++
		} else {
			j++
		}
	}
	return t
}
