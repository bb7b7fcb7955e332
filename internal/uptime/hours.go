package uptime

import (
	"fmt"
	"time"
)

// DefaultTimezone applies to stores without a timezone row.
const DefaultTimezone = "America/Chicago"

// Schedule is a store's weekly business-hours schedule. A schedule with no
// rules is open around the clock.
type Schedule struct {
	days [7]*Rule
	n    int
}

// NewSchedule validates rules and indexes them by weekday. A later rule for the
// same weekday replaces an earlier one.
func NewSchedule(rules []Rule) (Schedule, error) {
	var s Schedule
	for i := range rules {
		r := rules[i]
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return Schedule{}, &ConfigError{
				StoreID: r.StoreID,
				Field:   "business hours",
				Err:     fmt.Errorf("day_of_week %d out of range [0, 6]", r.DayOfWeek),
			}
		}
		if r.Start < 0 || r.End < 0 || r.Start > TimeOfDay(24*time.Hour) || r.End > TimeOfDay(24*time.Hour) {
			return Schedule{}, &ConfigError{
				StoreID: r.StoreID,
				Field:   "business hours",
				Err:     fmt.Errorf("day %d: times %s-%s out of range", r.DayOfWeek, r.Start, r.End),
			}
		}
		if s.days[r.DayOfWeek] == nil {
			s.n++
		}
		s.days[r.DayOfWeek] = &r
	}
	return s, nil
}

// AlwaysOpen reports whether the schedule has no rules.
func (s Schedule) AlwaysOpen() bool {
	return s.n == 0
}

// Rules returns the rules in weekday order.
func (s Schedule) Rules() []Rule {
	out := make([]Rule, 0, s.n)
	for _, r := range s.days {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// hours returns the local opening span for a weekday. An end before the start
// runs into the next day.
func (s Schedule) hours(weekday int) (TimeOfDay, TimeOfDay, bool) {
	if s.AlwaysOpen() {
		return 0, TimeOfDay(24 * time.Hour), true
	}
	r := s.days[weekday]
	if r == nil {
		return 0, 0, false
	}
	end := r.End
	if end < r.Start {
		end += TimeOfDay(24 * time.Hour)
	}
	return r.Start, end, true
}

// BusinessWindows returns the absolute open windows of a store within
// [start, end). Days are taken in loc; each day's window is clipped to the
// range. The result is sorted and windows never overlap.
func BusinessWindows(s Schedule, loc *time.Location, start, end time.Time) []Window {
	if !start.Before(end) {
		return nil
	}

	// Start one local day early so an overnight window from the previous
	// evening is seen.
	fy, fm, fd := start.In(loc).Date()
	ly, lm, ld := end.In(loc).Date()
	first := time.Date(fy, fm, fd, 12, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	last := time.Date(ly, lm, ld, 12, 0, 0, 0, time.UTC)

	var out []Window
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		from, to, ok := s.hours(WeekdayIndex(day.Weekday()))
		if !ok || from == to {
			continue
		}

		y, m, d := day.Date()
		ws := LocalInstant(y, m, d, from, loc)
		we := LocalInstant(y, m, d, to, loc)

		if ws.Before(start) {
			ws = start
		}
		if we.After(end) {
			we = end
		}
		if n := len(out); n > 0 && ws.Before(out[n-1].End) {
			ws = out[n-1].End
		}
		if !ws.Before(we) {
			continue
		}
		out = append(out, Window{Start: ws.UTC(), End: we.UTC()})
	}
	return out
}
