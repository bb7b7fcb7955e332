package uptime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the operational state reported by a store poll.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus normalizes a raw status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	default:
		return "", fmt.Errorf("unknown status %q", raw)
	}
}

// Observation is a single point-in-time status sample for a store.
type Observation struct {
	StoreID   string
	Timestamp time.Time
	Status    Status
}

// Interval is a half-open span [Start, End) during which a store held Status.
type Interval struct {
	Start  time.Time
	End    time.Time
	Status Status
}

// Duration returns the length of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Window is a half-open span [Start, End) during which a store is expected open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// TotalDuration sums the lengths of windows.
func TotalDuration(windows []Window) time.Duration {
	var total time.Duration
	for _, w := range windows {
		total += w.Duration()
	}
	return total
}

// TimeOfDay is a local wall clock time expressed as an offset from midnight.
// Values up to 48h are meaningful for windows that run past midnight.
type TimeOfDay time.Duration

// Clock builds a TimeOfDay from hours, minutes and seconds.
func Clock(hour, minute, second int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second)
}

// ParseTimeOfDay accepts "HH:MM", "HH:MM:SS" and "HH:MM:SS.ffffff".
// "24:00" and "24:00:00" denote the end of the day.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	v := strings.TrimSpace(raw)
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", raw)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", raw)
	}

	var seconds float64
	if len(parts) == 3 {
		seconds, err = strconv.ParseFloat(parts[2], 64)
		if err != nil || seconds < 0 || seconds >= 60 {
			return 0, fmt.Errorf("invalid second in %q", raw)
		}
	}

	t := TimeOfDay(time.Duration(hour)*time.Hour +
		time.Duration(minute)*time.Minute +
		time.Duration(seconds*float64(time.Second)))
	if t > TimeOfDay(24*time.Hour) {
		return 0, fmt.Errorf("time of day %q is past midnight", raw)
	}
	return t, nil
}

// String renders the value as HH:MM:SS.
func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Rule is the business-hours window of one store on one weekday.
// DayOfWeek counts from Monday (0) to Sunday (6).
type Rule struct {
	StoreID   string
	DayOfWeek int
	Start     TimeOfDay
	End       TimeOfDay
}

// WeekdayIndex maps a time.Weekday onto the Monday-first numbering used by Rule.
func WeekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}
