package uptime

import "time"

// Period names a trailing lookback window ending at the reference instant.
type Period string

const (
	PeriodLastHour Period = "last_hour"
	PeriodLastDay  Period = "last_day"
	PeriodLastWeek Period = "last_week"
)

// Length returns how far back the period reaches.
func (p Period) Length() time.Duration {
	switch p {
	case PeriodLastHour:
		return time.Hour
	case PeriodLastDay:
		return 24 * time.Hour
	case PeriodLastWeek:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// Periods lists the reported periods, shortest first.
var Periods = []Period{PeriodLastHour, PeriodLastDay, PeriodLastWeek}

// LookbackStart is the earliest instant any period reads from.
func LookbackStart(reference time.Time) time.Time {
	return reference.Add(-PeriodLastWeek.Length())
}

// Input is everything needed to compute one store.
type Input struct {
	StoreID      string
	Reference    time.Time
	Location     *time.Location
	Schedule     Schedule
	Observations []Observation
}

// PeriodResult holds the intermediate and final values for one period.
type PeriodResult struct {
	Period    Period
	Start     time.Time
	End       time.Time
	Intervals []Interval
	Windows   []Window
	Totals
}

// OpenDuration is the business-hours time inside the period.
func (r PeriodResult) OpenDuration() time.Duration {
	return TotalDuration(r.Windows)
}

// StoreResult is the computation for one store over all periods.
type StoreResult struct {
	StoreID   string
	Reference time.Time
	Periods   []PeriodResult
}

// Period returns the result for p.
func (r StoreResult) Period(p Period) (PeriodResult, bool) {
	for _, pr := range r.Periods {
		if pr.Period == p {
			return pr, true
		}
	}
	return PeriodResult{}, false
}

// HasDowntime reports whether any period saw inactive time.
func (r StoreResult) HasDowntime() bool {
	for _, pr := range r.Periods {
		if pr.Downtime > 0 {
			return true
		}
	}
	return false
}

// ComputeStore interpolates, builds windows and aggregates every period. The
// observations should cover LookbackStart(in.Reference) through the reference
// plus the last observation before that.
func ComputeStore(in Input) StoreResult {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	res := StoreResult{
		StoreID:   in.StoreID,
		Reference: in.Reference,
		Periods:   make([]PeriodResult, 0, len(Periods)),
	}
	for _, p := range Periods {
		start := in.Reference.Add(-p.Length())
		intervals := Interpolate(in.Observations, start, in.Reference)
		windows := BusinessWindows(in.Schedule, loc, start, in.Reference)
		res.Periods = append(res.Periods, PeriodResult{
			Period:    p,
			Start:     start,
			End:       in.Reference,
			Intervals: intervals,
			Windows:   windows,
			Totals:    Aggregate(intervals, windows),
		})
	}
	return res
}
