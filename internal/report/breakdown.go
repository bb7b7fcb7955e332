package report

import (
	"context"
	"time"

	"github.com/patrickspencer/storewatch/internal/uptime"
)

// Breakdown is the full computation for one store, for debugging.
type Breakdown struct {
	StoreID         string       `json:"store_id"`
	Timezone        string       `json:"timezone"`
	DefaultTimezone bool         `json:"default_timezone"`
	AlwaysOpen      bool         `json:"always_open"`
	Rules           []RuleView   `json:"rules"`
	Reference       time.Time    `json:"reference"`
	Observations    int          `json:"observations"`
	Periods         []PeriodView `json:"periods"`
	Row             Row          `json:"row"`
}

// RuleView is a business-hours rule as shown in a breakdown.
type RuleView struct {
	DayOfWeek int    `json:"day_of_week"`
	Start     string `json:"start_time_local"`
	End       string `json:"end_time_local"`
	Overnight bool   `json:"overnight,omitempty"`
}

// SpanView is a rendered interval or window.
type SpanView struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status,omitempty"`
}

// PeriodView is one period of a breakdown. Durations are in seconds.
type PeriodView struct {
	Period          string     `json:"period"`
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	Intervals       []SpanView `json:"intervals"`
	Windows         []SpanView `json:"windows"`
	OpenSeconds     float64    `json:"open_seconds"`
	UptimeSeconds   float64    `json:"uptime_seconds"`
	DowntimeSeconds float64    `json:"downtime_seconds"`
}

// Breakdown computes storeID at the current reference and returns every
// intermediate value. Stores with no data in any table yield ErrNotFound.
func (s *Service) Breakdown(ctx context.Context, storeID string) (*Breakdown, error) {
	ref, err := s.ref.Get(ctx)
	if err != nil {
		return nil, err
	}
	in, err := s.loadInput(ctx, storeID, ref)
	if err != nil {
		return nil, err
	}
	if in.DefaultTimezone && len(in.Rules) == 0 && len(in.Observations) == 0 {
		return nil, ErrNotFound
	}

	res := uptime.ComputeStore(in.Input)
	b := &Breakdown{
		StoreID:         storeID,
		Timezone:        in.Timezone,
		DefaultTimezone: in.DefaultTimezone,
		AlwaysOpen:      len(in.Rules) == 0,
		Rules:           make([]RuleView, 0, len(in.Rules)),
		Reference:       ref,
		Observations:    len(in.Observations),
		Periods:         make([]PeriodView, 0, len(res.Periods)),
		Row:             RowFromResult(res),
	}
	for _, r := range in.Rules {
		b.Rules = append(b.Rules, RuleView{
			DayOfWeek: r.DayOfWeek,
			Start:     r.Start.String(),
			End:       r.End.String(),
			Overnight: r.End < r.Start,
		})
	}
	for _, p := range res.Periods {
		pv := PeriodView{
			Period:          string(p.Period),
			Start:           p.Start,
			End:             p.End,
			Intervals:       make([]SpanView, 0, len(p.Intervals)),
			Windows:         make([]SpanView, 0, len(p.Windows)),
			OpenSeconds:     p.OpenDuration().Seconds(),
			UptimeSeconds:   p.Uptime.Seconds(),
			DowntimeSeconds: p.Downtime.Seconds(),
		}
		for _, iv := range p.Intervals {
			pv.Intervals = append(pv.Intervals, SpanView{Start: iv.Start, End: iv.End, Status: string(iv.Status)})
		}
		for _, w := range p.Windows {
			pv.Windows = append(pv.Windows, SpanView{Start: w.Start, End: w.End})
		}
		b.Periods = append(b.Periods, pv)
	}
	return b, nil
}
