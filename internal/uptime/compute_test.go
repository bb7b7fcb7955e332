package uptime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateIntersects(t *testing.T) {
	t.Parallel()

	intervals := []Interval{
		{Start: at(0, 0), End: at(10, 0), Status: StatusActive},
		{Start: at(10, 0), End: at(12, 0), Status: StatusInactive},
		{Start: at(12, 0), End: at(23, 0), Status: StatusActive},
	}
	windows := []Window{
		{Start: at(9, 0), End: at(11, 0)},
		{Start: at(11, 30), End: at(13, 0)},
		{Start: at(22, 0), End: at(23, 0)},
	}
	got := Aggregate(intervals, windows)
	assert.Equal(t, Totals{Uptime: time.Hour + time.Hour + time.Hour, Downtime: time.Hour + 30*time.Minute}, got)
}

func TestAggregateNoWindows(t *testing.T) {
	t.Parallel()

	got := Aggregate([]Interval{{Start: at(0, 0), End: at(10, 0), Status: StatusInactive}}, nil)
	assert.Equal(t, Totals{}, got)
}

func TestComputeStoreMondayScenario(t *testing.T) {
	t.Parallel()

	sched := mustSchedule(t, Rule{StoreID: "s1", DayOfWeek: 0, Start: Clock(9, 0, 0), End: Clock(17, 0, 0)})
	in := Input{
		StoreID:   "s1",
		Reference: at(17, 0),
		Location:  time.UTC,
		Schedule:  sched,
		Observations: []Observation{
			obs(at(10, 0), StatusActive),
			obs(at(14, 0), StatusInactive),
			obs(at(16, 0), StatusActive),
		},
	}
	res := ComputeStore(in)
	require.Len(t, res.Periods, 3)

	hour, ok := res.Period(PeriodLastHour)
	require.True(t, ok)
	assert.Equal(t, Totals{Uptime: time.Hour}, hour.Totals)

	day, ok := res.Period(PeriodLastDay)
	require.True(t, ok)
	assert.Equal(t, Totals{Uptime: 6 * time.Hour, Downtime: 2 * time.Hour}, day.Totals)

	week, ok := res.Period(PeriodLastWeek)
	require.True(t, ok)
	assert.Equal(t, Totals{Uptime: 6 * time.Hour, Downtime: 2 * time.Hour}, week.Totals)

	for _, p := range res.Periods {
		assert.Equal(t, p.OpenDuration(), p.Uptime+p.Downtime, string(p.Period))
	}
	assert.True(t, res.HasDowntime())
}

func TestComputeStoreAlwaysOpenNoData(t *testing.T) {
	t.Parallel()

	res := ComputeStore(Input{
		StoreID:   "s2",
		Reference: at(12, 0),
		Location:  mustLoad(t, "America/Chicago"),
	})

	want := map[Period]time.Duration{
		PeriodLastHour: time.Hour,
		PeriodLastDay:  24 * time.Hour,
		PeriodLastWeek: 168 * time.Hour,
	}
	for _, p := range res.Periods {
		assert.Equal(t, want[p.Period], p.Uptime, string(p.Period))
		assert.Zero(t, p.Downtime, string(p.Period))
	}
	assert.False(t, res.HasDowntime())
}

func TestComputeStoreIsDeterministic(t *testing.T) {
	t.Parallel()

	sched := mustSchedule(t,
		Rule{DayOfWeek: 0, Start: Clock(22, 0, 0), End: Clock(6, 0, 0)},
		Rule{DayOfWeek: 3, Start: Clock(8, 0, 0), End: Clock(20, 0, 0)},
	)
	in := Input{
		StoreID:   "s3",
		Reference: at(17, 0),
		Location:  mustLoad(t, "Asia/Kolkata"),
		Schedule:  sched,
		Observations: []Observation{
			obs(at(1, 0).AddDate(0, 0, -3), StatusInactive),
			obs(at(4, 0), StatusActive),
			obs(at(9, 0).AddDate(0, 0, -5), StatusInactive),
		},
	}
	assert.Equal(t, ComputeStore(in), ComputeStore(in))
}

func TestComputeStoreBoundsNeverExceedWindow(t *testing.T) {
	t.Parallel()

	res := ComputeStore(Input{
		StoreID:      "s4",
		Reference:    at(17, 0),
		Location:     time.UTC,
		Observations: []Observation{obs(at(16, 30), StatusInactive)},
	})
	for _, p := range res.Periods {
		assert.LessOrEqual(t, p.Uptime+p.Downtime, p.Period.Length())
		assert.Equal(t, 30*time.Minute, p.Downtime, string(p.Period))
	}
}

func TestLookbackStart(t *testing.T) {
	t.Parallel()

	assert.Equal(t, at(17, 0).AddDate(0, 0, -7), LookbackStart(at(17, 0)))
}
