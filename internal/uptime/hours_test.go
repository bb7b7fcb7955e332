package uptime

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func mustSchedule(t *testing.T, rules ...Rule) Schedule {
	t.Helper()
	s, err := NewSchedule(rules)
	require.NoError(t, err)
	return s
}

func utc(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "09:00", want: Clock(9, 0, 0)},
		{in: "17:30:15", want: Clock(17, 30, 15)},
		{in: "00:00:00", want: 0},
		{in: "24:00", want: Clock(24, 0, 0)},
		{in: "23:59:59.5", want: Clock(23, 59, 59) + TimeOfDay(500*time.Millisecond)},
		{in: "24:30", wantErr: true},
		{in: "9", wantErr: true},
		{in: "12:61", wantErr: true},
		{in: "ab:00", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimeOfDay(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "09:05:00", Clock(9, 5, 0).String())
}

func TestWeekdayIndexStartsMonday(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, WeekdayIndex(time.Monday))
	assert.Equal(t, 5, WeekdayIndex(time.Saturday))
	assert.Equal(t, 6, WeekdayIndex(time.Sunday))
}

func TestNewScheduleRejectsBadRows(t *testing.T) {
	t.Parallel()

	_, err := NewSchedule([]Rule{{StoreID: "s9", DayOfWeek: 7, Start: Clock(9, 0, 0), End: Clock(17, 0, 0)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "s9", cfgErr.StoreID)

	_, err = NewSchedule([]Rule{{StoreID: "s9", DayOfWeek: 1, Start: Clock(25, 0, 0), End: Clock(17, 0, 0)}})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestNewScheduleLaterRuleWins(t *testing.T) {
	t.Parallel()

	s := mustSchedule(t,
		Rule{DayOfWeek: 0, Start: Clock(9, 0, 0), End: Clock(17, 0, 0)},
		Rule{DayOfWeek: 0, Start: Clock(10, 0, 0), End: Clock(12, 0, 0)},
	)
	rules := s.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, Clock(10, 0, 0), rules[0].Start)
	assert.False(t, s.AlwaysOpen())
}

func TestBusinessWindowsAlwaysOpen(t *testing.T) {
	t.Parallel()

	start := utc(2024, time.January, 1, 17, 0)
	end := utc(2024, time.January, 8, 17, 0)
	windows := BusinessWindows(Schedule{}, mustLoad(t, "America/Chicago"), start, end)

	assert.Equal(t, 7*24*time.Hour, TotalDuration(windows))
	require.NotEmpty(t, windows)
	assert.Equal(t, start, windows[0].Start)
	assert.Equal(t, end, windows[len(windows)-1].End)
}

func TestBusinessWindowsClipsToRange(t *testing.T) {
	t.Parallel()

	// Monday 2024-01-08, 09:00-17:00 UTC, range starts mid-window.
	s := mustSchedule(t, Rule{DayOfWeek: 0, Start: Clock(9, 0, 0), End: Clock(17, 0, 0)})
	windows := BusinessWindows(s, time.UTC, utc(2024, time.January, 8, 12, 0), utc(2024, time.January, 9, 12, 0))

	want := []Window{{Start: utc(2024, time.January, 8, 12, 0), End: utc(2024, time.January, 8, 17, 0)}}
	assert.Equal(t, want, windows)
}

func TestBusinessWindowsConvertsTimezone(t *testing.T) {
	t.Parallel()

	// 09:00-17:00 in Chicago during CST is 15:00-23:00 UTC.
	s := mustSchedule(t, Rule{DayOfWeek: 0, Start: Clock(9, 0, 0), End: Clock(17, 0, 0)})
	windows := BusinessWindows(s, mustLoad(t, "America/Chicago"),
		utc(2024, time.January, 8, 0, 0), utc(2024, time.January, 9, 12, 0))

	want := []Window{{Start: utc(2024, time.January, 8, 15, 0), End: utc(2024, time.January, 8, 23, 0)}}
	assert.Equal(t, want, windows)
}

func TestBusinessWindowsOvernight(t *testing.T) {
	t.Parallel()

	s := mustSchedule(t,
		Rule{DayOfWeek: 0, Start: Clock(22, 0, 0), End: Clock(2, 0, 0)},
		Rule{DayOfWeek: 1, Start: Clock(1, 0, 0), End: Clock(5, 0, 0)},
	)
	windows := BusinessWindows(s, time.UTC, utc(2024, time.January, 8, 12, 0), utc(2024, time.January, 9, 12, 0))

	want := []Window{
		{Start: utc(2024, time.January, 8, 22, 0), End: utc(2024, time.January, 9, 2, 0)},
		{Start: utc(2024, time.January, 9, 2, 0), End: utc(2024, time.January, 9, 5, 0)},
	}
	assert.Equal(t, want, windows)
	assert.Equal(t, 7*time.Hour, TotalDuration(windows))
}

func TestBusinessWindowsOvernightFromPreviousDay(t *testing.T) {
	t.Parallel()

	// Sunday 2024-01-07 20:00 -> Monday 04:00; the range opens Monday.
	s := mustSchedule(t, Rule{DayOfWeek: 6, Start: Clock(20, 0, 0), End: Clock(4, 0, 0)})
	windows := BusinessWindows(s, time.UTC, utc(2024, time.January, 8, 0, 0), utc(2024, time.January, 8, 12, 0))

	want := []Window{{Start: utc(2024, time.January, 8, 0, 0), End: utc(2024, time.January, 8, 4, 0)}}
	assert.Equal(t, want, windows)
}

func TestBusinessWindowsEqualStartEndIsClosed(t *testing.T) {
	t.Parallel()

	s := mustSchedule(t, Rule{DayOfWeek: 0, Start: Clock(9, 0, 0), End: Clock(9, 0, 0)})
	windows := BusinessWindows(s, time.UTC, utc(2024, time.January, 7, 0, 0), utc(2024, time.January, 10, 0, 0))
	assert.Empty(t, windows)
}

func TestBusinessWindowsSpringForward(t *testing.T) {
	t.Parallel()

	// Sunday 2024-03-10: Chicago skips 02:00-03:00, so 01:00-09:00 local is 7h.
	s := mustSchedule(t, Rule{DayOfWeek: 6, Start: Clock(1, 0, 0), End: Clock(9, 0, 0)})
	windows := BusinessWindows(s, mustLoad(t, "America/Chicago"),
		utc(2024, time.March, 9, 0, 0), utc(2024, time.March, 12, 0, 0))

	want := []Window{{Start: utc(2024, time.March, 10, 7, 0), End: utc(2024, time.March, 10, 14, 0)}}
	assert.Equal(t, want, windows)
	assert.Equal(t, 7*time.Hour, TotalDuration(windows))
}

func TestBusinessWindowsFallBack(t *testing.T) {
	t.Parallel()

	// Sunday 2024-11-03: Chicago repeats 01:00-02:00, so 00:00-04:00 local is 5h.
	s := mustSchedule(t, Rule{DayOfWeek: 6, Start: Clock(0, 0, 0), End: Clock(4, 0, 0)})
	windows := BusinessWindows(s, mustLoad(t, "America/Chicago"),
		utc(2024, time.November, 2, 12, 0), utc(2024, time.November, 4, 0, 0))

	want := []Window{{Start: utc(2024, time.November, 3, 5, 0), End: utc(2024, time.November, 3, 10, 0)}}
	assert.Equal(t, want, windows)
}

func TestLocalInstantAmbiguousPicksEarlier(t *testing.T) {
	t.Parallel()

	got := LocalInstant(2024, time.November, 3, Clock(1, 30, 0), mustLoad(t, "America/Chicago"))
	assert.True(t, got.Equal(utc(2024, time.November, 3, 6, 30)), got.UTC().String())
}

func TestLocalInstantGapMovesForward(t *testing.T) {
	t.Parallel()

	got := LocalInstant(2024, time.March, 10, Clock(2, 30, 0), mustLoad(t, "America/Chicago"))
	assert.True(t, got.Equal(utc(2024, time.March, 10, 8, 0)), got.UTC().String())
}

func TestLocationCache(t *testing.T) {
	t.Parallel()

	c, err := NewLocationCache(4, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, c.Fallback())

	loc, err := c.Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTimezone, loc.String())

	again, err := c.Load("America/New_York")
	require.NoError(t, err)
	cached, err := c.Load("America/New_York")
	require.NoError(t, err)
	assert.Same(t, again, cached)

	_, err = c.Load("Mars/Olympus_Mons")
	assert.Error(t, err)
	_, err = c.Load("Local")
	assert.Error(t, err)

	_, err = NewLocationCache(4, "Not/AZone")
	assert.Error(t, err)
}
