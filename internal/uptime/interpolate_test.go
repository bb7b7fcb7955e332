package uptime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, time.January, 8, hour, minute, 0, 0, time.UTC)
}

func obs(ts time.Time, s Status) Observation {
	return Observation{StoreID: "s1", Timestamp: ts, Status: s}
}

func TestInterpolatePartitionsRange(t *testing.T) {
	t.Parallel()

	got := Interpolate([]Observation{
		obs(at(14, 0), StatusActive),
		obs(at(10, 0), StatusInactive),
	}, at(9, 0), at(17, 0))

	want := []Interval{
		{Start: at(9, 0), End: at(10, 0), Status: StatusActive},
		{Start: at(10, 0), End: at(14, 0), Status: StatusInactive},
		{Start: at(14, 0), End: at(17, 0), Status: StatusActive},
	}
	assert.Equal(t, want, got)

	var total time.Duration
	for i, iv := range got {
		total += iv.Duration()
		if i > 0 {
			assert.True(t, got[i-1].End.Equal(iv.Start), "intervals must be contiguous")
		}
	}
	assert.Equal(t, 8*time.Hour, total)
}

func TestInterpolateDefaultsToActive(t *testing.T) {
	t.Parallel()

	got := Interpolate(nil, at(9, 0), at(10, 0))
	require.Len(t, got, 1)
	assert.Equal(t, StatusActive, got[0].Status)
	assert.Equal(t, time.Hour, got[0].Duration())
}

func TestInterpolateSeedsFromEarlierObservation(t *testing.T) {
	t.Parallel()

	got := Interpolate([]Observation{
		obs(at(7, 0), StatusActive),
		obs(at(8, 0), StatusInactive),
	}, at(9, 0), at(17, 0))

	require.Len(t, got, 1)
	assert.Equal(t, StatusInactive, got[0].Status)
	assert.Equal(t, at(9, 0), got[0].Start)
	assert.Equal(t, at(17, 0), got[0].End)
}

func TestInterpolateDuplicateInstantLastWins(t *testing.T) {
	t.Parallel()

	got := Interpolate([]Observation{
		obs(at(10, 0), StatusActive),
		obs(at(10, 0), StatusInactive),
	}, at(9, 0), at(17, 0))

	want := []Interval{
		{Start: at(9, 0), End: at(10, 0), Status: StatusActive},
		{Start: at(10, 0), End: at(17, 0), Status: StatusInactive},
	}
	assert.Equal(t, want, got)
}

func TestInterpolateMergesRepeatedStatus(t *testing.T) {
	t.Parallel()

	got := Interpolate([]Observation{
		obs(at(9, 0), StatusActive),
		obs(at(11, 0), StatusActive),
		obs(at(13, 0), StatusActive),
	}, at(9, 0), at(17, 0))

	require.Len(t, got, 1)
	assert.Equal(t, 8*time.Hour, got[0].Duration())
}

func TestInterpolateIgnoresObservationsAtOrAfterEnd(t *testing.T) {
	t.Parallel()

	got := Interpolate([]Observation{
		obs(at(17, 0), StatusInactive),
		obs(at(18, 0), StatusInactive),
	}, at(9, 0), at(17, 0))

	require.Len(t, got, 1)
	assert.Equal(t, StatusActive, got[0].Status)
}

func TestInterpolateEmptyRange(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Interpolate([]Observation{obs(at(9, 0), StatusInactive)}, at(9, 0), at(9, 0)))
	assert.Nil(t, Interpolate(nil, at(10, 0), at(9, 0)))
}

func TestInterpolateDoesNotReorderInput(t *testing.T) {
	t.Parallel()

	in := []Observation{
		obs(at(14, 0), StatusActive),
		obs(at(10, 0), StatusInactive),
	}
	_ = Interpolate(in, at(9, 0), at(17, 0))
	assert.Equal(t, at(14, 0), in[0].Timestamp)
}
