package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	a, cancelA := b.Subscribe()
	defer cancelA()
	c, cancelC := b.Subscribe()
	defer cancelC()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(Event{Type: EventReportStarted, ReportID: "r1"})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case evt := <-ch:
			assert.Equal(t, EventReportStarted, evt.Type)
			assert.Equal(t, "r1", evt.ReportID)
			assert.EqualValues(t, 1, evt.ID)
			assert.False(t, evt.At.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	ch, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 100; i++ {
		b.Publish(Event{Type: EventReportCompleted})
	}
	assert.Len(t, ch, cap(ch))
}

func TestCancelAndClose(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	ch, cancel := b.Subscribe()
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, b.SubscriberCount())

	live, _ := b.Subscribe()
	b.Close()
	_, ok = <-live
	assert.False(t, ok)

	after, cancelAfter := b.Subscribe()
	cancelAfter()
	_, ok = <-after
	require.False(t, ok)
}
