package realtime

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the report service.
const (
	EventReportStarted   = "report.started"
	EventReportCompleted = "report.completed"
	EventReportFailed    = "report.failed"
)

// Event is a report lifecycle notification pushed to SSE clients.
type Event struct {
	ID       int64     `json:"id"`
	Type     string    `json:"type"`
	ReportID string    `json:"report_id,omitempty"`
	Status   string    `json:"status,omitempty"`
	Trigger  string    `json:"trigger,omitempty"`
	Stores   int       `json:"stores,omitempty"`
	Skipped  int       `json:"skipped,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher accepts events. *Broker implements it.
type Publisher interface {
	Publish(evt Event)
}

// Broker is an in-memory fan-out event bus for SSE subscribers.
type Broker struct {
	mu     sync.RWMutex
	nextID atomic.Int64
	nextCh int64
	subs   map[int64]chan Event
	closed bool
}

// NewBroker creates a Broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[int64]chan Event),
	}
}

// Publish broadcasts an event to all active subscribers.
// Slow subscribers drop events instead of blocking producers.
func (b *Broker) Publish(evt Event) {
	evt.ID = b.nextID.Add(1)
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns an event channel and cancel func.
// After Close the returned channel is already closed.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	id := atomic.AddInt64(&b.nextCh, 1)
	ch := make(chan Event, 32)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}

	return ch, cancel
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription so streaming handlers return.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
