// Package scheduler fires named report schedules from a single timer
// goroutine backed by a min-heap of next-run times.
package scheduler

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type entry struct {
	name     string
	expr     string
	schedule cron.Schedule
	nextRun  time.Time
}

// entryHeap orders entries by nextRun, earliest first.
type entryHeap []*entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].nextRun.Before(h[j].nextRun) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(*entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Entry is a snapshot of one registered schedule.
type Entry struct {
	Name    string    `json:"name"`
	Cron    string    `json:"cron"`
	NextRun time.Time `json:"next_run"`
}

// Scheduler calls fire with the schedule name each time a schedule is due.
// fire runs on the scheduler goroutine and should hand work off quickly.
type Scheduler struct {
	mu      sync.Mutex
	heap    entryHeap
	timer   *time.Timer
	done    chan struct{}
	reset   chan struct{}
	wg      sync.WaitGroup
	stop    sync.Once
	started bool
	fire    func(name string)
	now     func() time.Time
}

// New creates a Scheduler. It does nothing until Start is called.
func New(fire func(name string)) *Scheduler {
	return &Scheduler{
		fire:  fire,
		now:   time.Now,
		done:  make(chan struct{}),
		reset: make(chan struct{}, 1),
	}
}

// Add registers expr under name, replacing any schedule with the same name.
func (s *Scheduler) Add(name, expr string) error {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.pushLocked(name, expr, schedule)
	s.resetTimerLocked()
	return nil
}

// Remove drops the named schedule. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.resetTimerLocked()
}

// Replace swaps the full schedule set for exprs (name to expression). Entries
// whose expression did not change keep their next run time. Nothing is
// changed if any expression fails to parse.
func (s *Scheduler) Replace(exprs map[string]string) error {
	parsed := make(map[string]cron.Schedule, len(exprs))
	for name, expr := range exprs {
		schedule, err := ParseSchedule(expr)
		if err != nil {
			return err
		}
		parsed[name] = schedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.heap[:0]
	for _, e := range s.heap {
		if expr, ok := exprs[e.name]; ok && expr == e.expr {
			kept = append(kept, e)
			delete(parsed, e.name)
		}
	}
	s.heap = kept
	heap.Init(&s.heap)
	for name, schedule := range parsed {
		s.pushLocked(name, exprs[name], schedule)
	}
	s.resetTimerLocked()
	return nil
}

// Entries returns the registered schedules sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.heap))
	for _, e := range s.heap {
		out = append(out, Entry{Name: e.name, Cron: e.expr, NextRun: e.nextRun})
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NextRun returns the next fire time for the named schedule.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.heap {
		if e.name == name {
			return e.nextRun, true
		}
	}
	return time.Time{}, false
}

func (s *Scheduler) pushLocked(name, expr string, schedule cron.Schedule) {
	next := nextAfter(schedule, s.now())
	if next.IsZero() {
		return
	}
	heap.Push(&s.heap, &entry{name: name, expr: expr, schedule: schedule, nextRun: next})
}

func (s *Scheduler) removeLocked(name string) {
	for i, e := range s.heap {
		if e.name == name {
			heap.Remove(&s.heap, i)
			return
		}
	}
}

// Start launches the timer goroutine. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.timer = time.NewTimer(time.Hour)
	s.timer.Stop()
	s.resetTimerLocked()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
}

// Stop ends the timer goroutine and waits for it. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.stop.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		c := s.timer.C
		s.mu.Unlock()

		select {
		case <-s.done:
			s.mu.Lock()
			s.timer.Stop()
			s.mu.Unlock()
			return
		case <-s.reset:
			continue
		case <-c:
			if name, ok := s.popDue(); ok {
				s.fire(name)
			}
		}
	}
}

// popDue advances the earliest entry if it is due and returns its name.
func (s *Scheduler) popDue() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heap.Len() == 0 {
		return "", false
	}
	now := s.now()
	e := s.heap[0]
	if e.nextRun.After(now) {
		s.resetTimerLocked()
		return "", false
	}

	heap.Pop(&s.heap)
	e.nextRun = nextAfter(e.schedule, now)
	if !e.nextRun.IsZero() {
		heap.Push(&s.heap, e)
	}
	s.resetTimerLocked()
	return e.name, true
}

// resetTimerLocked points the timer at the earliest entry. Caller holds s.mu.
func (s *Scheduler) resetTimerLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	if s.heap.Len() == 0 {
		return
	}
	d := s.heap[0].nextRun.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.timer.Reset(d)

	select {
	case s.reset <- struct{}{}:
	default:
	}
}
