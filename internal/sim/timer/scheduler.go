package timer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/switchgear-simulator/timectrl"
)

// EventScheduler runs callbacks at simulation times. Command completion,
// command timeout, DAR dead-time and settle-time and transient fault
// clearing are all scheduled through it.
//
// The driver advances simulation time and calls RunDue after each advance.
type EventScheduler interface {
	// Schedule registers f to run at simulation time at and returns an
	// opaque ID usable with Cancel.
	Schedule(at time.Time, f func()) (id string)

	// Cancel stops a scheduled callback. Unknown or already-run IDs are a
	// no-op.
	Cancel(id string)

	// Now returns the current simulation time.
	Now() time.Time

	// RunDue executes every callback whose time is <= Now(). Callbacks
	// sharing a time run in the order they were scheduled.
	RunDue()
}

type scheduledEvent struct {
	id        string
	when      time.Time
	f         func()
	cancelled bool
}

// queue is the time-ordered event list shared by both scheduler flavours.
type queue struct {
	counter uint64
	prefix  string
	events  []*scheduledEvent
	index   map[string]*scheduledEvent
}

func newQueue(prefix string) queue {
	return queue{prefix: prefix, index: make(map[string]*scheduledEvent)}
}

func (q *queue) push(at time.Time, f func()) string {
	q.counter++
	ev := &scheduledEvent{
		id:   fmt.Sprintf("%s-%d", q.prefix, q.counter),
		when: at,
		f:    f,
	}
	// Insert after every event at the same time so equal times stay FIFO.
	idx := sort.Search(len(q.events), func(i int) bool {
		return q.events[i].when.After(at)
	})
	q.events = append(q.events, nil)
	copy(q.events[idx+1:], q.events[idx:])
	q.events[idx] = ev
	q.index[ev.id] = ev
	return ev.id
}

func (q *queue) cancel(id string) {
	ev, ok := q.index[id]
	if !ok {
		return
	}
	// Removal from events is lazy; pop skips cancelled entries.
	ev.cancelled = true
	delete(q.index, id)
}

// pop removes and returns the earliest live event due at now.
func (q *queue) pop(now time.Time) *scheduledEvent {
	for len(q.events) > 0 {
		ev := q.events[0]
		if ev.cancelled {
			q.events = q.events[1:]
			continue
		}
		if ev.when.After(now) {
			return nil
		}
		q.events = q.events[1:]
		delete(q.index, ev.id)
		return ev
	}
	return nil
}

// next returns the time of the earliest live event.
func (q *queue) next() (time.Time, bool) {
	for _, ev := range q.events {
		if !ev.cancelled {
			return ev.when, true
		}
	}
	return time.Time{}, false
}

// eventScheduler reads time from a SimClock that something else advances.
type eventScheduler struct {
	clock timectrl.SimClock

	mu sync.Mutex
	q  queue
}

// NewEventScheduler creates a scheduler backed by clock, typically the
// TimeController driving the simulation.
func NewEventScheduler(clock timectrl.SimClock) EventScheduler {
	return &eventScheduler{
		clock: clock,
		q:     newQueue("ev"),
	}
}

func (s *eventScheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.push(at, f)
}

func (s *eventScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.cancel(id)
}

func (s *eventScheduler) Now() time.Time {
	return s.clock.Now()
}

func (s *eventScheduler) RunDue() {
	for {
		s.mu.Lock()
		ev := s.q.pop(s.clock.Now())
		s.mu.Unlock()
		if ev == nil {
			return
		}
		// Callbacks run outside the lock so they can schedule and cancel.
		if ev.f != nil {
			ev.f()
		}
	}
}
