package state

import (
	"sync"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

// DefaultEventLogCapacity bounds the event log when no capacity is given.
const DefaultEventLogCapacity = 1024

// EventLog is a concurrency-safe, bounded ring of simulation events. It
// assigns sequence numbers and fans events out to subscribers.
type EventLog struct {
	mu   sync.RWMutex
	buf  []model.Event
	head int // index of the oldest entry
	size int
	seq  uint64

	subs   map[int]chan model.Event
	nextID int
}

// NewEventLog creates a log keeping at most capacity events.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultEventLogCapacity
	}
	return &EventLog{
		buf:  make([]model.Event, capacity),
		subs: make(map[int]chan model.Event),
	}
}

// Append stamps ev with the next sequence number, stores it and returns the
// stored copy. Subscribers that are not keeping up miss the event rather
// than stalling the simulation.
func (l *EventLog) Append(ev model.Event) model.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	ev.Seq = l.seq
	idx := (l.head + l.size) % len(l.buf)
	l.buf[idx] = ev
	if l.size < len(l.buf) {
		l.size++
	} else {
		l.head = (l.head + 1) % len(l.buf)
	}

	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

// Emit implements model.EventSink.
func (l *EventLog) Emit(ev model.Event) { l.Append(ev) }

// Since returns the retained events with Seq > after, oldest first. With
// limit > 0 only the oldest limit are returned, so passing the last Seq back
// as after pages forward without gaps.
func (l *EventLog) Since(after uint64, limit int) []model.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Event, 0, l.size)
	for i := 0; i < l.size; i++ {
		ev := l.buf[(l.head+i)%len(l.buf)]
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of retained events.
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// LastSeq returns the sequence number of the newest event, or 0.
func (l *EventLog) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

// Subscribe returns a channel receiving every event appended from now on
// and a function that unsubscribes and closes the channel.
func (l *EventLog) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan model.Event, buffer)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Clear drops every retained event. Sequence numbers keep increasing.
func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = 0
	l.size = 0
	for i := range l.buf {
		l.buf[i] = model.Event{}
	}
}
