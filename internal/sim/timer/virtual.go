package timer

import (
	"sync"
	"time"
)

// VirtualScheduler keeps its own simulation time, advanced explicitly. Tests
// use it for deterministic timing and the CLI uses it to run scenarios as
// fast as the callbacks allow.
type VirtualScheduler struct {
	mu  sync.Mutex
	now time.Time
	q   queue
}

// NewVirtualScheduler creates a scheduler whose clock starts at start.
func NewVirtualScheduler(start time.Time) *VirtualScheduler {
	return &VirtualScheduler{
		now: start,
		q:   newQueue("vev"),
	}
}

func (s *VirtualScheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *VirtualScheduler) Schedule(at time.Time, f func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.push(at, f)
}

func (s *VirtualScheduler) Cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.cancel(id)
}

func (s *VirtualScheduler) RunDue() {
	for {
		s.mu.Lock()
		ev := s.q.pop(s.now)
		s.mu.Unlock()
		if ev == nil {
			return
		}
		if ev.f != nil {
			ev.f()
		}
	}
}

// AdvanceTo moves time to t and runs everything due. Time never goes
// backwards. Events are run at their own timestamps, so a callback that
// reads Now() sees the time it was scheduled for.
func (s *VirtualScheduler) AdvanceTo(t time.Time) {
	for {
		s.mu.Lock()
		if t.Before(s.now) {
			s.mu.Unlock()
			return
		}
		next, ok := s.q.next()
		if !ok || next.After(t) {
			s.now = t
			s.mu.Unlock()
			s.RunDue()
			return
		}
		if next.After(s.now) {
			s.now = next
		}
		s.mu.Unlock()
		s.RunDue()
	}
}

// Advance moves time forward by d.
func (s *VirtualScheduler) Advance(d time.Duration) {
	s.AdvanceTo(s.Now().Add(d))
}

// Len returns the number of live scheduled events.
func (s *VirtualScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.q.index)
}

// NextAt returns the time of the earliest live event.
func (s *VirtualScheduler) NextAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.next()
}

// RunUntilIdle keeps advancing to the next event until none remain or
// limit of simulation time has passed. It returns the final time.
func (s *VirtualScheduler) RunUntilIdle(limit time.Duration) time.Time {
	deadline := s.Now().Add(limit)
	for {
		next, ok := s.NextAt()
		if !ok || next.After(deadline) {
			return s.Now()
		}
		s.AdvanceTo(next)
	}
}
