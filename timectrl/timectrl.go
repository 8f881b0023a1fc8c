package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock gives components access to simulation time without depending on
// how that time is driven.
type SimClock interface {
	Now() time.Time
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances one Tick of simulation time per Tick of wall time.
	RealTime Mode = iota
	// Accelerated advances Speed ticks of simulation time per wall Tick.
	Accelerated
)

// ParseMode maps "realtime" / "accelerated" onto a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "", "realtime", "real-time":
		return RealTime, true
	case "accelerated":
		return Accelerated, true
	default:
		return RealTime, false
	}
}

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController drives simulation time and notifies registered listeners
// after every advance. The simulation's event scheduler registers RunDue as
// a listener so command timers fire as time moves.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode
	// Speed is the number of simulation ticks per wall tick in Accelerated
	// mode. Values below 1 are treated as 1.
	Speed int

	currentTime time.Time

	listeners []func(time.Time)
	waiters   []waiter
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		Speed:       1,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps the simulation clock to t and notifies listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
	tc.notify(t)
}

// Advance moves the clock forward by d and notifies listeners.
func (tc *TimeController) Advance(d time.Duration) time.Time {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(d)
	now := tc.currentTime
	tc.mu.Unlock()
	tc.notify(now)
	return now
}

// After returns a channel that receives the simulation time once d of
// simulation time has elapsed.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	at := tc.currentTime.Add(d)
	if d <= 0 {
		tc.mu.Unlock()
		ch <- at
		return ch
	}
	tc.waiters = append(tc.waiters, waiter{at: at, ch: ch})
	tc.mu.Unlock()
	return ch
}

// AddListener registers a callback invoked on every advance.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

func (tc *TimeController) notify(now time.Time) {
	tc.mu.Lock()
	listeners := append([]func(time.Time){}, tc.listeners...)
	pending := tc.waiters[:0]
	var fire []waiter
	for _, w := range tc.waiters {
		if now.Before(w.at) {
			pending = append(pending, w)
		} else {
			fire = append(fire, w)
		}
	}
	tc.waiters = pending
	tc.mu.Unlock()

	for _, w := range fire {
		w.ch <- now
	}
	for _, fn := range listeners {
		fn(now)
	}
}

// Start runs the controller in a separate goroutine until ctx is done or,
// when duration is positive, until that much simulation time has elapsed.
// It returns a channel that is closed when the controller stops.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		step := tc.Tick
		if tc.Mode == Accelerated && tc.Speed > 1 {
			step = tc.Tick * time.Duration(tc.Speed)
		}
		elapsed := time.Duration(0)

		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()

		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			d := step
			if duration > 0 && elapsed+d > duration {
				d = duration - elapsed
			}
			elapsed += d
			tc.Advance(d)
		}
	}()
	return done
}
