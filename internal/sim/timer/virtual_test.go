package timer

import (
	"testing"
	"time"
)

func TestVirtualScheduler_AdvanceRunsAtEventTime(t *testing.T) {
	start := time.Unix(0, 0)
	sched := NewVirtualScheduler(start)

	var seen []time.Duration
	record := func() { seen = append(seen, sched.Now().Sub(start)) }
	sched.Schedule(start.Add(40*time.Millisecond), record)
	sched.Schedule(start.Add(10*time.Millisecond), record)

	sched.AdvanceTo(start.Add(time.Second))

	if len(seen) != 2 || seen[0] != 10*time.Millisecond || seen[1] != 40*time.Millisecond {
		t.Fatalf("callbacks saw %v, want [10ms 40ms]", seen)
	}
	if got := sched.Now(); !got.Equal(start.Add(time.Second)) {
		t.Fatalf("Now() = %v, want start+1s", got)
	}
}

func TestVirtualScheduler_ChainedEventsWithinWindow(t *testing.T) {
	start := time.Unix(0, 0)
	sched := NewVirtualScheduler(start)

	fired := 0
	sched.Schedule(start.Add(time.Second), func() {
		fired++
		sched.Schedule(sched.Now().Add(time.Second), func() { fired++ })
	})

	sched.Advance(2 * time.Second)
	if fired != 2 {
		t.Fatalf("fired = %d, want 2", fired)
	}
}

func TestVirtualScheduler_MonotonicAndPastDue(t *testing.T) {
	start := time.Unix(100, 0)
	sched := NewVirtualScheduler(start)

	sched.AdvanceTo(start.Add(-time.Hour))
	if !sched.Now().Equal(start) {
		t.Fatalf("time went backwards")
	}

	ran := false
	sched.Schedule(start.Add(-time.Second), func() { ran = true })
	sched.RunDue()
	if !ran {
		t.Fatalf("past-due event did not run")
	}
}

func TestVirtualScheduler_RunUntilIdle(t *testing.T) {
	start := time.Unix(0, 0)
	sched := NewVirtualScheduler(start)

	sched.Schedule(start.Add(2*time.Second), func() {})
	id := sched.Schedule(start.Add(5*time.Second), func() {})
	sched.Schedule(start.Add(time.Hour), func() {})
	sched.Cancel(id)

	if sched.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", sched.Len())
	}

	end := sched.RunUntilIdle(time.Minute)
	if !end.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("RunUntilIdle stopped at %v, want start+2s", end)
	}
	if next, ok := sched.NextAt(); !ok || !next.Equal(start.Add(time.Hour)) {
		t.Fatalf("NextAt() = %v, %v", next, ok)
	}
}
