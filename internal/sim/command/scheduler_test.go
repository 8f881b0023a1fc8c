package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/timer"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

type eventLog struct{ events []model.Event }

func (l *eventLog) Emit(ev model.Event) { l.events = append(l.events, ev) }

func (l *eventLog) types() []model.EventType {
	out := make([]model.EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func (l *eventLog) count(typ model.EventType) int {
	n := 0
	for _, ev := range l.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type harness struct {
	net    *core.Network
	timers *timer.VirtualScheduler
	log    *eventLog
	sched  *Scheduler
}

// testConfig makes every draw land on Base + Jitter*r with simple numbers.
func testConfig() Config {
	return Config{
		Breaker: Profile{Complete: 50 * time.Millisecond, Timeout: 500 * time.Millisecond, FailureProbability: 0.1},
		Switch:  Profile{Complete: 2 * time.Second, Timeout: 6 * time.Second, FailureProbability: 0.1},
	}
}

func newHarness(t *testing.T, rng Rand, cfg Config) *harness {
	t.Helper()
	net := core.NewNetwork()
	for _, d := range []model.Device{
		{ID: "S1", Kind: model.KindSource, SourceEnergized: true},
		{ID: "CB1", Kind: model.KindBreaker, State: model.StateClosed},
		{ID: "DS1", Kind: model.KindDisconnector, State: model.StateClosed},
		{ID: "ES1", Kind: model.KindEarthSwitch, State: model.StateOpen},
		{ID: "L1", Kind: model.KindLoad},
	} {
		if err := net.AddDevice(d); err != nil {
			t.Fatalf("AddDevice(%s): %v", d.ID, err)
		}
	}
	if err := net.AddRule(model.InterlockRule{
		ID: "ds-under-load", Device: "DS1", Target: model.StateOpen,
		ConditionDevice: "CB1", ConditionState: model.StateClosed,
	}); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	timers := timer.NewVirtualScheduler(time.Unix(0, 0))
	log := &eventLog{}
	n := 0
	sched := NewScheduler(net, timers,
		WithConfig(cfg),
		WithRand(rng),
		WithEventSink(log),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("cmd-%d", n) }),
	)
	return &harness{net: net, timers: timers, log: log, sched: sched}
}

func (h *harness) device(t *testing.T, id string) model.Device {
	t.Helper()
	d, ok := h.net.Device(id)
	if !ok {
		t.Fatalf("device %s missing", id)
	}
	return d
}

func TestSchedule_SuccessCommitsState(t *testing.T) {
	h := newHarness(t, FixedRand(0.5), testConfig())

	var got []Result
	id, err := h.sched.Schedule(context.Background(), Request{
		DeviceID: "CB1", Kind: model.KindBreaker, Target: model.StateOpen,
		OnResult: func(r Result) { got = append(got, r) },
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if id != "cmd-1" {
		t.Fatalf("command id = %q", id)
	}

	d := h.device(t, "CB1")
	if !d.Moving || d.State != model.StateClosed {
		t.Fatalf("immediately after scheduling: moving=%v state=%s", d.Moving, d.State)
	}
	if !h.sched.Busy("CB1") {
		t.Fatalf("CB1 not reported busy")
	}

	h.timers.Advance(49 * time.Millisecond)
	if d := h.device(t, "CB1"); d.State != model.StateClosed {
		t.Fatalf("state committed before completion")
	}

	h.timers.Advance(time.Millisecond)
	d = h.device(t, "CB1")
	if d.Moving || d.State != model.StateOpen {
		t.Fatalf("after completion: moving=%v state=%s", d.Moving, d.State)
	}
	if len(got) != 1 || got[0].Outcome != OutcomeSucceeded || got[0].Elapsed != 50*time.Millisecond {
		t.Fatalf("results = %+v", got)
	}
	if got[0].DeviceID != "CB1" || got[0].Kind != model.KindBreaker || got[0].Target != model.StateOpen {
		t.Fatalf("result lacks device/kind/target: %+v", got[0])
	}

	// The timeout must not fire after a completion.
	h.timers.Advance(time.Second)
	if h.log.count(model.EventCommandTimeout) != 0 || len(got) != 1 {
		t.Fatalf("timeout fired after completion: %v", h.log.types())
	}
	if h.timers.Len() != 0 {
		t.Fatalf("timers left behind: %d", h.timers.Len())
	}
}

func TestSchedule_SecondCommandRejectedBusy(t *testing.T) {
	h := newHarness(t, FixedRand(0.5), testConfig())

	if _, err := h.sched.Schedule(context.Background(), Request{DeviceID: "ES1", Target: model.StateClosed}); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}
	before := h.device(t, "ES1")

	_, err := h.sched.Schedule(context.Background(), Request{DeviceID: "ES1", Target: model.StateClosed})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	after := h.device(t, "ES1")
	if after.Moving != before.Moving || after.State != before.State {
		t.Fatalf("busy rejection altered device: %+v -> %+v", before, after)
	}
	if h.log.count(model.EventCommandRejected) != 1 {
		t.Fatalf("events = %v", h.log.types())
	}

	h.timers.Advance(2 * time.Second)
	if d := h.device(t, "ES1"); d.State != model.StateClosed || d.Moving {
		t.Fatalf("first command did not complete: %+v", d)
	}
	if _, err := h.sched.Schedule(context.Background(), Request{DeviceID: "ES1", Target: model.StateOpen}); err != nil {
		t.Fatalf("Schedule after resolution: %v", err)
	}
}

func TestSchedule_InterlockBlocks(t *testing.T) {
	h := newHarness(t, FixedRand(0.5), testConfig())

	_, err := h.sched.Schedule(context.Background(), Request{DeviceID: "DS1", Target: model.StateOpen})
	var ie *core.InterlockError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InterlockError, got %v", err)
	}
	if ie.Decision.BlockingDevice != "CB1" {
		t.Fatalf("blocking device = %q", ie.Decision.BlockingDevice)
	}
	if d := h.device(t, "DS1"); d.Moving {
		t.Fatalf("interlocked device marked moving")
	}
	if h.sched.Busy("DS1") {
		t.Fatalf("interlocked command left pending")
	}
}

func TestSchedule_FailureLeavesStateUnchanged(t *testing.T) {
	// Draws: complete jitter, timeout jitter, failure.
	h := newHarness(t, NewSequenceRand(0, 0, 0.01), testConfig())

	var outcome Outcome
	if _, err := h.sched.Schedule(context.Background(), Request{
		DeviceID: "CB1", Target: model.StateOpen,
		OnResult: func(r Result) { outcome = r.Outcome },
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.timers.Advance(time.Second)

	d := h.device(t, "CB1")
	if d.Moving || d.State != model.StateClosed {
		t.Fatalf("after failure: moving=%v state=%s", d.Moving, d.State)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("outcome = %s", outcome)
	}
	if h.log.count(model.EventCommandFailed) != 1 || h.log.count(model.EventCommandTimeout) != 0 {
		t.Fatalf("events = %v", h.log.types())
	}
	for _, ev := range h.log.events {
		if ev.Type == model.EventCommandFailed && ev.Severity != model.SeverityError {
			t.Fatalf("failure severity = %s", ev.Severity)
		}
	}
}

func TestSchedule_TimeoutLeavesStateUnchanged(t *testing.T) {
	cfg := testConfig()
	cfg.Switch.Complete = 10 * time.Second
	cfg.Switch.Timeout = 3 * time.Second
	h := newHarness(t, FixedRand(0.5), cfg)

	var outcome Outcome
	if _, err := h.sched.Schedule(context.Background(), Request{
		DeviceID: "ES1", Target: model.StateClosed,
		OnResult: func(r Result) { outcome = r.Outcome },
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	h.timers.Advance(3 * time.Second)
	d := h.device(t, "ES1")
	if d.Moving || d.State != model.StateOpen {
		t.Fatalf("after timeout: moving=%v state=%s", d.Moving, d.State)
	}
	if outcome != OutcomeTimeout {
		t.Fatalf("outcome = %s", outcome)
	}

	// The late completion was cancelled with the timeout.
	h.timers.Advance(time.Minute)
	if d := h.device(t, "ES1"); d.State != model.StateOpen {
		t.Fatalf("completion fired after timeout")
	}
	if h.log.count(model.EventCommandSucceeded) != 0 {
		t.Fatalf("events = %v", h.log.types())
	}
}

func TestSchedule_JitterWithinProfile(t *testing.T) {
	cfg := testConfig()
	cfg.Switch.CompleteJitter = time.Second
	h := newHarness(t, NewSequenceRand(0.75, 0, 0.9), cfg)

	if _, err := h.sched.Schedule(context.Background(), Request{DeviceID: "ES1", Target: model.StateClosed}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	p, ok := h.sched.PendingFor("ES1")
	if !ok {
		t.Fatalf("no pending command")
	}
	if got := p.DueAt.Sub(p.StartedAt); got != 2750*time.Millisecond {
		t.Fatalf("completion in %v, want 2.75s", got)
	}
	if got := p.TimeoutAt.Sub(p.StartedAt); got != 6*time.Second {
		t.Fatalf("timeout in %v, want 6s", got)
	}
}

func TestSchedule_Rejections(t *testing.T) {
	h := newHarness(t, FixedRand(0.5), testConfig())
	h.net.Mutate("ES1", func(d *model.Device) { d.Health = model.HealthDestroyed })

	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown", Request{DeviceID: "nope", Target: model.StateOpen}, ErrUnknownDevice},
		{"not switchable", Request{DeviceID: "L1", Target: model.StateOpen}, ErrNotSwitchable},
		{"kind mismatch", Request{DeviceID: "CB1", Kind: model.KindDisconnector, Target: model.StateOpen}, ErrKindMismatch},
		{"bad target", Request{DeviceID: "CB1", Target: "ajar"}, ErrInvalidTarget},
		{"destroyed", Request{DeviceID: "ES1", Target: model.StateClosed}, ErrDeviceDestroyed},
		{"no change", Request{DeviceID: "CB1", Target: model.StateClosed}, ErrNoChange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.sched.Schedule(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(h.sched.PendingCommands()) != 0 {
		t.Fatalf("rejected commands left pending")
	}
}

func TestCancel_ClearsMovingAndTimers(t *testing.T) {
	h := newHarness(t, FixedRand(0.5), testConfig())

	var outcome Outcome
	if _, err := h.sched.Schedule(context.Background(), Request{
		DeviceID: "CB1", Target: model.StateOpen,
		OnResult: func(r Result) { outcome = r.Outcome },
	}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if !h.sched.Cancel("CB1") {
		t.Fatalf("Cancel returned false")
	}
	if h.sched.Cancel("CB1") {
		t.Fatalf("second Cancel returned true")
	}
	if d := h.device(t, "CB1"); d.Moving {
		t.Fatalf("moving not cleared")
	}
	if outcome != OutcomeCancelled {
		t.Fatalf("outcome = %s", outcome)
	}

	h.timers.Advance(time.Minute)
	if d := h.device(t, "CB1"); d.State != model.StateClosed {
		t.Fatalf("cancelled command still completed")
	}
}

type recorder struct{ outcomes []string }

func (r *recorder) ObserveCommand(_ model.Kind, _ model.Origin, outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestSchedule_RecorderObservesOutcome(t *testing.T) {
	net := core.NewNetwork()
	if err := net.AddDevice(model.Device{ID: "CB1", Kind: model.KindBreaker}); err != nil {
		t.Fatalf("AddDevice: %v", err)
	}
	timers := timer.NewVirtualScheduler(time.Unix(0, 0))
	rec := &recorder{}
	sched := NewScheduler(net, timers, WithRand(FixedRand(0.5)), WithRecorder(rec))

	if _, err := sched.Schedule(context.Background(), Request{DeviceID: "CB1", Target: model.StateClosed}); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	timers.Advance(time.Second)
	if len(rec.outcomes) != 1 || rec.outcomes[0] != string(OutcomeSucceeded) {
		t.Fatalf("recorded %v", rec.outcomes)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Breaker.FailureProbability = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("probability 1.5 accepted")
	}
}
