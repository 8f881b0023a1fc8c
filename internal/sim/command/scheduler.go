package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/timer"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

// Rejection reasons. Interlock blocks are reported as *core.InterlockError.
var (
	ErrBusy            = errors.New("command already pending")
	ErrUnknownDevice   = errors.New("unknown device")
	ErrNotSwitchable   = errors.New("device cannot be switched")
	ErrKindMismatch    = errors.New("device kind mismatch")
	ErrInvalidTarget   = errors.New("invalid target state")
	ErrDeviceDestroyed = errors.New("device destroyed")
	ErrNoChange        = errors.New("device already in target state")
)

// Outcome is how a command ended.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// Network is the slice of the network model the scheduler reads and writes.
type Network interface {
	Device(id string) (model.Device, bool)
	Devices() []model.Device
	Rules() []model.InterlockRule
	Mutate(id string, fn func(*model.Device)) error
}

// Request asks for deviceID to be driven into Target.
type Request struct {
	DeviceID string
	// Kind, when set, must match the device's kind.
	Kind   model.Kind
	Target model.SwitchState
	Origin model.Origin
	// FaultID links protection commands to the fault that caused them.
	FaultID string
	// OnResult is called once when the command resolves.
	OnResult func(Result)
}

// Result is delivered when a command resolves.
type Result struct {
	CommandID string
	DeviceID  string
	Kind      model.Kind
	Target    model.SwitchState
	Origin    model.Origin
	FaultID   string
	Outcome   Outcome
	Elapsed   time.Duration
}

// Pending describes an in-flight command.
type Pending struct {
	CommandID string            `json:"commandId"`
	DeviceID  string            `json:"deviceId"`
	Kind      model.Kind        `json:"kind"`
	Target    model.SwitchState `json:"target"`
	Origin    model.Origin      `json:"origin"`
	StartedAt time.Time         `json:"startedAt"`
	DueAt     time.Time         `json:"dueAt"`
	TimeoutAt time.Time         `json:"timeoutAt"`
}

// Recorder observes resolved commands.
type Recorder interface {
	ObserveCommand(kind model.Kind, origin model.Origin, outcome string, elapsed time.Duration)
}

type pendingCommand struct {
	Pending
	req           Request
	willFail      bool
	completeTimer string
	timeoutTimer  string
}

// Scheduler executes open/close commands with per-kind timing, one pending
// command per device. It is the only writer of device state.
type Scheduler struct {
	net    Network
	timers timer.EventScheduler
	cfg    Config
	rng    Rand
	sink   model.EventSink
	rec    Recorder
	log    logging.Logger
	newID  func() string

	mu      sync.Mutex
	pending map[string]*pendingCommand
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithConfig(cfg Config) Option         { return func(s *Scheduler) { s.cfg = cfg } }
func WithRand(r Rand) Option               { return func(s *Scheduler) { s.rng = r } }
func WithEventSink(sink model.EventSink) Option {
	return func(s *Scheduler) { s.sink = sink }
}
func WithRecorder(rec Recorder) Option     { return func(s *Scheduler) { s.rec = rec } }
func WithLogger(log logging.Logger) Option { return func(s *Scheduler) { s.log = log } }

// WithIDGenerator replaces the UUID command IDs.
func WithIDGenerator(fn func() string) Option { return func(s *Scheduler) { s.newID = fn } }

// NewScheduler creates a scheduler writing to net and timing through timers.
func NewScheduler(net Network, timers timer.EventScheduler, opts ...Option) *Scheduler {
	s := &Scheduler{
		net:     net,
		timers:  timers,
		cfg:     DefaultConfig(),
		pending: make(map[string]*pendingCommand),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = NewRand(time.Now().UnixNano())
	}
	if s.sink == nil {
		s.sink = model.EventSinkFunc(func(model.Event) {})
	}
	if s.log == nil {
		s.log = logging.Noop()
	}
	return s
}

// Schedule validates req and starts the command. Rejections are returned as
// errors, emitted as command.rejected and leave the device untouched.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (string, error) {
	if req.Origin == "" {
		req.Origin = model.OriginOperator
	}

	dev, profile, err := s.admit(req)
	if err != nil {
		s.reject(ctx, req, dev, err)
		return "", err
	}

	now := s.timers.Now()
	completeIn := profile.Complete + jitter(profile.CompleteJitter, s.rng.Float64())
	timeoutIn := profile.Timeout + jitter(profile.TimeoutJitter, s.rng.Float64())
	willFail := s.rng.Float64() < profile.FailureProbability

	p := &pendingCommand{
		Pending: Pending{
			CommandID: s.newID(),
			DeviceID:  dev.ID,
			Kind:      dev.Kind,
			Target:    req.Target,
			Origin:    req.Origin,
			StartedAt: now,
			DueAt:     now.Add(completeIn),
			TimeoutAt: now.Add(timeoutIn),
		},
		req:      req,
		willFail: willFail,
	}

	s.mu.Lock()
	if _, busy := s.pending[dev.ID]; busy {
		s.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrBusy, dev.Label())
		s.reject(ctx, req, dev, err)
		return "", err
	}
	s.pending[dev.ID] = p
	s.mu.Unlock()

	if err := s.net.Mutate(dev.ID, func(d *model.Device) { d.Moving = true }); err != nil {
		s.mu.Lock()
		delete(s.pending, dev.ID)
		s.mu.Unlock()
		return "", err
	}

	s.mu.Lock()
	p.completeTimer = s.timers.Schedule(p.DueAt, func() { s.complete(p) })
	p.timeoutTimer = s.timers.Schedule(p.TimeoutAt, func() { s.timeout(p) })
	s.mu.Unlock()

	s.emit(p, model.EventCommandAccepted, model.SeverityInfo,
		fmt.Sprintf("%s %s commanded (%s)", dev.Label(), req.Target.Verb(), req.Origin))
	s.log.Debug(ctx, "command accepted",
		logging.CommandID(p.CommandID),
		logging.DeviceID(dev.ID),
		logging.String("target", string(req.Target)),
		logging.String("origin", string(req.Origin)),
		logging.Any("complete_in", completeIn),
		logging.Any("timeout_in", timeoutIn),
	)
	return p.CommandID, nil
}

func (s *Scheduler) admit(req Request) (model.Device, Profile, error) {
	dev, ok := s.net.Device(req.DeviceID)
	if !ok {
		return model.Device{ID: req.DeviceID}, Profile{}, fmt.Errorf("%w: %q", ErrUnknownDevice, req.DeviceID)
	}
	profile, ok := s.cfg.ProfileFor(dev.Kind)
	if !ok {
		return dev, Profile{}, fmt.Errorf("%w: %s is a %s", ErrNotSwitchable, dev.ID, dev.Kind)
	}
	if req.Kind != "" && req.Kind != dev.Kind {
		return dev, Profile{}, fmt.Errorf("%w: %s is a %s, not a %s", ErrKindMismatch, dev.ID, dev.Kind, req.Kind)
	}
	if !req.Target.Valid() {
		return dev, Profile{}, fmt.Errorf("%w: %q", ErrInvalidTarget, req.Target)
	}

	s.mu.Lock()
	_, busy := s.pending[dev.ID]
	s.mu.Unlock()
	if busy {
		return dev, Profile{}, fmt.Errorf("%w: %s", ErrBusy, dev.Label())
	}

	decision := core.EvaluateInterlock(dev.ID, req.Target, s.net.Devices(), s.net.Rules())
	if !decision.Allowed {
		return dev, Profile{}, &core.InterlockError{DeviceID: dev.ID, Target: req.Target, Decision: decision}
	}

	if dev.Health == model.HealthDestroyed {
		return dev, Profile{}, fmt.Errorf("%w: %s", ErrDeviceDestroyed, dev.Label())
	}
	if dev.State == req.Target {
		return dev, Profile{}, fmt.Errorf("%w: %s is already %s", ErrNoChange, dev.Label(), dev.State)
	}
	return dev, profile, nil
}

func (s *Scheduler) reject(ctx context.Context, req Request, dev model.Device, err error) {
	s.sink.Emit(model.Event{
		Time:       s.timers.Now(),
		Type:       model.EventCommandRejected,
		Severity:   model.SeverityWarning,
		DeviceID:   req.DeviceID,
		DeviceKind: dev.Kind,
		Target:     req.Target,
		Origin:     req.Origin,
		FaultID:    req.FaultID,
		Message:    err.Error(),
	})
	s.log.Info(ctx, "command rejected",
		logging.DeviceID(req.DeviceID),
		logging.String("target", string(req.Target)),
		logging.String("reason", err.Error()),
	)
}

// take removes p from the pending table if it is still the current command
// for its device. Only the first of completion, timeout or cancel wins.
func (s *Scheduler) take(p *pendingCommand) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[p.DeviceID] != p {
		return false
	}
	delete(s.pending, p.DeviceID)
	return true
}

func (s *Scheduler) complete(p *pendingCommand) {
	if !s.take(p) {
		return
	}
	s.timers.Cancel(p.timeoutTimer)

	if p.willFail {
		_ = s.net.Mutate(p.DeviceID, func(d *model.Device) { d.Moving = false })
		s.emit(p, model.EventCommandFailed, model.SeverityError,
			fmt.Sprintf("%s failed to %s", s.label(p), p.Target.Verb()))
		s.finish(p, OutcomeFailed)
		return
	}

	_ = s.net.Mutate(p.DeviceID, func(d *model.Device) {
		d.State = p.Target
		d.Moving = false
	})
	s.emit(p, model.EventCommandSucceeded, model.SeverityInfo,
		fmt.Sprintf("%s %s", s.label(p), p.Target))
	s.finish(p, OutcomeSucceeded)
}

func (s *Scheduler) timeout(p *pendingCommand) {
	if !s.take(p) {
		return
	}
	s.timers.Cancel(p.completeTimer)

	// The physical position is unknown; the recorded state stays as it was.
	_ = s.net.Mutate(p.DeviceID, func(d *model.Device) { d.Moving = false })
	s.emit(p, model.EventCommandTimeout, model.SeverityError,
		fmt.Sprintf("%s did not report %s in time, position unknown", s.label(p), p.Target))
	s.finish(p, OutcomeTimeout)
}

// Cancel drops the pending command for deviceID, if any, and clears the
// motion flag. It reports whether a command was cancelled.
func (s *Scheduler) Cancel(deviceID string) bool {
	s.mu.Lock()
	p, ok := s.pending[deviceID]
	if ok {
		delete(s.pending, deviceID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.timers.Cancel(p.completeTimer)
	s.timers.Cancel(p.timeoutTimer)
	_ = s.net.Mutate(deviceID, func(d *model.Device) { d.Moving = false })
	s.emit(p, model.EventCommandCancelled, model.SeverityWarning,
		fmt.Sprintf("%s %s cancelled", s.label(p), p.Target.Verb()))
	s.finish(p, OutcomeCancelled)
	return true
}

// CancelAll drops every pending command.
func (s *Scheduler) CancelAll() {
	for _, p := range s.PendingCommands() {
		s.Cancel(p.DeviceID)
	}
}

func (s *Scheduler) finish(p *pendingCommand, outcome Outcome) {
	elapsed := s.timers.Now().Sub(p.StartedAt)
	if s.rec != nil {
		s.rec.ObserveCommand(p.Kind, p.Origin, string(outcome), elapsed)
	}
	if p.req.OnResult != nil {
		p.req.OnResult(Result{
			CommandID: p.CommandID,
			DeviceID:  p.DeviceID,
			Kind:      p.Kind,
			Target:    p.Target,
			Origin:    p.Origin,
			FaultID:   p.req.FaultID,
			Outcome:   outcome,
			Elapsed:   elapsed,
		})
	}
}

func (s *Scheduler) emit(p *pendingCommand, typ model.EventType, sev model.EventSeverity, msg string) {
	s.sink.Emit(model.Event{
		Time:       s.timers.Now(),
		Type:       typ,
		Severity:   sev,
		DeviceID:   p.DeviceID,
		DeviceKind: p.Kind,
		Target:     p.Target,
		Origin:     p.Origin,
		CommandID:  p.CommandID,
		FaultID:    p.req.FaultID,
		Message:    msg,
	})
}

func (s *Scheduler) label(p *pendingCommand) string {
	return p.Kind.Short() + " " + p.DeviceID
}

// Busy reports whether deviceID has a command in flight.
func (s *Scheduler) Busy(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[deviceID]
	return ok
}

// PendingFor returns the in-flight command for deviceID.
func (s *Scheduler) PendingFor(deviceID string) (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[deviceID]
	if !ok {
		return Pending{}, false
	}
	return p.Pending, true
}

// PendingCommands lists in-flight commands sorted by device ID.
func (s *Scheduler) PendingCommands() []Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Pending, 0, len(s.pending))
	for _, p := range s.pending {
		out = append(out, p.Pending)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func jitter(span time.Duration, r float64) time.Duration {
	if span <= 0 {
		return 0
	}
	return time.Duration(float64(span) * r)
}
