package protection

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/command"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/timer"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

var (
	ErrFaultNotFound      = errors.New("fault not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrInvalidPosition    = errors.New("fault position must be within [0,1]")
	ErrInvalidSeverity    = errors.New("invalid fault severity")
	ErrDeviceNotFound     = errors.New("device not found")
)

// Settings are the engine-wide protection constants.
type Settings struct {
	DestructionProbability float64       `mapstructure:"destruction_probability"`
	TransientClearDelay    time.Duration `mapstructure:"transient_clear_delay"`
	DefaultAttempts        int           `mapstructure:"default_attempts"`
	DefaultDeadTime        time.Duration `mapstructure:"default_dead_time"`
	DefaultSettleTime      time.Duration `mapstructure:"default_settle_time"`
}

// DefaultSettings returns the trainer defaults.
func DefaultSettings() Settings {
	return Settings{
		DestructionProbability: 0.3,
		TransientClearDelay:    500 * time.Millisecond,
		DefaultAttempts:        1,
		DefaultDeadTime:        time.Second,
		DefaultSettleTime:      300 * time.Millisecond,
	}
}

// Validate rejects impossible settings.
func (s Settings) Validate() error {
	if s.DestructionProbability < 0 || s.DestructionProbability > 1 {
		return fmt.Errorf("destruction probability %v outside [0,1]", s.DestructionProbability)
	}
	if s.TransientClearDelay < 0 || s.DefaultDeadTime < 0 || s.DefaultSettleTime < 0 || s.DefaultAttempts < 0 {
		return fmt.Errorf("negative protection setting %+v", s)
	}
	return nil
}

// Commander is the command scheduler as seen by protection. Every trip,
// reclose and isolation goes through it.
type Commander interface {
	Schedule(ctx context.Context, req command.Request) (string, error)
	Cancel(deviceID string) bool
}

// Network is the slice of the network model protection reads and flags.
type Network interface {
	Device(id string) (model.Device, bool)
	Connection(id string) (model.Connection, bool)
	ConnectionsOf(deviceID string) []model.Connection
	Mutate(id string, fn func(*model.Device)) error
}

// FaultRequest describes a fault to inject.
type FaultRequest struct {
	ConnectionID string
	Position     float64
	Severity     model.Severity
	Persistent   bool
}

type faultState struct {
	fault model.Fault
	// bypass holds breakers that cannot clear this fault any more.
	bypass     core.IDSet
	tripping   core.IDSet
	clearTimer string
}

type phase int

const (
	phaseTrip phase = iota
	phaseReopen
	phaseFinal
)

// darCycle tracks one breaker's auto-reclose sequence.
type darCycle struct {
	breaker  string
	faultID  string
	attempts int
	max      int
	dead     time.Duration
	settle   time.Duration
	timer    string
}

// Engine resolves injected faults into trips, auto-reclose and lockout.
//
// Engine is not safe for concurrent use; the Simulation serializes calls and
// timer callbacks.
type Engine struct {
	net      Network
	cmds     Commander
	timers   timer.EventScheduler
	rng      command.Rand
	sink     model.EventSink
	log      logging.Logger
	settings Settings
	newID    func() string

	faults map[string]*faultState
	order  []string
	cycles map[string]*darCycle
}

// Option configures an Engine.
type Option func(*Engine)

func WithSettings(s Settings) Option            { return func(e *Engine) { e.settings = s } }
func WithRand(r command.Rand) Option            { return func(e *Engine) { e.rng = r } }
func WithEventSink(sink model.EventSink) Option { return func(e *Engine) { e.sink = sink } }
func WithLogger(log logging.Logger) Option      { return func(e *Engine) { e.log = log } }
func WithIDGenerator(fn func() string) Option   { return func(e *Engine) { e.newID = fn } }

// NewEngine creates a protection engine.
func NewEngine(net Network, cmds Commander, timers timer.EventScheduler, opts ...Option) *Engine {
	e := &Engine{
		net:      net,
		cmds:     cmds,
		timers:   timers,
		settings: DefaultSettings(),
		newID:    uuid.NewString,
		faults:   make(map[string]*faultState),
		cycles:   make(map[string]*darCycle),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = command.NewRand(time.Now().UnixNano())
	}
	if e.sink == nil {
		e.sink = model.EventSinkFunc(func(model.Event) {})
	}
	if e.log == nil {
		e.log = logging.Noop()
	}
	return e
}

//
// ---------- Faults ----------
//

// InjectFault records a fault on a connection and starts isolating it.
func (e *Engine) InjectFault(ctx context.Context, req FaultRequest) (model.Fault, error) {
	c, ok := e.net.Connection(req.ConnectionID)
	if !ok {
		return model.Fault{}, fmt.Errorf("%w: %q", ErrConnectionNotFound, req.ConnectionID)
	}
	if req.Position < 0 || req.Position > 1 {
		return model.Fault{}, fmt.Errorf("%w: %v", ErrInvalidPosition, req.Position)
	}
	sev, err := model.ParseSeverity(string(req.Severity))
	if err != nil {
		return model.Fault{}, fmt.Errorf("%w: %v", ErrInvalidSeverity, err)
	}

	fs := &faultState{
		fault: model.Fault{
			ID:           e.newID(),
			ConnectionID: c.ID,
			Endpoints:    [2]string{c.From, c.To},
			BusGroup:     c.BusGroup,
			Position:     req.Position,
			Severity:     sev,
			Persistent:   req.Persistent,
			Status:       model.FaultActive,
			CreatedAt:    e.timers.Now(),
			Marker:       req.Persistent,
		},
		bypass:   make(core.IDSet),
		tripping: make(core.IDSet),
	}
	e.faults[fs.fault.ID] = fs
	e.order = append(e.order, fs.fault.ID)

	e.emit(model.Event{
		Type:     model.EventFaultInjected,
		Severity: model.SeverityError,
		FaultID:  fs.fault.ID,
		Message: fmt.Sprintf("%s fault on %s (%s-%s) at %.0f%%",
			sev, c.ID, c.From, c.To, req.Position*100),
	})
	if fs.fault.Persistent {
		e.emit(model.Event{
			Type:     model.EventFaultMarker,
			Severity: model.SeverityWarning,
			FaultID:  fs.fault.ID,
			Message:  fmt.Sprintf("persistent fault marker placed on %s", c.ID),
		})
	}
	e.log.Info(ctx, "fault injected",
		logging.FaultID(fs.fault.ID),
		logging.ConnectionID(c.ID),
		logging.String("severity", string(sev)),
		logging.Any("persistent", req.Persistent),
	)

	trips := e.resolveTripSet(fs)
	fs.fault.TripSet = trips
	if len(trips) == 0 {
		e.faultTransformer(fs)
	}
	for _, b := range trips {
		e.trip(ctx, fs, b, phaseTrip)
	}

	if !fs.fault.Persistent {
		id := fs.fault.ID
		fs.clearTimer = e.timers.Schedule(e.timers.Now().Add(e.settings.TransientClearDelay), func() {
			e.selfClear(id)
		})
	}
	return fs.fault.Clone(), nil
}

// resolveTripSet finds the breakers that will clear fs. Under extreme
// severity each candidate may be destroyed, in which case it stays stuck
// closed and the search continues to the breakers behind it.
func (e *Engine) resolveTripSet(fs *faultState) []string {
	drawn := make(core.IDSet)
	for {
		trips := e.findBreakers(fs)
		destroyed := false
		for _, b := range trips {
			if drawn.Has(b) {
				continue
			}
			drawn.Add(b)
			if fs.fault.Severity != model.SeverityExtreme {
				continue
			}
			if e.rng.Float64() >= e.settings.DestructionProbability {
				continue
			}
			e.destroy(fs, b)
			destroyed = true
		}
		if !destroyed {
			return trips
		}
	}
}

func (e *Engine) destroy(fs *faultState, breakerID string) {
	_ = e.net.Mutate(breakerID, func(d *model.Device) { d.Health = model.HealthDestroyed })
	fs.bypass.Add(breakerID)
	fs.fault.DestroyedBreakers = append(fs.fault.DestroyedBreakers, breakerID)
	e.emitDevice(breakerID, model.Event{
		Type:     model.EventBreakerDestroyed,
		Severity: model.SeverityError,
		FaultID:  fs.fault.ID,
		Message:  fmt.Sprintf("CB %s destroyed by %s fault, stuck closed", breakerID, fs.fault.Severity),
	})
}

// findBreakers runs a breadth-first search from both fault endpoints. A
// healthy closed breaker joins the result and stops the search on that path.
// Open switches, earth switches and sources block it. Breakers in the
// fault's bypass set are passed through.
func (e *Engine) findBreakers(fs *faultState) []string {
	found := make(core.IDSet)
	e.walk(fs, func(d model.Device) bool {
		if d.Kind == model.KindBreaker && d.State == model.StateClosed &&
			d.Health.Usable() && !fs.bypass.Has(d.ID) {
			found.Add(d.ID)
			return true
		}
		return false
	})
	return found.Sorted()
}

// faultTransformer marks the nearest transformer when no breaker can clear
// the fault. No command is scheduled.
func (e *Engine) faultTransformer(fs *faultState) {
	var hit string
	e.walk(fs, func(d model.Device) bool {
		if hit == "" && d.Kind == model.KindTransformer {
			hit = d.ID
			return true
		}
		return hit != ""
	})
	if hit == "" {
		e.emit(model.Event{
			Type:     model.EventTripRejected,
			Severity: model.SeverityError,
			FaultID:  fs.fault.ID,
			Message:  fmt.Sprintf("no breaker or transformer can clear fault on %s", fs.fault.ConnectionID),
		})
		return
	}
	_ = e.net.Mutate(hit, func(d *model.Device) { d.Faulted = true })
	fs.fault.FaultedTransformer = hit
	e.emitDevice(hit, model.Event{
		Type:     model.EventTransformerFaulted,
		Severity: model.SeverityError,
		FaultID:  fs.fault.ID,
		Message:  fmt.Sprintf("no breaker reachable, transformer %s faulted", hit),
	})
}

// walk visits devices breadth-first from the fault endpoints. stop reports
// that a device terminates its path.
func (e *Engine) walk(fs *faultState, stop func(model.Device) bool) {
	visited := make(core.IDSet)
	queue := make([]string, 0, 2)
	for _, id := range fs.fault.Endpoints {
		if !visited.Has(id) {
			visited.Add(id)
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		d, ok := e.net.Device(cur)
		if !ok || stop(d) || !passes(d) {
			continue
		}
		for _, c := range e.net.ConnectionsOf(cur) {
			next := c.Other(cur)
			if visited.Has(next) {
				continue
			}
			visited.Add(next)
			queue = append(queue, next)
		}
	}
}

// passes reports whether fault current flows on through d.
func passes(d model.Device) bool {
	switch d.Kind {
	case model.KindBreaker, model.KindDisconnector:
		return d.State == model.StateClosed
	case model.KindEarthSwitch, model.KindSource:
		return false
	case model.KindLoad, model.KindInterface, model.KindJunction, model.KindTransformer,
		model.KindCT, model.KindVT, model.KindShuntReactor, model.KindCapacitorBank:
		return true
	default:
		return false
	}
}

func (e *Engine) selfClear(id string) {
	fs, ok := e.faults[id]
	if !ok || !fs.fault.Active() {
		return
	}
	fs.clearTimer = ""
	fs.fault.Status = model.FaultCleared
	fs.fault.ClearedAt = e.timers.Now()
	e.emit(model.Event{
		Type:     model.EventFaultCleared,
		Severity: model.SeverityInfo,
		FaultID:  id,
		Message:  fmt.Sprintf("transient fault on %s cleared", fs.fault.ConnectionID),
	})
}

// ClearFault clears a fault on operator request and cancels any reclose
// still pending against it. A fault that has already cleared only releases
// its transformer.
func (e *Engine) ClearFault(ctx context.Context, id string) error {
	fs, ok := e.faults[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrFaultNotFound, id)
	}
	if !fs.fault.Active() {
		e.releaseTransformer(fs)
		return nil
	}
	if fs.clearTimer != "" {
		e.timers.Cancel(fs.clearTimer)
		fs.clearTimer = ""
	}
	for b, c := range e.cycles {
		if c.faultID == id {
			e.timers.Cancel(c.timer)
			delete(e.cycles, b)
		}
	}

	fs.fault.Status = model.FaultCleared
	fs.fault.ClearedByOperator = true
	fs.fault.Marker = false
	fs.fault.ClearedAt = e.timers.Now()
	e.releaseTransformer(fs)

	e.emit(model.Event{
		Type:     model.EventFaultCleared,
		Severity: model.SeverityInfo,
		FaultID:  id,
		Message:  fmt.Sprintf("fault on %s cleared by operator", fs.fault.ConnectionID),
	})
	e.log.Info(ctx, "fault cleared", logging.FaultID(id))
	return nil
}

func (e *Engine) releaseTransformer(fs *faultState) {
	if t := fs.fault.FaultedTransformer; t != "" {
		_ = e.net.Mutate(t, func(d *model.Device) { d.Faulted = false })
	}
}

// Fault returns a copy of the fault with the given ID.
func (e *Engine) Fault(id string) (model.Fault, bool) {
	fs, ok := e.faults[id]
	if !ok {
		return model.Fault{}, false
	}
	return fs.fault.Clone(), true
}

// Faults lists faults in injection order.
func (e *Engine) Faults() []model.Fault {
	out := make([]model.Fault, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.faults[id].fault.Clone())
	}
	return out
}

// ActiveFaults counts faults that still stand.
func (e *Engine) ActiveFaults() int {
	n := 0
	for _, fs := range e.faults {
		if fs.fault.Active() {
			n++
		}
	}
	return n
}

// FaultBlockedDevices lists the endpoints of active persistent faults. These
// devices must not be treated as in use until the fault is cleared.
func (e *Engine) FaultBlockedDevices() []string {
	set := make(core.IDSet)
	for _, fs := range e.faults {
		if fs.fault.Active() && fs.fault.Persistent {
			set.Add(fs.fault.Endpoints[0])
			set.Add(fs.fault.Endpoints[1])
		}
	}
	return set.Sorted()
}

// Reclosing lists breakers with an auto-reclose sequence in progress.
func (e *Engine) Reclosing() []string {
	out := make([]string, 0, len(e.cycles))
	for b := range e.cycles {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Reset drops every fault and reclose sequence. Pending commands are the
// scheduler's to cancel.
func (e *Engine) Reset() {
	for _, fs := range e.faults {
		if fs.clearTimer != "" {
			e.timers.Cancel(fs.clearTimer)
		}
	}
	for _, c := range e.cycles {
		e.timers.Cancel(c.timer)
	}
	e.faults = make(map[string]*faultState)
	e.order = nil
	e.cycles = make(map[string]*darCycle)
}

//
// ---------- Device conditions ----------
//

// ResetCondition clears failed/destroyed health, lockout, the transformer
// fault flag and motion on a device, cancelling any command or reclose in
// flight for it. Fault history is kept.
func (e *Engine) ResetCondition(ctx context.Context, deviceID string) error {
	dev, ok := e.net.Device(deviceID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	e.dropCycle(deviceID)
	e.cmds.Cancel(deviceID)

	_ = e.net.Mutate(deviceID, func(d *model.Device) {
		d.Health = model.HealthOK
		d.Faulted = false
		d.Moving = false
		if d.Protection != nil {
			d.Protection.Lockout = false
		}
	})
	e.emitDevice(deviceID, model.Event{
		Type:     model.EventDeviceReset,
		Severity: model.SeverityInfo,
		Message:  fmt.Sprintf("%s condition reset", dev.Label()),
	})
	e.log.Info(ctx, "device condition reset", logging.DeviceID(deviceID))
	return nil
}

//
// ---------- Trip / reclose state machine ----------
//

func (e *Engine) trip(ctx context.Context, fs *faultState, breakerID string, ph phase) {
	fs.tripping.Add(breakerID)
	faultID := fs.fault.ID
	_, err := e.cmds.Schedule(ctx, command.Request{
		DeviceID: breakerID,
		Kind:     model.KindBreaker,
		Target:   model.StateOpen,
		Origin:   model.OriginProtection,
		FaultID:  faultID,
		OnResult: func(r command.Result) { e.onTripResult(faultID, breakerID, ph, r) },
	})
	if err != nil {
		e.emitDevice(breakerID, model.Event{
			Type:     model.EventTripRejected,
			Severity: model.SeverityError,
			FaultID:  faultID,
			Message:  fmt.Sprintf("trip of CB %s rejected: %v", breakerID, err),
		})
		switch ph {
		case phaseFinal:
			e.lockout(ctx, fs, breakerID)
		case phaseReopen:
			e.dropCycle(breakerID)
		}
		if errors.Is(err, command.ErrBusy) || errors.Is(err, command.ErrNoChange) {
			return
		}
		e.escalate(ctx, fs, breakerID)
		return
	}
	msg := fmt.Sprintf("CB %s tripping", breakerID)
	if ph != phaseTrip {
		msg = fmt.Sprintf("CB %s reopening onto standing fault", breakerID)
	}
	e.emitDevice(breakerID, model.Event{
		Type:     model.EventTrip,
		Severity: model.SeverityWarning,
		Origin:   model.OriginProtection,
		FaultID:  faultID,
		Message:  msg,
	})
}

func (e *Engine) onTripResult(faultID, breakerID string, ph phase, r command.Result) {
	ctx := context.Background()
	fs, ok := e.faults[faultID]
	if !ok || r.Outcome == command.OutcomeCancelled {
		return
	}

	switch r.Outcome {
	case command.OutcomeSucceeded:
	case command.OutcomeFailed, command.OutcomeTimeout:
		// The breaker is stuck closed on the fault.
		_ = e.net.Mutate(breakerID, func(d *model.Device) { d.Health = model.HealthFailed })
		e.emitDevice(breakerID, model.Event{
			Type:     model.EventBreakerFailure,
			Severity: model.SeverityError,
			FaultID:  faultID,
			Message:  fmt.Sprintf("CB %s failed to open (%s), backup protection engaged", breakerID, r.Outcome),
		})
		if ph == phaseFinal {
			e.lockout(ctx, fs, breakerID)
		} else {
			e.dropCycle(breakerID)
		}
		e.escalate(ctx, fs, breakerID)
		return
	case command.OutcomeCancelled:
		return
	}

	if ph == phaseFinal {
		e.lockout(ctx, fs, breakerID)
		return
	}
	if fs.fault.ClearedByOperator {
		return
	}

	dev, ok := e.net.Device(breakerID)
	if !ok || dev.Protection == nil || !dev.Protection.DAREnabled || dev.Protection.Lockout {
		return
	}

	c, ok := e.cycles[breakerID]
	if ok && c.faultID != faultID {
		e.dropCycle(breakerID)
		ok = false
	}
	if !ok {
		c = &darCycle{
			breaker: breakerID,
			faultID: faultID,
			max:     dev.Protection.Attempts,
			dead:    dev.Protection.DeadTime,
			settle:  dev.Protection.SettleTime,
		}
		if c.max <= 0 {
			c.max = e.settings.DefaultAttempts
		}
		if c.dead <= 0 {
			c.dead = e.settings.DefaultDeadTime
		}
		if c.settle <= 0 {
			c.settle = e.settings.DefaultSettleTime
		}
		e.cycles[breakerID] = c
	}
	if c.attempts >= c.max {
		delete(e.cycles, breakerID)
		return
	}
	c.timer = e.timers.Schedule(e.timers.Now().Add(c.dead), func() { e.reclose(c) })
}

// dropCycle abandons the reclose sequence on a breaker, if any.
func (e *Engine) dropCycle(breakerID string) {
	if c, ok := e.cycles[breakerID]; ok {
		e.timers.Cancel(c.timer)
		delete(e.cycles, breakerID)
	}
}

// escalate hands the fault to the breakers behind one that cannot clear it.
func (e *Engine) escalate(ctx context.Context, fs *faultState, breakerID string) {
	fs.bypass.Add(breakerID)
	for _, b := range e.findBreakers(fs) {
		if fs.tripping.Has(b) {
			continue
		}
		fs.fault.TripSet = append(fs.fault.TripSet, b)
		e.trip(ctx, fs, b, phaseTrip)
	}
}

func (e *Engine) reclose(c *darCycle) {
	if e.cycles[c.breaker] != c {
		return
	}
	c.timer = ""
	fs, ok := e.faults[c.faultID]
	if !ok || fs.fault.ClearedByOperator {
		delete(e.cycles, c.breaker)
		return
	}

	c.attempts++
	e.emitDevice(c.breaker, model.Event{
		Type:     model.EventReclose,
		Severity: model.SeverityWarning,
		Origin:   model.OriginProtection,
		FaultID:  c.faultID,
		Message:  fmt.Sprintf("CB %s auto-reclose attempt %d of %d", c.breaker, c.attempts, c.max),
	})
	_, err := e.cmds.Schedule(context.Background(), command.Request{
		DeviceID: c.breaker,
		Kind:     model.KindBreaker,
		Target:   model.StateClosed,
		Origin:   model.OriginProtection,
		FaultID:  c.faultID,
		OnResult: func(r command.Result) { e.onRecloseResult(c, r) },
	})
	if err != nil {
		e.log.Warn(context.Background(), "reclose rejected",
			logging.DeviceID(c.breaker),
			logging.String("error", err.Error()),
		)
		e.lockout(context.Background(), fs, c.breaker)
	}
}

func (e *Engine) onRecloseResult(c *darCycle, r command.Result) {
	if e.cycles[c.breaker] != c || r.Outcome == command.OutcomeCancelled {
		return
	}
	fs := e.faults[c.faultID]
	if r.Outcome != command.OutcomeSucceeded {
		e.lockout(context.Background(), fs, c.breaker)
		return
	}
	c.timer = e.timers.Schedule(e.timers.Now().Add(c.settle), func() { e.settle(c) })
}

func (e *Engine) settle(c *darCycle) {
	if e.cycles[c.breaker] != c {
		return
	}
	c.timer = ""
	fs := e.faults[c.faultID]
	if fs == nil || !fs.fault.Active() {
		delete(e.cycles, c.breaker)
		e.emitDevice(c.breaker, model.Event{
			Type:     model.EventRecloseSuccess,
			Severity: model.SeverityInfo,
			Origin:   model.OriginProtection,
			FaultID:  c.faultID,
			Message:  fmt.Sprintf("CB %s reclosed successfully", c.breaker),
		})
		return
	}
	if c.attempts >= c.max {
		e.trip(context.Background(), fs, c.breaker, phaseFinal)
		return
	}
	e.trip(context.Background(), fs, c.breaker, phaseReopen)
}

// lockout latches the breaker against further reclose and isolates it via
// any adjacent auto-isolate disconnectors that are still closed.
func (e *Engine) lockout(ctx context.Context, fs *faultState, breakerID string) {
	e.dropCycle(breakerID)
	faultID := ""
	if fs != nil {
		faultID = fs.fault.ID
	}

	for _, conn := range e.net.ConnectionsOf(breakerID) {
		ds, ok := e.net.Device(conn.Other(breakerID))
		if !ok || ds.Kind != model.KindDisconnector || ds.State != model.StateClosed ||
			ds.Protection == nil || !ds.Protection.AutoIsolate {
			continue
		}
		_, err := e.cmds.Schedule(ctx, command.Request{
			DeviceID: ds.ID,
			Kind:     model.KindDisconnector,
			Target:   model.StateOpen,
			Origin:   model.OriginProtection,
			FaultID:  faultID,
		})
		if err != nil {
			continue
		}
		e.emitDevice(ds.ID, model.Event{
			Type:     model.EventAutoIsolate,
			Severity: model.SeverityWarning,
			Origin:   model.OriginProtection,
			FaultID:  faultID,
			Message:  fmt.Sprintf("DS %s auto-isolating CB %s", ds.ID, breakerID),
		})
	}

	_ = e.net.Mutate(breakerID, func(d *model.Device) {
		if d.Protection == nil {
			d.Protection = &model.Protection{}
		}
		d.Protection.Lockout = true
	})
	e.emitDevice(breakerID, model.Event{
		Type:     model.EventLockout,
		Severity: model.SeverityError,
		Origin:   model.OriginProtection,
		FaultID:  faultID,
		Message:  fmt.Sprintf("CB %s locked out", breakerID),
	})
	e.log.Warn(ctx, "breaker locked out",
		logging.DeviceID(breakerID),
		logging.FaultID(faultID),
	)
}

func (e *Engine) emit(ev model.Event) {
	ev.Time = e.timers.Now()
	e.sink.Emit(ev)
}

func (e *Engine) emitDevice(deviceID string, ev model.Event) {
	ev.DeviceID = deviceID
	if d, ok := e.net.Device(deviceID); ok {
		ev.DeviceKind = d.Kind
	}
	e.emit(ev)
}
