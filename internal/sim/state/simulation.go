// Package state owns a running switchgear simulation: the network, the
// command scheduler, the protection engine and the event log, serialized
// behind one lock.
package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/command"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/protection"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/timer"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

const tracerName = "github.com/signalsfoundry/switchgear-simulator/internal/sim/state"

// Re-export the sentinel errors callers most often branch on so they can
// depend on state.* alone.
var (
	// ErrDeviceNotFound indicates a requested device was not found.
	ErrDeviceNotFound = core.ErrDeviceNotFound
	// ErrConnectionNotFound indicates a requested connection was not found.
	ErrConnectionNotFound = core.ErrConnectionNotFound
	// ErrRuleNotFound indicates a requested interlock rule was not found.
	ErrRuleNotFound = core.ErrRuleNotFound
	// ErrFaultNotFound indicates a requested fault was not found.
	ErrFaultNotFound = protection.ErrFaultNotFound
	// ErrBusy indicates the device already has a command in flight.
	ErrBusy = command.ErrBusy
	// ErrNotSource indicates an energization change on a non-source device.
	ErrNotSource = errors.New("device is not a source")
	// ErrProtectionUnsupported indicates protection settings on a device
	// kind that cannot carry them.
	ErrProtectionUnsupported = errors.New("device kind cannot carry protection")
	// ErrDocumentRequired indicates a nil document was loaded.
	ErrDocumentRequired = errors.New("document is required")
)

// MetricsRecorder receives gauge updates and events from the simulation.
// Implementations that also satisfy command.Recorder are handed to the
// command scheduler.
type MetricsRecorder interface {
	SetNetworkCounts(devices, connections, rules int)
	SetTopologyState(energized, grounded, conflicts int)
	SetActiveFaults(n int)
	SetOverloadedEdges(n int)
	ObserveEvent(ev model.Event)
}

// Simulation is the single serialized execution context of one switchgear
// network. Public methods and timer callbacks all take mu, so no two of them
// ever mutate a device concurrently.
type Simulation struct {
	// mu serializes every operation and timer callback. Components below it
	// (Network, Scheduler, EventLog) have their own finer locks and are
	// always taken after mu.
	mu sync.Mutex

	name string
	net  *core.Network

	base   timer.EventScheduler
	timers *serialTimers
	cmds   *command.Scheduler
	prot   *protection.Engine
	events *EventLog

	cmdCfg   command.Config
	settings protection.Settings
	pfOpts   core.PowerFlowOptions
	rng      command.Rand
	logCap   int

	log     logging.Logger
	metrics MetricsRecorder
	tracer  trace.Tracer

	cond      core.ConductionResult
	gnd       core.GroundingResult
	conflicts []string
}

// Option customises Simulation construction.
type Option func(*Simulation)

// WithMetricsRecorder attaches an optional recorder for gauges and events.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Simulation) {
		s.metrics = m
	}
}

// WithCommandConfig overrides the command timing profiles.
func WithCommandConfig(cfg command.Config) Option {
	return func(s *Simulation) {
		s.cmdCfg = cfg
	}
}

// WithProtectionSettings overrides the protection engine settings.
func WithProtectionSettings(p protection.Settings) Option {
	return func(s *Simulation) {
		s.settings = p
	}
}

// WithRand sets the random source shared by command timing and breaker
// destruction draws.
func WithRand(r command.Rand) Option {
	return func(s *Simulation) {
		s.rng = r
	}
}

// WithEventLogCapacity bounds the in-memory event log.
func WithEventLogCapacity(n int) Option {
	return func(s *Simulation) {
		s.logCap = n
	}
}

// WithPowerFlowOptions sets the bus voltage thresholds.
func WithPowerFlowOptions(o core.PowerFlowOptions) Option {
	return func(s *Simulation) {
		s.pfOpts = o
	}
}

// WithName names the loaded network; LoadDocument replaces it.
func WithName(name string) Option {
	return func(s *Simulation) {
		s.name = name
	}
}

// NewSimulation creates an empty simulation timed by timers. The caller
// drives time and calls RunDue (or AdvanceTo on a virtual scheduler) without
// holding any simulation lock.
func NewSimulation(timers timer.EventScheduler, log logging.Logger, opts ...Option) *Simulation {
	if log == nil {
		log = logging.Noop()
	}
	s := &Simulation{
		base:     timers,
		cmdCfg:   command.DefaultConfig(),
		settings: protection.DefaultSettings(),
		pfOpts:   core.DefaultPowerFlowOptions(),
		log:      log,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = command.NewRand(time.Now().UnixNano())
	}
	s.events = NewEventLog(s.logCap)
	s.timers = &serialTimers{sim: s, base: timers}

	s.mu.Lock()
	s.wireLocked(core.NewNetwork())
	s.refreshLocked(context.Background())
	s.mu.Unlock()
	return s
}

// wireLocked builds a scheduler and protection engine around net.
func (s *Simulation) wireLocked(net *core.Network) {
	s.net = net
	sink := model.EventSinkFunc(s.emit)

	cmdOpts := []command.Option{
		command.WithConfig(s.cmdCfg),
		command.WithRand(s.rng),
		command.WithEventSink(sink),
		command.WithLogger(s.log),
	}
	if rec, ok := s.metrics.(command.Recorder); ok {
		cmdOpts = append(cmdOpts, command.WithRecorder(rec))
	}
	s.cmds = command.NewScheduler(net, s.timers, cmdOpts...)
	s.prot = protection.NewEngine(net, s.cmds, s.timers,
		protection.WithSettings(s.settings),
		protection.WithRand(s.rng),
		protection.WithEventSink(sink),
		protection.WithLogger(s.log),
	)
	s.conflicts = nil
}

// emit is the sink shared by the scheduler and the engine.
func (s *Simulation) emit(ev model.Event) {
	if ev.Time.IsZero() {
		ev.Time = s.base.Now()
	}
	stored := s.events.Append(ev)
	if s.metrics != nil {
		s.metrics.ObserveEvent(stored)
	}
}

// refreshLocked recomputes conduction and grounding after a state change and
// reports newly appeared energized-and-grounded connections.
func (s *Simulation) refreshLocked(ctx context.Context) {
	snap := s.net.Snapshot()
	s.cond = core.ComputeConduction(snap.Devices, snap.Connections)
	s.gnd = core.ComputeGrounding(snap.Devices, snap.Connections)
	conflicts := core.DetectConflicts(s.cond, s.gnd)

	if len(conflicts) > 0 && !equalIDs(conflicts, s.conflicts) {
		s.emit(model.Event{
			Type:     model.EventNetworkConflict,
			Severity: model.SeverityWarning,
			Message:  "energized and grounded: " + strings.Join(conflicts, ", "),
		})
		s.log.Warn(ctx, "network conflict",
			logging.Any("connections", conflicts),
			logging.SimTime(s.base.Now()),
		)
	}
	s.conflicts = conflicts
	s.updateMetricsLocked(snap)
}

func (s *Simulation) updateMetricsLocked(snap core.Snapshot) {
	if s.metrics == nil {
		return
	}
	s.metrics.SetNetworkCounts(len(snap.Devices), len(snap.Connections), len(snap.Rules))
	s.metrics.SetTopologyState(len(s.cond.EnergizedDevices), len(s.gnd.GroundedDevices), len(s.conflicts))
	s.metrics.SetActiveFaults(s.prot.ActiveFaults())
}

func (s *Simulation) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
		attrs = append(attrs, attribute.String("request_id", reqID))
	}
	return s.tracer.Start(ctx, "Simulation/"+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

//
// ---------- Time ----------
//

// Now returns the current simulation time.
func (s *Simulation) Now() time.Time {
	return s.base.Now()
}

// RunDue runs every timer whose time has come. It must not be called from
// inside a simulation callback.
func (s *Simulation) RunDue() {
	s.base.RunDue()
}

// serialTimers wraps the scheduler so every callback runs under the
// simulation lock and is followed by a recomputation.
type serialTimers struct {
	sim  *Simulation
	base timer.EventScheduler
}

func (t *serialTimers) Schedule(at time.Time, f func()) string {
	return t.base.Schedule(at, func() {
		t.sim.mu.Lock()
		defer t.sim.mu.Unlock()
		f()
		t.sim.refreshLocked(context.Background())
	})
}

func (t *serialTimers) Cancel(id string) { t.base.Cancel(id) }
func (t *serialTimers) Now() time.Time   { return t.base.Now() }
func (t *serialTimers) RunDue()          { t.base.RunDue() }

//
// ---------- Documents ----------
//

// LoadDocument validates doc and replaces the whole network with it. Pending
// commands are cancelled and fault history is dropped.
func (s *Simulation) LoadDocument(ctx context.Context, doc *core.Document) (err error) {
	if doc == nil {
		return ErrDocumentRequired
	}
	ctx, span := s.startSpan(ctx, "LoadDocument", attribute.String("network", doc.Name))
	defer func() { endSpan(span, err) }()
	ctx, reqLog := logging.WithRequestLogger(ctx, s.log)

	net, err := doc.Build()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cmds.CancelAll()
	s.prot.Reset()
	s.name = doc.Name
	s.wireLocked(net)

	devices, conns, rules := net.Counts()
	s.emit(model.Event{
		Type:     model.EventNetworkLoaded,
		Severity: model.SeverityInfo,
		Message:  fmt.Sprintf("network %q loaded: %d devices, %d connections, %d interlocks", doc.Name, devices, conns, rules),
	})
	s.refreshLocked(ctx)

	reqLog.Info(ctx, "network loaded",
		logging.String("network", doc.Name),
		logging.Int("devices", devices),
		logging.Int("connections", conns),
		logging.Int("rules", rules),
	)
	return nil
}

// Document returns the current network as a persistable document. Faults
// and pending commands are not part of it.
func (s *Simulation) Document() *core.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.DocumentFromSnapshot(s.name, s.net.Snapshot())
}

// Clear drops the network, pending commands and faults. The event log is
// kept.
func (s *Simulation) Clear(ctx context.Context) {
	ctx, reqLog := logging.WithRequestLogger(ctx, s.log)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cmds.CancelAll()
	s.prot.Reset()
	s.name = ""
	s.wireLocked(core.NewNetwork())
	s.refreshLocked(ctx)

	reqLog.Debug(ctx, "simulation cleared")
}

//
// ---------- Topology ----------
//

func (s *Simulation) changedLocked(ctx context.Context, msg string, deviceID string) {
	ev := model.Event{
		Type:     model.EventNetworkChanged,
		Severity: model.SeverityInfo,
		DeviceID: deviceID,
		Message:  msg,
	}
	if d, ok := s.net.Device(deviceID); ok {
		ev.DeviceKind = d.Kind
	}
	s.emit(ev)
	s.refreshLocked(ctx)
}

// AddDevice inserts a device.
func (s *Simulation) AddDevice(ctx context.Context, d model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Protection != nil && !d.Kind.Protected() {
		return fmt.Errorf("%w: %s", ErrProtectionUnsupported, d.Kind)
	}
	if err := s.net.AddDevice(d); err != nil {
		return err
	}
	s.changedLocked(ctx, fmt.Sprintf("%s added", d.Label()), d.ID)
	return nil
}

// RemoveDevice deletes a device that no connection or rule references and
// that has no command in flight.
func (s *Simulation) RemoveDevice(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmds.Busy(id) {
		return fmt.Errorf("%w: %s", ErrBusy, id)
	}
	if err := s.net.RemoveDevice(id); err != nil {
		return err
	}
	s.changedLocked(ctx, fmt.Sprintf("device %s removed", id), "")
	return nil
}

// AddConnection inserts a connection between two existing devices.
func (s *Simulation) AddConnection(ctx context.Context, c model.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.net.AddConnection(c); err != nil {
		return err
	}
	s.changedLocked(ctx, fmt.Sprintf("connection %s (%s-%s) added", c.ID, c.From, c.To), "")
	return nil
}

// RemoveConnection deletes a connection.
func (s *Simulation) RemoveConnection(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.net.RemoveConnection(id); err != nil {
		return err
	}
	s.changedLocked(ctx, fmt.Sprintf("connection %s removed", id), "")
	return nil
}

// AddRule appends an interlock rule.
func (s *Simulation) AddRule(ctx context.Context, r model.InterlockRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.net.AddRule(r); err != nil {
		return err
	}
	s.changedLocked(ctx, fmt.Sprintf("interlock %s added", r.ID), r.Device)
	return nil
}

// RemoveRule deletes an interlock rule.
func (s *Simulation) RemoveRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.net.RemoveRule(id); err != nil {
		return err
	}
	s.changedLocked(ctx, fmt.Sprintf("interlock %s removed", id), "")
	return nil
}

// SetSourceEnergized switches a source on or off.
func (s *Simulation) SetSourceEnergized(ctx context.Context, id string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.net.Device(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	if d.Kind != model.KindSource {
		return fmt.Errorf("%w: %s", ErrNotSource, d.Label())
	}
	if err := s.net.Mutate(id, func(d *model.Device) { d.SourceEnergized = on }); err != nil {
		return err
	}
	verb := "de-energized"
	if on {
		verb = "energized"
	}
	s.changedLocked(ctx, fmt.Sprintf("%s %s", d.Label(), verb), id)
	return nil
}

// SetProtection replaces the protection settings of a CB or DS. The lockout
// latch is kept; only ResetCondition releases it.
func (s *Simulation) SetProtection(ctx context.Context, id string, p model.Protection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.net.Device(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	if !d.Kind.Protected() {
		return fmt.Errorf("%w: %s", ErrProtectionUnsupported, d.Label())
	}
	if p.Attempts < 0 || p.DeadTime < 0 || p.SettleTime < 0 {
		return fmt.Errorf("%w: negative protection setting on %s", core.ErrDeviceInvalid, d.Label())
	}
	err := s.net.Mutate(id, func(d *model.Device) {
		if d.Protection != nil {
			p.Lockout = d.Protection.Lockout
		} else {
			p.Lockout = false
		}
		d.Protection = &p
	})
	if err != nil {
		return err
	}
	s.changedLocked(ctx, fmt.Sprintf("%s protection updated", d.Label()), id)
	return nil
}

// SetIsolationTag sets or removes the operator isolation tag of a device.
func (s *Simulation) SetIsolationTag(ctx context.Context, id string, tagged bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.net.Device(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	if err := s.net.Mutate(id, func(d *model.Device) { d.IsolationTagged = tagged }); err != nil {
		return err
	}
	msg := fmt.Sprintf("%s isolation tag removed", d.Label())
	if tagged {
		msg = fmt.Sprintf("%s isolation tagged", d.Label())
	}
	s.changedLocked(ctx, msg, id)
	return nil
}

//
// ---------- Commands and protection ----------
//

// CommandRequest is an operator switching command.
type CommandRequest struct {
	DeviceID string
	Kind     model.Kind
	Target   model.SwitchState
}

// ScheduleCommand starts an operator command and returns its ID. A
// rejection leaves the device untouched.
func (s *Simulation) ScheduleCommand(ctx context.Context, req CommandRequest) (id string, err error) {
	ctx, span := s.startSpan(ctx, "ScheduleCommand",
		attribute.String("device_id", req.DeviceID),
		attribute.String("target", string(req.Target)),
	)
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err = s.cmds.Schedule(ctx, command.Request{
		DeviceID: req.DeviceID,
		Kind:     req.Kind,
		Target:   req.Target,
		Origin:   model.OriginOperator,
	})
	if err != nil {
		return "", err
	}
	s.refreshLocked(ctx)
	return id, nil
}

// CancelCommand drops the command in flight for deviceID.
func (s *Simulation) CancelCommand(ctx context.Context, deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.cmds.Cancel(deviceID)
	if ok {
		s.refreshLocked(ctx)
	}
	return ok
}

// PendingCommands lists commands in flight.
func (s *Simulation) PendingCommands() []command.Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmds.PendingCommands()
}

// InjectFault places a fault and starts protection.
func (s *Simulation) InjectFault(ctx context.Context, req protection.FaultRequest) (f model.Fault, err error) {
	ctx, span := s.startSpan(ctx, "InjectFault",
		attribute.String("connection_id", req.ConnectionID),
		attribute.String("severity", string(req.Severity)),
		attribute.Bool("persistent", req.Persistent),
	)
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err = s.prot.InjectFault(ctx, req)
	if err != nil {
		return model.Fault{}, err
	}
	span.SetAttributes(
		attribute.String("fault_id", f.ID),
		attribute.StringSlice("trip_set", f.TripSet),
	)
	s.refreshLocked(ctx)
	return f, nil
}

// ClearFault clears a fault and cancels reclosing against it.
func (s *Simulation) ClearFault(ctx context.Context, id string) (err error) {
	ctx, span := s.startSpan(ctx, "ClearFault", attribute.String("fault_id", id))
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.prot.ClearFault(ctx, id); err != nil {
		return err
	}
	s.refreshLocked(ctx)
	return nil
}

// ResetCondition clears health, lockout and fault flags on a device.
func (s *Simulation) ResetCondition(ctx context.Context, deviceID string) (err error) {
	ctx, span := s.startSpan(ctx, "ResetCondition", attribute.String("device_id", deviceID))
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.prot.ResetCondition(ctx, deviceID); err != nil {
		return err
	}
	s.refreshLocked(ctx)
	return nil
}

// Fault returns one fault by ID.
func (s *Simulation) Fault(id string) (model.Fault, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prot.Fault(id)
}

// Faults lists every fault in injection order.
func (s *Simulation) Faults() []model.Fault {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prot.Faults()
}

//
// ---------- Analysis ----------
//

// Device returns a copy of one device.
func (s *Simulation) Device(id string) (model.Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Device(id)
}

// EvaluateInterlock reports whether driving deviceID to target is allowed
// right now.
func (s *Simulation) EvaluateInterlock(deviceID string, target model.SwitchState) (core.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.net.Device(deviceID); !ok {
		return core.Decision{}, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	if !target.Valid() {
		return core.Decision{}, fmt.Errorf("%w: %q", command.ErrInvalidTarget, target)
	}
	return core.EvaluateInterlock(deviceID, target, s.net.Devices(), s.net.Rules()), nil
}

// Conduction returns the current energization.
func (s *Simulation) Conduction() core.ConductionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.ConductionResult{
		EnergizedDevices:     cloneSet(s.cond.EnergizedDevices),
		EnergizedConnections: cloneSet(s.cond.EnergizedConnections),
	}
}

// Grounding returns what is currently earthed.
func (s *Simulation) Grounding() core.GroundingResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.GroundingResult{
		GroundedDevices:     cloneSet(s.gnd.GroundedDevices),
		GroundedConnections: cloneSet(s.gnd.GroundedConnections),
	}
}

// Conflicts lists connections that are both energized and grounded.
func (s *Simulation) Conflicts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.conflicts...)
}

// PowerFlow estimates flows over the current network.
func (s *Simulation) PowerFlow(ctx context.Context) core.PowerFlowResult {
	_, span := s.startSpan(ctx, "PowerFlow")
	defer span.End()

	s.mu.Lock()
	snap := s.net.Snapshot()
	opts := s.pfOpts
	s.mu.Unlock()

	res := core.EstimatePowerFlow(snap.Devices, snap.Connections, opts)
	span.SetAttributes(
		attribute.Int("overloaded_edges", len(res.OverloadedEdges)),
		attribute.Float64("served_mw", res.Totals.ServedMW),
	)
	if s.metrics != nil {
		s.metrics.SetOverloadedEdges(len(res.OverloadedEdges))
	}
	return res
}

// Snapshot is a consistent view of the whole simulation.
type Snapshot struct {
	Name          string                `json:"name,omitempty"`
	Time          time.Time             `json:"time"`
	Devices       []model.Device        `json:"devices"`
	Connections   []model.Connection    `json:"connections"`
	Rules         []model.InterlockRule `json:"interlocks"`
	Conduction    core.ConductionResult `json:"conduction"`
	Grounding     core.GroundingResult  `json:"grounding"`
	Conflicts     []string              `json:"conflicts"`
	RuleConflicts []core.RuleConflict   `json:"ruleConflicts,omitempty"`
	Pending       []command.Pending     `json:"pending"`
	Faults        []model.Fault         `json:"faults"`
	FaultBlocked  []string              `json:"faultBlockedDevices"`
	Reclosing     []string              `json:"reclosing"`
}

// Snapshot captures the network, derived state, commands and faults under
// one lock.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	net := s.net.Snapshot()
	return Snapshot{
		Name:        s.name,
		Time:        s.base.Now(),
		Devices:     net.Devices,
		Connections: net.Connections,
		Rules:       net.Rules,
		Conduction: core.ConductionResult{
			EnergizedDevices:     cloneSet(s.cond.EnergizedDevices),
			EnergizedConnections: cloneSet(s.cond.EnergizedConnections),
		},
		Grounding: core.GroundingResult{
			GroundedDevices:     cloneSet(s.gnd.GroundedDevices),
			GroundedConnections: cloneSet(s.gnd.GroundedConnections),
		},
		Conflicts:     append([]string{}, s.conflicts...),
		RuleConflicts: core.ConflictingRules(net.Rules),
		Pending:       s.cmds.PendingCommands(),
		Faults:        s.prot.Faults(),
		FaultBlocked:  s.prot.FaultBlockedDevices(),
		Reclosing:     s.prot.Reclosing(),
	}
}

//
// ---------- Events ----------
//

// Events returns logged events with Seq > after, at most limit of them
// starting from the oldest.
func (s *Simulation) Events(after uint64, limit int) []model.Event {
	return s.events.Since(after, limit)
}

// ClearEvents drops every retained event. Sequence numbers keep counting, so
// a cursor held by a client stays valid.
func (s *Simulation) ClearEvents(ctx context.Context) {
	s.events.Clear()
	s.log.Debug(ctx, "event log cleared", logging.Int("last_seq", int(s.events.LastSeq())))
}

// LastEventSeq is the sequence number of the newest logged event.
func (s *Simulation) LastEventSeq() uint64 {
	return s.events.LastSeq()
}

// Subscribe streams events appended from now on. Call the returned function
// to stop.
func (s *Simulation) Subscribe(buffer int) (<-chan model.Event, func()) {
	return s.events.Subscribe(buffer)
}

func cloneSet(in core.IDSet) core.IDSet {
	out := make(core.IDSet, len(in))
	for id := range in {
		out.Add(id)
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
