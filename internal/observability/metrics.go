package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

// SimCollector bundles Prometheus metrics for a running simulation. It
// satisfies state.MetricsRecorder and, through the embedded
// SchedulerCollector, command.Recorder.
type SimCollector struct {
	*SchedulerCollector

	gatherer prometheus.Gatherer

	Devices     prometheus.Gauge
	Connections prometheus.Gauge
	Interlocks  prometheus.Gauge

	EnergizedDevices prometheus.Gauge
	GroundedDevices  prometheus.Gauge
	Conflicts        prometheus.Gauge
	ActiveFaults     prometheus.Gauge
	OverloadedEdges  prometheus.Gauge

	Events               *prometheus.CounterVec
	ProtectionOperations *prometheus.CounterVec
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sched, err := NewSchedulerCollector(reg)
	if err != nil {
		return nil, err
	}

	gauges := []struct {
		name string
		help string
	}{
		{name: "switchgear_devices", help: "Current number of devices in the network."},
		{name: "switchgear_connections", help: "Current number of connections in the network."},
		{name: "switchgear_interlocks", help: "Current number of interlock rules."},
		{name: "switchgear_energized_devices", help: "Devices currently energized."},
		{name: "switchgear_grounded_devices", help: "Devices currently earthed."},
		{name: "switchgear_conflicting_connections", help: "Connections that are energized and grounded at once."},
		{name: "switchgear_active_faults", help: "Faults that have not cleared."},
		{name: "switchgear_overloaded_connections", help: "Connections above their rating at the last power-flow estimate."},
	}
	c := &SimCollector{SchedulerCollector: sched, gatherer: gatherer}
	targets := []*prometheus.Gauge{
		&c.Devices, &c.Connections, &c.Interlocks,
		&c.EnergizedDevices, &c.GroundedDevices, &c.Conflicts,
		&c.ActiveFaults, &c.OverloadedEdges,
	}
	for i := range gauges {
		g, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: gauges[i].name,
			Help: gauges[i].help,
		}), gauges[i].name)
		if err != nil {
			return nil, err
		}
		*targets[i] = g
	}

	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "switchgear_events_total",
		Help: "Simulation events, labeled by type and severity.",
	}, []string{"type", "severity"})
	if c.Events, err = registerCounterVec(reg, events, "switchgear_events_total"); err != nil {
		return nil, err
	}

	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "switchgear_protection_operations_total",
		Help: "Protection operations: trips, recloses, lockouts, breaker destructions and failures.",
	}, []string{"operation"})
	if c.ProtectionOperations, err = registerCounterVec(reg, ops, "switchgear_protection_operations_total"); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetNetworkCounts updates the topology size gauges.
func (c *SimCollector) SetNetworkCounts(devices, connections, rules int) {
	if c == nil {
		return
	}
	setGauge(c.Devices, devices)
	setGauge(c.Connections, connections)
	setGauge(c.Interlocks, rules)
}

// SetTopologyState updates the energization gauges.
func (c *SimCollector) SetTopologyState(energized, grounded, conflicts int) {
	if c == nil {
		return
	}
	setGauge(c.EnergizedDevices, energized)
	setGauge(c.GroundedDevices, grounded)
	setGauge(c.Conflicts, conflicts)
}

// SetActiveFaults updates the active fault gauge.
func (c *SimCollector) SetActiveFaults(n int) {
	if c == nil {
		return
	}
	setGauge(c.ActiveFaults, n)
}

// SetOverloadedEdges updates the overload gauge.
func (c *SimCollector) SetOverloadedEdges(n int) {
	if c == nil {
		return
	}
	setGauge(c.OverloadedEdges, n)
}

// ObserveCommand forwards to the embedded scheduler metrics.
func (c *SimCollector) ObserveCommand(kind model.Kind, origin model.Origin, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.SchedulerCollector.ObserveCommand(kind, origin, outcome, elapsed)
}

// ObserveEvent counts an event and, for protection events, the operation.
func (c *SimCollector) ObserveEvent(ev model.Event) {
	if c == nil {
		return
	}
	if c.Events != nil {
		c.Events.WithLabelValues(string(ev.Type), string(ev.Severity)).Inc()
	}
	if op, ok := protectionOperation(ev.Type); ok && c.ProtectionOperations != nil {
		c.ProtectionOperations.WithLabelValues(op).Inc()
	}
}

func protectionOperation(t model.EventType) (string, bool) {
	switch t {
	case model.EventTrip:
		return "trip", true
	case model.EventReclose:
		return "reclose", true
	case model.EventLockout:
		return "lockout", true
	case model.EventBreakerDestroyed:
		return "breaker_destroyed", true
	case model.EventBreakerFailure:
		return "breaker_failure", true
	case model.EventAutoIsolate:
		return "auto_isolate", true
	case model.EventTransformerFaulted:
		return "transformer_faulted", true
	default:
		return "", false
	}
}

func setGauge(g prometheus.Gauge, v int) {
	if g != nil {
		g.Set(float64(v))
	}
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
