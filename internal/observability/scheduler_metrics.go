package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

// SchedulerCollector exposes command-scheduler Prometheus metrics. It
// satisfies command.Recorder.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "switchgear_commands_total",
		Help: "Resolved switching commands, labeled by device kind, origin and outcome.",
	}, []string{"kind", "origin", "outcome"})
	commands, err := registerCounterVec(reg, commands, "switchgear_commands_total")
	if err != nil {
		return nil, err
	}

	// Simulation time from acceptance to resolution.
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "switchgear_command_duration_seconds",
		Help:    "Simulated time from command acceptance to resolution.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
	}, []string{"kind", "outcome"})
	duration, err = registerHistogramVec(reg, duration, "switchgear_command_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:        gatherer,
		CommandsTotal:   commands,
		CommandDuration: duration,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveCommand records one resolved command.
func (c *SchedulerCollector) ObserveCommand(kind model.Kind, origin model.Origin, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.CommandsTotal != nil {
		c.CommandsTotal.WithLabelValues(string(kind), string(origin), outcome).Inc()
	}
	if c.CommandDuration != nil {
		if elapsed < 0 {
			elapsed = 0
		}
		c.CommandDuration.WithLabelValues(string(kind), outcome).Observe(elapsed.Seconds())
	}
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
