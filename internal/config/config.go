// Package config loads simulator settings from a YAML file, SWITCHGEAR_*
// environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
	"github.com/signalsfoundry/switchgear-simulator/internal/observability"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/command"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/protection"
	sim "github.com/signalsfoundry/switchgear-simulator/internal/sim/state"
	"github.com/signalsfoundry/switchgear-simulator/timectrl"
)

// EnvPrefix prefixes every environment override, e.g. SWITCHGEAR_SERVER_ADDR.
const EnvPrefix = "SWITCHGEAR"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full simulator configuration.
type Config struct {
	Server     ServerConfig                `mapstructure:"server"`
	Log        logging.Config              `mapstructure:"log"`
	Tracing    observability.TracingConfig `mapstructure:"tracing"`
	Sim        SimConfig                   `mapstructure:"sim"`
	Commands   command.Config              `mapstructure:"commands"`
	Protection protection.Settings         `mapstructure:"protection"`
	PowerFlow  core.PowerFlowOptions       `mapstructure:"power_flow"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SimConfig controls the simulation clock and its initial network.
type SimConfig struct {
	Name string `mapstructure:"name"`
	// Network is the path of a JSON or YAML network document loaded at start.
	Network string `mapstructure:"network"`
	// Seed feeds the random source. Zero picks a time-based seed.
	Seed             int64         `mapstructure:"seed"`
	Mode             string        `mapstructure:"mode"`
	Tick             time.Duration `mapstructure:"tick"`
	Speed            int           `mapstructure:"speed"`
	EventLogCapacity int           `mapstructure:"event_log_capacity"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			MetricsPath:     "/metrics",
			ShutdownTimeout: 5 * time.Second,
		},
		Log: logging.Config{Level: "info", Format: "text"},
		Tracing: observability.TracingConfig{
			ServiceName: "switchgear-simulator",
			Exporter:    observability.ExporterStdout,
			Endpoint:    observability.DefaultOTLPEndpoint,
			SampleRatio: 1,
		},
		Sim: SimConfig{
			Name:             "switchgear",
			Mode:             timectrl.RealTime.String(),
			Tick:             50 * time.Millisecond,
			Speed:            1,
			EventLogCapacity: sim.DefaultEventLogCapacity,
		},
		Commands:   command.DefaultConfig(),
		Protection: protection.DefaultSettings(),
		PowerFlow:  core.DefaultPowerFlowOptions(),
	}
}

// SetDefaults registers every key of Default on v. Viper only resolves
// environment overrides for keys it knows about.
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"server.addr":             d.Server.Addr,
		"server.metrics_path":     d.Server.MetricsPath,
		"server.shutdown_timeout": d.Server.ShutdownTimeout,

		"log.level":      d.Log.Level,
		"log.format":     d.Log.Format,
		"log.add_source": d.Log.AddSource,

		"tracing.enabled":      d.Tracing.Enabled,
		"tracing.service_name": d.Tracing.ServiceName,
		"tracing.exporter":     d.Tracing.Exporter,
		"tracing.endpoint":     d.Tracing.Endpoint,
		"tracing.sample_ratio": d.Tracing.SampleRatio,

		"sim.name":               d.Sim.Name,
		"sim.network":            d.Sim.Network,
		"sim.seed":               d.Sim.Seed,
		"sim.mode":               d.Sim.Mode,
		"sim.tick":               d.Sim.Tick,
		"sim.speed":              d.Sim.Speed,
		"sim.event_log_capacity": d.Sim.EventLogCapacity,

		"protection.destruction_probability": d.Protection.DestructionProbability,
		"protection.transient_clear_delay":   d.Protection.TransientClearDelay,
		"protection.default_attempts":        d.Protection.DefaultAttempts,
		"protection.default_dead_time":       d.Protection.DefaultDeadTime,
		"protection.default_settle_time":     d.Protection.DefaultSettleTime,

		"power_flow.low_voltage_mvar":  d.PowerFlow.LowVoltageMvar,
		"power_flow.high_voltage_mvar": d.PowerFlow.HighVoltageMvar,
	}
	for family, p := range map[string]command.Profile{
		"breaker": d.Commands.Breaker,
		"switch":  d.Commands.Switch,
	} {
		prefix := "commands." + family + "."
		defaults[prefix+"complete"] = p.Complete
		defaults[prefix+"complete_jitter"] = p.CompleteJitter
		defaults[prefix+"timeout"] = p.Timeout
		defaults[prefix+"timeout_jitter"] = p.TimeoutJitter
		defaults[prefix+"failure_probability"] = p.FailureProbability
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load resolves configuration from defaults, the optional file at path and
// the environment, in increasing priority. Flags bound on v before the call
// win over all of them.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the simulator cannot run with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	if !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return fmt.Errorf("%w: server.metrics_path %q must start with /", ErrInvalid, c.Server.MetricsPath)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: negative server.shutdown_timeout", ErrInvalid)
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("%w: unknown log.level %q", ErrInvalid, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: unknown log.format %q", ErrInvalid, c.Log.Format)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("%w: tracing: %v", ErrInvalid, err)
	}
	if _, ok := timectrl.ParseMode(c.Sim.Mode); !ok {
		return fmt.Errorf("%w: unknown sim.mode %q", ErrInvalid, c.Sim.Mode)
	}
	if c.Sim.Tick <= 0 {
		return fmt.Errorf("%w: sim.tick must be positive", ErrInvalid)
	}
	if c.Sim.Speed < 1 {
		return fmt.Errorf("%w: sim.speed must be at least 1", ErrInvalid)
	}
	if c.Sim.EventLogCapacity < 0 {
		return fmt.Errorf("%w: negative sim.event_log_capacity", ErrInvalid)
	}
	if err := c.Commands.Validate(); err != nil {
		return fmt.Errorf("%w: commands: %v", ErrInvalid, err)
	}
	if err := c.Protection.Validate(); err != nil {
		return fmt.Errorf("%w: protection: %v", ErrInvalid, err)
	}
	if c.PowerFlow.LowVoltageMvar < 0 || c.PowerFlow.HighVoltageMvar < 0 {
		return fmt.Errorf("%w: negative power_flow threshold", ErrInvalid)
	}
	return nil
}

// TimeMode returns the parsed clock mode. Call after Validate.
func (c Config) TimeMode() timectrl.Mode {
	m, _ := timectrl.ParseMode(c.Sim.Mode)
	return m
}

// Seed returns the configured seed, or one derived from now when unset.
func (c Config) Seed(now time.Time) int64 {
	if c.Sim.Seed != 0 {
		return c.Sim.Seed
	}
	return now.UnixNano()
}

// SimulationOptions turns the simulation-related sections into options for
// state.NewSimulation.
func (c Config) SimulationOptions(seed int64) []sim.Option {
	return []sim.Option{
		sim.WithName(c.Sim.Name),
		sim.WithCommandConfig(c.Commands),
		sim.WithProtectionSettings(c.Protection),
		sim.WithPowerFlowOptions(c.PowerFlow),
		sim.WithEventLogCapacity(c.Sim.EventLogCapacity),
		sim.WithRand(command.NewRand(seed)),
	}
}
