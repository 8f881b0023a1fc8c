package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/signalsfoundry/switchgear-simulator/timectrl"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.Server != want.Server || cfg.Sim != want.Sim {
		t.Fatalf("server/sim = %+v %+v, want %+v %+v", cfg.Server, cfg.Sim, want.Server, want.Sim)
	}
	if cfg.Commands != want.Commands {
		t.Fatalf("commands = %+v, want %+v", cfg.Commands, want.Commands)
	}
	if cfg.Protection != want.Protection || cfg.PowerFlow != want.PowerFlow {
		t.Fatalf("protection/power flow not defaulted: %+v %+v", cfg.Protection, cfg.PowerFlow)
	}
	if cfg.TimeMode() != timectrl.RealTime {
		t.Fatalf("mode = %v", cfg.TimeMode())
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchgear.yaml")
	doc := `
server:
  addr: ":9000"
sim:
  mode: accelerated
  speed: 20
  seed: 42
  network: examples/bay.yaml
commands:
  breaker:
    complete: 80ms
    failure_probability: 0
protection:
  default_attempts: 2
  default_dead_time: 3s
power_flow:
  low_voltage_mvar: 25
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SWITCHGEAR_LOG_LEVEL", "debug")
	t.Setenv("SWITCHGEAR_PROTECTION_DESTRUCTION_PROBABILITY", "0.75")

	v := viper.New()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("addr", "", "")
	if err := flags.Parse([]string{"--addr", ":7000"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := v.BindPFlag("server.addr", flags.Lookup("addr")); err != nil {
		t.Fatalf("bind flag: %v", err)
	}

	cfg, err := Load(v, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7000" {
		t.Fatalf("flag did not win: addr = %q", cfg.Server.Addr)
	}
	if cfg.TimeMode() != timectrl.Accelerated || cfg.Sim.Speed != 20 || cfg.Seed(time.Now()) != 42 {
		t.Fatalf("sim = %+v", cfg.Sim)
	}
	if cfg.Sim.Network != "examples/bay.yaml" {
		t.Fatalf("network = %q", cfg.Sim.Network)
	}
	if cfg.Commands.Breaker.Complete != 80*time.Millisecond || cfg.Commands.Breaker.FailureProbability != 0 {
		t.Fatalf("breaker profile = %+v", cfg.Commands.Breaker)
	}
	if cfg.Commands.Breaker.Timeout != Default().Commands.Breaker.Timeout {
		t.Fatalf("unset breaker timeout lost its default: %v", cfg.Commands.Breaker.Timeout)
	}
	if cfg.Protection.DefaultAttempts != 2 || cfg.Protection.DefaultDeadTime != 3*time.Second {
		t.Fatalf("protection = %+v", cfg.Protection)
	}
	if cfg.Protection.DestructionProbability != 0.75 {
		t.Fatalf("env override ignored: %v", cfg.Protection.DestructionProbability)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level = %q", cfg.Log.Level)
	}
	if cfg.PowerFlow.LowVoltageMvar != 25 || cfg.PowerFlow.HighVoltageMvar != 10 {
		t.Fatalf("power flow = %+v", cfg.PowerFlow)
	}
	if got := len(cfg.SimulationOptions(cfg.Seed(time.Now()))); got != 6 {
		t.Fatalf("simulation options = %d", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]func(*Config){
		"empty addr":        func(c *Config) { c.Server.Addr = "" },
		"metrics path":      func(c *Config) { c.Server.MetricsPath = "metrics" },
		"log level":         func(c *Config) { c.Log.Level = "verbose" },
		"log format":        func(c *Config) { c.Log.Format = "xml" },
		"exporter":          func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" },
		"sample ratio":      func(c *Config) { c.Tracing.SampleRatio = 2 },
		"mode":              func(c *Config) { c.Sim.Mode = "warp" },
		"tick":              func(c *Config) { c.Sim.Tick = 0 },
		"speed":             func(c *Config) { c.Sim.Speed = 0 },
		"failure prob":      func(c *Config) { c.Commands.Switch.FailureProbability = 1.5 },
		"destruction prob":  func(c *Config) { c.Protection.DestructionProbability = -0.1 },
		"negative dead":     func(c *Config) { c.Protection.DefaultDeadTime = -time.Second },
		"negative pf limit": func(c *Config) { c.PowerFlow.HighVoltageMvar = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSeedFallsBackToClock(t *testing.T) {
	now := time.Unix(0, 12345)
	if got := Default().Seed(now); got != 12345 {
		t.Fatalf("Seed = %d, want 12345", got)
	}
}
