package command

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

// Profile describes the mechanical timing and reliability of one family of
// switching devices. Actual durations are Base + Jitter*r with r drawn from
// the scheduler's Rand.
type Profile struct {
	Complete           time.Duration `mapstructure:"complete"`
	CompleteJitter     time.Duration `mapstructure:"complete_jitter"`
	Timeout            time.Duration `mapstructure:"timeout"`
	TimeoutJitter      time.Duration `mapstructure:"timeout_jitter"`
	FailureProbability float64       `mapstructure:"failure_probability"`
}

// Validate rejects negative durations and probabilities outside [0,1].
func (p Profile) Validate() error {
	if p.Complete < 0 || p.CompleteJitter < 0 || p.Timeout <= 0 || p.TimeoutJitter < 0 {
		return fmt.Errorf("invalid timing %+v", p)
	}
	if p.FailureProbability < 0 || p.FailureProbability > 1 {
		return fmt.Errorf("failure probability %v outside [0,1]", p.FailureProbability)
	}
	return nil
}

// Config holds the timing profile per device family.
type Config struct {
	Breaker Profile `mapstructure:"breaker"`
	Switch  Profile `mapstructure:"switch"`
}

// DefaultConfig returns breakers that operate in tens of milliseconds and
// disconnectors/earth switches that take seconds.
func DefaultConfig() Config {
	return Config{
		Breaker: Profile{
			Complete:           40 * time.Millisecond,
			CompleteJitter:     40 * time.Millisecond,
			Timeout:            500 * time.Millisecond,
			TimeoutJitter:      100 * time.Millisecond,
			FailureProbability: 0.01,
		},
		Switch: Profile{
			Complete:           2 * time.Second,
			CompleteJitter:     1500 * time.Millisecond,
			Timeout:            6 * time.Second,
			TimeoutJitter:      time.Second,
			FailureProbability: 0.05,
		},
	}
}

// Validate checks both profiles.
func (c Config) Validate() error {
	if err := c.Breaker.Validate(); err != nil {
		return fmt.Errorf("breaker profile: %w", err)
	}
	if err := c.Switch.Validate(); err != nil {
		return fmt.Errorf("switch profile: %w", err)
	}
	return nil
}

// ProfileFor returns the profile used for kind.
func (c Config) ProfileFor(kind model.Kind) (Profile, bool) {
	switch kind {
	case model.KindBreaker:
		return c.Breaker, true
	case model.KindDisconnector, model.KindEarthSwitch:
		return c.Switch, true
	case model.KindSource, model.KindLoad, model.KindInterface, model.KindJunction,
		model.KindTransformer, model.KindCT, model.KindVT, model.KindShuntReactor,
		model.KindCapacitorBank:
		return Profile{}, false
	default:
		return Profile{}, false
	}
}
