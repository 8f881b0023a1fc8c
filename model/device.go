package model

import (
	"fmt"
	"slices"
	"time"
)

// Kind is the closed set of device kinds a switchgear network may contain.
// Every component that branches on Kind switches over all of these values.
type Kind string

const (
	KindSource        Kind = "source"
	KindLoad          Kind = "load"
	KindInterface     Kind = "interface"
	KindDisconnector  Kind = "disconnector"
	KindBreaker       Kind = "breaker"
	KindEarthSwitch   Kind = "earth_switch"
	KindJunction      Kind = "junction"
	KindTransformer   Kind = "transformer"
	KindCT            Kind = "current_transformer"
	KindVT            Kind = "voltage_transformer"
	KindShuntReactor  Kind = "shunt_reactor"
	KindCapacitorBank Kind = "capacitor_bank"
)

// Kinds lists every known device kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindSource, KindLoad, KindInterface, KindDisconnector, KindBreaker,
		KindEarthSwitch, KindJunction, KindTransformer, KindCT, KindVT,
		KindShuntReactor, KindCapacitorBank,
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return slices.Contains(Kinds(), k)
}

// Switching reports whether devices of this kind carry an open/closed state.
func (k Kind) Switching() bool {
	switch k {
	case KindDisconnector, KindBreaker, KindEarthSwitch:
		return true
	case KindSource, KindLoad, KindInterface, KindJunction, KindTransformer,
		KindCT, KindVT, KindShuntReactor, KindCapacitorBank:
		return false
	default:
		return false
	}
}

// Protected reports whether devices of this kind may carry protection settings.
func (k Kind) Protected() bool {
	return k == KindBreaker || k == KindDisconnector
}

// Short returns the switchgear abbreviation used in operator messages.
func (k Kind) Short() string {
	switch k {
	case KindDisconnector:
		return "DS"
	case KindBreaker:
		return "CB"
	case KindEarthSwitch:
		return "ES"
	case KindCT:
		return "CT"
	case KindVT:
		return "VT"
	case KindSource, KindLoad, KindInterface, KindJunction, KindTransformer,
		KindShuntReactor, KindCapacitorBank:
		return string(k)
	default:
		return string(k)
	}
}

// SwitchState is the position of a switching device.
type SwitchState string

const (
	StateOpen   SwitchState = "open"
	StateClosed SwitchState = "closed"
)

// Valid reports whether s is open or closed.
func (s SwitchState) Valid() bool {
	return s == StateOpen || s == StateClosed
}

// Verb returns the operator verb that drives a device into s.
func (s SwitchState) Verb() string {
	if s == StateClosed {
		return "close"
	}
	return "open"
}

// ParseSwitchState accepts open/closed and the close verb.
func ParseSwitchState(v string) (SwitchState, error) {
	switch v {
	case "open":
		return StateOpen, nil
	case "closed", "close":
		return StateClosed, nil
	default:
		return "", fmt.Errorf("unknown switch state %q", v)
	}
}

// Health tracks the mechanical condition of a device.
type Health string

const (
	HealthOK        Health = "ok"
	HealthFailed    Health = "failed"
	HealthDestroyed Health = "destroyed"
)

// Usable reports whether a device in this condition can still be operated.
func (h Health) Usable() bool {
	return h == "" || h == HealthOK
}

// Protection holds the protection settings and latched flags of a CB or DS.
type Protection struct {
	DAREnabled  bool          `json:"darEnabled"`
	Attempts    int           `json:"attempts"`
	DeadTime    time.Duration `json:"deadTime"`
	SettleTime  time.Duration `json:"settleTime,omitempty"`
	Lockout     bool          `json:"lockout"`
	AutoIsolate bool          `json:"autoIsolate"`
}

// PowerRating is the nameplate demand or supply of a device in MW / Mvar.
// For capacitor banks Q is the reactive supply; for reactors it is the
// reactive consumption. Sources use Q as their reactive supply capability.
type PowerRating struct {
	P float64 `json:"p"`
	Q float64 `json:"q"`
}

// Device is a node of the switchgear graph.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Kind Kind   `json:"kind"`

	// State is only meaningful for DS, CB and ES.
	State SwitchState `json:"state,omitempty"`

	// SourceEnergized is only meaningful for sources.
	SourceEnergized bool `json:"sourceEnergized,omitempty"`

	// Moving is set while a command is in flight.
	Moving bool `json:"moving"`

	Protection *Protection `json:"protection,omitempty"`
	Health     Health      `json:"health"`

	// Faulted marks a transformer that absorbed a fault no breaker could clear.
	Faulted bool `json:"faulted,omitempty"`

	IsolationTagged bool `json:"isolationTagged,omitempty"`

	Power *PowerRating `json:"power,omitempty"`
}

// Clone returns a deep copy of d.
func (d Device) Clone() Device {
	out := d
	if d.Protection != nil {
		p := *d.Protection
		out.Protection = &p
	}
	if d.Power != nil {
		p := *d.Power
		out.Power = &p
	}
	return out
}

// Label returns "CB Q1"-style text for operator messages.
func (d Device) Label() string {
	return d.Kind.Short() + " " + d.ID
}
