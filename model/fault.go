package model

import (
	"fmt"
	"time"
)

// Severity grades an injected fault.
type Severity string

const (
	SeverityNormal  Severity = "normal"
	SeveritySevere  Severity = "severe"
	SeverityExtreme Severity = "extreme"
)

// ParseSeverity maps text onto a Severity; empty means normal.
func ParseSeverity(v string) (Severity, error) {
	switch Severity(v) {
	case "", SeverityNormal:
		return SeverityNormal, nil
	case SeveritySevere, SeverityExtreme:
		return Severity(v), nil
	default:
		return "", fmt.Errorf("unknown fault severity %q", v)
	}
}

// FaultStatus is the lifecycle position of a fault.
type FaultStatus string

const (
	FaultActive  FaultStatus = "active"
	FaultCleared FaultStatus = "cleared"
)

// Fault is a short circuit injected on a connection.
type Fault struct {
	ID           string      `json:"id"`
	ConnectionID string      `json:"connectionId"`
	Endpoints    [2]string   `json:"endpoints"`
	BusGroup     string      `json:"busGroup,omitempty"`
	Position     float64     `json:"position"`
	Severity     Severity    `json:"severity"`
	Persistent   bool        `json:"persistent"`
	Status       FaultStatus `json:"status"`
	CreatedAt    time.Time   `json:"createdAt"`
	ClearedAt    time.Time   `json:"clearedAt,omitempty"`

	// ClearedByOperator separates an explicit clear from a transient self-clear.
	ClearedByOperator bool `json:"clearedByOperator,omitempty"`

	// Marker is the visible fault marker carried by persistent faults.
	Marker bool `json:"marker"`

	TripSet            []string `json:"tripSet,omitempty"`
	DestroyedBreakers  []string `json:"destroyedBreakers,omitempty"`
	FaultedTransformer string   `json:"faultedTransformer,omitempty"`
}

// Active reports whether the fault still stands.
func (f Fault) Active() bool {
	return f.Status == FaultActive
}

// Clone returns a deep copy of f.
func (f Fault) Clone() Fault {
	out := f
	out.TripSet = append([]string(nil), f.TripSet...)
	out.DestroyedBreakers = append([]string(nil), f.DestroyedBreakers...)
	return out
}
