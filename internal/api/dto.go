package api

import (
	"time"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/command"
	sim "github.com/signalsfoundry/switchgear-simulator/internal/sim/state"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

// HealthResponse reports liveness and the current simulation time.
type HealthResponse struct {
	Status  string    `json:"status" example:"ok"`
	SimTime time.Time `json:"simTime"`
}

// NetworkResponse is the live network with its derived state.
type NetworkResponse struct {
	Name                 string                `json:"name,omitempty"`
	SimTime              time.Time             `json:"simTime"`
	Devices              []model.Device        `json:"devices"`
	Connections          []model.Connection    `json:"connections"`
	Interlocks           []model.InterlockRule `json:"interlocks"`
	EnergizedDevices     []string              `json:"energizedDevices"`
	EnergizedConnections []string              `json:"energizedConnections"`
	GroundedDevices      []string              `json:"groundedDevices"`
	GroundedConnections  []string              `json:"groundedConnections"`
	Conflicts            []string              `json:"conflicts"`
	RuleConflicts        []core.RuleConflict   `json:"ruleConflicts,omitempty"`
	Pending              []command.Pending     `json:"pending"`
	Faults               []model.Fault         `json:"faults"`
	FaultBlockedDevices  []string              `json:"faultBlockedDevices"`
	Reclosing            []string              `json:"reclosing"`
}

func networkResponse(s sim.Snapshot) NetworkResponse {
	return NetworkResponse{
		Name:                 s.Name,
		SimTime:              s.Time,
		Devices:              nonNil(s.Devices),
		Connections:          nonNil(s.Connections),
		Interlocks:           nonNil(s.Rules),
		EnergizedDevices:     s.Conduction.EnergizedDevices.Sorted(),
		EnergizedConnections: s.Conduction.EnergizedConnections.Sorted(),
		GroundedDevices:      s.Grounding.GroundedDevices.Sorted(),
		GroundedConnections:  s.Grounding.GroundedConnections.Sorted(),
		Conflicts:            nonNil(s.Conflicts),
		RuleConflicts:        s.RuleConflicts,
		Pending:              nonNil(s.Pending),
		Faults:               nonNil(s.Faults),
		FaultBlockedDevices:  nonNil(s.FaultBlocked),
		Reclosing:            nonNil(s.Reclosing),
	}
}

// ConductionResponse lists energized devices and connections.
type ConductionResponse struct {
	EnergizedDevices     []string `json:"energizedDevices"`
	EnergizedConnections []string `json:"energizedConnections"`
}

// GroundingResponse lists earthed devices and connections, plus connections
// that are live and earthed at once.
type GroundingResponse struct {
	GroundedDevices     []string `json:"groundedDevices"`
	GroundedConnections []string `json:"groundedConnections"`
	Conflicts           []string `json:"conflicts"`
}

// CommandBody requests a switching operation.
type CommandBody struct {
	Target string `json:"target" enum:"open,closed" doc:"Requested switch state"`
	Kind   string `json:"kind,omitempty" enum:"disconnector,breaker,earth_switch" doc:"Expected device kind; rejected on mismatch"`
}

// CommandResponse acknowledges an accepted command. The outcome arrives later
// as an event.
type CommandResponse struct {
	CommandID string            `json:"commandId"`
	DeviceID  string            `json:"deviceId"`
	Target    model.SwitchState `json:"target"`
}

// FaultBody injects a fault on a connection.
type FaultBody struct {
	ConnectionID string  `json:"connectionId" minLength:"1"`
	Position     float64 `json:"position,omitempty" minimum:"0" maximum:"1" doc:"Location along the connection, 0 at from and 1 at to"`
	Severity     string  `json:"severity,omitempty" enum:"normal,severe,extreme"`
	Persistent   bool    `json:"persistent,omitempty"`
}

// FaultList wraps the fault table.
type FaultList struct {
	Items  []model.Fault `json:"items"`
	Active int           `json:"active"`
}

// EventPage is a window of the event log.
type EventPage struct {
	Items   []model.Event `json:"items"`
	LastSeq uint64        `json:"lastSeq"`
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
