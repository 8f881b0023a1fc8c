package model

import "time"

// EventType names a simulation notification.
type EventType string

const (
	EventCommandAccepted  EventType = "command.accepted"
	EventCommandRejected  EventType = "command.rejected"
	EventCommandSucceeded EventType = "command.succeeded"
	EventCommandFailed    EventType = "command.failed"
	EventCommandTimeout   EventType = "command.timeout"
	EventCommandCancelled EventType = "command.cancelled"

	EventFaultInjected EventType = "fault.injected"
	EventFaultMarker   EventType = "fault.marker"
	EventFaultCleared  EventType = "fault.cleared"

	EventTrip               EventType = "protection.trip"
	EventTripRejected       EventType = "protection.trip_rejected"
	EventBreakerDestroyed   EventType = "protection.breaker_destroyed"
	EventBreakerFailure     EventType = "protection.breaker_failure"
	EventReclose            EventType = "protection.reclose"
	EventRecloseSuccess     EventType = "protection.reclose_success"
	EventLockout            EventType = "protection.lockout"
	EventAutoIsolate        EventType = "protection.auto_isolate"
	EventTransformerFaulted EventType = "protection.transformer_faulted"

	EventDeviceReset     EventType = "device.reset"
	EventNetworkLoaded   EventType = "network.loaded"
	EventNetworkChanged  EventType = "network.changed"
	EventNetworkConflict EventType = "network.conflict"
)

// EventSeverity grades how an event is surfaced to the operator.
type EventSeverity string

const (
	SeverityInfo    EventSeverity = "info"
	SeverityWarning EventSeverity = "warning"
	SeverityError   EventSeverity = "error"
)

// Origin records who asked for a command.
type Origin string

const (
	OriginOperator   Origin = "operator"
	OriginProtection Origin = "protection"
)

// Event is one entry of the in-memory simulation event log.
type Event struct {
	Seq      uint64        `json:"seq"`
	Time     time.Time     `json:"time"`
	Type     EventType     `json:"type"`
	Severity EventSeverity `json:"severity"`

	DeviceID   string      `json:"deviceId,omitempty"`
	DeviceKind Kind        `json:"deviceKind,omitempty"`
	Target     SwitchState `json:"target,omitempty"`
	Origin     Origin      `json:"origin,omitempty"`
	CommandID  string      `json:"commandId,omitempty"`
	FaultID    string      `json:"faultId,omitempty"`

	Message string `json:"message"`
}

// EventSink receives events from the scheduler and protection engine.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function into an EventSink.
type EventSinkFunc func(Event)

// Emit calls f(ev).
func (f EventSinkFunc) Emit(ev Event) { f(ev) }
