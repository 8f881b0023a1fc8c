package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/command"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/protection"
	sim "github.com/signalsfoundry/switchgear-simulator/internal/sim/state"
)

type apiErrorBody struct {
	Code    string         `json:"code" example:"interlocked"`
	Message string         `json:"message" example:"interlock: cannot close ES1: CB1 is closed"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is the error envelope every failing operation returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// toAPIError maps simulator errors onto HTTP statuses.
func toAPIError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}

	var ie *core.InterlockError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusConflict, "interlocked", err.Error(), map[string]any{
			"deviceId":       ie.DeviceID,
			"target":         ie.Target,
			"ruleId":         ie.Decision.RuleID,
			"blockingDevice": ie.Decision.BlockingDevice,
			"blockingState":  ie.Decision.BlockingState,
		})
	}

	switch {
	case errors.Is(err, sim.ErrDeviceNotFound),
		errors.Is(err, sim.ErrConnectionNotFound),
		errors.Is(err, sim.ErrRuleNotFound),
		errors.Is(err, sim.ErrFaultNotFound),
		errors.Is(err, command.ErrUnknownDevice),
		errors.Is(err, protection.ErrConnectionNotFound),
		errors.Is(err, protection.ErrDeviceNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)

	case errors.Is(err, sim.ErrBusy):
		return newAPIError(http.StatusConflict, "busy", err.Error(), nil)

	case errors.Is(err, command.ErrDeviceDestroyed):
		return newAPIError(http.StatusConflict, "device_destroyed", err.Error(), nil)

	case errors.Is(err, command.ErrNoChange):
		return newAPIError(http.StatusConflict, "no_change", err.Error(), nil)

	case errors.Is(err, core.ErrDeviceInUse),
		errors.Is(err, core.ErrDeviceExists),
		errors.Is(err, core.ErrConnectionExists),
		errors.Is(err, core.ErrRuleExists):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)

	case errors.Is(err, core.ErrInvalidDocument),
		errors.Is(err, core.ErrUnsupportedVersion),
		errors.Is(err, core.ErrDeviceInvalid),
		errors.Is(err, core.ErrConnectionInvalid),
		errors.Is(err, core.ErrUnknownEndpoint),
		errors.Is(err, core.ErrRuleInvalid):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_network", err.Error(), nil)

	case errors.Is(err, core.ErrUnknownFormat),
		errors.Is(err, sim.ErrDocumentRequired),
		errors.Is(err, command.ErrNotSwitchable),
		errors.Is(err, command.ErrKindMismatch),
		errors.Is(err, command.ErrInvalidTarget),
		errors.Is(err, protection.ErrInvalidPosition),
		errors.Is(err, protection.ErrInvalidSeverity):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)

	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}
