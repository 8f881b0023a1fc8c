package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/protection"
	sim "github.com/signalsfoundry/switchgear-simulator/internal/sim/state"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

type handlers struct {
	sim Simulator
}

func registerHealth(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok", SimTime: h.sim.Now()}}, nil
	})
}

func registerNetwork(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "get-network",
		Method:      http.MethodGet,
		Path:        "/network",
		Summary:     "Live network with energization, earthing, commands and faults",
		Tags:        []string{"network"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body NetworkResponse `json:"body"`
	}, error) {
		return &struct {
			Body NetworkResponse `json:"body"`
		}{Body: networkResponse(h.sim.Snapshot())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-network-document",
		Method:      http.MethodGet,
		Path:        "/network/document",
		Summary:     "Persistable network document",
		Tags:        []string{"network"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body *core.Document `json:"body"`
	}, error) {
		return &struct {
			Body *core.Document `json:"body"`
		}{Body: h.sim.Document()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-network",
		Method:      http.MethodPut,
		Path:        "/network",
		Summary:     "Replace the network with a JSON or YAML document",
		Description: "Cancels every pending command and clears all faults before the new network is loaded.",
		Tags:        []string{"network"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ContentType string `header:"Content-Type"`
		RawBody     []byte
	}) (*struct {
		Body NetworkResponse `json:"body"`
	}, error) {
		format := core.FormatJSON
		if strings.Contains(strings.ToLower(input.ContentType), "yaml") {
			format = core.FormatYAML
		}
		if len(bytes.TrimSpace(input.RawBody)) == 0 {
			return nil, toAPIError(sim.ErrDocumentRequired)
		}
		doc, err := core.DecodeDocument(bytes.NewReader(input.RawBody), format)
		if err != nil {
			return nil, toAPIError(err)
		}
		if err := h.sim.LoadDocument(ctx, doc); err != nil {
			return nil, toAPIError(err)
		}
		return &struct {
			Body NetworkResponse `json:"body"`
		}{Body: networkResponse(h.sim.Snapshot())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-network",
		Method:      http.MethodDelete,
		Path:        "/network",
		Summary:     "Drop the network, pending commands and faults",
		Description: "The event log is kept.",
		Tags:        []string{"network"},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		h.sim.Clear(ctx)
		return &struct{}{}, nil
	})
}

func registerAnalysis(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "get-conduction",
		Method:      http.MethodGet,
		Path:        "/conduction",
		Summary:     "Energized devices and connections",
		Tags:        []string{"analysis"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ConductionResponse `json:"body"`
	}, error) {
		c := h.sim.Conduction()
		return &struct {
			Body ConductionResponse `json:"body"`
		}{Body: ConductionResponse{
			EnergizedDevices:     c.EnergizedDevices.Sorted(),
			EnergizedConnections: c.EnergizedConnections.Sorted(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-grounding",
		Method:      http.MethodGet,
		Path:        "/grounding",
		Summary:     "Earthed devices and connections",
		Tags:        []string{"analysis"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body GroundingResponse `json:"body"`
	}, error) {
		g := h.sim.Grounding()
		return &struct {
			Body GroundingResponse `json:"body"`
		}{Body: GroundingResponse{
			GroundedDevices:     g.GroundedDevices.Sorted(),
			GroundedConnections: g.GroundedConnections.Sorted(),
			Conflicts:           nonNil(h.sim.Conflicts()),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-powerflow",
		Method:      http.MethodGet,
		Path:        "/powerflow",
		Summary:     "Approximate power flow and overload estimate",
		Tags:        []string{"analysis"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body core.PowerFlowResult `json:"body"`
	}, error) {
		res := h.sim.PowerFlow(ctx)
		res.OverloadedEdges = nonNil(res.OverloadedEdges)
		return &struct {
			Body core.PowerFlowResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerDevices(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "post-command",
		Method:        http.MethodPost,
		Path:          "/devices/{id}/commands",
		Summary:       "Schedule an operator switching command",
		Description:   "The command is accepted immediately; completion, failure or timeout is reported on the event log.",
		Tags:          []string{"devices"},
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body CommandBody
	}) (*struct {
		Body CommandResponse `json:"body"`
	}, error) {
		target, err := model.ParseSwitchState(input.Body.Target)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		id, err := h.sim.ScheduleCommand(ctx, sim.CommandRequest{
			DeviceID: input.ID,
			Kind:     model.Kind(input.Body.Kind),
			Target:   target,
		})
		if err != nil {
			logFrom(ctx).Info(ctx, "command rejected",
				logging.DeviceID(input.ID),
				logging.String("target", string(target)),
				logging.Err(err),
			)
			return nil, toAPIError(err)
		}
		return &struct {
			Body CommandResponse `json:"body"`
		}{Body: CommandResponse{CommandID: id, DeviceID: input.ID, Target: target}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-interlock",
		Method:      http.MethodGet,
		Path:        "/devices/{id}/interlock",
		Summary:     "Check whether a switching action is interlocked",
		Tags:        []string{"devices"},
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Target string `query:"target" enum:"open,closed" required:"true"`
	}) (*struct {
		Body core.Decision `json:"body"`
	}, error) {
		target, err := model.ParseSwitchState(input.Target)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		d, err := h.sim.EvaluateInterlock(input.ID, target)
		if err != nil {
			return nil, toAPIError(err)
		}
		return &struct {
			Body core.Decision `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-device",
		Method:      http.MethodPost,
		Path:        "/devices/{id}/reset",
		Summary:     "Reset health, lockout and fault flags on a device",
		Tags:        []string{"devices"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := h.sim.ResetCondition(ctx, input.ID); err != nil {
			return nil, toAPIError(err)
		}
		return &struct{}{}, nil
	})
}

func registerFaults(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "inject-fault",
		Method:        http.MethodPost,
		Path:          "/faults",
		Summary:       "Inject a short circuit on a connection",
		Tags:          []string{"faults"},
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body FaultBody
	}) (*struct {
		Body model.Fault `json:"body"`
	}, error) {
		severity, err := model.ParseSeverity(input.Body.Severity)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		f, err := h.sim.InjectFault(ctx, protection.FaultRequest{
			ConnectionID: input.Body.ConnectionID,
			Position:     input.Body.Position,
			Severity:     severity,
			Persistent:   input.Body.Persistent,
		})
		if err != nil {
			return nil, toAPIError(err)
		}
		logFrom(ctx).Info(ctx, "fault injected",
			logging.FaultID(f.ID),
			logging.ConnectionID(f.ConnectionID),
			logging.Any("trip_set", f.TripSet),
		)
		return &struct {
			Body model.Fault `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-faults",
		Method:      http.MethodGet,
		Path:        "/faults",
		Summary:     "List faults in injection order",
		Tags:        []string{"faults"},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body FaultList `json:"body"`
	}, error) {
		faults := nonNil(h.sim.Faults())
		active := 0
		for _, f := range faults {
			if f.Status == model.FaultActive {
				active++
			}
		}
		return &struct {
			Body FaultList `json:"body"`
		}{Body: FaultList{Items: faults, Active: active}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-fault",
		Method:      http.MethodGet,
		Path:        "/faults/{id}",
		Summary:     "Get one fault",
		Tags:        []string{"faults"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body model.Fault `json:"body"`
	}, error) {
		f, ok := h.sim.Fault(input.ID)
		if !ok {
			return nil, toAPIError(sim.ErrFaultNotFound)
		}
		return &struct {
			Body model.Fault `json:"body"`
		}{Body: f}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-fault",
		Method:      http.MethodDelete,
		Path:        "/faults/{id}",
		Summary:     "Clear a fault and cancel reclosing against it",
		Tags:        []string{"faults"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := h.sim.ClearFault(ctx, input.ID); err != nil {
			return nil, toAPIError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, h *handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Events after a sequence number",
		Tags:        []string{"events"},
	}, func(ctx context.Context, input *struct {
		After uint64 `query:"after" doc:"Return events with a sequence number above this"`
		Limit int    `query:"limit" default:"100" minimum:"1" maximum:"1000"`
	}) (*struct {
		Body EventPage `json:"body"`
	}, error) {
		return &struct {
			Body EventPage `json:"body"`
		}{Body: EventPage{
			Items:   nonNil(h.sim.Events(input.After, input.Limit)),
			LastSeq: h.sim.LastEventSeq(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-events",
		Method:      http.MethodDelete,
		Path:        "/events",
		Summary:     "Drop retained events",
		Description: "Sequence numbers keep counting from where they were.",
		Tags:        []string{"events"},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		h.sim.ClearEvents(ctx)
		return &struct{}{}, nil
	})
}

func logFrom(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return logging.Noop()
}
