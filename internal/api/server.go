// Package api serves the simulation over HTTP/JSON. Operations are declared
// with huma on a chi router so the OpenAPI document is generated from the
// handlers themselves.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signalsfoundry/switchgear-simulator/core"
	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
	"github.com/signalsfoundry/switchgear-simulator/internal/observability"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/protection"
	sim "github.com/signalsfoundry/switchgear-simulator/internal/sim/state"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

// Simulator is the part of state.Simulation the API drives.
type Simulator interface {
	Now() time.Time
	Snapshot() sim.Snapshot
	Document() *core.Document
	LoadDocument(ctx context.Context, doc *core.Document) error
	Clear(ctx context.Context)
	Conduction() core.ConductionResult
	Grounding() core.GroundingResult
	Conflicts() []string
	PowerFlow(ctx context.Context) core.PowerFlowResult
	ScheduleCommand(ctx context.Context, req sim.CommandRequest) (string, error)
	EvaluateInterlock(deviceID string, target model.SwitchState) (core.Decision, error)
	ResetCondition(ctx context.Context, deviceID string) error
	InjectFault(ctx context.Context, req protection.FaultRequest) (model.Fault, error)
	ClearFault(ctx context.Context, id string) error
	Fault(id string) (model.Fault, bool)
	Faults() []model.Fault
	Events(after uint64, limit int) []model.Event
	LastEventSeq() uint64
	ClearEvents(ctx context.Context)
}

// Config for the HTTP API handler.
type Config struct {
	Sim      Simulator
	Log      logging.Logger
	BasePath string
	// Metrics records per-route request counts; nil disables it.
	Metrics *observability.HTTPCollector
	// MetricsHandler is mounted at MetricsPath when set.
	MetricsHandler http.Handler
	MetricsPath    string
	Tracing        bool
}

// New returns an HTTP handler exposing the simulation API.
func New(cfg Config) http.Handler {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Log
	if log == nil {
		log = logging.Noop()
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, e := range errs {
				if e != nil {
					msgs = append(msgs, e.Error())
				}
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)
	if cfg.Tracing {
		router.Use(observability.TracingMiddleware)
	}
	router.Use(cfg.Metrics.Middleware)

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, cfg.MetricsHandler)
	}

	hcfg := huma.DefaultConfig("Switchgear Simulator API", "1.0.0")
	hcfg.OpenAPIPath = basePath + "/openapi"
	hcfg.DocsPath = basePath + "/docs"
	hcfg.SchemasPath = basePath + "/schemas"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	h := &handlers{sim: cfg.Sim}
	registerHealth(group, h)
	registerNetwork(group, h)
	registerAnalysis(group, h)
	registerDevices(group, h)
	registerFaults(group, h)
	registerEvents(group, h)

	return router
}

// requestLogger honours an incoming X-Request-ID, echoes it back and stores
// a request-scoped logger on the context.
func requestLogger(base logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if incoming := strings.TrimSpace(r.Header.Get(logging.RequestIDHeader)); incoming != "" {
				ctx = logging.ContextWithRequestID(ctx, incoming)
			}
			ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
			))
			ctx = logging.ContextWithLogger(ctx, reqLog)
			w.Header().Set(logging.RequestIDHeader, logging.RequestIDFromContext(ctx))

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := []logging.Field{
				logging.Int("status", ww.Status()),
				logging.Duration("elapsed", time.Since(start)),
			}
			if ww.Status() >= http.StatusInternalServerError {
				reqLog.Warn(ctx, "request failed", fields...)
				return
			}
			reqLog.Debug(ctx, "request served", fields...)
		})
	}
}
