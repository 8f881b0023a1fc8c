package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPCollector records request counts and latencies for the HTTP API.
type HTTPCollector struct {
	Requests  *prometheus.CounterVec
	Durations *prometheus.HistogramVec
}

// NewHTTPCollector registers HTTP metrics against the provided registerer.
func NewHTTPCollector(reg prometheus.Registerer) (*HTTPCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "switchgear_http_requests_total",
		Help: "Total number of handled API requests, labeled by method, route and status code.",
	}, []string{"method", "route", "code"})
	requests, err := registerCounterVec(reg, requests, "switchgear_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "switchgear_http_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method", "route"})
	durations, err = registerHistogramVec(reg, durations, "switchgear_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &HTTPCollector{Requests: requests, Durations: durations}, nil
}

// Middleware records every request once routing has resolved its pattern.
func (c *HTTPCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := RoutePattern(r)
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		if c.Requests != nil {
			c.Requests.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		}
		if c.Durations != nil {
			c.Durations.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

// RoutePattern returns the chi route pattern matched by r, e.g.
// "/v1/devices/{id}/commands", or "unknown" when none matched.
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unknown"
}
