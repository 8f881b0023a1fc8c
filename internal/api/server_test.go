package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
	"github.com/signalsfoundry/switchgear-simulator/internal/observability"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/command"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/protection"
	sim "github.com/signalsfoundry/switchgear-simulator/internal/sim/state"
	"github.com/signalsfoundry/switchgear-simulator/internal/sim/timer"
	"github.com/signalsfoundry/switchgear-simulator/model"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const bayJSON = `{
  "version": "switchgear/v1",
  "name": "bay",
  "devices": [
    {"id": "S1", "kind": "source", "sourceEnergized": true},
    {"id": "DS1", "kind": "disconnector", "state": "closed"},
    {"id": "CB1", "kind": "breaker", "state": "closed", "protection": {"dar": false}},
    {"id": "J1", "kind": "junction"},
    {"id": "L1", "kind": "load", "power": {"p": 40, "q": 30}},
    {"id": "ES1", "kind": "earth_switch", "state": "open"}
  ],
  "connections": [
    {"id": "c1", "from": "S1", "to": "DS1"},
    {"id": "c2", "from": "DS1", "to": "CB1"},
    {"id": "c3", "from": "CB1", "to": "J1", "ratingMVA": 100},
    {"id": "c4", "from": "J1", "to": "L1"},
    {"id": "e1", "from": "J1", "to": "ES1"}
  ],
  "interlocks": [
    {"id": "r1", "device": "ES1", "target": "closed", "conditionDevice": "CB1", "conditionState": "closed"}
  ]
}`

const radialYAML = `version: switchgear/v1
name: radial
devices:
  - {id: S1, kind: source, sourceEnergized: true}
  - {id: CB1, kind: breaker, state: open}
  - {id: L1, kind: load, power: {p: 10, q: 0}}
connections:
  - {id: c1, from: S1, to: CB1}
  - {id: c2, from: CB1, to: L1}
`

type testAPI struct {
	handler http.Handler
	sim     *sim.Simulation
	timers  *timer.VirtualScheduler
	reg     *prometheus.Registry
	httpc   *observability.HTTPCollector
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	reg := prometheus.NewRegistry()
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	httpc, err := observability.NewHTTPCollector(reg)
	if err != nil {
		t.Fatalf("NewHTTPCollector: %v", err)
	}

	timers := timer.NewVirtualScheduler(epoch)
	s := sim.NewSimulation(timers, logging.Noop(),
		sim.WithCommandConfig(command.Config{
			Breaker: command.Profile{Complete: 50 * time.Millisecond, Timeout: 500 * time.Millisecond},
			Switch:  command.Profile{Complete: 2 * time.Second, Timeout: 6 * time.Second},
		}),
		sim.WithProtectionSettings(protection.Settings{TransientClearDelay: 500 * time.Millisecond}),
		sim.WithRand(command.FixedRand(0.5)),
		sim.WithMetricsRecorder(simMetrics),
	)

	handler := New(Config{
		Sim:            s,
		Log:            logging.Noop(),
		Metrics:        httpc,
		MetricsHandler: simMetrics.Handler(),
	})
	return &testAPI{handler: handler, sim: s, timers: timers, reg: reg, httpc: httpc}
}

func (a *testAPI) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func (a *testAPI) load(t *testing.T) {
	t.Helper()
	rr := a.do(t, http.MethodPut, "/v1/network", "application/json", bayJSON)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT /v1/network = %d: %s", rr.Code, rr.Body.String())
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

type errorEnvelope struct {
	Error apiErrorBody `json:"error"`
}

func TestHealthEchoesRequestID(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(logging.RequestIDHeader, "req-7")
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Header().Get(logging.RequestIDHeader); got != "req-7" {
		t.Fatalf("request id header = %q", got)
	}
	body := decode[HealthResponse](t, rr)
	if body.Status != "ok" || !body.SimTime.Equal(epoch) {
		t.Fatalf("health = %+v", body)
	}

	rr = a.do(t, http.MethodGet, "/v1/health", "", "")
	if rr.Header().Get(logging.RequestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}
}

func TestLoadNetworkAndAnalyse(t *testing.T) {
	a := newTestAPI(t)
	a.load(t)

	net := decode[NetworkResponse](t, a.do(t, http.MethodGet, "/v1/network", "", ""))
	if net.Name != "bay" || len(net.Devices) != 6 || len(net.Interlocks) != 1 {
		t.Fatalf("network = %+v", net)
	}

	cond := decode[ConductionResponse](t, a.do(t, http.MethodGet, "/v1/conduction", "", ""))
	want := []string{"CB1", "DS1", "J1", "L1", "S1"}
	if strings.Join(cond.EnergizedDevices, ",") != strings.Join(want, ",") {
		t.Fatalf("energized = %v, want %v", cond.EnergizedDevices, want)
	}

	gnd := decode[GroundingResponse](t, a.do(t, http.MethodGet, "/v1/grounding", "", ""))
	if len(gnd.GroundedDevices) != 0 || len(gnd.Conflicts) != 0 {
		t.Fatalf("grounding = %+v", gnd)
	}

	rr := a.do(t, http.MethodGet, "/v1/powerflow", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("powerflow status = %d", rr.Code)
	}
	var pf struct {
		EdgeLoadingPct map[string]float64 `json:"edgeLoadingPct"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &pf); err != nil {
		t.Fatalf("decode powerflow: %v", err)
	}
	if got := pf.EdgeLoadingPct["c3"]; got != 50 {
		t.Fatalf("c3 loading = %v, want 50", got)
	}

	doc := a.do(t, http.MethodGet, "/v1/network/document", "", "")
	if doc.Code != http.StatusOK || !strings.Contains(doc.Body.String(), `"version":"switchgear/v1"`) {
		t.Fatalf("document = %d %s", doc.Code, doc.Body.String())
	}
}

func TestLoadYAMLNetwork(t *testing.T) {
	a := newTestAPI(t)
	rr := a.do(t, http.MethodPut, "/v1/network", "application/yaml", radialYAML)
	if rr.Code != http.StatusOK {
		t.Fatalf("PUT yaml = %d: %s", rr.Code, rr.Body.String())
	}
	net := decode[NetworkResponse](t, rr)
	if net.Name != "radial" || strings.Join(net.EnergizedDevices, ",") != "S1" {
		t.Fatalf("network = %+v", net)
	}
}

func TestLoadInvalidNetworkRejected(t *testing.T) {
	a := newTestAPI(t)
	a.load(t)

	bad := `{"version":"switchgear/v1","devices":[{"id":"S1","kind":"source"}],"connections":[{"id":"c1","from":"S1","to":"X"}]}`
	rr := a.do(t, http.MethodPut, "/v1/network", "application/json", bad)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rr.Code, rr.Body.String())
	}
	if env := decode[errorEnvelope](t, rr); env.Error.Code != "invalid_network" {
		t.Fatalf("error = %+v", env.Error)
	}
	if got := len(a.sim.Snapshot().Devices); got != 6 {
		t.Fatalf("rejected document replaced the network: %d devices", got)
	}

	if rr := a.do(t, http.MethodPut, "/v1/network", "application/json", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d", rr.Code)
	}
}

func TestCommandLifecycle(t *testing.T) {
	a := newTestAPI(t)
	a.load(t)

	rr := a.do(t, http.MethodPost, "/v1/devices/CB1/commands", "application/json", `{"target":"open"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("command status = %d: %s", rr.Code, rr.Body.String())
	}
	ack := decode[CommandResponse](t, rr)
	if ack.CommandID == "" || ack.DeviceID != "CB1" || ack.Target != model.StateOpen {
		t.Fatalf("ack = %+v", ack)
	}

	rr = a.do(t, http.MethodPost, "/v1/devices/CB1/commands", "application/json", `{"target":"closed"}`)
	if rr.Code != http.StatusConflict || decode[errorEnvelope](t, rr).Error.Code != "busy" {
		t.Fatalf("second command = %d %s", rr.Code, rr.Body.String())
	}

	a.timers.Advance(100 * time.Millisecond)

	d, _ := a.sim.Device("CB1")
	if d.State != model.StateOpen {
		t.Fatalf("CB1 state = %s, want open", d.State)
	}
	page := decode[EventPage](t, a.do(t, http.MethodGet, "/v1/events?limit=1000", "", ""))
	found := false
	for _, ev := range page.Items {
		if ev.Type == model.EventCommandSucceeded && ev.DeviceID == "CB1" {
			found = true
		}
	}
	if !found || page.LastSeq == 0 {
		t.Fatalf("succeeded event missing from %+v", page)
	}

	later := decode[EventPage](t, a.do(t, http.MethodGet, "/v1/events?after="+itoa(page.LastSeq), "", ""))
	if len(later.Items) != 0 {
		t.Fatalf("events after last seq = %+v", later.Items)
	}

	var after, seen uint64
	for seen < page.LastSeq {
		step := decode[EventPage](t, a.do(t, http.MethodGet, "/v1/events?limit=1&after="+itoa(after), "", ""))
		if len(step.Items) != 1 || step.Items[0].Seq != after+1 {
			t.Fatalf("page after %d = %+v", after, step.Items)
		}
		after = step.Items[0].Seq
		seen++
	}

	for path, want := range map[string]int{
		"/v1/devices/NOPE/commands": http.StatusNotFound,
		"/v1/devices/L1/commands":   http.StatusBadRequest,
	} {
		if rr := a.do(t, http.MethodPost, path, "application/json", `{"target":"closed"}`); rr.Code != want {
			t.Fatalf("POST %s = %d, want %d: %s", path, rr.Code, want, rr.Body.String())
		}
	}
	if rr := a.do(t, http.MethodPost, "/v1/devices/CB1/commands", "application/json", `{"target":"sideways"}`); rr.Code < 400 || rr.Code >= 500 {
		t.Fatalf("invalid target status = %d", rr.Code)
	}
}

func TestInterlockBlocksEarthSwitch(t *testing.T) {
	a := newTestAPI(t)
	a.load(t)

	rr := a.do(t, http.MethodGet, "/v1/devices/ES1/interlock?target=closed", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("interlock status = %d: %s", rr.Code, rr.Body.String())
	}
	var decision struct {
		Allowed        bool   `json:"allowed"`
		RuleID         string `json:"ruleId"`
		BlockingDevice string `json:"blockingDevice"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if decision.Allowed || decision.RuleID != "r1" || decision.BlockingDevice != "CB1" {
		t.Fatalf("decision = %+v", decision)
	}

	rr = a.do(t, http.MethodPost, "/v1/devices/ES1/commands", "application/json", `{"target":"closed"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("interlocked command = %d: %s", rr.Code, rr.Body.String())
	}
	env := decode[errorEnvelope](t, rr)
	if env.Error.Code != "interlocked" || env.Error.Details["ruleId"] != "r1" {
		t.Fatalf("error = %+v", env.Error)
	}

	if rr := a.do(t, http.MethodGet, "/v1/devices/NOPE/interlock?target=open", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown device interlock = %d", rr.Code)
	}
}

func TestFaultInjectListAndClear(t *testing.T) {
	a := newTestAPI(t)
	a.load(t)

	rr := a.do(t, http.MethodPost, "/v1/faults", "application/json", `{"connectionId":"c4","position":0.5,"persistent":true}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("inject = %d: %s", rr.Code, rr.Body.String())
	}
	fault := decode[model.Fault](t, rr)
	if fault.ID == "" || strings.Join(fault.TripSet, ",") != "CB1" {
		t.Fatalf("fault = %+v", fault)
	}

	a.timers.Advance(100 * time.Millisecond)
	if d, _ := a.sim.Device("CB1"); d.State != model.StateOpen {
		t.Fatalf("CB1 not tripped: %s", d.State)
	}

	list := decode[FaultList](t, a.do(t, http.MethodGet, "/v1/faults", "", ""))
	if len(list.Items) != 1 || list.Active != 1 {
		t.Fatalf("faults = %+v", list)
	}
	if rr := a.do(t, http.MethodGet, "/v1/faults/"+fault.ID, "", ""); rr.Code != http.StatusOK {
		t.Fatalf("get fault = %d", rr.Code)
	}

	if rr := a.do(t, http.MethodDelete, "/v1/faults/"+fault.ID, "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("clear = %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[FaultList](t, a.do(t, http.MethodGet, "/v1/faults", "", "")).Active; got != 0 {
		t.Fatalf("active after clear = %d", got)
	}
	if rr := a.do(t, http.MethodDelete, "/v1/faults/missing", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("clear unknown = %d", rr.Code)
	}
	if rr := a.do(t, http.MethodPost, "/v1/faults", "application/json", `{"connectionId":"nope"}`); rr.Code != http.StatusNotFound {
		t.Fatalf("fault on unknown connection = %d", rr.Code)
	}

	if rr := a.do(t, http.MethodPost, "/v1/devices/CB1/reset", "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("reset = %d: %s", rr.Code, rr.Body.String())
	}
	if rr := a.do(t, http.MethodPost, "/v1/devices/NOPE/reset", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("reset unknown = %d", rr.Code)
	}
}

func TestMetricsEndpointAndRouteLabels(t *testing.T) {
	a := newTestAPI(t)
	a.load(t)
	a.do(t, http.MethodGet, "/v1/devices/CB1/interlock?target=open", "", "")
	a.do(t, http.MethodGet, "/v1/devices/DS1/interlock?target=open", "", "")

	rr := a.do(t, http.MethodGet, "/metrics", "", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "switchgear_devices 6") {
		t.Fatalf("metrics = %d\n%s", rr.Code, rr.Body.String())
	}
	if got := testutil.ToFloat64(a.httpc.Requests.WithLabelValues("GET", "/v1/devices/{id}/interlock", "200")); got != 2 {
		t.Fatalf("interlock requests = %v, want 2", got)
	}
}

func TestDeleteNetworkAndEvents(t *testing.T) {
	a := newTestAPI(t)
	a.load(t)
	if _, err := a.sim.InjectFault(context.Background(), protection.FaultRequest{ConnectionID: "c4", Persistent: true}); err != nil {
		t.Fatalf("InjectFault: %v", err)
	}

	if rr := a.do(t, http.MethodDelete, "/v1/network", "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete network = %d: %s", rr.Code, rr.Body.String())
	}
	net := decode[NetworkResponse](t, a.do(t, http.MethodGet, "/v1/network", "", ""))
	if len(net.Devices) != 0 || len(net.Faults) != 0 || len(net.Pending) != 0 || len(net.EnergizedDevices) != 0 {
		t.Fatalf("network after delete = %+v", net)
	}

	before := decode[EventPage](t, a.do(t, http.MethodGet, "/v1/events", "", ""))
	if len(before.Items) == 0 {
		t.Fatalf("event log emptied by network delete")
	}
	if rr := a.do(t, http.MethodDelete, "/v1/events", "", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete events = %d: %s", rr.Code, rr.Body.String())
	}
	after := decode[EventPage](t, a.do(t, http.MethodGet, "/v1/events", "", ""))
	if len(after.Items) != 0 || after.LastSeq != before.LastSeq {
		t.Fatalf("events after delete = %+v, last seq was %d", after, before.LastSeq)
	}

	a.load(t)
	reloaded := decode[EventPage](t, a.do(t, http.MethodGet, "/v1/events?after="+itoa(before.LastSeq), "", ""))
	if len(reloaded.Items) == 0 || reloaded.Items[0].Seq != before.LastSeq+1 {
		t.Fatalf("events after reload = %+v", reloaded.Items)
	}
}

func TestToAPIErrorFallsBackToInternal(t *testing.T) {
	err := toAPIError(context.DeadlineExceeded)
	if err.GetStatus() != http.StatusInternalServerError {
		t.Fatalf("status = %d", err.GetStatus())
	}
	if toAPIError(nil) != nil {
		t.Fatalf("nil error mapped to non-nil")
	}
}

func itoa(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
