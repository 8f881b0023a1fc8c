package core

import (
	"math"
	"sort"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

// Role classifies a device for the power estimate.
type Role string

const (
	RoleSource  Role = "source"
	RoleLoad    Role = "load"
	RoleNeutral Role = "neutral"
)

// VoltageState classifies the reactive balance of a bus group.
type VoltageState string

const (
	VoltageDead   VoltageState = "dead"
	VoltageLow    VoltageState = "low"
	VoltageNormal VoltageState = "normal"
	VoltageHigh   VoltageState = "high"
)

// PowerFlowOptions holds the bus-voltage thresholds in Mvar of net reactive
// surplus (positive) or deficit (negative).
type PowerFlowOptions struct {
	LowVoltageMvar  float64 `mapstructure:"low_voltage_mvar"`
	HighVoltageMvar float64 `mapstructure:"high_voltage_mvar"`
}

// DefaultPowerFlowOptions returns the trainer's default thresholds.
func DefaultPowerFlowOptions() PowerFlowOptions {
	return PowerFlowOptions{LowVoltageMvar: 10, HighVoltageMvar: 10}
}

// PowerTotals aggregates demand and supply over the whole network.
type PowerTotals struct {
	ServedMW           float64 `json:"servedMW"`
	ServedMvar         float64 `json:"servedMvar"`
	ServedMVA          float64 `json:"servedMVA"`
	UnservedMW         float64 `json:"unservedMW"`
	UnservedMVA        float64 `json:"unservedMVA"`
	ReactiveSupplyMvar float64 `json:"reactiveSupplyMvar"`
	ReactiveDemandMvar float64 `json:"reactiveDemandMvar"`
	OverloadedEdges    int     `json:"overloadedEdges"`
}

// PowerFlowResult is the output of EstimatePowerFlow.
type PowerFlowResult struct {
	Roles           map[string]Role         `json:"roles"`
	EdgeFlowMVA     map[string]float64      `json:"edgeFlowMVA"`
	EdgeLoadingPct  map[string]float64      `json:"edgeLoadingPct"`
	OverloadedEdges []string                `json:"overloadedEdges"`
	BusVoltageState map[string]VoltageState `json:"busVoltageState"`
	BusReactiveMvar map[string]float64      `json:"busReactiveMvar"`
	Totals          PowerTotals             `json:"totals"`
}

// RoleOf classifies d for the power estimate.
func RoleOf(d model.Device) Role {
	switch d.Kind {
	case model.KindSource, model.KindCapacitorBank:
		return RoleSource
	case model.KindLoad, model.KindInterface, model.KindShuntReactor:
		return RoleLoad
	case model.KindDisconnector, model.KindBreaker, model.KindEarthSwitch, model.KindJunction,
		model.KindTransformer, model.KindCT, model.KindVT:
		return RoleNeutral
	default:
		return RoleNeutral
	}
}

func apparent(p *model.PowerRating) float64 {
	if p == nil {
		return 0
	}
	return math.Hypot(p.P, p.Q)
}

// EstimatePowerFlow splits every energized load's apparent power evenly over
// all shortest (hop-count) conducting paths to its nearest energized sources
// and accumulates the result per connection. It is a heuristic, not a
// load-flow solution.
func EstimatePowerFlow(devices []model.Device, connections []model.Connection, opts PowerFlowOptions) PowerFlowResult {
	g := newGraph(devices, connections)
	cond := ComputeConduction(devices, connections)

	res := PowerFlowResult{
		Roles:           make(map[string]Role, len(devices)),
		EdgeFlowMVA:     make(map[string]float64),
		EdgeLoadingPct:  make(map[string]float64),
		OverloadedEdges: make([]string, 0),
		BusVoltageState: make(map[string]VoltageState),
		BusReactiveMvar: make(map[string]float64),
	}

	for _, id := range g.order {
		d := g.devices[id]
		role := RoleOf(*d)
		res.Roles[id] = role
		if role != RoleLoad || d.Power == nil {
			continue
		}
		s := apparent(d.Power)
		if !cond.EnergizedDevices.Has(id) {
			res.Totals.UnservedMW += d.Power.P
			res.Totals.UnservedMVA += s
			continue
		}
		res.Totals.ServedMW += d.Power.P
		res.Totals.ServedMvar += d.Power.Q
		res.Totals.ServedMVA += s
		if s > 0 {
			splitLoad(g, cond, id, s, res.EdgeFlowMVA)
		}
	}

	for i := range connections {
		c := connections[i]
		if c.RatingMVA <= 0 {
			continue
		}
		flow := res.EdgeFlowMVA[c.ID]
		res.EdgeLoadingPct[c.ID] = flow / c.RatingMVA * 100
		if flow > c.RatingMVA {
			res.OverloadedEdges = append(res.OverloadedEdges, c.ID)
		}
	}
	sort.Strings(res.OverloadedEdges)
	res.Totals.OverloadedEdges = len(res.OverloadedEdges)

	classifyBuses(g, connections, cond, opts, &res)
	return res
}

// splitLoad runs a BFS from the load, counts shortest paths to the nearest
// energized sources and adds each connection's share of demand to flows.
func splitLoad(g *graph, cond ConductionResult, loadID string, demand float64, flows map[string]float64) {
	dist := map[string]int{loadID: 0}
	sigma := map[string]float64{loadID: 1}
	order := []string{loadID}
	nearest := -1

	for i := 0; i < len(order); i++ {
		cur := order[i]
		if nearest >= 0 && dist[cur] >= nearest {
			break
		}
		if cur != loadID && isEnergizedSource(g.devices[cur]) {
			continue
		}
		for _, a := range g.adj[cur] {
			next := g.devices[a.other]
			if !cond.EnergizedDevices.Has(a.other) || !Conducts(*next) {
				continue
			}
			dv, seen := dist[a.other]
			if !seen {
				dist[a.other] = dist[cur] + 1
				dv = dist[a.other]
				order = append(order, a.other)
				if isEnergizedSource(next) && (nearest < 0 || dv < nearest) {
					nearest = dv
				}
			}
			if dv == dist[cur]+1 {
				sigma[a.other] += sigma[cur]
			}
		}
	}
	if nearest < 0 {
		return
	}

	// toSource counts shortest continuations from a node to the nearest sources.
	toSource := make(map[string]float64)
	for i := len(order) - 1; i >= 0; i-- {
		cur := order[i]
		if dist[cur] > nearest {
			continue
		}
		if dist[cur] == nearest {
			if isEnergizedSource(g.devices[cur]) {
				toSource[cur] = 1
			}
			continue
		}
		if cur != loadID && isEnergizedSource(g.devices[cur]) {
			continue
		}
		for _, a := range g.adj[cur] {
			if dv, ok := dist[a.other]; ok && dv == dist[cur]+1 {
				toSource[cur] += toSource[a.other]
			}
		}
	}

	total := toSource[loadID]
	if total == 0 {
		return
	}
	for _, cur := range order {
		if dist[cur] >= nearest {
			continue
		}
		if cur != loadID && isEnergizedSource(g.devices[cur]) {
			continue
		}
		for _, a := range g.adj[cur] {
			dv, ok := dist[a.other]
			if !ok || dv != dist[cur]+1 || toSource[a.other] == 0 {
				continue
			}
			flows[a.conn.ID] += demand * sigma[cur] * toSource[a.other] / total
		}
	}
}

func isEnergizedSource(d *model.Device) bool {
	return d.Kind == model.KindSource && d.SourceEnergized
}

func classifyBuses(g *graph, connections []model.Connection, cond ConductionResult, opts PowerFlowOptions, res *PowerFlowResult) {
	members := make(map[string]IDSet)
	live := make(map[string]bool)
	for _, c := range connections {
		if c.BusGroup == "" {
			continue
		}
		set, ok := members[c.BusGroup]
		if !ok {
			set = make(IDSet)
			members[c.BusGroup] = set
		}
		set.Add(c.From)
		set.Add(c.To)
		if cond.EnergizedConnections.Has(c.ID) {
			live[c.BusGroup] = true
		}
	}

	for group, set := range members {
		if !live[group] {
			res.BusVoltageState[group] = VoltageDead
			res.BusReactiveMvar[group] = 0
			continue
		}
		var net float64
		for _, id := range set.Sorted() {
			d := g.devices[id]
			if d == nil || d.Power == nil || !cond.EnergizedDevices.Has(id) {
				continue
			}
			net += reactiveContribution(*d)
		}
		res.BusReactiveMvar[group] = net
		switch {
		case net < -opts.LowVoltageMvar:
			res.BusVoltageState[group] = VoltageLow
		case net > opts.HighVoltageMvar:
			res.BusVoltageState[group] = VoltageHigh
		default:
			res.BusVoltageState[group] = VoltageNormal
		}
	}

	for _, id := range g.order {
		d := g.devices[id]
		if d.Power == nil || !cond.EnergizedDevices.Has(id) {
			continue
		}
		q := reactiveContribution(*d)
		if q > 0 {
			res.Totals.ReactiveSupplyMvar += q
		} else {
			res.Totals.ReactiveDemandMvar -= q
		}
	}
}

// reactiveContribution is positive for reactive supply and negative for
// consumption.
func reactiveContribution(d model.Device) float64 {
	if d.Power == nil {
		return 0
	}
	q := math.Abs(d.Power.Q)
	switch d.Kind {
	case model.KindSource, model.KindCapacitorBank:
		return q
	case model.KindLoad, model.KindInterface, model.KindShuntReactor:
		return -q
	case model.KindDisconnector, model.KindBreaker, model.KindEarthSwitch, model.KindJunction,
		model.KindTransformer, model.KindCT, model.KindVT:
		return 0
	default:
		return 0
	}
}
