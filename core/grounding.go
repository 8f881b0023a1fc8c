package core

import "github.com/signalsfoundry/switchgear-simulator/model"

// GroundingResult lists what is currently earthed.
type GroundingResult struct {
	GroundedDevices     IDSet `json:"groundedDevices"`
	GroundedConnections IDSet `json:"groundedConnections"`
}

// ComputeGrounding propagates earth breadth-first from every closed earth
// switch. Sources terminate the search and are never grounded. A closed CB
// or DS extends the earth; an open one stops it, leaving only the connection
// up to it grounded.
func ComputeGrounding(devices []model.Device, connections []model.Connection) GroundingResult {
	g := newGraph(devices, connections)
	res := GroundingResult{
		GroundedDevices:     make(IDSet),
		GroundedConnections: make(IDSet),
	}

	queue := make([]string, 0)
	for _, id := range g.order {
		d := g.devices[id]
		if d.Kind == model.KindEarthSwitch && d.State == model.StateClosed {
			res.GroundedDevices.Add(id)
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, a := range g.adj[cur] {
			res.GroundedConnections.Add(a.conn.ID)
			if res.GroundedDevices.Has(a.other) {
				continue
			}
			if !extendsGround(*g.devices[a.other]) {
				continue
			}
			res.GroundedDevices.Add(a.other)
			queue = append(queue, a.other)
		}
	}
	return res
}

func extendsGround(d model.Device) bool {
	switch d.Kind {
	case model.KindSource:
		return false
	case model.KindEarthSwitch:
		// Closed earth switches are seeds in their own right; an open one
		// is not a conductor.
		return false
	case model.KindBreaker, model.KindDisconnector:
		return d.State == model.StateClosed
	case model.KindLoad, model.KindInterface, model.KindJunction, model.KindTransformer,
		model.KindCT, model.KindVT, model.KindShuntReactor, model.KindCapacitorBank:
		return true
	default:
		return false
	}
}

// DetectConflicts returns the connections that are both energized and
// grounded, sorted by ID. An empty result means the network is consistent.
func DetectConflicts(cond ConductionResult, gnd GroundingResult) []string {
	out := make([]string, 0)
	for _, id := range cond.EnergizedConnections.Sorted() {
		if gnd.GroundedConnections.Has(id) {
			out = append(out, id)
		}
	}
	return out
}
