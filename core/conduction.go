package core

import "github.com/signalsfoundry/switchgear-simulator/model"

// ConductionResult lists what currently carries power.
type ConductionResult struct {
	EnergizedDevices     IDSet `json:"energizedDevices"`
	EnergizedConnections IDSet `json:"energizedConnections"`
}

// ComputeConduction propagates energization breadth-first from every
// energized source. A device extends the search only when it conducts.
// Every connection reached from an energized device is energized, so a
// connection dead-ending on an open switch shows live up to that switch.
func ComputeConduction(devices []model.Device, connections []model.Connection) ConductionResult {
	g := newGraph(devices, connections)
	res := ConductionResult{
		EnergizedDevices:     make(IDSet),
		EnergizedConnections: make(IDSet),
	}

	queue := make([]string, 0, len(devices))
	for _, id := range g.order {
		d := g.devices[id]
		if d.Kind == model.KindSource && d.SourceEnergized {
			res.EnergizedDevices.Add(id)
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, a := range g.adj[cur] {
			res.EnergizedConnections.Add(a.conn.ID)
			if res.EnergizedDevices.Has(a.other) {
				continue
			}
			if !Conducts(*g.devices[a.other]) {
				continue
			}
			res.EnergizedDevices.Add(a.other)
			queue = append(queue, a.other)
		}
	}
	return res
}
