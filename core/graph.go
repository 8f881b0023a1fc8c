package core

import (
	"encoding/json"
	"sort"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

// IDSet is a set of device or connection IDs. It marshals as a sorted array.
type IDSet map[string]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s IDSet) Add(id string) { s[id] = struct{}{} }

// Has reports membership.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of IDs.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewIDSet(ids...)
	return nil
}

// adjacency is one half of an undirected connection as seen from a device.
type adjacency struct {
	conn  *model.Connection
	other string
}

// graph indexes a device/connection list for traversal. Connections whose
// endpoints are missing are ignored so engines tolerate partial edits.
type graph struct {
	devices map[string]*model.Device
	adj     map[string][]adjacency
	order   []string
}

func newGraph(devices []model.Device, connections []model.Connection) *graph {
	g := &graph{
		devices: make(map[string]*model.Device, len(devices)),
		adj:     make(map[string][]adjacency, len(devices)),
		order:   make([]string, 0, len(devices)),
	}
	for i := range devices {
		d := &devices[i]
		g.devices[d.ID] = d
		g.order = append(g.order, d.ID)
	}
	for i := range connections {
		c := &connections[i]
		if g.devices[c.From] == nil || g.devices[c.To] == nil {
			continue
		}
		g.adj[c.From] = append(g.adj[c.From], adjacency{conn: c, other: c.To})
		g.adj[c.To] = append(g.adj[c.To], adjacency{conn: c, other: c.From})
	}
	return g
}

// Conducts reports whether current passes through d: an energized source,
// a closed CB or DS, or any pass-through kind. Earth switches never conduct.
func Conducts(d model.Device) bool {
	switch d.Kind {
	case model.KindSource:
		return d.SourceEnergized
	case model.KindBreaker, model.KindDisconnector:
		return d.State == model.StateClosed
	case model.KindEarthSwitch:
		return false
	case model.KindLoad, model.KindInterface, model.KindJunction, model.KindTransformer,
		model.KindCT, model.KindVT, model.KindShuntReactor, model.KindCapacitorBank:
		return true
	default:
		return false
	}
}
