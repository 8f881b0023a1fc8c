package core

import (
	"testing"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

func TestComputeConduction_ClosedFeeder(t *testing.T) {
	devices := []model.Device{
		source("S1", true),
		disconnector("DS1", model.StateClosed),
		breaker("CB1", model.StateClosed),
		load("L1", 10, 2),
	}
	conns := []model.Connection{
		conn("c1", "S1", "DS1"),
		conn("c2", "DS1", "CB1"),
		conn("c3", "CB1", "L1"),
	}

	res := ComputeConduction(devices, conns)
	wantSet(t, "energized devices", res.EnergizedDevices, "S1", "DS1", "CB1", "L1")
	wantSet(t, "energized connections", res.EnergizedConnections, "c1", "c2", "c3")
}

func TestComputeConduction_OpenBreakerDeadEnds(t *testing.T) {
	devices := []model.Device{
		source("S1", true),
		breaker("CB1", model.StateOpen),
		load("L1", 10, 0),
	}
	conns := []model.Connection{
		conn("c1", "S1", "CB1"),
		conn("c2", "CB1", "L1"),
	}

	res := ComputeConduction(devices, conns)
	// The connection up to the open breaker is live, the breaker is not.
	wantSet(t, "energized devices", res.EnergizedDevices, "S1")
	wantSet(t, "energized connections", res.EnergizedConnections, "c1")
}

func TestComputeConduction_EarthSwitchNeverConducts(t *testing.T) {
	devices := []model.Device{
		source("S1", true),
		earth("ES1", model.StateClosed),
		junction("J1"),
	}
	conns := []model.Connection{
		conn("c1", "S1", "ES1"),
		conn("c2", "ES1", "J1"),
	}

	res := ComputeConduction(devices, conns)
	if res.EnergizedDevices.Has("ES1") || res.EnergizedDevices.Has("J1") {
		t.Fatalf("earth switch passed energization: %v", res.EnergizedDevices.Sorted())
	}
	if res.EnergizedConnections.Has("c2") {
		t.Fatalf("connection behind earth switch energized")
	}
}

func TestComputeConduction_DeenergizedSourceSeedsNothing(t *testing.T) {
	devices := []model.Device{source("S1", false), junction("J1")}
	conns := []model.Connection{conn("c1", "S1", "J1")}

	res := ComputeConduction(devices, conns)
	if len(res.EnergizedDevices) != 0 || len(res.EnergizedConnections) != 0 {
		t.Fatalf("expected nothing energized, got %v / %v",
			res.EnergizedDevices.Sorted(), res.EnergizedConnections.Sorted())
	}
}

func TestComputeConduction_PassThroughKinds(t *testing.T) {
	devices := []model.Device{
		source("S1", true),
		{ID: "CT1", Kind: model.KindCT},
		{ID: "T1", Kind: model.KindTransformer},
		{ID: "VT1", Kind: model.KindVT},
		{ID: "IF1", Kind: model.KindInterface},
		{ID: "X1", Kind: model.KindJunction},
	}
	conns := []model.Connection{
		conn("c1", "S1", "CT1"),
		conn("c2", "CT1", "T1"),
		conn("c3", "T1", "VT1"),
		conn("c4", "VT1", "IF1"),
		conn("c5", "IF1", "X1"),
	}

	res := ComputeConduction(devices, conns)
	wantSet(t, "energized devices", res.EnergizedDevices, "S1", "CT1", "T1", "VT1", "IF1", "X1")
}

func TestComputeConduction_IgnoresDanglingConnections(t *testing.T) {
	devices := []model.Device{source("S1", true)}
	conns := []model.Connection{conn("c1", "S1", "gone")}

	res := ComputeConduction(devices, conns)
	wantSet(t, "energized connections", res.EnergizedConnections)
}

func TestIDSet_MarshalsSorted(t *testing.T) {
	s := NewIDSet("b", "c", "a")
	data, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) != `["a","b","c"]` {
		t.Fatalf("MarshalJSON = %s", data)
	}

	var back IDSet
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	wantSet(t, "decoded", back, "a", "b", "c")
}
