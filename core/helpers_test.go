package core

import (
	"testing"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

func source(id string, on bool) model.Device {
	return model.Device{ID: id, Kind: model.KindSource, SourceEnergized: on}
}

func breaker(id string, st model.SwitchState) model.Device {
	return model.Device{ID: id, Kind: model.KindBreaker, State: st}
}

func disconnector(id string, st model.SwitchState) model.Device {
	return model.Device{ID: id, Kind: model.KindDisconnector, State: st}
}

func earth(id string, st model.SwitchState) model.Device {
	return model.Device{ID: id, Kind: model.KindEarthSwitch, State: st}
}

func junction(id string) model.Device {
	return model.Device{ID: id, Kind: model.KindJunction}
}

func load(id string, p, q float64) model.Device {
	return model.Device{ID: id, Kind: model.KindLoad, Power: &model.PowerRating{P: p, Q: q}}
}

func conn(id, from, to string) model.Connection {
	return model.Connection{ID: id, From: from, To: to}
}

func wantSet(t *testing.T, what string, got IDSet, want ...string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", what, got.Sorted(), want)
	}
	for _, id := range want {
		if !got.Has(id) {
			t.Fatalf("%s = %v, missing %q", what, got.Sorted(), id)
		}
	}
}

func setIndex(devices []model.Device, id string, fn func(*model.Device)) {
	for i := range devices {
		if devices[i].ID == id {
			fn(&devices[i])
			return
		}
	}
}
