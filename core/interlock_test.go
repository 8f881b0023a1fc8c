package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

func bayDevices(cb model.SwitchState) []model.Device {
	return []model.Device{
		breaker("CB1", cb),
		disconnector("DS1", model.StateClosed),
		earth("ES1", model.StateOpen),
	}
}

func TestEvaluateInterlock_BlocksWhileConditionHolds(t *testing.T) {
	rules := []model.InterlockRule{
		{ID: "r1", Device: "DS1", Target: model.StateOpen, ConditionDevice: "CB1", ConditionState: model.StateClosed},
	}

	d := EvaluateInterlock("DS1", model.StateOpen, bayDevices(model.StateClosed), rules)
	if d.Allowed {
		t.Fatalf("expected DS1 open to be blocked")
	}
	if d.RuleID != "r1" || d.BlockingDevice != "CB1" || d.BlockingState != model.StateClosed {
		t.Fatalf("unexpected decision %+v", d)
	}
	if !strings.Contains(d.Reason, "CB CB1") || !strings.Contains(d.Reason, "closed") {
		t.Fatalf("reason %q does not name the blocking device and state", d.Reason)
	}

	d = EvaluateInterlock("DS1", model.StateOpen, bayDevices(model.StateOpen), rules)
	if !d.Allowed {
		t.Fatalf("expected DS1 open to be allowed with CB1 open, got %q", d.Reason)
	}
}

func TestEvaluateInterlock_OnlyMatchingAction(t *testing.T) {
	rules := []model.InterlockRule{
		{ID: "r1", Device: "DS1", Target: model.StateOpen, ConditionDevice: "CB1", ConditionState: model.StateClosed},
	}

	if d := EvaluateInterlock("DS1", model.StateClosed, bayDevices(model.StateClosed), rules); !d.Allowed {
		t.Fatalf("close of DS1 should not match an open rule")
	}
	if d := EvaluateInterlock("ES1", model.StateOpen, bayDevices(model.StateClosed), rules); !d.Allowed {
		t.Fatalf("rule for DS1 applied to ES1")
	}
}

func TestEvaluateInterlock_FirstMatchWins(t *testing.T) {
	rules := []model.InterlockRule{
		{ID: "r-es", Device: "ES1", Target: model.StateClosed, ConditionDevice: "DS1", ConditionState: model.StateClosed},
		{ID: "r-cb", Device: "ES1", Target: model.StateClosed, ConditionDevice: "CB1", ConditionState: model.StateClosed},
	}

	d := EvaluateInterlock("ES1", model.StateClosed, bayDevices(model.StateClosed), rules)
	if d.Allowed || d.RuleID != "r-es" {
		t.Fatalf("expected first rule r-es to block, got %+v", d)
	}
}

func TestEvaluateInterlock_UnknownConditionDeviceIgnored(t *testing.T) {
	rules := []model.InterlockRule{
		{ID: "r1", Device: "DS1", Target: model.StateOpen, ConditionDevice: "missing", ConditionState: model.StateClosed},
	}
	if d := EvaluateInterlock("DS1", model.StateOpen, bayDevices(model.StateClosed), rules); !d.Allowed {
		t.Fatalf("rule on a missing device blocked the command")
	}
}

func TestInterlockError_Message(t *testing.T) {
	var err error = &InterlockError{
		DeviceID: "DS1",
		Target:   model.StateOpen,
		Decision: Decision{Reason: "blocked while CB CB1 is closed"},
	}
	var ie *InterlockError
	if !errors.As(err, &ie) {
		t.Fatalf("errors.As failed")
	}
	if got := err.Error(); got != "interlock: cannot open DS1: blocked while CB CB1 is closed" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestConflictingRules(t *testing.T) {
	rules := []model.InterlockRule{
		{ID: "a", Device: "DS1", Target: model.StateOpen, ConditionDevice: "CB1", ConditionState: model.StateClosed},
		{ID: "b", Device: "DS1", Target: model.StateOpen, ConditionDevice: "CB1", ConditionState: model.StateOpen},
		{ID: "c", Device: "DS1", Target: model.StateClosed, ConditionDevice: "CB1", ConditionState: model.StateOpen},
	}

	got := ConflictingRules(rules)
	if len(got) != 1 || got[0].First != "a" || got[0].Second != "b" {
		t.Fatalf("ConflictingRules = %+v", got)
	}
}
