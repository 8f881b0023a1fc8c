package core

import (
	"fmt"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

// Decision is the outcome of an interlock evaluation.
type Decision struct {
	Allowed        bool              `json:"allowed"`
	Reason         string            `json:"reason,omitempty"`
	RuleID         string            `json:"ruleId,omitempty"`
	BlockingDevice string            `json:"blockingDevice,omitempty"`
	BlockingState  model.SwitchState `json:"blockingState,omitempty"`
}

// InterlockError is returned when a command is blocked by an interlock rule.
type InterlockError struct {
	DeviceID string
	Target   model.SwitchState
	Decision Decision
}

func (e *InterlockError) Error() string {
	return fmt.Sprintf("interlock: cannot %s %s: %s", e.Target.Verb(), e.DeviceID, e.Decision.Reason)
}

// EvaluateInterlock checks the rules whose action matches (deviceID, target)
// in order. The first rule whose condition device currently sits in the
// condition state blocks the command.
func EvaluateInterlock(deviceID string, target model.SwitchState, devices []model.Device, rules []model.InterlockRule) Decision {
	var index map[string]*model.Device
	for _, r := range rules {
		if r.Device != deviceID || r.Target != target {
			continue
		}
		if index == nil {
			index = make(map[string]*model.Device, len(devices))
			for i := range devices {
				index[devices[i].ID] = &devices[i]
			}
		}
		cond, ok := index[r.ConditionDevice]
		if !ok || cond.State != r.ConditionState {
			continue
		}
		return Decision{
			Allowed:        false,
			Reason:         fmt.Sprintf("blocked while %s is %s", cond.Label(), cond.State),
			RuleID:         r.ID,
			BlockingDevice: cond.ID,
			BlockingState:  cond.State,
		}
	}
	return Decision{Allowed: true}
}

// RuleConflict pairs two rules that together block an action whatever the
// condition device does.
type RuleConflict struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// ConflictingRules reports pairs of rules guarding the same action on the same
// condition device with opposite condition states.
func ConflictingRules(rules []model.InterlockRule) []RuleConflict {
	var out []RuleConflict
	for i := 0; i < len(rules); i++ {
		for j := i + 1; j < len(rules); j++ {
			a, b := rules[i], rules[j]
			if a.Device == b.Device && a.Target == b.Target &&
				a.ConditionDevice == b.ConditionDevice && a.ConditionState != b.ConditionState {
				out = append(out, RuleConflict{First: a.ID, Second: b.ID})
			}
		}
	}
	return out
}
