package models

import (
	"testing"
	"time"
)

func TestStateMachine_BasicTransitions(t *testing.T) {
	sm := NewStateMachine()

	if sm.GetCurrentState() != StateIdle {
		t.Errorf("Initial state should be StateIdle, got %s", sm.GetCurrentState())
	}

	at := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	if err := sm.Transition(StateOpen, ConditionEntryFilled, at); err != nil {
		t.Fatalf("Valid transition failed: %v", err)
	}
	if sm.GetCurrentState() != StateOpen {
		t.Errorf("State should be StateOpen, got %s", sm.GetCurrentState())
	}
	if sm.GetPreviousState() != StateIdle {
		t.Errorf("Previous state should be StateIdle, got %s", sm.GetPreviousState())
	}
	if !sm.GetTransitionTime().Equal(at) {
		t.Errorf("Transition time = %v, want %v", sm.GetTransitionTime(), at)
	}
	if sm.GetLastCondition() != ConditionEntryFilled {
		t.Errorf("Last condition = %q", sm.GetLastCondition())
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	at := time.Now().UTC()
	tests := []struct {
		name      string
		setup     []PositionState
		to        PositionState
		condition string
	}{
		{"idle straight to closed", nil, StateClosed, string(ExitProfitTarget)},
		{"open with wrong condition", []PositionState{StateOpen}, StateClosed, "manual"},
		{"open with empty condition", []PositionState{StateOpen}, StateClosed, ""},
		{"reopen closed position", []PositionState{StateOpen, StateClosed}, StateOpen, ConditionEntryFilled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine()
			for _, s := range tt.setup {
				cond := ConditionEntryFilled
				if s == StateClosed {
					cond = string(ExitTime)
				}
				if err := sm.Transition(s, cond, at); err != nil {
					t.Fatalf("setup transition to %s failed: %v", s, err)
				}
			}
			before := sm.GetCurrentState()
			if err := sm.Transition(tt.to, tt.condition, at); err == nil {
				t.Error("Invalid transition should fail")
			}
			if sm.GetCurrentState() != before {
				t.Errorf("State should remain %s after failed transition, got %s", before, sm.GetCurrentState())
			}
		})
	}
}

func TestStateMachine_AllExitConditions(t *testing.T) {
	for _, reason := range []ExitReason{ExitProfitTarget, ExitStopLoss, ExitDTE, ExitTime} {
		t.Run(string(reason), func(t *testing.T) {
			sm := NewStateMachine()
			at := time.Now().UTC()
			if err := sm.Transition(StateOpen, ConditionEntryFilled, at); err != nil {
				t.Fatal(err)
			}
			if err := sm.Transition(StateClosed, string(reason), at.Add(time.Hour)); err != nil {
				t.Fatalf("close with %s failed: %v", reason, err)
			}
			if sm.GetTransitionCount(StateClosed) != 1 {
				t.Errorf("closed count = %d", sm.GetTransitionCount(StateClosed))
			}
		})
	}
}

func TestStateMachine_StateValidation(t *testing.T) {
	sm := NewStateMachine()
	if err := sm.ValidateStateConsistency(); err != nil {
		t.Errorf("fresh machine should be consistent: %v", err)
	}

	sm.currentState = StateOpen
	if err := sm.ValidateStateConsistency(); err == nil {
		t.Error("open without recorded transition should be inconsistent")
	}

	sm = NewStateMachine()
	if err := sm.Transition(StateOpen, ConditionEntryFilled, time.Time{}); err != nil {
		t.Fatal(err)
	}
	if err := sm.ValidateStateConsistency(); err == nil {
		t.Error("zero transition time should be inconsistent")
	}
}

func TestStateMachine_StateDescriptions(t *testing.T) {
	sm := NewStateMachine()
	seen := map[string]bool{}
	for _, s := range []PositionState{StateIdle, StateOpen, StateClosed, PositionState("bogus")} {
		sm.currentState = s
		desc := sm.GetStateDescription()
		if desc == "" {
			t.Errorf("empty description for %s", s)
		}
		if seen[desc] {
			t.Errorf("duplicate description %q", desc)
		}
		seen[desc] = true
	}
}

func TestStateMachine_Copy(t *testing.T) {
	var nilSM *StateMachine
	if nilSM.Copy() != nil {
		t.Error("Copy of nil should be nil")
	}

	sm := NewStateMachine()
	if err := sm.Transition(StateOpen, ConditionEntryFilled, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	cp := sm.Copy()
	if err := cp.Transition(StateClosed, string(ExitStopLoss), time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if sm.GetCurrentState() != StateOpen {
		t.Errorf("original mutated: %s", sm.GetCurrentState())
	}
	if sm.GetTransitionCount(StateClosed) != 0 {
		t.Error("transition counts should not be shared")
	}
}
