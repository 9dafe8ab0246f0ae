// Package models provides market data structures and position lifecycle
// management for the iron condor backtester.
package models

import (
	"fmt"
	"time"
)

// PositionState represents the current state of a position
type PositionState string

const (
	StateIdle   PositionState = "idle"   // Constructed, not yet filled
	StateOpen   PositionState = "open"   // Entry filled, under management
	StateClosed PositionState = "closed" // Exit filled
)

// ConditionEntryFilled is the condition for the idle to open transition.
const ConditionEntryFilled = "entry_filled"

// StateTransition defines valid state transitions
type StateTransition struct {
	From        PositionState
	To          PositionState
	Condition   string
	Description string
}

// ValidTransitions lists every permitted lifecycle move. A position left open
// at the end of a run has no transition; it simply stays open.
var ValidTransitions = []StateTransition{
	{StateIdle, StateOpen, ConditionEntryFilled, "Entry credit received"},
	{StateOpen, StateClosed, string(ExitProfitTarget), "Profit target reached"},
	{StateOpen, StateClosed, string(ExitStopLoss), "Stop loss triggered"},
	{StateOpen, StateClosed, string(ExitDTE), "Days to expiration at or below exit threshold"},
	{StateOpen, StateClosed, string(ExitTime), "Held longer than one day since last signal"},
}

// StateMachine manages position state transitions. Transition times come
// from the caller so that replayed history keeps simulated timestamps.
type StateMachine struct {
	transitionTime  time.Time
	transitionCount map[PositionState]int
	currentState    PositionState
	previousState   PositionState
	lastCondition   string
}

// NewStateMachine creates a new state machine in StateIdle
func NewStateMachine() *StateMachine {
	return &StateMachine{
		currentState:    StateIdle,
		previousState:   StateIdle,
		transitionCount: make(map[PositionState]int),
	}
}

// GetCurrentState returns the current state
func (sm *StateMachine) GetCurrentState() PositionState {
	return sm.currentState
}

// GetPreviousState returns the previous state
func (sm *StateMachine) GetPreviousState() PositionState {
	return sm.previousState
}

// GetTransitionTime returns when the last transition happened
func (sm *StateMachine) GetTransitionTime() time.Time {
	return sm.transitionTime
}

// GetLastCondition returns the condition of the last transition
func (sm *StateMachine) GetLastCondition() string {
	return sm.lastCondition
}

// IsValidTransition checks if a transition is valid
func (sm *StateMachine) IsValidTransition(to PositionState, condition string) error {
	for _, transition := range ValidTransitions {
		if transition.From == sm.currentState && transition.To == to && transition.Condition == condition {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
		sm.currentState, to, condition)
}

// Transition moves to a new state at the given time
func (sm *StateMachine) Transition(to PositionState, condition string, at time.Time) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}

	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = at
	sm.lastCondition = condition
	sm.transitionCount[to]++
	return nil
}

// GetTransitionCount returns how many times we've been in a state
func (sm *StateMachine) GetTransitionCount(state PositionState) int {
	return sm.transitionCount[state]
}

// GetStateDescription returns a human-readable description of the current state
func (sm *StateMachine) GetStateDescription() string {
	switch sm.currentState {
	case StateIdle:
		return "Position constructed, entry not yet filled"
	case StateOpen:
		return "Position open, monitoring exit conditions"
	case StateClosed:
		return "Position closed"
	default:
		return "Unknown state"
	}
}

// ValidateStateConsistency ensures the state machine is in a valid state
func (sm *StateMachine) ValidateStateConsistency() error {
	total := 0
	for _, count := range sm.transitionCount {
		total += count
	}

	if total == 0 {
		if sm.currentState != StateIdle {
			return fmt.Errorf("state %s reached without any recorded transition", sm.currentState)
		}
		return nil
	}

	if sm.transitionTime.IsZero() {
		return fmt.Errorf("missing transition time: transitionTime is zero")
	}

	if sm.transitionCount[sm.currentState] == 0 {
		return fmt.Errorf("current state %s has no recorded transition", sm.currentState)
	}

	return nil
}

// Copy creates a deep copy of the StateMachine
func (sm *StateMachine) Copy() *StateMachine {
	if sm == nil {
		return nil
	}

	newSM := &StateMachine{
		currentState:    sm.currentState,
		previousState:   sm.previousState,
		transitionTime:  sm.transitionTime,
		lastCondition:   sm.lastCondition,
		transitionCount: make(map[PositionState]int, len(sm.transitionCount)),
	}
	for state, count := range sm.transitionCount {
		newSM.transitionCount[state] = count
	}
	return newSM
}
