// ABOUTME: The orchestrator's lifecycle states and the transition table that governs every move.
// ABOUTME: Idle -> Submitting -> Streaming -> Completed|Failed, with retry from Failed and reset back to Idle.

package build

import (
	"errors"
	"fmt"
)

// State is the orchestrator's lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Action is an input to the state machine.
type Action string

const (
	ActionSubmit   Action = "submit"
	ActionInstant  Action = "instant"
	ActionAccepted Action = "accepted"
	ActionSucceed  Action = "succeed"
	ActionFail     Action = "fail"
	ActionRetry    Action = "retry"
	ActionReset    Action = "reset"
)

var (
	// ErrInvalidTransition is returned for a move the table does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrBusy is returned when a request is already in flight.
	ErrBusy = errors.New("a build is already in progress")
	// ErrNothingToRetry is returned by Retry when no failed request is pending.
	ErrNothingToRetry = errors.New("nothing to retry")
)

type move struct {
	from   State
	action Action
}

var transitions = map[move]State{
	{StateIdle, ActionSubmit}:         StateSubmitting,
	{StateIdle, ActionInstant}:        StateCompleted,
	{StateSubmitting, ActionAccepted}: StateStreaming,
	{StateSubmitting, ActionFail}:     StateFailed,
	{StateStreaming, ActionSucceed}:   StateCompleted,
	{StateStreaming, ActionFail}:      StateFailed,
	{StateFailed, ActionRetry}:        StateSubmitting,
	{StateFailed, ActionReset}:        StateIdle,
	{StateCompleted, ActionReset}:     StateIdle,
}

// transition returns the state reached by applying action in from.
func transition(from State, action Action) (State, error) {
	to, ok := transitions[move{from, action}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Busy reports whether a request is in flight in s.
func (s State) Busy() bool {
	return s == StateSubmitting || s == StateStreaming
}
