package statemachine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned for malformed transition definitions.
	ErrInvalidTransition = errors.New("statemachine: invalid transition")
	// ErrNoTransition means no transition is defined for the state and event.
	ErrNoTransition = errors.New("statemachine: no transition available")
	// ErrRejected means every candidate transition was refused by its guard.
	ErrRejected = errors.New("statemachine: transition rejected by guards")
)

// TransitionError reports a Fire call that could not move the machine.
// It unwraps to ErrNoTransition or ErrRejected.
type TransitionError struct {
	State string
	Event string
	cause error
}

func newTransitionError(cause error, state, event any) *TransitionError {
	return &TransitionError{State: fmt.Sprint(state), Event: fmt.Sprint(event), cause: cause}
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: state %q, event %q", e.cause, e.State, e.Event)
}

func (e *TransitionError) Unwrap() error { return e.cause }

// IsNoTransitionAvailableError reports whether err is ErrNoTransition.
func IsNoTransitionAvailableError(err error) bool { return errors.Is(err, ErrNoTransition) }

// IsTransitionRejectedError reports whether err is ErrRejected.
func IsTransitionRejectedError(err error) bool { return errors.Is(err, ErrRejected) }
