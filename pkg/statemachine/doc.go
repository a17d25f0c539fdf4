// Package statemachine provides a small, type-safe finite-state machine.
//
// States and events are any comparable types, typically string-backed enums:
//
//	type State string
//	type Event string
//
//	var flow = statemachine.MustDefine(
//	    statemachine.WithTransition[State, Event]("idle", "running", "start"),
//	    statemachine.WithTransition[State, Event]("running", "idle", "stop",
//	        statemachine.WithGuard(func(ctx context.Context, from State, e Event, data any) bool {
//	            return data != nil
//	        }),
//	    ),
//	)
//
//	m := flow.Start("idle")
//	err := m.Fire(ctx, "start", nil)
//
// A Definition is immutable and shared; a Machine holds one current state and
// is cheap to create. This suits request/response services that persist the
// state elsewhere and rebuild a machine per request with Start(persistedState).
//
// Fire picks the first transition (in registration order) whose guards all
// pass, runs its actions and only then moves to the target state. A Fire that
// cannot move returns a *TransitionError wrapping ErrNoTransition or
// ErrRejected. Action errors are wrapped with %w.
package statemachine
