package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Guard evaluates whether a transition should be allowed based on runtime conditions.
type Guard[S, E comparable] func(ctx context.Context, from S, event E, data any) bool

// Action executes side effects during state transitions. Returning an error prevents the transition.
type Action[S, E comparable] func(ctx context.Context, from, to S, event E, data any) error

// Transition defines a state change triggered by an event, with optional guards and actions.
type Transition[S, E comparable] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // All must pass for transition to proceed
	Actions []Action[S, E] // Executed in order before state change
}

// Definition is an immutable transition table. Build it once with Define and
// start as many machines from it as needed; each Machine carries only its
// current state.
type Definition[S, E comparable] struct {
	transitions map[S]map[E][]Transition[S, E]
}

// Machine is a running instance of a Definition. It is safe for concurrent use.
type Machine[S, E comparable] struct {
	def     *Definition[S, E]
	current S
	mu      sync.Mutex
}

func (d *Definition[S, E]) add(t Transition[S, E]) {
	if _, ok := d.transitions[t.From]; !ok {
		d.transitions[t.From] = make(map[E][]Transition[S, E])
	}
	// Multiple transitions allowed for same from/event to support guard-based branching
	d.transitions[t.From][t.Event] = append(d.transitions[t.From][t.Event], t)
}

// Start returns a machine positioned at initial. The state does not have to
// be the one a flow normally begins with: callers reconstruct a machine from
// persisted facts and continue from there.
func (d *Definition[S, E]) Start(initial S) *Machine[S, E] {
	return &Machine[S, E]{def: d, current: initial}
}

// Current returns the machine's current state.
func (m *Machine[S, E]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Fire applies event. The first transition whose guards all pass wins, its
// actions run in order and the state changes only if every action succeeds.
func (m *Machine[S, E]) Fire(ctx context.Context, event E, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := m.def.transitions[m.current][event]
	if len(candidates) == 0 {
		return newTransitionError(ErrNoTransition, m.current, event)
	}

	t, ok := m.selectTransition(ctx, candidates, event, data)
	if !ok {
		return newTransitionError(ErrRejected, m.current, event)
	}

	for _, action := range t.Actions {
		if err := action(ctx, m.current, t.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	m.current = t.To
	return nil
}

// CanFire reports whether Fire would find a transition whose guards pass.
// Actions are not executed.
func (m *Machine[S, E]) CanFire(ctx context.Context, event E, data any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := m.def.transitions[m.current][event]
	if len(candidates) == 0 {
		return false
	}
	_, ok := m.selectTransition(ctx, candidates, event, data)
	return ok
}

func (m *Machine[S, E]) selectTransition(ctx context.Context, candidates []Transition[S, E], event E, data any) (Transition[S, E], bool) {
	for _, t := range candidates {
		passed := true
		for _, guard := range t.Guards {
			if !guard(ctx, m.current, event, data) {
				passed = false
				break
			}
		}
		if passed {
			return t, true
		}
	}
	return Transition[S, E]{}, false
}
