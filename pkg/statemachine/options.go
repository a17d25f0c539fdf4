package statemachine

import "fmt"

// Option configures a Definition during construction.
type Option[S, E comparable] func(*Definition[S, E]) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption[S, E comparable] func(*Transition[S, E])

// Define builds an immutable transition table.
func Define[S, E comparable](opts ...Option[S, E]) (*Definition[S, E], error) {
	d := &Definition[S, E]{transitions: make(map[S]map[E][]Transition[S, E])}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// MustDefine is like Define but panics on error. Intended for package-level tables.
func MustDefine[S, E comparable](opts ...Option[S, E]) *Definition[S, E] {
	d, err := Define(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to define state machine: %v", err))
	}
	return d
}

// WithTransition adds a single transition.
func WithTransition[S, E comparable](from, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(d *Definition[S, E]) error {
		t := Transition[S, E]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		d.add(t)
		return nil
	}
}

// WithTransitions adds the same event edge from several source states.
func WithTransitions[S, E comparable](from []S, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(d *Definition[S, E]) error {
		if len(from) == 0 {
			return fmt.Errorf("%w: no source states for event %v", ErrInvalidTransition, event)
		}
		for _, f := range from {
			if err := WithTransition(f, to, event, opts...)(d); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithGuard adds a guard to a transition. Nil guards are ignored.
func WithGuard[S, E comparable](guard Guard[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if guard != nil {
			t.Guards = append(t.Guards, guard)
		}
	}
}

// WithAction adds an action to a transition. Nil actions are ignored.
func WithAction[S, E comparable](action Action[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if action != nil {
			t.Actions = append(t.Actions, action)
		}
	}
}
