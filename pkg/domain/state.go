package domain

import "fmt"

// State is the execution state of a single node.
type State string

const (
	StateQueued    State = "queued"
	StateReady     State = "ready"
	StateExecuting State = "executing"
	StateComplete  State = "complete"
	StateError     State = "error"
)

// Terminal reports whether the state settles an execution attempt.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// ParseState converts a persisted state name. The empty string maps to queued.
func ParseState(s string) (State, error) {
	switch State(s) {
	case "":
		return StateQueued, nil
	case StateQueued, StateReady, StateExecuting, StateComplete, StateError:
		return State(s), nil
	}
	return "", fmt.Errorf("%w: unknown node state %q", ErrState, s)
}

// CanTransition reports whether a node may move from one state to another.
//
// Within one attempt states only move forward. A settled node may start a new
// attempt, and any node may be rewound to queued.
func CanTransition(from, to State) bool {
	if to == StateQueued {
		return true
	}
	switch from {
	case StateQueued:
		return to == StateReady || to == StateExecuting
	case StateReady:
		return to == StateExecuting
	case StateExecuting:
		return to == StateComplete || to == StateError
	case StateComplete, StateError:
		return to == StateExecuting || to == StateReady
	}
	return false
}

// Transition validates and applies a state change on the node.
func Transition(n *Node, to State) error {
	if n.State == "" {
		n.State = StateQueued
	}
	if !CanTransition(n.State, to) {
		return &StateTransitionError{Node: n.Name, From: n.State, To: to}
	}
	n.State = to
	return nil
}

// StateTransitionError reports a disallowed state change.
type StateTransitionError struct {
	Node     string
	From, To State
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("disallowed transition for %q: %s -> %s", e.Node, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error { return ErrState }
