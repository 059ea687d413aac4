package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStateChange EventType = "state_change"
	EventAdvance     EventType = "advance"
	EventRecord      EventType = "record"
	EventTurn        EventType = "turn"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// NodeEvent reports a node state change.
type NodeEvent struct {
	EventBase
	Path     []int         `json:"path"`
	Node     string        `json:"node"`
	Kind     Kind          `json:"kind"`
	From     State         `json:"from"`
	To       State         `json:"to"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// AdvanceEvent reports a cursor move. Done is set once traversal is exhausted.
type AdvanceEvent struct {
	EventBase
	Cursor []int  `json:"cursor"`
	Node   string `json:"node,omitempty"`
	Done   bool   `json:"done"`
}

// RecordEvent reports a session record mutation.
type RecordEvent struct {
	EventBase
	Node   string `json:"node"`
	Record Record `json:"record"`
}

// TurnEvent reports a finished model turn.
type TurnEvent struct {
	EventBase
	Node     string        `json:"node"`
	Backend  string        `json:"backend"`
	Turn     int           `json:"turn"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"err,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnStateChange func(context.Context, *NodeEvent)
	OnAdvance     func(context.Context, *AdvanceEvent)
	OnRecord      func(context.Context, *RecordEvent)
	OnTurn        func(context.Context, *TurnEvent)
}

// Merge returns hooks that invoke h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStateChange: chain(h.OnStateChange, other.OnStateChange),
		OnAdvance:     chain(h.OnAdvance, other.OnAdvance),
		OnRecord:      chain(h.OnRecord, other.OnRecord),
		OnTurn:        chain(h.OnTurn, other.OnTurn),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
