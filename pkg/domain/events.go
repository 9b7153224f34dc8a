package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventAssemble   EventType = "assemble"
	EventSolveStart EventType = "solve_start"
	EventSolveEnd   EventType = "solve_end"
)

// SolveEvent describes one step of the solve pipeline.
type SolveEvent struct {
	Timestamp   time.Time     `json:"timestamp"`
	Type        EventType     `json:"type"`
	Backend     string        `json:"backend"`
	Formulation Formulation   `json:"formulation"`
	Variables   int           `json:"variables"`
	Constraints int           `json:"constraints"`
	Status      Status        `json:"status,omitempty"`
	Objective   float64       `json:"objective,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
	Err         error         `json:"-"`
}

// SolveHooks defines callbacks for solve observability.
type SolveHooks struct {
	OnAssemble   func(context.Context, *SolveEvent)
	OnSolveStart func(context.Context, *SolveEvent)
	OnSolveEnd   func(context.Context, *SolveEvent)
}

// Emit calls fn when it is set.
func Emit(ctx context.Context, fn func(context.Context, *SolveEvent), ev *SolveEvent) {
	if fn != nil {
		fn(ctx, ev)
	}
}
