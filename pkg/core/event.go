package core

import (
	"context"
	"time"
)

// EventType identifies a read-model update pushed to the presentation layer.
type EventType string

const (
	EventRoleChunk            EventType = "role.chunk"
	EventRoleMessage          EventType = "role.message"
	EventRoleThinking         EventType = "role.thinking"
	EventPhaseChanged         EventType = "phase.changed"
	EventStatusChanged        EventType = "status.changed"
	EventError                EventType = "error"
	EventHumanQuestion        EventType = "human.question"
	EventDeliverablePublished EventType = "deliverable.published"
)

// Event captures a semantic streaming/logging event.
type Event struct {
	Type      EventType
	Role      string
	RunID     string
	Timestamp time.Time
	Payload   map[string]any
}

// EventEmitter receives semantic events. Implementations must be safe for
// concurrent use: parallel tasks emit from their own goroutines.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
}

// NoopEventEmitter is a default no-op implementation.
type NoopEventEmitter struct{}

// Emit implements EventEmitter.
func (NoopEventEmitter) Emit(_ context.Context, _ Event) {}

// EventEmitterFunc adapts a function to EventEmitter.
type EventEmitterFunc func(ctx context.Context, event Event)

// Emit implements EventEmitter.
func (f EventEmitterFunc) Emit(ctx context.Context, event Event) {
	f(ctx, event)
}

// NewEvent builds an event stamped with the current time and the run id
// carried by ctx, if any.
func NewEvent(ctx context.Context, eventType EventType, role string, payload map[string]any) Event {
	runID, _ := RunID(ctx)
	return Event{
		Type:      eventType,
		Role:      role,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}
