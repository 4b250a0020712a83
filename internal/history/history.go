package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventTransition EventType = "transition"
	EventRestart    EventType = "restart"
	EventUnhealthy  EventType = "unhealthy"
)

// Event represents a container lifecycle event to be exported to external
// analytics systems.
type Event struct {
	Type        EventType `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	ContainerID string    `json:"container_id"`
	Name        string    `json:"name"`
	FromState   string    `json:"from_state,omitempty"`
	ToState     string    `json:"to_state,omitempty"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	Restarts    int       `json:"restarts"`
	Detail      string    `json:"detail,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
