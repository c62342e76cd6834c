// Package persistence stores the execution history of flow runs.
package persistence

import (
	"context"
	"errors"
	"time"
)

// EventType names a point in the life of a flow run.
type EventType string

const (
	EventFlowStarted   EventType = "flow.started"
	EventFlowCompleted EventType = "flow.completed"
	EventFlowFailed    EventType = "flow.failed"
	EventNodeStarted   EventType = "node.started"
	EventNodeCompleted EventType = "node.completed"
	EventNodeFailed    EventType = "node.failed"
)

// Event is one entry of a run history.
type Event struct {
	RunID  string
	At     time.Time
	Type   EventType
	Flow   string
	Node   string
	Next   string
	Detail string
}

// ErrMissingRunID is returned when appending an event without a run ID.
var ErrMissingRunID = errors.New("persistence: event has no run id")

// EventStore is an append-only history store for flow run events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev Event) error
	ListEvents(ctx context.Context, runID string) ([]Event, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

var _ EventStore = NoopEventStore{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev Event) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, runID string) ([]Event, error) {
	return nil, nil
}
