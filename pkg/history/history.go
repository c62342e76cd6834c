// Package history keeps an audit trail of flow runs.
//
// A Recorder is a flow.Observer that appends one Event per run and node
// transition to an EventStore. Store failures are logged and never change
// how the flow behaves.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/flows/internal/persistence"
	"github.com/petrijr/flows/pkg/flow"
)

type (
	Event      = persistence.Event
	EventType  = persistence.EventType
	EventStore = persistence.EventStore
)

const (
	EventFlowStarted   = persistence.EventFlowStarted
	EventFlowCompleted = persistence.EventFlowCompleted
	EventFlowFailed    = persistence.EventFlowFailed
	EventNodeStarted   = persistence.EventNodeStarted
	EventNodeCompleted = persistence.EventNodeCompleted
	EventNodeFailed    = persistence.EventNodeFailed
)

// NewMemoryStore returns an in-memory EventStore.
func NewMemoryStore() EventStore {
	return persistence.NewInMemoryEventStore()
}

// NewSQLiteStore returns an EventStore writing to db, creating its table
// if needed. Import modernc.org/sqlite (or another SQLite driver) to open db.
func NewSQLiteStore(db *sql.DB) (EventStore, error) {
	return persistence.NewSQLiteEventStore(db)
}

// Recorder records flow runs into an EventStore.
type Recorder struct {
	store  EventStore
	logger *slog.Logger
}

var _ flow.Observer = (*Recorder)(nil)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger used to report store failures.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder returns a Recorder writing to store. A nil store discards
// everything.
func NewRecorder(store EventStore, opts ...RecorderOption) *Recorder {
	if store == nil {
		store = persistence.NoopEventStore{}
	}
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events returns the history of one run in recording order.
func (r *Recorder) Events(ctx context.Context, runID string) ([]Event, error) {
	return r.store.ListEvents(ctx, runID)
}

func (r *Recorder) append(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := r.store.AppendEvent(ctx, ev); err != nil {
		r.logger.ErrorContext(ctx, "history_append_failed",
			slog.String("run_id", ev.RunID),
			slog.String("type", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}

func (r *Recorder) OnFlowStart(ctx context.Context, run flow.RunInfo) {
	r.append(ctx, Event{RunID: run.ID, At: run.Started, Type: EventFlowStarted, Flow: run.Flow})
}

func (r *Recorder) OnFlowCompleted(ctx context.Context, run flow.RunInfo, output any) {
	r.append(ctx, Event{
		RunID:  run.ID,
		Type:   EventFlowCompleted,
		Flow:   run.Flow,
		Detail: fmt.Sprint(output),
	})
}

func (r *Recorder) OnFlowFailed(ctx context.Context, run flow.RunInfo, err error) {
	r.append(ctx, Event{RunID: run.ID, Type: EventFlowFailed, Flow: run.Flow, Detail: err.Error()})
}

func (r *Recorder) OnNodeStart(ctx context.Context, run flow.RunInfo, nodeID string) {
	r.append(ctx, Event{RunID: run.ID, Type: EventNodeStarted, Flow: run.Flow, Node: nodeID})
}

func (r *Recorder) OnNodeCompleted(ctx context.Context, run flow.RunInfo, nodeID, next string, err error, d time.Duration) {
	ev := Event{
		RunID:  run.ID,
		Type:   EventNodeCompleted,
		Flow:   run.Flow,
		Node:   nodeID,
		Next:   next,
		Detail: d.String(),
	}
	if err != nil {
		ev.Type = EventNodeFailed
		ev.Detail = err.Error()
	}
	r.append(ctx, ev)
}
