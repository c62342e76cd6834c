package flows

import (
	"database/sql"
	"log/slog"

	"github.com/petrijr/flows/pkg/flow"
	"github.com/petrijr/flows/pkg/history"
	"github.com/petrijr/flows/pkg/profiler"
)

// ObserverBundle wires together the observers most services want on every
// pipeline: a durable run history, counters, and a per-node profiler.
//
// For now, we only provide a SQLite-backed bundle.
type ObserverBundle struct {
	History  *history.Recorder
	Metrics  *flow.BasicMetrics
	Profiler *profiler.Profiler

	observer flow.Observer
}

// NewSQLiteBundle constructs a history Recorder persisting run events in the
// provided *sql.DB, alongside fresh metrics and profiler observers.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:flows.db?_journal=WAL")
//	bundle, err := flows.NewSQLiteBundle(db, slog.Default())
//	p, err := flows.NewPipeline("calc").Step("calc_left").Build(
//		flows.WithSource(impl), flows.WithObserver(bundle.Observer()))
func NewSQLiteBundle(db *sql.DB, logger *slog.Logger) (*ObserverBundle, error) {
	store, err := history.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}

	b := &ObserverBundle{
		History:  history.NewRecorder(store, history.WithLogger(logger)),
		Metrics:  &flow.BasicMetrics{},
		Profiler: profiler.New(),
	}
	b.observer = flow.NewCompositeObserver(b.History, b.Metrics, b.Profiler)
	return b, nil
}

// Observer returns a single Observer fanning out to every member of the
// bundle.
func (b *ObserverBundle) Observer() flow.Observer {
	return b.observer
}
