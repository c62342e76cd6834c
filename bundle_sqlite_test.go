package flows

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/flows/pkg/history"
)

type lastRun struct {
	NoopObserver
	id string
}

func (o *lastRun) OnFlowStart(ctx context.Context, run RunInfo) { o.id = run.ID }

func addOne(ctx context.Context, data Data) (Result, error) {
	n, _ := data["n"].(int)
	return Ok(Data{"n": n + 1}), nil
}

// TestSQLiteBundle_HistoryDurableAcrossRestart shows that run history written
// through the bundle survives closing and reopening the database.
func TestSQLiteBundle_HistoryDurableAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "flows_bundle.db") + "?_journal=WAL"

	// --- Phase 1: run a pipeline with the bundle attached.

	db1, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	bundle1, err := NewSQLiteBundle(db1, nil)
	require.NoError(t, err)

	run := &lastRun{}
	p, err := NewPipeline("add-two").
		StepFunc("first", addOne).
		StepFunc("second", addOne).
		Build(WithObserver(NewCompositeObserver(bundle1.Observer(), run)))
	require.NoError(t, err)

	res, err := p.Call(ctx, Data{"n": 40})
	require.NoError(t, err)
	require.Equal(t, 42, res.MustUnwrap()["n"])
	require.NotEmpty(t, run.id)

	snap := bundle1.Metrics.Snapshot()
	require.Equal(t, int64(1), snap.FlowsCompleted)
	require.Equal(t, int64(2), snap.NodesCompleted)

	stats := bundle1.Profiler.Report().Flat()
	require.Len(t, stats, 2)
	for _, s := range stats {
		require.Equal(t, "add-two", s.Flow)
		require.Equal(t, 1, s.Count)
	}

	require.NoError(t, db1.Close())

	// --- Phase 2: "restart" with a new DB handle and bundle.

	db2, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	defer db2.Close()

	bundle2, err := NewSQLiteBundle(db2, nil)
	require.NoError(t, err)

	events, err := bundle2.History.Events(ctx, run.id)
	require.NoError(t, err)
	require.Len(t, events, 6)
	require.Equal(t, history.EventFlowStarted, events[0].Type)
	require.Equal(t, history.EventNodeCompleted, events[2].Type)
	require.Equal(t, "first", events[2].Node)
	require.Equal(t, "second", events[2].Next)
	require.Equal(t, history.EventFlowCompleted, events[5].Type)

	// A fresh bundle starts with empty in-process counters.
	require.Zero(t, bundle2.Metrics.Snapshot().FlowsStarted)
}
