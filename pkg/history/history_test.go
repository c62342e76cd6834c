package history

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/petrijr/flows/pkg/flow"
	"github.com/petrijr/flows/pkg/railway"
	"github.com/petrijr/flows/pkg/result"
	"github.com/petrijr/flows/pkg/step"
)

type runIDs struct {
	flow.NoopObserver
	ids []string
}

func (r *runIDs) OnFlowStart(ctx context.Context, run flow.RunInfo) { r.ids = append(r.ids, run.ID) }

func calc(t *testing.T, obs flow.Observer) *railway.Railway {
	t.Helper()

	rw, err := railway.New("calc").
		StepFunc("sum", func(ctx context.Context, data result.Data) (result.Result, error) {
			a, ok := data["a"].(int)
			if !ok {
				return result.ErrWith("invalid_argument", result.Data{"invalid_argument": data["a"]}), nil
			}
			return result.Ok(result.Data{"sum": a + data["b"].(int)}), nil
		}).
		StepFunc("boom", func(ctx context.Context, data result.Data) (result.Result, error) {
			if data["sum"].(int) > 100 {
				return result.Result{}, errors.New("too big")
			}
			return result.Ok(data), nil
		}).
		Build(step.WithObserver(obs))
	require.NoError(t, err)
	return rw
}

func newSQLiteStore(t *testing.T) EventStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestRecorder(t *testing.T) {
	for name, store := range map[string]EventStore{
		"memory": NewMemoryStore(),
		"sqlite": newSQLiteStore(t),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := NewRecorder(store)
			ids := &runIDs{}
			rw := calc(t, flow.NewCompositeObserver(rec, ids))

			_, err := rw.Call(ctx, result.Data{"a": 1, "b": 2})
			require.NoError(t, err)
			_, err = rw.Call(ctx, result.Data{"a": 100, "b": 2})
			require.EqualError(t, err, "too big")
			require.Len(t, ids.ids, 2)

			ok, err := rec.Events(ctx, ids.ids[0])
			require.NoError(t, err)
			require.Equal(t, []EventType{
				EventFlowStarted,
				EventNodeStarted, EventNodeCompleted,
				EventNodeStarted, EventNodeCompleted,
				EventFlowCompleted,
			}, types(ok))
			require.Equal(t, "calc", ok[0].Flow)
			require.Equal(t, "sum", ok[2].Node)
			require.Equal(t, "boom", ok[2].Next)
			require.Equal(t, flow.End, ok[4].Next)

			failed, err := rec.Events(ctx, ids.ids[1])
			require.NoError(t, err)
			require.Equal(t, []EventType{
				EventFlowStarted,
				EventNodeStarted, EventNodeCompleted,
				EventNodeStarted, EventNodeFailed,
				EventFlowFailed,
			}, types(failed))
			require.Equal(t, "too big", failed[4].Detail)
			require.Equal(t, "too big", failed[5].Detail)
		})
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

type brokenStore struct{}

func (brokenStore) AppendEvent(context.Context, Event) error { return errors.New("disk full") }
func (brokenStore) ListEvents(context.Context, string) ([]Event, error) {
	return nil, errors.New("disk full")
}

func TestRecorderLogsStoreFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	rw := calc(t, NewRecorder(brokenStore{}, WithLogger(logger)))

	res, err := rw.Call(context.Background(), result.Data{"a": 1, "b": 2})
	require.NoError(t, err)
	require.Equal(t, 3, res.MustUnwrap()["sum"])
	require.Contains(t, buf.String(), "history_append_failed")
	require.Contains(t, buf.String(), "disk full")
}

func TestNilStoreDiscards(t *testing.T) {
	rec := NewRecorder(nil)
	rw := calc(t, rec)

	_, err := rw.Call(context.Background(), result.Data{"a": 1, "b": 2})
	require.NoError(t, err)

	events, err := rec.Events(context.Background(), "any")
	require.NoError(t, err)
	require.Empty(t, events)
}
