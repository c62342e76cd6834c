package flow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/flows/pkg/result"
)

func incBody(ctx context.Context, in any) (any, error) { return in.(int) + 1, nil }

func dblBody(ctx context.Context, in any) (any, error) { return in.(int) * 2, nil }

func twoNodeFlow(t *testing.T, opts ...Option) *Flow {
	t.Helper()

	f, err := New("A", map[string]*Node{
		"A": NewNode(incBody, MustCustomRouter(When(TypeOf[int](), "B")), Meta{"name": "A"}),
		"B": NewNode(dblBody, MustCustomRouter(When(TypeOf[int](), End)), Meta{"name": "B"}),
	}, opts...)
	require.NoError(t, err)
	return f
}

func TestFlowTwoNodes(t *testing.T) {
	f := twoNodeFlow(t)

	out, err := f.Call(context.Background(), 10, State{})
	require.NoError(t, err)
	require.Equal(t, 22, out)
}

func TestFlowNilStateIsAllowed(t *testing.T) {
	f := twoNodeFlow(t)

	out, err := f.Call(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Equal(t, 4, out)
}

func TestFlowValidation(t *testing.T) {
	body := func(ctx context.Context, in any) (any, error) { return in, nil }
	toEnd := NewNode(body, NewSimpleRouter(End, End), nil)

	t.Run("no nodes", func(t *testing.T) {
		_, err := New("a", nil)
		require.ErrorIs(t, err, ErrNoNodes)
	})

	t.Run("missing start", func(t *testing.T) {
		_, err := New("missing", map[string]*Node{"a": toEnd})
		var ife *InvalidFirstNodeError
		require.ErrorAs(t, err, &ife)
		require.Equal(t, "missing", ife.Start)
		require.ErrorIs(t, err, ErrInvalidRoute)
	})

	t.Run("route to unknown node", func(t *testing.T) {
		_, err := New("a", map[string]*Node{
			"a": NewNode(body, NewSimpleRouter("b", "ghost"), nil),
			"b": toEnd,
		})
		var inr *InvalidNodeRouteError
		require.ErrorAs(t, err, &inr)
		require.Equal(t, InvalidNodeRouteError{From: "a", To: "ghost"}, *inr)
	})

	t.Run("nil node", func(t *testing.T) {
		_, err := New("a", map[string]*Node{"a": toEnd, "b": nil})
		var nne *NilNodeError
		require.ErrorAs(t, err, &nne)
		require.Equal(t, "b", nne.ID)
		require.ErrorIs(t, err, ErrNilNode)

		_, err = New("a", map[string]*Node{"a": nil})
		require.ErrorIs(t, err, ErrNilNode)
	})

	t.Run("reserved identifier", func(t *testing.T) {
		_, err := New("a", map[string]*Node{"a": toEnd, End: toEnd})
		var rie *ReservedIdentifierError
		require.ErrorAs(t, err, &rie)
	})
}

type rogueRouter struct{}

func (rogueRouter) Route(any, State, Meta) (string, error) { return "nowhere", nil }
func (rogueRouter) Destinations() []string                 { return []string{End} }

func TestFlowMissingNodeAtCallTime(t *testing.T) {
	f, err := New("a", map[string]*Node{
		"a": NewNode(incBody, rogueRouter{}, nil),
	})
	require.NoError(t, err)

	_, err = f.Call(context.Background(), 1, nil)
	var inr *InvalidNodeRouteError
	require.ErrorAs(t, err, &inr)
	require.Equal(t, "a", inr.From)
	require.Equal(t, "nowhere", inr.To)
}

func TestFlowPropagatesBodyErrorUnchanged(t *testing.T) {
	boom := errors.New("boom")
	var secondCalled bool

	f, err := New("a", map[string]*Node{
		"a": NewNode(func(ctx context.Context, in any) (any, error) { return nil, boom }, NewSimpleRouter("b", End), nil),
		"b": NewNode(func(ctx context.Context, in any) (any, error) {
			secondCalled = true
			return in, nil
		}, NewSimpleRouter(End, End), nil),
	})
	require.NoError(t, err)

	_, err = f.Call(context.Background(), nil, nil)
	require.Same(t, boom, err)
	require.False(t, secondCalled)
}

func TestFlowSurfacesRoutingGap(t *testing.T) {
	f, err := New("a", map[string]*Node{
		"a": NewNode(incBody, MustCustomRouter(When(TypeOf[string](), End)), Meta{"name": "a"}),
	})
	require.NoError(t, err)

	_, err = f.Call(context.Background(), 1, nil)
	require.ErrorIs(t, err, ErrNoRoute)
}

func TestFlowSharesNodeUnderSeveralIDs(t *testing.T) {
	var calls atomic.Int32
	shared := NewNode(func(ctx context.Context, in any) (any, error) {
		calls.Add(1)
		return in.(int) + 1, nil
	}, MustCustomRouter(
		When(Func(func(v any) bool { return v.(int) < 3 }), "alias"),
		When(Always(), End),
	), nil)

	f, err := New("main", map[string]*Node{"main": shared, "alias": shared})
	require.NoError(t, err)

	out, err := f.Call(context.Background(), 0, nil)
	require.NoError(t, err)
	require.Equal(t, 3, out)
	require.Equal(t, int32(3), calls.Load())
}

func TestFlowThreadsStateThroughProcessors(t *testing.T) {
	record := func(ctx context.Context, out any, state State, meta Meta) (any, error) {
		trail, _ := state["trail"].([]string)
		state["trail"] = append(trail, meta["name"].(string))
		return out, nil
	}

	f, err := New("first", map[string]*Node{
		"first":  NewNode(incBody, NewSimpleRouter(End, End), Meta{"name": "first"}, WithPostprocessor(wrapOk(record))),
		"second": NewNode(incBody, NewSimpleRouter(End, End), Meta{"name": "second"}),
	})
	require.NoError(t, err)

	state := State{"trail": []string{"caller"}}
	_, err = f.Call(context.Background(), 1, state)
	require.NoError(t, err)

	if diff := cmp.Diff(State{"trail": []string{"caller", "first"}}, state); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

// wrapOk records through next and then converts the output into an Ok result
// so a SimpleRouter can route it.
func wrapOk(next Postprocessor) Postprocessor {
	return func(ctx context.Context, out any, state State, meta Meta) (any, error) {
		out, err := next(ctx, out, state, meta)
		if err != nil {
			return nil, err
		}
		return result.Ok(result.Data{"value": out}), nil
	}
}

func TestFlowReusableConcurrently(t *testing.T) {
	f := twoNodeFlow(t)

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			out, err := f.Call(context.Background(), i, State{})
			if err != nil {
				return err
			}
			if out != (i+1)*2 {
				return errors.New("unexpected output")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestFlowIntrospection(t *testing.T) {
	f := twoNodeFlow(t, WithName("calc"))

	require.Equal(t, "calc", f.Name())
	require.Equal(t, "A", f.Start())
	require.Equal(t, []string{"A", "B"}, f.IDs())
	require.Equal(t, []Edge{{From: "A", To: "B"}, {From: "B", To: End}}, f.Edges())

	n, ok := f.Node("A")
	require.True(t, ok)
	require.Equal(t, Meta{"name": "A"}, n.Meta())

	_, ok = f.Node("Z")
	require.False(t, ok)
}

func TestFlowWithObserverAndBasicMetrics(t *testing.T) {
	metrics := &BasicMetrics{}
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	f := twoNodeFlow(t, WithName("calc"), WithObserver(NewCompositeObserver(NewLoggingObserver(logger), metrics)))

	out, err := f.Call(context.Background(), 10, nil)
	require.NoError(t, err)
	require.Equal(t, 22, out)

	snap := metrics.Snapshot()
	require.Equal(t, int64(1), snap.FlowsStarted)
	require.Equal(t, int64(1), snap.FlowsCompleted)
	require.Equal(t, int64(0), snap.FlowsFailed)
	require.Equal(t, int64(0), snap.RunningFlows)
	require.Equal(t, int64(2), snap.NodesCompleted)
	require.GreaterOrEqual(t, snap.AvgNodeDuration, time.Duration(0))
}

type recordingObserver struct {
	NoopObserver
	events []string
	runIDs map[string]struct{}
}

func (o *recordingObserver) OnFlowStart(ctx context.Context, run RunInfo) {
	o.events = append(o.events, "start:"+run.Flow)
	o.runIDs[run.ID] = struct{}{}
}

func (o *recordingObserver) OnFlowFailed(ctx context.Context, run RunInfo, err error) {
	o.events = append(o.events, "failed:"+err.Error())
}

func (o *recordingObserver) OnNodeStart(ctx context.Context, run RunInfo, nodeID string) {
	o.events = append(o.events, "node:"+nodeID)
}

func (o *recordingObserver) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID, next string, err error, d time.Duration) {
	o.events = append(o.events, "done:"+nodeID+"->"+next)
}

func TestFlowObserverSeesFailures(t *testing.T) {
	obs := &recordingObserver{runIDs: map[string]struct{}{}}

	f, err := New("a", map[string]*Node{
		"a": NewNode(incBody, MustCustomRouter(When(TypeOf[int](), "b")), nil),
		"b": NewNode(func(ctx context.Context, in any) (any, error) { return nil, errors.New("boom") }, NewSimpleRouter(End, End), nil),
	}, WithName("failing"), WithObserver(obs))
	require.NoError(t, err)

	_, err = f.Call(context.Background(), 1, nil)
	require.EqualError(t, err, "boom")

	require.Equal(t, []string{
		"start:failing",
		"node:a",
		"done:a->b",
		"node:b",
		"done:b->",
		"failed:boom",
	}, obs.events)
	require.Len(t, obs.runIDs, 1)
}

func TestCompositeObserverCollapses(t *testing.T) {
	require.IsType(t, NoopObserver{}, NewCompositeObserver())
	require.IsType(t, NoopObserver{}, NewCompositeObserver(nil, nil))

	m := &BasicMetrics{}
	require.Same(t, m, NewCompositeObserver(nil, m))
	require.IsType(t, &CompositeObserver{}, NewCompositeObserver(m, &BasicMetrics{}))
}

func TestNewLoggingObserverNilLogger(t *testing.T) {
	obs := NewLoggingObserver(nil)
	require.NotNil(t, obs.(*LoggingObserver).Logger)
}
