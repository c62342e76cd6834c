// Package flow is the execution engine: a graph of nodes keyed by
// identifier, walked from a start identifier until a router returns End.
//
//	inc := flow.NewNode(incBody, flow.MustCustomRouter(flow.When(flow.TypeOf[int](), "double")), nil)
//	dbl := flow.NewNode(dblBody, flow.MustCustomRouter(flow.When(flow.TypeOf[int](), flow.End)), nil)
//
//	f, err := flow.New("inc", map[string]*flow.Node{"inc": inc, "double": dbl})
//	out, err := f.Call(ctx, 10, flow.State{})
//
// A Flow holds no per-call state. It can be called repeatedly, and from
// several goroutines at once, as long as every call gets its own State.
package flow

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// End is the reserved identifier that terminates a flow.
const End = "end"

// Flow is a node graph with a start identifier.
type Flow struct {
	name     string
	start    string
	nodes    map[string]*Node
	observer Observer
}

// Config describes optional Flow settings. External callers use the
// With* options.
type Config struct {
	Name     string
	Observer Observer
}

// Option configures a Flow.
type Option func(*Config)

// WithName names the flow in observer callbacks.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithObserver attaches an observer to every Call.
func WithObserver(obs Observer) Option {
	return func(c *Config) { c.Observer = obs }
}

// Edge is a possible transition between two identifiers.
type Edge struct {
	From string
	To   string
}

// New validates the graph and returns a Flow starting at start.
//
// Every router destination must be a node identifier or End, and End itself
// cannot name a node.
func New(start string, nodes map[string]*Node, opts ...Option) (*Flow, error) {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}
	if _, ok := nodes[End]; ok {
		return nil, &ReservedIdentifierError{ID: End}
	}
	if _, ok := nodes[start]; !ok {
		return nil, &InvalidFirstNodeError{Start: start}
	}

	for _, id := range sortedIDs(nodes) {
		if nodes[id] == nil {
			return nil, &NilNodeError{ID: id}
		}
		for _, dest := range nodes[id].router.Destinations() {
			if dest == End {
				continue
			}
			if _, ok := nodes[dest]; !ok {
				return nil, &InvalidNodeRouteError{From: id, To: dest}
			}
		}
	}

	obs := cfg.Observer
	if obs == nil {
		obs = NoopObserver{}
	}

	return &Flow{
		name:     cfg.Name,
		start:    start,
		nodes:    maps.Clone(nodes),
		observer: obs,
	}, nil
}

// Name returns the flow name set with WithName.
func (f *Flow) Name() string { return f.name }

// Start returns the start identifier.
func (f *Flow) Start() string { return f.start }

// Node returns the node registered under id.
func (f *Flow) Node(id string) (*Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// IDs returns all node identifiers in sorted order.
func (f *Flow) IDs() []string {
	return sortedIDs(f.nodes)
}

// Edges returns every transition declared by the node routers, sorted by
// source then destination.
func (f *Flow) Edges() []Edge {
	var edges []Edge
	for _, id := range f.IDs() {
		dests := slices.Clone(f.nodes[id].router.Destinations())
		slices.Sort(dests)
		for _, to := range dests {
			edges = append(edges, Edge{From: id, To: to})
		}
	}
	return edges
}

// Call walks the graph from the start node and returns the output of the
// last node. A nil state is replaced with an empty one.
//
// Errors returned by node bodies and processors are passed through
// unchanged. There is no loop detection: a graph that routes in a cycle
// runs until its steps route to End.
func (f *Flow) Call(ctx context.Context, input any, state State) (any, error) {
	if state == nil {
		state = State{}
	}

	if _, noop := f.observer.(NoopObserver); noop {
		return f.walk(ctx, input, state, nil)
	}

	run := RunInfo{ID: uuid.NewString(), Flow: f.name, Started: time.Now()}
	f.observer.OnFlowStart(ctx, run)

	out, err := f.walk(ctx, input, state, &run)
	if err != nil {
		f.observer.OnFlowFailed(ctx, run, err)
		return out, err
	}
	f.observer.OnFlowCompleted(ctx, run, out)
	return out, nil
}

func (f *Flow) walk(ctx context.Context, input any, state State, run *RunInfo) (any, error) {
	current := f.start
	previous := ""

	for current != End {
		node, ok := f.nodes[current]
		if !ok {
			return nil, &InvalidNodeRouteError{From: previous, To: current}
		}

		var (
			started time.Time
			next    string
			err     error
		)
		nodeCtx := ctx
		if run != nil {
			started = time.Now()
			f.observer.OnNodeStart(ctx, *run, current)
			if co, ok := f.observer.(ContextObserver); ok {
				nodeCtx = co.NodeContext(ctx, *run, current)
			}
		}

		input, next, err = node.Call(nodeCtx, input, state)

		if run != nil {
			f.observer.OnNodeCompleted(ctx, *run, current, next, err, time.Since(started))
		}
		if err != nil {
			return nil, err
		}

		previous, current = current, next
	}

	return input, nil
}

func sortedIDs(nodes map[string]*Node) []string {
	return slices.Sorted(maps.Keys(nodes))
}
