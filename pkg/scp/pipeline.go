package scp

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/petrijr/flows/pkg/contract"
	"github.com/petrijr/flows/pkg/flow"
	"github.com/petrijr/flows/pkg/result"
	"github.com/petrijr/flows/pkg/step"
)

// Build resolves every step body and validates the node graph. Step, track
// and wrap names share one namespace. The Pipeline works on a snapshot of b;
// later changes to b do not affect it.
func (b *Builder) Build(opts ...step.Option) (*Pipeline, error) {
	b = b.clone()
	if len(b.main.items) == 0 {
		return nil, step.ErrNoSteps
	}

	c := &compiler{b: b, opts: step.Apply(opts...), seen: make(map[string]struct{})}
	if err := c.claimTrack(b.main); err != nil {
		return nil, err
	}
	for _, t := range b.tracks {
		if len(t.items) == 0 {
			return nil, fmt.Errorf("scp: track %q: %w", t.name, step.ErrNoSteps)
		}
		if err := c.claim(t.name); err != nil {
			return nil, err
		}
		if err := c.claimTrack(t); err != nil {
			return nil, err
		}
	}

	nodes := make(map[string]*flow.Node)
	if err := c.addTrack(nodes, b.main); err != nil {
		return nil, err
	}
	for _, t := range b.tracks {
		if err := c.addTrack(nodes, t); err != nil {
			return nil, err
		}
		nodes[t.name] = nodes[t.items[0].name]
	}

	var output *contract.Output
	if !b.skipOutput && !b.output.Empty() {
		if err := b.output.Validate(); err != nil {
			return nil, err
		}
		output = b.output.Clone()
	}

	f, err := flow.New(b.main.items[0].name, nodes, c.opts.FlowOptions(b.name)...)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		name:      b.name,
		flow:      f,
		output:    output,
		beforeAll: append([]BeforeAllFunc(nil), b.beforeAll...),
		afterAll:  append([]AfterAllFunc(nil), b.afterAll...),
	}, nil
}

type compiler struct {
	b    *Builder
	opts step.Options
	seen map[string]struct{}
}

func (c *compiler) claim(name string) error {
	if name == Next || name == End {
		return &flow.ReservedIdentifierError{ID: name}
	}
	if _, dup := c.seen[name]; dup {
		return &step.DuplicateError{Name: name}
	}
	c.seen[name] = struct{}{}
	return nil
}

func (c *compiler) claimTrack(t *Track) error {
	for _, it := range t.items {
		if err := c.claim(it.name); err != nil {
			return err
		}
		if it.kind == kindWrap {
			if len(it.inner.items) == 0 {
				return fmt.Errorf("scp: wrap %q: %w", it.name, step.ErrNoSteps)
			}
			if err := c.claimTrack(it.inner); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compiler) addTrack(nodes map[string]*flow.Node, t *Track) error {
	for i, it := range t.items {
		next := End
		if i+1 < len(t.items) {
			next = t.items[i+1].name
		}
		n, err := c.node(it, next)
		if err != nil {
			return err
		}
		nodes[it.name] = n
	}
	return nil
}

func defaultRoutes() []flow.Route {
	return []flow.Route{
		flow.When(flow.WhenOk(), Next),
		flow.When(flow.WhenErr(), End),
	}
}

type mode int

const (
	modeCopy mode = iota
	modeLive
	modeWrap
)

type wrapCall struct {
	state flow.State
	data  result.Data
}

func (c *compiler) node(it item, next string) (*flow.Node, error) {
	routes := it.routes
	if len(routes) == 0 {
		routes = defaultRoutes()
	}
	resolved := make([]flow.Route, len(routes))
	for i, r := range routes {
		if r.To == Next {
			r.To = next
		}
		resolved[i] = r
	}
	router, err := flow.NewCustomRouter(resolved...)
	if err != nil {
		return nil, err
	}

	var (
		body flow.Body
		m    mode
	)
	switch it.kind {
	case kindStep:
		fn, err := c.opts.Resolve(it.name, it.fn)
		if err != nil {
			return nil, err
		}
		body = func(ctx context.Context, in any) (any, error) {
			return fn(ctx, in.(result.Data))
		}
		m = modeCopy

	case kindMut:
		fn, err := c.opts.ResolveMut(it.name, it.mutFn)
		if err != nil {
			return nil, err
		}
		body = func(ctx context.Context, in any) (any, error) {
			return fn(ctx, in.(result.Data))
		}
		m = modeLive

	case kindWrap:
		inner, err := c.innerFlow(it)
		if err != nil {
			return nil, err
		}
		wrapper := it.wrapper
		body = func(ctx context.Context, in any) (any, error) {
			call := in.(wrapCall)
			run := func() (result.Result, error) {
				out, err := inner.Call(ctx, nil, call.state)
				if err != nil {
					return result.Result{}, err
				}
				res, ok := result.From(out)
				if !ok {
					return result.Result{}, fmt.Errorf("scp: wrap %q produced %T, want a result", it.name, out)
				}
				return res, nil
			}
			return wrapper(ctx, call.data, run)
		}
		m = modeWrap
	}

	return flow.NewNode(body, router, flow.Meta{"name": it.name},
		flow.WithPreprocessor(c.prepare(m)),
		flow.WithPostprocessor(c.merge),
	), nil
}

func (c *compiler) innerFlow(it item) (*flow.Flow, error) {
	nodes := make(map[string]*flow.Node, len(it.inner.items))
	if err := c.addTrack(nodes, it.inner); err != nil {
		return nil, err
	}
	return flow.New(it.inner.items[0].name, nodes, c.opts.FlowOptions(c.b.name+"/"+it.name)...)
}

type shared struct {
	data result.Data
	meta map[string]any
}

// ErrInvalidState is matched by errors for a State whose shared context
// has the wrong type.
var ErrInvalidState = errors.New("scp: invalid shared context")

// sharedOf returns the shared context stored in state, creating missing
// parts in place. A plain map[string]any under DataKey is stored back as
// result.Data sharing the same entries.
func sharedOf(state flow.State) (shared, error) {
	var sc shared
	switch v := state[DataKey].(type) {
	case nil:
		sc.data = result.Data{}
	case result.Data:
		sc.data = v
	case map[string]any:
		sc.data = result.Data(v)
	default:
		return shared{}, fmt.Errorf("%w: %q holds %T, want map[string]any", ErrInvalidState, DataKey, v)
	}
	if sc.data == nil {
		sc.data = result.Data{}
	}
	state[DataKey] = sc.data

	switch v := state[MetaKey].(type) {
	case nil:
		sc.meta = map[string]any{}
	case map[string]any:
		sc.meta = v
	default:
		return shared{}, fmt.Errorf("%w: %q holds %T, want map[string]any", ErrInvalidState, MetaKey, v)
	}
	if sc.meta == nil {
		sc.meta = map[string]any{}
	}
	state[MetaKey] = sc.meta
	return sc, nil
}

func (c *compiler) prepare(m mode) flow.Preprocessor {
	return func(ctx context.Context, _ any, state flow.State, meta flow.Meta) (any, error) {
		sc, err := sharedOf(state)
		if err != nil {
			return nil, err
		}
		name, _ := meta["name"].(string)
		for _, fn := range c.b.beforeEach {
			if err := fn(ctx, name, sc.data, sc.meta); err != nil {
				return nil, err
			}
		}

		switch m {
		case modeLive:
			return sc.data, nil
		case modeWrap:
			return wrapCall{state: state, data: sc.data.Clone()}, nil
		default:
			return sc.data.Clone(), nil
		}
	}
}

func (c *compiler) merge(ctx context.Context, output any, state flow.State, meta flow.Meta) (any, error) {
	name, _ := meta["name"].(string)

	var res result.Result
	switch v := output.(type) {
	case bool:
		if v {
			res = result.Ok(nil)
		} else {
			res = result.Err(nil)
		}
	default:
		r, ok := result.From(output)
		if !ok {
			return nil, fmt.Errorf("scp: step %q returned %T, want a result", name, output)
		}
		res = r
	}

	sc, err := sharedOf(state)
	if err != nil {
		return nil, err
	}
	maps.Copy(sc.data, res.Data())
	state[LastStepKey] = name

	for _, fn := range c.b.afterEach {
		if err := fn(ctx, name, res, sc.data, sc.meta); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Pipeline is a built shared-context pipeline. It is immutable and safe for
// concurrent use.
type Pipeline struct {
	name      string
	flow      *flow.Flow
	output    *contract.Output
	beforeAll []BeforeAllFunc
	afterAll  []AfterAllFunc
}

var _ step.Caller = (*Pipeline)(nil)

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Flow returns the underlying node graph.
func (p *Pipeline) Flow() *flow.Flow { return p.flow }

// Call runs the pipeline with a fresh context holding a copy of data. The
// final Result has the variant and status of the last executed step and
// the whole accumulated data.
func (p *Pipeline) Call(ctx context.Context, data result.Data) (result.Result, error) {
	return p.Run(ctx, flow.State{DataKey: data.Clone(), MetaKey: map[string]any{}})
}

// Run is like Call but runs on a caller-owned state, which holds the shared
// context under DataKey, MetaKey and LastStepKey when Run returns.
// DataKey and MetaKey may hold result.Data or map[string]any; any other type
// fails with ErrInvalidState before a step runs.
func (p *Pipeline) Run(ctx context.Context, state flow.State) (result.Result, error) {
	if state == nil {
		state = flow.State{}
	}
	sc, err := sharedOf(state)
	if err != nil {
		return result.Result{}, err
	}
	for _, fn := range p.beforeAll {
		if err := fn(ctx, sc.data, sc.meta); err != nil {
			return result.Result{}, err
		}
	}

	out, err := p.flow.Call(ctx, nil, state)
	if err != nil {
		return result.Result{}, err
	}
	last, ok := result.From(out)
	if !ok {
		return result.Result{}, fmt.Errorf("scp: %s produced %T, want a result", p.name, out)
	}

	var res result.Result
	if last.IsOk() {
		res = result.OkWith(last.Status(), sc.data)
	} else {
		res = result.ErrWith(last.Status(), sc.data)
	}
	res = res.WithMeta(map[string]any{LastStepKey: state[LastStepKey]})

	for _, fn := range p.afterAll {
		res, err = fn(ctx, res, sc.data, sc.meta)
		if err != nil {
			return result.Result{}, err
		}
	}

	if p.output != nil {
		return p.output.Apply(res)
	}
	return res, nil
}
