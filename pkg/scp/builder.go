// Package scp builds shared-context pipelines.
//
// Every step of a shared-context pipeline reads and writes one context for
// the whole run. A step gets a copy of the accumulated data and the data of
// the Result it returns is merged back; a mutation step gets the live data
// and reports success as a bool. Steps route with flow.Route tables whose
// destinations are other steps, tracks, Next or End:
//
//	b := scp.New("calc").
//		StepFunc("calc_left", calcLeft).
//		StepFunc("check", check,
//			flow.When(flow.WhenOk(), scp.Next),
//			flow.When(flow.WhenErr(), "recover"),
//		).
//		StepFunc("calc_result", calcResult).
//		Track("recover", func(t *scp.Track) {
//			t.StepFunc("fallback", fallback)
//		})
//
// A Track is a named step list reachable only through routing. A Wrap runs
// its nested steps as an inner flow under the control of a WrapFunc.
package scp

import (
	"context"

	"github.com/petrijr/flows/pkg/contract"
	"github.com/petrijr/flows/pkg/flow"
	"github.com/petrijr/flows/pkg/result"
	"github.com/petrijr/flows/pkg/step"
)

const (
	// Next routes to the following step of the same track, or ends the
	// track after its last step.
	Next = "next"

	// End stops the pipeline.
	End = flow.End
)

// Keys of the shared context in flow.State.
const (
	DataKey     = "data"
	MetaKey     = "meta"
	LastStepKey = "last_step"
)

// WrapFunc controls the nested steps of a Wrap. run executes them on the
// shared context and returns the Result of the last one; the WrapFunc may
// call it once, several times or not at all. Its own Result is treated like
// a step Result.
type WrapFunc func(ctx context.Context, data result.Data, run func() (result.Result, error)) (result.Result, error)

// BeforeAllFunc runs before the first step with the live shared context.
type BeforeAllFunc func(ctx context.Context, data result.Data, meta map[string]any) error

// AfterAllFunc runs after the last step. It may replace the final Result.
type AfterAllFunc func(ctx context.Context, res result.Result, data result.Data, meta map[string]any) (result.Result, error)

// BeforeEachFunc runs before every step.
type BeforeEachFunc func(ctx context.Context, step string, data result.Data, meta map[string]any) error

// AfterEachFunc runs after every step, once its Result is merged.
type AfterEachFunc func(ctx context.Context, step string, res result.Result, data result.Data, meta map[string]any) error

type kind int

const (
	kindStep kind = iota
	kindMut
	kindWrap
)

type item struct {
	kind    kind
	name    string
	fn      step.Func
	mutFn   step.MutFunc
	routes  []flow.Route
	wrapper WrapFunc
	inner   *Track
}

// Track is an ordered list of steps.
type Track struct {
	name  string
	items []item
}

func (t *Track) add(it item) *Track {
	if it.name == "" {
		panic("scp: step name must not be empty")
	}
	it.routes = append([]flow.Route(nil), it.routes...)
	t.items = append(t.items, it)
	return t
}

// Step declares a step whose body is resolved at build time.
func (t *Track) Step(name string, routes ...flow.Route) *Track {
	return t.add(item{kind: kindStep, name: name, routes: routes})
}

// StepFunc declares a step with an inline body.
func (t *Track) StepFunc(name string, fn step.Func, routes ...flow.Route) *Track {
	if fn == nil {
		panic("scp: step function must not be nil")
	}
	return t.add(item{kind: kindStep, name: name, fn: fn, routes: routes})
}

// MutStep declares a mutation step whose body is resolved at build time.
func (t *Track) MutStep(name string, routes ...flow.Route) *Track {
	return t.add(item{kind: kindMut, name: name, routes: routes})
}

// MutStepFunc declares a mutation step with an inline body.
func (t *Track) MutStepFunc(name string, fn step.MutFunc, routes ...flow.Route) *Track {
	if fn == nil {
		panic("scp: mutation step function must not be nil")
	}
	return t.add(item{kind: kindMut, name: name, mutFn: fn, routes: routes})
}

// Wrap declares steps run as an inner flow under the control of fn.
func (t *Track) Wrap(name string, fn WrapFunc, body func(*Track), routes ...flow.Route) *Track {
	if fn == nil {
		panic("scp: wrap function must not be nil")
	}
	inner := &Track{name: name}
	if body != nil {
		body(inner)
	}
	return t.add(item{kind: kindWrap, name: name, wrapper: fn, inner: inner, routes: routes})
}

func (t *Track) clone() *Track {
	c := &Track{name: t.name, items: make([]item, len(t.items))}
	for i, it := range t.items {
		if it.inner != nil {
			it.inner = it.inner.clone()
		}
		c.items[i] = it
	}
	return c
}

// Builder declares a shared-context pipeline. It is not safe for concurrent
// use; the Pipeline it builds is.
type Builder struct {
	name   string
	main   *Track
	tracks []*Track

	beforeAll  []BeforeAllFunc
	afterAll   []AfterAllFunc
	beforeEach []BeforeEachFunc
	afterEach  []AfterEachFunc

	output     *contract.Output
	skipOutput bool
}

// New starts a pipeline named name.
func New(name string) *Builder {
	return &Builder{name: name, main: &Track{}}
}

// Step declares a main-track step whose body is resolved at build time.
func (b *Builder) Step(name string, routes ...flow.Route) *Builder {
	b.main.Step(name, routes...)
	return b
}

// StepFunc declares a main-track step with an inline body.
func (b *Builder) StepFunc(name string, fn step.Func, routes ...flow.Route) *Builder {
	b.main.StepFunc(name, fn, routes...)
	return b
}

// MutStep declares a main-track mutation step.
func (b *Builder) MutStep(name string, routes ...flow.Route) *Builder {
	b.main.MutStep(name, routes...)
	return b
}

// MutStepFunc declares a main-track mutation step with an inline body.
func (b *Builder) MutStepFunc(name string, fn step.MutFunc, routes ...flow.Route) *Builder {
	b.main.MutStepFunc(name, fn, routes...)
	return b
}

// Wrap declares a main-track wrap.
func (b *Builder) Wrap(name string, fn WrapFunc, body func(*Track), routes ...flow.Route) *Builder {
	b.main.Wrap(name, fn, body, routes...)
	return b
}

// Track declares a named track. Routing to name enters the track at its
// first step.
func (b *Builder) Track(name string, body func(*Track)) *Builder {
	if name == "" {
		panic("scp: track name must not be empty")
	}
	t := &Track{name: name}
	if body != nil {
		body(t)
	}
	b.tracks = append(b.tracks, t)
	return b
}

// BeforeAll adds a callback run before the first step.
func (b *Builder) BeforeAll(fn BeforeAllFunc) *Builder {
	b.beforeAll = append(b.beforeAll, fn)
	return b
}

// AfterAll adds a callback run after the last step.
func (b *Builder) AfterAll(fn AfterAllFunc) *Builder {
	b.afterAll = append(b.afterAll, fn)
	return b
}

// BeforeEach adds a callback run before every step.
func (b *Builder) BeforeEach(fn BeforeEachFunc) *Builder {
	b.beforeEach = append(b.beforeEach, fn)
	return b
}

// AfterEach adds a callback run after every step.
func (b *Builder) AfterEach(fn AfterEachFunc) *Builder {
	b.afterEach = append(b.afterEach, fn)
	return b
}

// SuccessWith declares the data shape of Ok results with status.
func (b *Builder) SuccessWith(status result.Status, c contract.Contract) *Builder {
	if b.output == nil {
		b.output = &contract.Output{}
	}
	b.output.SuccessWith(status, c)
	return b
}

// FailureWith declares the data shape of Err results with status.
func (b *Builder) FailureWith(status result.Status, c contract.Contract) *Builder {
	if b.output == nil {
		b.output = &contract.Output{}
	}
	b.output.FailureWith(status, c)
	return b
}

// SkipOutputContract disables the declared output shapes.
func (b *Builder) SkipOutputContract() *Builder {
	b.skipOutput = true
	return b
}

// Lazy returns a pipeline built from the current declaration on its first
// Call. Later changes to b do not affect it.
func (b *Builder) Lazy(opts ...step.Option) *step.Lazy {
	snapshot := b.clone()
	return step.NewLazy(func() (step.Caller, error) {
		p, err := snapshot.Build(opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

func (b *Builder) clone() *Builder {
	c := *b
	c.main = b.main.clone()
	c.tracks = make([]*Track, len(b.tracks))
	for i, t := range b.tracks {
		c.tracks[i] = t.clone()
	}
	c.beforeAll = append([]BeforeAllFunc(nil), b.beforeAll...)
	c.afterAll = append([]AfterAllFunc(nil), b.afterAll...)
	c.beforeEach = append([]BeforeEachFunc(nil), b.beforeEach...)
	c.afterEach = append([]AfterEachFunc(nil), b.afterEach...)
	c.output = b.output.Clone()
	return &c
}
