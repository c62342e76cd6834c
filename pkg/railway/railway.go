// Package railway builds linear pipelines in the railway style: each step
// receives the data of the previous Ok result, and the first Err result
// short-circuits the rest of the pipeline.
//
//	calc, err := railway.New("calc").
//		StepFunc("sum", sum).
//		StepFunc("square", square).
//		Build()
//
//	res, err := calc.Call(ctx, result.Data{"a": 2, "b": 3}) // ok(success) map[square:25]
package railway

import (
	"context"
	"fmt"

	"github.com/petrijr/flows/pkg/contract"
	"github.com/petrijr/flows/pkg/flow"
	"github.com/petrijr/flows/pkg/result"
	"github.com/petrijr/flows/pkg/step"
)

// LastStepKey is the state and result meta key holding the name of the
// last executed step.
const LastStepKey = "last_step"

type decl struct {
	name string
	fn   step.Func
}

// Builder declares the steps of a railway. It is not safe for concurrent
// use; the Railway it builds is.
type Builder struct {
	name       string
	steps      []decl
	output     *contract.Output
	skipOutput bool
}

// New starts a railway named name.
func New(name string) *Builder {
	return &Builder{name: name}
}

// Step declares a step whose body is resolved at build time from the
// dependencies or the Source.
func (b *Builder) Step(name string) *Builder {
	if name == "" {
		panic("railway: step name must not be empty")
	}
	b.steps = append(b.steps, decl{name: name})
	return b
}

// StepFunc declares a step with an inline body.
func (b *Builder) StepFunc(name string, fn step.Func) *Builder {
	if name == "" {
		panic("railway: step name must not be empty")
	}
	if fn == nil {
		panic("railway: step function must not be nil")
	}
	b.steps = append(b.steps, decl{name: name, fn: fn})
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

// Build resolves every step body and validates the resulting graph.
func (b *Builder) Build(opts ...step.Option) (*Railway, error) {
	if len(b.steps) == 0 {
		return nil, step.ErrNoSteps
	}

	o := step.Apply(opts...)
	nodes := make(map[string]*flow.Node, len(b.steps))
	names := make([]string, 0, len(b.steps))

	for i, d := range b.steps {
		if _, dup := nodes[d.name]; dup {
			return nil, &step.DuplicateError{Name: d.name}
		}
		fn, err := o.Resolve(d.name, d.fn)
		if err != nil {
			return nil, err
		}

		next := flow.End
		if i+1 < len(b.steps) {
			next = b.steps[i+1].name
		}
		nodes[d.name] = newNode(d.name, fn, next)
		names = append(names, d.name)
	}

	var output *contract.Output
	if !b.skipOutput && !b.output.Empty() {
		if err := b.output.Validate(); err != nil {
			return nil, err
		}
		output = b.output.Clone()
	}

	f, err := flow.New(names[0], nodes, o.FlowOptions(b.name)...)
	if err != nil {
		return nil, err
	}
	return &Railway{name: b.name, steps: names, flow: f, output: output}, nil
}

// Lazy returns a pipeline built from the current declaration on its first
// Call. Later changes to b do not affect it.
func (b *Builder) Lazy(opts ...step.Option) *step.Lazy {
	snapshot := b.clone()
	return step.NewLazy(func() (step.Caller, error) {
		r, err := snapshot.Build(opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	})
}

func (b *Builder) clone() *Builder {
	return &Builder{
		name:       b.name,
		steps:      append([]decl(nil), b.steps...),
		output:     b.output.Clone(),
		skipOutput: b.skipOutput,
	}
}

func newNode(name string, fn step.Func, next string) *flow.Node {
	body := func(ctx context.Context, in any) (any, error) {
		return fn(ctx, in.(result.Data))
	}
	return flow.NewNode(body, flow.NewSimpleRouter(next, flow.End), flow.Meta{"name": name},
		flow.WithPreprocessor(unwrapInput),
		flow.WithPostprocessor(recordLastStep),
	)
}

func unwrapInput(_ context.Context, input any, _ flow.State, meta flow.Meta) (any, error) {
	res, ok := result.From(input)
	if !ok {
		return nil, fmt.Errorf("railway: step %v expects a result input, got %T", meta["name"], input)
	}
	return res.OkData()
}

func recordLastStep(_ context.Context, output any, state flow.State, meta flow.Meta) (any, error) {
	state[LastStepKey] = meta["name"]
	return output, nil
}

// Railway is a built linear pipeline. It is immutable and safe for
// concurrent use.
type Railway struct {
	name   string
	steps  []string
	flow   *flow.Flow
	output *contract.Output
}

var _ step.Caller = (*Railway)(nil)

// Name returns the railway name.
func (r *Railway) Name() string { return r.name }

// Steps returns the step names in execution order.
func (r *Railway) Steps() []string { return append([]string(nil), r.steps...) }

// Flow returns the underlying node graph.
func (r *Railway) Flow() *flow.Flow { return r.flow }

// Call runs the pipeline on data. A business failure is an Err result, not
// an error; errors come from step bodies or from the output contract.
func (r *Railway) Call(ctx context.Context, data result.Data) (result.Result, error) {
	state := flow.State{}
	out, err := r.flow.Call(ctx, result.Ok(data), state)
	if err != nil {
		return result.Result{}, err
	}

	res, ok := result.From(out)
	if !ok {
		return result.Result{}, fmt.Errorf("railway: %s produced %T, want a result", r.name, out)
	}
	res = res.WithMeta(map[string]any{LastStepKey: state[LastStepKey]})

	if r.output != nil {
		return r.output.Apply(res)
	}
	return res, nil
}
