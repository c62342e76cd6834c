// Package step holds what the pipeline builders share: step signatures,
// step sources, build options and the resolution of step implementations.
//
// A builder resolves every declared step once, at build time, from three
// places in priority order:
//
//  1. an injected dependency (WithDeps / WithMutDeps),
//  2. the inline function given when the step was declared,
//  3. a lookup by name on the Source passed with WithSource.
//
// A step found in none of them fails the build with a
// *NoImplementationError.
package step

import (
	"context"
	"errors"
	"fmt"

	"github.com/petrijr/flows/pkg/flow"
	"github.com/petrijr/flows/pkg/result"
)

// Func is a step body: it receives keyword data and returns a Result.
// Business failures are Err results; a returned error aborts the whole run.
type Func func(ctx context.Context, data result.Data) (result.Result, error)

// MutFunc is a mutation step body. It changes data in place and reports
// success with its boolean return.
type MutFunc func(ctx context.Context, data result.Data) (bool, error)

// Source looks up step implementations by name.
type Source interface {
	Step(name string) (Func, bool)
}

// MutSource looks up mutation step implementations by name.
type MutSource interface {
	MutStep(name string) (MutFunc, bool)
}

// Map is a Source backed by a map.
type Map map[string]Func

func (m Map) Step(name string) (Func, bool) {
	fn, ok := m[name]
	return fn, ok && fn != nil
}

// Registry is a Source and MutSource backed by two maps.
type Registry struct {
	Steps    map[string]Func
	MutSteps map[string]MutFunc
}

var (
	_ Source    = Map(nil)
	_ Source    = (*Registry)(nil)
	_ MutSource = (*Registry)(nil)
)

func (r *Registry) Step(name string) (Func, bool) {
	fn, ok := r.Steps[name]
	return fn, ok && fn != nil
}

func (r *Registry) MutStep(name string) (MutFunc, bool) {
	fn, ok := r.MutSteps[name]
	return fn, ok && fn != nil
}

var (
	// ErrNoSteps is returned when a pipeline or track declares no steps.
	ErrNoSteps = errors.New("flows: no steps defined")

	// ErrNoImplementation is matched by *NoImplementationError.
	ErrNoImplementation = errors.New("flows: missing step implementation")
)

// NoImplementationError reports a step whose body could not be resolved.
type NoImplementationError struct {
	Step string
}

func (e *NoImplementationError) Error() string {
	return fmt.Sprintf("flows: no implementation for step %q", e.Step)
}

func (e *NoImplementationError) Is(target error) bool { return target == ErrNoImplementation }

// DuplicateError reports an identifier declared twice in one pipeline.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("flows: step or track %q declared more than once", e.Name)
}

// Options is the resolved set of build options.
type Options struct {
	Deps      map[string]Func
	MutDeps   map[string]MutFunc
	Source    Source
	MutSource MutSource
	Observer  flow.Observer
}

// Option configures a pipeline build.
type Option func(*Options)

// WithDeps overrides step implementations by name. Dependencies take
// precedence over inline functions and the Source.
func WithDeps(deps map[string]Func) Option {
	return func(o *Options) {
		if o.Deps == nil {
			o.Deps = make(map[string]Func, len(deps))
		}
		for k, v := range deps {
			o.Deps[k] = v
		}
	}
}

// WithMutDeps overrides mutation step implementations by name.
func WithMutDeps(deps map[string]MutFunc) Option {
	return func(o *Options) {
		if o.MutDeps == nil {
			o.MutDeps = make(map[string]MutFunc, len(deps))
		}
		for k, v := range deps {
			o.MutDeps[k] = v
		}
	}
}

// WithSource sets the object steps are looked up on. If src also implements
// MutSource it serves mutation steps too.
func WithSource(src Source) Option {
	return func(o *Options) {
		o.Source = src
		if ms, ok := src.(MutSource); ok && o.MutSource == nil {
			o.MutSource = ms
		}
	}
}

// WithMutSource sets the object mutation steps are looked up on.
func WithMutSource(src MutSource) Option {
	return func(o *Options) { o.MutSource = src }
}

// WithObserver attaches a flow observer to the built pipeline.
func WithObserver(obs flow.Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

// Apply folds opts into an Options value.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Resolve picks the implementation of a step.
func (o Options) Resolve(name string, inline Func) (Func, error) {
	if fn, ok := o.Deps[name]; ok && fn != nil {
		return fn, nil
	}
	if inline != nil {
		return inline, nil
	}
	if o.Source != nil {
		if fn, ok := o.Source.Step(name); ok {
			return fn, nil
		}
	}
	return nil, &NoImplementationError{Step: name}
}

// ResolveMut picks the implementation of a mutation step.
func (o Options) ResolveMut(name string, inline MutFunc) (MutFunc, error) {
	if fn, ok := o.MutDeps[name]; ok && fn != nil {
		return fn, nil
	}
	if inline != nil {
		return inline, nil
	}
	if o.MutSource != nil {
		if fn, ok := o.MutSource.MutStep(name); ok {
			return fn, nil
		}
	}
	return nil, &NoImplementationError{Step: name}
}

// FlowOptions converts the options relevant to flow.New.
func (o Options) FlowOptions(name string) []flow.Option {
	opts := []flow.Option{flow.WithName(name)}
	if o.Observer != nil {
		opts = append(opts, flow.WithObserver(o.Observer))
	}
	return opts
}
