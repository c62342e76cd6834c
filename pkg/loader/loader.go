// Package loader reads shared-context pipeline definitions from YAML.
//
// A definition names the steps of the main track, optional named tracks and
// the routes of every step. Route conditions are expr-lang boolean
// expressions evaluated against the step Result:
//
//	ok      bool            the Result is Ok
//	err     bool            the Result is Err
//	status  string          the Result status
//	data    map[string]any  the Result data
//
// Step bodies are not part of the definition; they come from a step.Source
// when the pipeline is built.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/petrijr/flows/pkg/flow"
	"github.com/petrijr/flows/pkg/result"
	"github.com/petrijr/flows/pkg/scp"
	"github.com/petrijr/flows/pkg/step"
)

// Definition is the top-level YAML structure.
type Definition struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Steps       []StepDef            `yaml:"steps"`
	Tracks      map[string][]StepDef `yaml:"tracks,omitempty"`
}

// StepDef declares one step.
type StepDef struct {
	Name     string     `yaml:"name"`
	Mutation bool       `yaml:"mutation,omitempty"`
	Routes   []RouteDef `yaml:"routes,omitempty"`
}

// RouteDef declares one route. An empty When always matches.
type RouteDef struct {
	When string `yaml:"when,omitempty"`
	To   string `yaml:"to"`
}

// ErrEmptyDefinition is returned by Parse for empty input.
var ErrEmptyDefinition = errors.New("loader: empty definition")

// Parse decodes a YAML definition. Unknown fields are rejected.
func Parse(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDefinition
		}
		return nil, fmt.Errorf("parse definition YAML: %w", err)
	}
	return &def, nil
}

// Load reads and parses the definition at path.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Marshal serializes the definition back to YAML.
func (def *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(def)
}

// Validate checks the definition without building it:
//   - the name is set and the main track has steps
//   - step and track names are unique and not reserved
//   - every track has steps
//   - route targets exist and conditions compile
func (def *Definition) Validate() error {
	if def.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	names := make(map[string]bool)
	claim := func(name string) error {
		switch {
		case name == "":
			return fmt.Errorf("step name is required")
		case name == scp.Next || name == scp.End:
			return fmt.Errorf("name %q is reserved", name)
		case names[name]:
			return fmt.Errorf("duplicate step or track name %q", name)
		}
		names[name] = true
		return nil
	}

	for _, s := range def.Steps {
		if err := claim(s.Name); err != nil {
			return err
		}
	}
	for _, track := range def.trackNames() {
		if err := claim(track); err != nil {
			return err
		}
		if len(def.Tracks[track]) == 0 {
			return fmt.Errorf("track %q has no steps", track)
		}
		for _, s := range def.Tracks[track] {
			if err := claim(s.Name); err != nil {
				return err
			}
		}
	}

	for _, s := range def.allSteps() {
		for i, r := range s.Routes {
			if r.To == "" {
				return fmt.Errorf("step %q route %d: target is required", s.Name, i)
			}
			if r.To != scp.Next && r.To != scp.End && !names[r.To] {
				return fmt.Errorf("step %q route %d references unknown target %q", s.Name, i, r.To)
			}
			if _, err := compile(r.When); err != nil {
				return fmt.Errorf("step %q route %d: %w", s.Name, i, err)
			}
		}
	}
	return nil
}

// Builder validates the definition and declares it on a new scp.Builder.
func (def *Definition) Builder() (*scp.Builder, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	b := scp.New(def.Name)
	for _, s := range def.Steps {
		if err := declare(s, b.Step, b.MutStep); err != nil {
			return nil, err
		}
	}

	for _, name := range def.trackNames() {
		var declErr error
		b.Track(name, func(t *scp.Track) {
			for _, s := range def.Tracks[name] {
				if declErr != nil {
					return
				}
				declErr = declare(s,
					func(n string, r ...flow.Route) *scp.Track { return t.Step(n, r...) },
					func(n string, r ...flow.Route) *scp.Track { return t.MutStep(n, r...) },
				)
			}
		})
		if declErr != nil {
			return nil, declErr
		}
	}
	return b, nil
}

// Build declares the definition and builds it. Step bodies are usually
// supplied with step.WithSource.
func (def *Definition) Build(opts ...step.Option) (*scp.Pipeline, error) {
	b, err := def.Builder()
	if err != nil {
		return nil, err
	}
	return b.Build(opts...)
}

// Placeholders returns a registry with a pass-through body for every step,
// for checking a definition's graph without its implementations.
func (def *Definition) Placeholders() *step.Registry {
	reg := &step.Registry{Steps: map[string]step.Func{}, MutSteps: map[string]step.MutFunc{}}
	for _, s := range def.allSteps() {
		if s.Mutation {
			reg.MutSteps[s.Name] = func(context.Context, result.Data) (bool, error) { return true, nil }
		} else {
			reg.Steps[s.Name] = func(context.Context, result.Data) (result.Result, error) { return result.Ok(nil), nil }
		}
	}
	return reg
}

func (def *Definition) trackNames() []string {
	return slices.Sorted(maps.Keys(def.Tracks))
}

func (def *Definition) allSteps() []StepDef {
	all := slices.Clone(def.Steps)
	for _, name := range def.trackNames() {
		all = append(all, def.Tracks[name]...)
	}
	return all
}

func declare[T any](s StepDef, plain, mutation func(string, ...flow.Route) T) error {
	routes := make([]flow.Route, 0, len(s.Routes))
	for _, r := range s.Routes {
		p, err := predicate(r.When)
		if err != nil {
			return fmt.Errorf("step %q: %w", s.Name, err)
		}
		routes = append(routes, flow.When(p, r.To))
	}
	if s.Mutation {
		mutation(s.Name, routes...)
	} else {
		plain(s.Name, routes...)
	}
	return nil
}

func compile(src string) (*vm.Program, error) {
	if src == "" {
		src = "true"
	}
	prog, err := expr.Compile(src, expr.Env(routeEnv(result.Result{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", src, err)
	}
	return prog, nil
}

func routeEnv(res result.Result) map[string]any {
	return map[string]any{
		"ok":     res.IsOk(),
		"err":    res.IsErr(),
		"status": string(res.Status()),
		"data":   map[string]any(res.Data()),
	}
}

// predicate compiles src once. Outputs that are not results, and conditions
// failing at run time, do not match.
func predicate(src string) (flow.Predicate, error) {
	prog, err := compile(src)
	if err != nil {
		return flow.Predicate{}, err
	}
	return flow.Func(func(output any) bool {
		res, ok := result.From(output)
		if !ok {
			return false
		}
		out, err := expr.Run(prog, routeEnv(res))
		if err != nil {
			return false
		}
		matched, _ := out.(bool)
		return matched
	}), nil
}
