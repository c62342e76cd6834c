package flow

import (
	"slices"

	"github.com/petrijr/flows/pkg/result"
)

// Router decides the identifier of the node that runs after a node produced
// output. Returning End stops the flow.
type Router interface {
	Route(output any, state State, meta Meta) (string, error)

	// Destinations lists every identifier Route may return. Flow validates
	// them when it is constructed.
	Destinations() []string
}

// SimpleRouter sends Ok results to one destination and Err results to
// another.
type SimpleRouter struct {
	onOk  string
	onErr string
}

var _ Router = (*SimpleRouter)(nil)

// NewSimpleRouter returns a router for result.Result outputs.
func NewSimpleRouter(onOk, onErr string) *SimpleRouter {
	return &SimpleRouter{onOk: onOk, onErr: onErr}
}

// Route returns the Ok or Err destination. Outputs that are not results
// cannot be routed.
func (r *SimpleRouter) Route(output any, _ State, meta Meta) (string, error) {
	res, ok := result.From(output)
	if !ok {
		return "", &NoRouteError{Output: output, Meta: meta}
	}
	if res.IsOk() {
		return r.onOk, nil
	}
	return r.onErr, nil
}

func (r *SimpleRouter) Destinations() []string {
	if r.onOk == r.onErr {
		return []string{r.onOk}
	}
	return []string{r.onOk, r.onErr}
}

// Route is one row of a CustomRouter table.
type Route struct {
	When Predicate
	To   string
}

// When is shorthand for Route{When: p, To: to}.
func When(p Predicate, to string) Route {
	return Route{When: p, To: to}
}

// CustomRouter evaluates an ordered routing table. The first matching route
// wins; when nothing matches, Route fails with a *NoRouteError.
type CustomRouter struct {
	routes []Route
}

var _ Router = (*CustomRouter)(nil)

// NewCustomRouter returns a router over routes, evaluated in order.
func NewCustomRouter(routes ...Route) (*CustomRouter, error) {
	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	return &CustomRouter{routes: slices.Clone(routes)}, nil
}

// MustCustomRouter is like NewCustomRouter but panics on error.
func MustCustomRouter(routes ...Route) *CustomRouter {
	r, err := NewCustomRouter(routes...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *CustomRouter) Route(output any, _ State, meta Meta) (string, error) {
	for _, route := range r.routes {
		if route.When.Match(output) {
			return route.To, nil
		}
	}
	return "", &NoRouteError{Output: output, Meta: meta}
}

func (r *CustomRouter) Destinations() []string {
	out := make([]string, 0, len(r.routes))
	for _, route := range r.routes {
		if !slices.Contains(out, route.To) {
			out = append(out, route.To)
		}
	}
	return out
}
