package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrNoNodes is returned by New for an empty node graph.
	ErrNoNodes = errors.New("flows: flow has no nodes")

	// ErrNoRoutes is returned by NewCustomRouter for an empty routing table.
	ErrNoRoutes = errors.New("flows: custom router has no routes")

	// ErrNoRoute is matched by *NoRouteError.
	ErrNoRoute = errors.New("flows: no route matched")

	// ErrNilNode is matched by *NilNodeError.
	ErrNilNode = errors.New("flows: nil node")

	// ErrInvalidRoute is matched by *InvalidNodeRouteError and *InvalidFirstNodeError.
	ErrInvalidRoute = errors.New("flows: invalid node route")
)

// NoRouteError is returned when a router cannot decide a destination for an
// output. It signals a gap in the routing table, not a data problem.
type NoRouteError struct {
	Output any
	Meta   Meta
}

func (e *NoRouteError) Error() string {
	if name, ok := e.Meta["name"]; ok {
		return fmt.Sprintf("flows: no route matched output %v of node %v", e.Output, name)
	}
	return fmt.Sprintf("flows: no route matched output %v", e.Output)
}

func (e *NoRouteError) Is(target error) bool { return target == ErrNoRoute }

// InvalidNodeRouteError reports a route to an identifier that is not in the
// node graph.
type InvalidNodeRouteError struct {
	From string
	To   string
}

func (e *InvalidNodeRouteError) Error() string {
	return fmt.Sprintf("flows: node %q routes to unknown node %q", e.From, e.To)
}

func (e *InvalidNodeRouteError) Is(target error) bool { return target == ErrInvalidRoute }

// InvalidFirstNodeError reports a start identifier missing from the graph.
type InvalidFirstNodeError struct {
	Start string
}

func (e *InvalidFirstNodeError) Error() string {
	return fmt.Sprintf("flows: start node %q is not in the node graph", e.Start)
}

func (e *InvalidFirstNodeError) Is(target error) bool { return target == ErrInvalidRoute }

// ReservedIdentifierError reports a node registered under End.
type ReservedIdentifierError struct {
	ID string
}

func (e *ReservedIdentifierError) Error() string {
	return fmt.Sprintf("flows: %q is reserved for termination and cannot name a node", e.ID)
}

// NilNodeError reports an identifier mapped to a nil *Node.
type NilNodeError struct {
	ID string
}

func (e *NilNodeError) Error() string {
	return fmt.Sprintf("flows: node %q is nil", e.ID)
}

func (e *NilNodeError) Is(target error) bool { return target == ErrNilNode }
