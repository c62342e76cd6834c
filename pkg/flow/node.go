package flow

import (
	"context"
	"maps"
)

// State is the execution context of one Call. It is owned by the caller and
// shared by reference with every processor and router of the run.
type State map[string]any

// Meta is read-only node metadata, such as the step name.
type Meta map[string]any

// Body is the executable part of a node.
type Body func(ctx context.Context, input any) (any, error)

// Preprocessor adapts the node input into the argument passed to Body.
type Preprocessor func(ctx context.Context, input any, state State, meta Meta) (any, error)

// Postprocessor turns the Body output into the node output.
type Postprocessor func(ctx context.Context, output any, state State, meta Meta) (any, error)

// Node is one step of a flow: a body wrapped with optional pre/post
// processing and a router. Nodes are immutable once built and may be
// registered under several identifiers.
type Node struct {
	body   Body
	router Router
	meta   Meta
	pre    Preprocessor
	post   Postprocessor
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithPreprocessor sets the node preprocessor.
func WithPreprocessor(p Preprocessor) NodeOption {
	return func(n *Node) { n.pre = p }
}

// WithPostprocessor sets the node postprocessor.
func WithPostprocessor(p Postprocessor) NodeOption {
	return func(n *Node) { n.post = p }
}

// NewNode builds a node. It panics if body or router is nil.
func NewNode(body Body, router Router, meta Meta, opts ...NodeOption) *Node {
	if body == nil {
		panic("flows: node body must not be nil")
	}
	if router == nil {
		panic("flows: node router must not be nil")
	}

	n := &Node{
		body:   body,
		router: router,
		meta:   maps.Clone(meta),
	}
	if n.meta == nil {
		n.meta = Meta{}
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Meta returns a copy of the node metadata.
func (n *Node) Meta() Meta {
	return maps.Clone(n.meta)
}

// Router returns the node router.
func (n *Node) Router() Router {
	return n.router
}

// Call runs the node: preprocess, body, postprocess, route. Errors from any
// phase are returned as they are.
func (n *Node) Call(ctx context.Context, input any, state State) (any, string, error) {
	arg := input
	if n.pre != nil {
		var err error
		arg, err = n.pre(ctx, input, state, n.Meta())
		if err != nil {
			return nil, "", err
		}
	}

	output, err := n.body(ctx, arg)
	if err != nil {
		return nil, "", err
	}

	if n.post != nil {
		output, err = n.post(ctx, output, state, n.Meta())
		if err != nil {
			return nil, "", err
		}
	}

	next, err := n.router.Route(output, state, n.Meta())
	if err != nil {
		return nil, "", err
	}
	return output, next, nil
}
