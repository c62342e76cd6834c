// Package flows provides a small, embeddable pipeline engine for Go.
//
// A pipeline is a graph of nodes walked one node at a time. Each node runs a
// step, hands the step's output to a router, and the router names the next
// node or End. Steps communicate through Results: tagged Ok or Err values
// carrying a status and a data payload.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Result
//  2. Node and Router
//  3. Flow
//  4. Railway
//  5. Pipeline
//
// # Result
//
// A Result is immutable. Ok and Err build the two variants with the default
// statuses "success" and "failure"; OkWith and ErrWith set a custom status.
// Data returns the payload of either variant, while OkData and ErrData fail
// when called on the wrong one.
//
// # Node and Router
//
// A Node wraps a step body with optional pre- and postprocessors and a
// Router. A SimpleRouter sends Ok results to one node and Err results to
// another. A CustomRouter tries its routes in order and fails the run with
// ErrNoRoute when nothing matches:
//
//	r, err := flows.NewCustomRouter(
//	    flows.When(flows.MatchErr("not_found"), "create"),
//	    flows.When(flows.WhenOk(), "update"),
//	)
//
// # Flow
//
// A Flow owns the node graph and a start identifier. NewFlow checks that the
// start node exists and that every destination a router can produce is a
// node or End, so routing mistakes fail at construction rather than mid-run.
// A built Flow is read-only and may be called concurrently, as long as every
// call brings its own State.
//
// # Railway
//
// NewRailway declares a linear pipeline. Every step receives the data of the
// previous Ok result, and the first Err result ends the run:
//
//	calc, err := flows.NewRailway("calc").
//	    StepFunc("sum", sum).
//	    StepFunc("square", square).
//	    Build()
//
// # Pipeline
//
// NewPipeline declares a shared-context pipeline. Steps read a copy of the
// accumulated data and their result data is merged back into it. Pipelines
// add named tracks reachable through custom routes, mutation steps that
// change the shared data in place, wrap steps around groups of steps, and
// before/after callbacks.
//
// Step bodies can be given inline, injected with WithDeps, or looked up by
// name in a step.Source with WithSource. A missing implementation fails the
// build.
//
// # Observers
//
// Observers receive callbacks for every run and node. LoggingObserver,
// BasicMetrics and the history, profiler and otel packages all implement
// Observer; combine them with NewCompositeObserver, or use NewSQLiteBundle
// for a ready-made set backed by SQLite.
//
// For examples, see the /examples directory.
package flows
