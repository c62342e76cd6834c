package flows

import (
	"github.com/petrijr/flows/pkg/contract"
	"github.com/petrijr/flows/pkg/flow"
	"github.com/petrijr/flows/pkg/railway"
	"github.com/petrijr/flows/pkg/result"
	"github.com/petrijr/flows/pkg/scp"
	"github.com/petrijr/flows/pkg/step"
)

// Re-export key types so users don't need to dig into pkg/.

type (
	Result               = result.Result
	Data                 = result.Data
	Status               = result.Status
	Flow                 = flow.Flow
	Node                 = flow.Node
	State                = flow.State
	Meta                 = flow.Meta
	Router               = flow.Router
	Route                = flow.Route
	Predicate            = flow.Predicate
	Observer             = flow.Observer
	RunInfo              = flow.RunInfo
	LoggingObserver      = flow.LoggingObserver
	BasicMetrics         = flow.BasicMetrics
	BasicMetricsSnapshot = flow.BasicMetricsSnapshot
	CompositeObserver    = flow.CompositeObserver
	NoopObserver         = flow.NoopObserver
	StepFunc             = step.Func
	MutStepFunc          = step.MutFunc
	StepOption           = step.Option
	StepSource           = step.Source
	MutStepSource        = step.MutSource
	StepMap              = step.Map
	StepRegistry         = step.Registry
	Contract             = contract.Contract
	Railway              = railway.Railway
	Pipeline             = scp.Pipeline
	Track                = scp.Track
)

const (
	// End is the identifier that terminates a flow.
	End = flow.End
	// Next routes a pipeline step to the step declared after it.
	Next = scp.Next
)

// Re-export result, routing and observer helpers.

var (
	Ok      = result.Ok
	OkWith  = result.OkWith
	Err     = result.Err
	ErrWith = result.ErrWith

	NewNode         = flow.NewNode
	NewSimpleRouter = flow.NewSimpleRouter
	NewCustomRouter = flow.NewCustomRouter
	When            = flow.When
	WhenOk          = flow.WhenOk
	WhenErr         = flow.WhenErr
	MatchOk         = flow.MatchOk
	MatchErr        = flow.MatchErr
	PredicateFunc   = flow.Func

	NewLoggingObserver   = flow.NewLoggingObserver
	NewCompositeObserver = flow.NewCompositeObserver

	WithDeps     = step.WithDeps
	WithMutDeps  = step.WithMutDeps
	WithSource   = step.WithSource
	WithObserver = step.WithObserver
)

// NewFlow validates the node graph and returns a Flow starting at start.
func NewFlow(start string, nodes map[string]*Node, opts ...flow.Option) (*Flow, error) {
	return flow.New(start, nodes, opts...)
}

// NewRailway starts declaring a railway: a linear pipeline that stops at
// the first Err result.
func NewRailway(name string) *railway.Builder {
	return railway.New(name)
}

// NewPipeline starts declaring a shared-context pipeline.
func NewPipeline(name string) *scp.Builder {
	return scp.New(name)
}
