package flow

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// RunInfo identifies one Call of a Flow in observer callbacks.
type RunInfo struct {
	ID      string
	Flow    string
	Started time.Time
}

// Observer receives callbacks from Flow.Call for logging and metrics.
//
// Observers never change the outcome of a run. Implementations should be
// fast; heavy work should be done asynchronously.
type Observer interface {
	// OnFlowStart is called before the first node runs.
	OnFlowStart(ctx context.Context, run RunInfo)

	// OnFlowCompleted is called when a router returned End.
	OnFlowCompleted(ctx context.Context, run RunInfo, output any)

	// OnFlowFailed is called when a node, processor or router failed.
	OnFlowFailed(ctx context.Context, run RunInfo, err error)

	// OnNodeStart is called before a node is called.
	OnNodeStart(ctx context.Context, run RunInfo, nodeID string)

	// OnNodeCompleted is called after a node returns, for both successes and
	// failures (err != nil). next is empty when the node failed.
	OnNodeCompleted(ctx context.Context, run RunInfo, nodeID, next string, err error, d time.Duration)
}

// ContextObserver is an Observer that also decides the context a node runs
// with, e.g. to carry a tracing span into step bodies. NodeContext is called
// right after OnNodeStart.
type ContextObserver interface {
	Observer
	NodeContext(ctx context.Context, run RunInfo, nodeID string) context.Context
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnFlowStart(ctx context.Context, run RunInfo)                 {}
func (NoopObserver) OnFlowCompleted(ctx context.Context, run RunInfo, output any) {}
func (NoopObserver) OnFlowFailed(ctx context.Context, run RunInfo, err error)     {}
func (NoopObserver) OnNodeStart(ctx context.Context, run RunInfo, nodeID string)  {}
func (NoopObserver) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID, next string, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

var _ ContextObserver = (*CompositeObserver)(nil)

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFlowStart(ctx context.Context, run RunInfo) {
	for _, o := range c.observers {
		o.OnFlowStart(ctx, run)
	}
}

func (c *CompositeObserver) OnFlowCompleted(ctx context.Context, run RunInfo, output any) {
	for _, o := range c.observers {
		o.OnFlowCompleted(ctx, run, output)
	}
}

func (c *CompositeObserver) OnFlowFailed(ctx context.Context, run RunInfo, err error) {
	for _, o := range c.observers {
		o.OnFlowFailed(ctx, run, err)
	}
}

func (c *CompositeObserver) OnNodeStart(ctx context.Context, run RunInfo, nodeID string) {
	for _, o := range c.observers {
		o.OnNodeStart(ctx, run, nodeID)
	}
}

// NodeContext threads ctx through every member that is a ContextObserver,
// in order.
func (c *CompositeObserver) NodeContext(ctx context.Context, run RunInfo, nodeID string) context.Context {
	for _, o := range c.observers {
		if co, ok := o.(ContextObserver); ok {
			ctx = co.NodeContext(ctx, run, nodeID)
		}
	}
	return ctx
}

func (c *CompositeObserver) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID, next string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnNodeCompleted(ctx, run, nodeID, next, err, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs flow and node events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnFlowStart(ctx context.Context, run RunInfo) {
	o.Logger.InfoContext(ctx, "flow_start",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.ID),
	)
}

func (o *LoggingObserver) OnFlowCompleted(ctx context.Context, run RunInfo, output any) {
	o.Logger.InfoContext(ctx, "flow_completed",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.ID),
		slog.Duration("duration", time.Since(run.Started)),
	)
}

func (o *LoggingObserver) OnFlowFailed(ctx context.Context, run RunInfo, err error) {
	o.Logger.ErrorContext(ctx, "flow_failed",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnNodeStart(ctx context.Context, run RunInfo, nodeID string) {
	o.Logger.DebugContext(ctx, "node_start",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.ID),
		slog.String("node", nodeID),
	)
}

func (o *LoggingObserver) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID, next string, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "node_completed",
		slog.String("flow", run.Flow),
		slog.String("run_id", run.ID),
		slog.String("node", nodeID),
		slog.String("next", next),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters and aggregate node durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	flowsStarted      atomic.Int64
	flowsCompleted    atomic.Int64
	flowsFailed       atomic.Int64
	nodesCompleted    atomic.Int64
	nodesFailed       atomic.Int64
	totalNodeDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	FlowsStarted   int64
	FlowsCompleted int64
	FlowsFailed    int64
	RunningFlows   int64

	NodesCompleted  int64
	NodesFailed     int64
	AvgNodeDuration time.Duration
}

func (m *BasicMetrics) OnFlowStart(ctx context.Context, run RunInfo) {
	m.flowsStarted.Add(1)
}

func (m *BasicMetrics) OnFlowCompleted(ctx context.Context, run RunInfo, output any) {
	m.flowsCompleted.Add(1)
}

func (m *BasicMetrics) OnFlowFailed(ctx context.Context, run RunInfo, err error) {
	m.flowsFailed.Add(1)
}

func (m *BasicMetrics) OnNodeCompleted(ctx context.Context, run RunInfo, nodeID, next string, err error, d time.Duration) {
	// Only successful nodes count towards the average duration.
	if err != nil {
		m.nodesFailed.Add(1)
		return
	}
	m.nodesCompleted.Add(1)
	m.totalNodeDuration.Add(d.Nanoseconds())
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.flowsStarted.Load()
	completed := m.flowsCompleted.Load()
	failed := m.flowsFailed.Load()
	nodes := m.nodesCompleted.Load()
	totalNs := m.totalNodeDuration.Load()

	var avg time.Duration
	if nodes > 0 {
		avg = time.Duration(totalNs / nodes)
	}

	return BasicMetricsSnapshot{
		FlowsStarted:    started,
		FlowsCompleted:  completed,
		FlowsFailed:     failed,
		RunningFlows:    started - completed - failed,
		NodesCompleted:  nodes,
		NodesFailed:     m.nodesFailed.Load(),
		AvgNodeDuration: avg,
	}
}
