package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petrijr/flows/pkg/flow"
)

// MetricsObserver records counters and histograms for node executions,
// failures and run durations.
type MetricsObserver struct {
	flow.NoopObserver

	nodeExecutions metric.Int64Counter
	nodeFailures   metric.Int64Counter
	nodeDuration   metric.Float64Histogram
	runDuration    metric.Float64Histogram
}

var _ flow.Observer = (*MetricsObserver)(nil)

// NewMetricsObserver creates the instruments on meter.
func NewMetricsObserver(meter metric.Meter) (*MetricsObserver, error) {
	nodeExec, err := meter.Int64Counter("flows.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeFail, err := meter.Int64Counter("flows.node.failures",
		metric.WithDescription("Number of node failures"),
	)
	if err != nil {
		return nil, err
	}

	nodeDur, err := meter.Float64Histogram("flows.node.duration",
		metric.WithDescription("Duration of node execution in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	runDur, err := meter.Float64Histogram("flows.run.duration",
		metric.WithDescription("Duration of flow run in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsObserver{
		nodeExecutions: nodeExec,
		nodeFailures:   nodeFail,
		nodeDuration:   nodeDur,
		runDuration:    runDur,
	}, nil
}

func (o *MetricsObserver) OnNodeCompleted(ctx context.Context, run flow.RunInfo, nodeID, next string, err error, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("flow", run.Flow),
		attribute.String("node_id", nodeID),
	)
	o.nodeExecutions.Add(ctx, 1, attrs)
	o.nodeDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		o.nodeFailures.Add(ctx, 1, attrs)
	}
}

func (o *MetricsObserver) OnFlowCompleted(ctx context.Context, run flow.RunInfo, output any) {
	o.recordRun(ctx, run, "completed")
}

func (o *MetricsObserver) OnFlowFailed(ctx context.Context, run flow.RunInfo, err error) {
	o.recordRun(ctx, run, "failed")
}

func (o *MetricsObserver) recordRun(ctx context.Context, run flow.RunInfo, status string) {
	o.runDuration.Record(ctx, time.Since(run.Started).Seconds(), metric.WithAttributes(
		attribute.String("flow", run.Flow),
		attribute.String("status", status),
	))
}
