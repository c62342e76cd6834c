// Package otel provides OpenTelemetry observers for flows.
package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/flows/pkg/flow"
)

// TracingObserver turns flow runs into spans: one root span per run and a
// child span per executed node.
type TracingObserver struct {
	flow.NoopObserver

	tracer trace.Tracer

	mu        sync.RWMutex
	runSpans  map[string]trace.Span      // runID -> span
	runCtxs   map[string]context.Context // runID -> context (for child spans)
	nodeSpans map[string]trace.Span      // runID:nodeID -> span
	nodeCtxs  map[string]context.Context // runID:nodeID -> context
}

var _ flow.ContextObserver = (*TracingObserver)(nil)

// NewTracingObserver creates a TracingObserver that starts spans on tracer.
func NewTracingObserver(tracer trace.Tracer) *TracingObserver {
	return &TracingObserver{
		tracer:    tracer,
		runSpans:  make(map[string]trace.Span),
		runCtxs:   make(map[string]context.Context),
		nodeSpans: make(map[string]trace.Span),
		nodeCtxs:  make(map[string]context.Context),
	}
}

func (o *TracingObserver) OnFlowStart(ctx context.Context, run flow.RunInfo) {
	spanName := "flow:" + run.ID
	if run.Flow != "" {
		spanName = "flow:" + run.Flow
	}

	runCtx, span := o.tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("flows.run_id", run.ID),
			attribute.String("flows.flow", run.Flow),
		),
		trace.WithTimestamp(run.Started),
	)

	o.mu.Lock()
	o.runSpans[run.ID] = span
	o.runCtxs[run.ID] = runCtx
	o.mu.Unlock()
}

func (o *TracingObserver) OnFlowCompleted(ctx context.Context, run flow.RunInfo, output any) {
	o.endRun(run, nil)
}

func (o *TracingObserver) OnFlowFailed(ctx context.Context, run flow.RunInfo, err error) {
	o.endRun(run, err)
}

func (o *TracingObserver) endRun(run flow.RunInfo, err error) {
	o.mu.Lock()
	span, ok := o.runSpans[run.ID]
	if ok {
		delete(o.runSpans, run.ID)
		delete(o.runCtxs, run.ID)
	}
	o.mu.Unlock()

	if !ok {
		return
	}

	span.SetAttributes(attribute.String("flows.duration", time.Since(run.Started).String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (o *TracingObserver) OnNodeStart(ctx context.Context, run flow.RunInfo, nodeID string) {
	o.mu.RLock()
	parentCtx, ok := o.runCtxs[run.ID]
	o.mu.RUnlock()

	if !ok {
		parentCtx = ctx
	}

	nodeCtx, span := o.tracer.Start(parentCtx, "node:"+nodeID,
		trace.WithAttributes(
			attribute.String("flows.run_id", run.ID),
			attribute.String("flows.node_id", nodeID),
		),
	)

	o.mu.Lock()
	o.nodeSpans[run.ID+":"+nodeID] = span
	o.nodeCtxs[run.ID+":"+nodeID] = nodeCtx
	o.mu.Unlock()
}

// NodeContext returns ctx carrying the span of the running node, so spans
// started by the step body, or by a nested flow, become its children.
func (o *TracingObserver) NodeContext(ctx context.Context, run flow.RunInfo, nodeID string) context.Context {
	o.mu.RLock()
	nodeCtx, ok := o.nodeCtxs[run.ID+":"+nodeID]
	o.mu.RUnlock()

	if !ok {
		return ctx
	}
	return trace.ContextWithSpan(ctx, trace.SpanFromContext(nodeCtx))
}

func (o *TracingObserver) OnNodeCompleted(ctx context.Context, run flow.RunInfo, nodeID, next string, err error, d time.Duration) {
	key := run.ID + ":" + nodeID

	o.mu.Lock()
	span, ok := o.nodeSpans[key]
	if ok {
		delete(o.nodeSpans, key)
		delete(o.nodeCtxs, key)
	}
	o.mu.Unlock()

	if !ok {
		return
	}

	span.SetAttributes(attribute.String("flows.duration", d.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.String("flows.next", next))
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// ActiveRunSpanContext returns the SpanContext of the running flow
// identified by runID, or an empty SpanContext.
func (o *TracingObserver) ActiveRunSpanContext(runID string) trace.SpanContext {
	o.mu.RLock()
	span, ok := o.runSpans[runID]
	o.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}
