package otel_test

import (
	"context"
	"errors"
	"testing"

	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	flowsotel "github.com/petrijr/flows/otel"
	"github.com/petrijr/flows/pkg/flow"
	"github.com/petrijr/flows/pkg/railway"
	"github.com/petrijr/flows/pkg/result"
	"github.com/petrijr/flows/pkg/step"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)
	return exporter, tp
}

// newTestMeter returns a meter backed by a manual reader.
func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

var errTooBig = errors.New("too big")

func calc(t *testing.T, obs flow.Observer) *railway.Railway {
	t.Helper()

	rw, err := railway.New("calc").
		StepFunc("sum", func(ctx context.Context, data result.Data) (result.Result, error) {
			return result.Ok(result.Data{"sum": data["a"].(int) + data["b"].(int)}), nil
		}).
		StepFunc("square", func(ctx context.Context, data result.Data) (result.Result, error) {
			s := data["sum"].(int)
			if s > 100 {
				return result.Result{}, errTooBig
			}
			return result.Ok(result.Data{"square": s * s}), nil
		}).
		Build(step.WithObserver(obs))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return rw
}

func TestTracingObserver_SpansPerRunAndNode(t *testing.T) {
	exporter, tp := newTestTracer()
	obs := flowsotel.NewTracingObserver(tp.Tracer("test"))

	if _, err := calc(t, obs).Call(context.Background(), result.Data{"a": 2, "b": 3}); err != nil {
		t.Fatalf("Call: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}

	root := spans[2]
	if root.Name != "flow:calc" {
		t.Fatalf("expected root span flow:calc, got %q", root.Name)
	}
	if root.Status.Code != otelcodes.Ok {
		t.Errorf("expected Ok status on root span, got %v", root.Status.Code)
	}

	for i, want := range []string{"node:sum", "node:square"} {
		if spans[i].Name != want {
			t.Errorf("span %d: expected %q, got %q", i, want, spans[i].Name)
		}
		if spans[i].Parent.SpanID() != root.SpanContext.SpanID() {
			t.Errorf("span %q is not a child of the run span", spans[i].Name)
		}
		if spans[i].SpanContext.TraceID() != root.SpanContext.TraceID() {
			t.Errorf("span %q has a different trace id", spans[i].Name)
		}
	}
}

func TestTracingObserver_FailureMarksSpans(t *testing.T) {
	exporter, tp := newTestTracer()
	obs := flowsotel.NewTracingObserver(tp.Tracer("test"))

	_, err := calc(t, obs).Call(context.Background(), result.Data{"a": 100, "b": 1})
	if !errors.Is(err, errTooBig) {
		t.Fatalf("expected errTooBig, got %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[1].Name != "node:square" || spans[1].Status.Code != otelcodes.Error {
		t.Errorf("expected failed node:square span, got %q %v", spans[1].Name, spans[1].Status.Code)
	}
	if spans[2].Status.Code != otelcodes.Error || spans[2].Status.Description != "too big" {
		t.Errorf("expected failed run span, got %+v", spans[2].Status)
	}
	if len(spans[2].Events) == 0 {
		t.Error("expected the error to be recorded on the run span")
	}
}

func TestTracingObserver_StepSpansAreNodeChildren(t *testing.T) {
	exporter, tp := newTestTracer()
	tracer := tp.Tracer("test")
	obs := flowsotel.NewTracingObserver(tracer)

	rw, err := railway.New("lookup").
		StepFunc("fetch", func(ctx context.Context, data result.Data) (result.Result, error) {
			_, span := tracer.Start(ctx, "db.query")
			span.End()
			return result.Ok(nil), nil
		}).
		Build(step.WithObserver(flow.NewCompositeObserver(obs, &runIDs{})))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := rw.Call(context.Background(), nil); err != nil {
		t.Fatalf("Call: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	query, node := spans[0], spans[1]
	if query.Name != "db.query" || node.Name != "node:fetch" {
		t.Fatalf("unexpected span order: %q, %q", query.Name, node.Name)
	}
	if query.Parent.SpanID() != node.SpanContext.SpanID() {
		t.Error("span started by the step is not a child of the node span")
	}
}

func TestTracingObserver_NoActiveSpansAfterRun(t *testing.T) {
	_, tp := newTestTracer()
	obs := flowsotel.NewTracingObserver(tp.Tracer("test"))

	ids := &runIDs{}
	if _, err := calc(t, flow.NewCompositeObserver(obs, ids)).Call(context.Background(), result.Data{"a": 1, "b": 1}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if sc := obs.ActiveRunSpanContext(ids.last); sc.IsValid() {
		t.Fatal("expected run span to be ended")
	}
}

type runIDs struct {
	flow.NoopObserver
	last string
}

func (r *runIDs) OnFlowStart(ctx context.Context, run flow.RunInfo) { r.last = run.ID }

func TestMetricsObserver_RecordsExecutionsAndFailures(t *testing.T) {
	reader, mp := newTestMeter()
	obs, err := flowsotel.NewMetricsObserver(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetricsObserver: %v", err)
	}

	rw := calc(t, obs)
	if _, err := rw.Call(context.Background(), result.Data{"a": 1, "b": 2}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if _, err := rw.Call(context.Background(), result.Data{"a": 100, "b": 2}); err == nil {
		t.Fatal("expected failure")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}

	execMetric := findMetric(&rm, "flows.node.executions")
	if execMetric == nil {
		t.Fatal("flows.node.executions metric not found")
	}
	sumData, ok := execMetric.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64] data, got %T", execMetric.Data)
	}
	var total int64
	for _, dp := range sumData.DataPoints {
		total += dp.Value
	}
	if total != 4 {
		t.Errorf("expected 4 node executions, got %d", total)
	}

	failMetric := findMetric(&rm, "flows.node.failures")
	if failMetric == nil {
		t.Fatal("flows.node.failures metric not found")
	}
	failData := failMetric.Data.(metricdata.Sum[int64])
	if len(failData.DataPoints) != 1 || failData.DataPoints[0].Value != 1 {
		t.Errorf("expected one failure data point with value 1, got %+v", failData.DataPoints)
	}

	runMetric := findMetric(&rm, "flows.run.duration")
	if runMetric == nil {
		t.Fatal("flows.run.duration metric not found")
	}
	hist := runMetric.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 2 {
		t.Errorf("expected completed and failed data points, got %d", len(hist.DataPoints))
	}

	if findMetric(&rm, "flows.node.duration") == nil {
		t.Fatal("flows.node.duration metric not found")
	}
}
