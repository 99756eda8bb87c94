// Package telemetry instruments runs and steps with OpenTelemetry traces
// and metrics, adapted from
// station/internal/workflows/runtime/telemetry.go's WorkflowTelemetry. The
// teacher tracks one span per run/step keyed by run+step ID; this version
// keys open run spans by workflow_id to match the Run State Machine's own
// keys so Engine code can report through it without inventing a second ID
// space. Step spans are returned to the caller and not tracked here.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "mediator"
	meterName  = "mediator"
)

// Telemetry records run/step spans and the counters/histograms a mediator
// operator dashboard would chart.
type Telemetry struct {
	tracer trace.Tracer
	meter  metric.Meter

	runCounter     metric.Int64Counter
	runDuration    metric.Float64Histogram
	activeRuns     metric.Int64UpDownCounter
	stepCounter    metric.Int64Counter
	stepDuration   metric.Float64Histogram
	failureCounter metric.Int64Counter

	mu       sync.Mutex
	runSpans map[string]trace.Span
}

// New builds a Telemetry instance against the process's globally configured
// OTel providers (set by cmd/mediator at startup).
func New() (*Telemetry, error) {
	t := &Telemetry{
		tracer:   otel.Tracer(tracerName),
		meter:    otel.Meter(meterName),
		runSpans: make(map[string]trace.Span),
	}

	var err error
	if t.runCounter, err = t.meter.Int64Counter(
		"mediator_runs_total",
		metric.WithDescription("Total number of workflow runs started"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: run counter: %w", err)
	}
	if t.runDuration, err = t.meter.Float64Histogram(
		"mediator_run_duration_seconds",
		metric.WithDescription("Duration of a workflow run from init to terminal status"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: run duration histogram: %w", err)
	}
	if t.activeRuns, err = t.meter.Int64UpDownCounter(
		"mediator_runs_active",
		metric.WithDescription("Number of runs currently InProgress"),
		metric.WithUnit("{run}"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: active runs counter: %w", err)
	}
	if t.stepCounter, err = t.meter.Int64Counter(
		"mediator_steps_dispatched_total",
		metric.WithDescription("Total number of steps dispatched"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: step counter: %w", err)
	}
	if t.stepDuration, err = t.meter.Float64Histogram(
		"mediator_step_duration_seconds",
		metric.WithDescription("Duration from step dispatch to its reply"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: step duration histogram: %w", err)
	}
	if t.failureCounter, err = t.meter.Int64Counter(
		"mediator_failures_total",
		metric.WithDescription("Total number of run or step failures"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: failure counter: %w", err)
	}

	return t, nil
}

// StartRun opens a span for a new run and returns a context carrying it.
func (t *Telemetry) StartRun(ctx context.Context, workflowID, workflowName string) context.Context {
	ctx, span := t.tracer.Start(ctx, "mediator.run."+workflowName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("mediator.workflow_id", workflowID),
			attribute.String("mediator.workflow_name", workflowName),
		),
	)

	t.mu.Lock()
	t.runSpans[workflowID] = span
	t.mu.Unlock()

	t.runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("mediator.workflow_name", workflowName)))
	t.activeRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("mediator.workflow_name", workflowName)))
	return ctx
}

// EndRun closes a run's span and records its terminal status.
func (t *Telemetry) EndRun(ctx context.Context, workflowID, workflowName, status string, duration time.Duration, err error) {
	t.mu.Lock()
	span, ok := t.runSpans[workflowID]
	delete(t.runSpans, workflowID)
	t.mu.Unlock()

	if !ok || span == nil {
		return
	}

	span.SetAttributes(
		attribute.String("mediator.status", status),
		attribute.Float64("mediator.duration_seconds", duration.Seconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.failureCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mediator.workflow_name", workflowName),
			attribute.String("mediator.failure_type", "run"),
		))
	} else if status == "Success" {
		span.SetStatus(codes.Ok, "run completed")
	}
	span.End()

	t.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("mediator.workflow_name", workflowName),
		attribute.String("mediator.status", status),
	))
	t.activeRuns.Add(ctx, -1, metric.WithAttributes(attribute.String("mediator.workflow_name", workflowName)))
}

// StartStep opens a span for a single step dispatch.
func (t *Telemetry) StartStep(ctx context.Context, workflowID, stepName string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "mediator.step."+stepName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("mediator.workflow_id", workflowID),
			attribute.String("mediator.step_name", stepName),
		),
	)
	t.stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("mediator.step_name", stepName)))
	return ctx, span
}

// EndStep closes a step's span and records its outcome.
func (t *Telemetry) EndStep(span trace.Span, stepName, outcome string, duration time.Duration) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.String("mediator.step_outcome", outcome),
		attribute.Float64("mediator.step_duration_seconds", duration.Seconds()),
	)
	if outcome == "failure" {
		span.SetStatus(codes.Error, "step reported failure")
	} else {
		span.SetStatus(codes.Ok, "step reported success")
	}
	span.End()

	ctx := context.Background()
	t.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("mediator.step_name", stepName),
		attribute.String("mediator.step_outcome", outcome),
	))
	if outcome == "failure" {
		t.failureCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("mediator.step_name", stepName),
			attribute.String("mediator.failure_type", "step"),
		))
	}
}
