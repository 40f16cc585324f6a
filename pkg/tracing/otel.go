// Package tracing wires OpenTelemetry spans around runs, iterations and
// provider calls.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/snow-ghost/llmbench/core"
)

// Span names.
const (
	SpanRun       = "bench.run"
	SpanIteration = "bench.iteration"
	SpanProvider  = "provider.invoke"
)

// Tracer wraps OpenTelemetry tracer
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider // nil for the no-op tracer
}

// Config holds tracing configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	JaegerEndpoint string
	Environment    string
}

// NewTracer creates a tracer exporting to Jaeger. An empty endpoint yields
// a no-op tracer.
func NewTracer(config Config) (*Tracer, error) {
	if config.JaegerEndpoint == "" {
		return NewNoop(), nil
	}

	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(config.JaegerEndpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	return newWithProcessor(config, sdktrace.NewBatchSpanProcessor(exporter))
}

// NewWithExporter creates a tracer that exports synchronously to exporter.
func NewWithExporter(config Config, exporter sdktrace.SpanExporter) (*Tracer, error) {
	return newWithProcessor(config, sdktrace.NewSimpleSpanProcessor(exporter))
}

func newWithProcessor(config Config, processor sdktrace.SpanProcessor) (*Tracer, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
	)

	return &Tracer{
		tracer:   tp.Tracer(config.ServiceName),
		provider: tp,
	}, nil
}

// NewNoop returns a tracer that records nothing
func NewNoop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
}

// StartRunSpan starts the span covering one run
func (t *Tracer) StartRunSpan(ctx context.Context, scenarioID, model string, iterations int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanRun, trace.WithAttributes(
		attribute.String("bench.scenario_id", scenarioID),
		attribute.String("bench.model", model),
		attribute.Int("bench.iterations", iterations),
	))
}

// StartIterationSpan starts the span covering one iteration
func (t *Tracer) StartIterationSpan(ctx context.Context, iteration int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanIteration, trace.WithAttributes(
		attribute.Int("bench.iteration", iteration),
	))
}

// StartProviderSpan starts a span for a provider invocation
func (t *Tracer) StartProviderSpan(ctx context.Context, model, provider string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanProvider, trace.WithAttributes(
		attribute.String("llm.model", model),
		attribute.String("llm.provider", provider),
		attribute.String("llm.operation", "chat_completion"),
	))
}

// RecordSpanError records an error in a span
func RecordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RecordSpanSuccess records success in a span
func RecordSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// RecordIterationOutcome annotates an iteration span with how its response
// was scored.
func RecordIterationOutcome(span trace.Span, res core.IterationResult) {
	switch {
	case res.Failure != nil:
		span.SetAttributes(attribute.String("bench.failure", string(res.Failure.Code)))
	case res.TextOutcome != nil:
		span.SetAttributes(
			attribute.Float64("bench.score", res.Score),
			attribute.Bool("bench.passed", res.Passed),
		)
	case res.ChoiceOutcome != nil:
		attrs := []attribute.KeyValue{attribute.Bool("bench.ambiguous", res.Ambiguous)}
		if res.OptionID != nil {
			attrs = append(attrs, attribute.Int("bench.option_id", *res.OptionID))
		}
		span.SetAttributes(attrs...)
	}
}

// RecordRunSummary annotates a run span with the stored id and counts.
func RecordRunSummary(span trace.Span, runID string, s core.RunSummary) {
	span.SetAttributes(
		attribute.String("bench.run_id", runID),
		attribute.Int("bench.scored", s.Total),
		attribute.Int("bench.errors", s.ErrorCount),
	)
}

// RecordSpanTokens records token usage in a span
func RecordSpanTokens(span trace.Span, inputTokens, outputTokens int) {
	span.SetAttributes(
		attribute.Int("tokens.input", inputTokens),
		attribute.Int("tokens.output", outputTokens),
		attribute.Int("tokens.total", inputTokens+outputTokens),
	)
}

// RecordSpanCost records cost in a span
func RecordSpanCost(span trace.Span, cost float64, currency string) {
	span.SetAttributes(
		attribute.Float64("cost.total", cost),
		attribute.String("cost.currency", currency),
	)
}

// Shutdown flushes and stops the exporter
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// GetTraceID extracts trace ID from context
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
