package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/snow-ghost/llmbench/core"
)

func TestSpansAreNested(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(Config{ServiceName: "benchtest"}, exporter)
	require.NoError(t, err)

	ctx, run := tr.StartRunSpan(context.Background(), "s1", "m", 2)
	ictx, iter := tr.StartIterationSpan(ctx, 1)
	_, call := tr.StartProviderSpan(ictx, "m", "openrouter")
	RecordSpanTokens(call, 3, 4)
	RecordSpanError(call, errors.New("boom"))
	call.End()
	RecordSpanSuccess(iter)
	iter.End()
	assert.NotEmpty(t, GetTraceID(ctx))
	run.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, SpanProvider, spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, SpanRun, spans[2].Name)

	require.NoError(t, tr.Shutdown(context.Background()))
}

func TestNoopTracer(t *testing.T) {
	tr, err := NewTracer(Config{ServiceName: "benchtest"})
	require.NoError(t, err)

	ctx, span := tr.StartRunSpan(context.Background(), "s1", "m", 1)
	span.End()
	assert.Empty(t, GetTraceID(ctx))
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func attrsOf(s tracetest.SpanStub) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(s.Attributes))
	for _, kv := range s.Attributes {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestRecordIterationOutcome(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(Config{ServiceName: "benchtest"}, exporter)
	require.NoError(t, err)

	option := 2
	results := []core.IterationResult{
		{Iteration: 1, TextOutcome: &core.TextOutcome{Score: 0.5}},
		{Iteration: 2, ChoiceOutcome: &core.ChoiceOutcome{OptionID: &option, Ambiguous: true}},
		{Iteration: 3, Failure: &core.IterationFailure{Code: core.ERateLimited}},
	}
	for _, res := range results {
		_, span := tr.StartIterationSpan(context.Background(), res.Iteration)
		RecordIterationOutcome(span, res)
		span.End()
	}

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)

	text := attrsOf(spans[0])
	assert.Equal(t, 0.5, text["bench.score"].AsFloat64())
	assert.False(t, text["bench.passed"].AsBool())

	choice := attrsOf(spans[1])
	assert.Equal(t, int64(2), choice["bench.option_id"].AsInt64())
	assert.True(t, choice["bench.ambiguous"].AsBool())

	failed := attrsOf(spans[2])
	assert.Equal(t, string(core.ERateLimited), failed["bench.failure"].AsString())
	_, scored := failed["bench.score"]
	assert.False(t, scored)
}

func TestRecordRunSummary(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tr, err := NewWithExporter(Config{ServiceName: "benchtest"}, exporter)
	require.NoError(t, err)

	_, span := tr.StartRunSpan(context.Background(), "s1", "m", 4)
	RecordRunSummary(span, "m-001", core.RunSummary{Total: 3, ErrorCount: 1})
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	attrs := attrsOf(spans[0])
	assert.Equal(t, "m-001", attrs["bench.run_id"].AsString())
	assert.Equal(t, int64(3), attrs["bench.scored"].AsInt64())
	assert.Equal(t, int64(1), attrs["bench.errors"].AsInt64())
	assert.Equal(t, int64(4), attrs["bench.iterations"].AsInt64())
}
