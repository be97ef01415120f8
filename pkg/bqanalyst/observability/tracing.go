package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the analyst tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("bqanalyst")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartQuerySpan starts a span for one agent query.
	StartQuerySpan(ctx context.Context, threadID string) (context.Context, trace.Span)

	// StartSaverSpan starts a span for a checkpoint store operation.
	// The saver span should be a child of the query span when one exists.
	StartSaverSpan(ctx context.Context, op, threadID string) (context.Context, trace.Span)

	// StartToolSpan starts a span for a tool invocation.
	StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartQuerySpan starts a span for one agent query.
func (m *otelSpanManager) StartQuerySpan(ctx context.Context, threadID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bqanalyst.query",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartSaverSpan starts a span for a checkpoint store operation.
func (m *otelSpanManager) StartSaverSpan(ctx context.Context, op, threadID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bqanalyst.saver."+op,
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartToolSpan starts a span for a tool invocation.
func (m *otelSpanManager) StartToolSpan(ctx context.Context, tool string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "bqanalyst.tool."+tool,
		trace.WithAttributes(
			attribute.String("tool.name", tool),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
