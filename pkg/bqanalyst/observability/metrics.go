package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records analyst metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordSaverOp records one checkpoint store operation with its
	// duration and error status.
	RecordSaverOp(ctx context.Context, op string, duration time.Duration, err error)

	// RecordCheckpointPut records a committed checkpoint with the number
	// of blobs written alongside it and its payload size.
	RecordCheckpointPut(ctx context.Context, blobs int, sizeBytes int64)

	// RecordPendingWrites records stored task writes.
	RecordPendingWrites(ctx context.Context, count int)

	// RecordAgentStep records one model step of an agent query.
	RecordAgentStep(ctx context.Context, duration time.Duration, toolCalls int, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	saverOps       metric.Int64Counter
	saverLatency   metric.Float64Histogram
	saverErrors    metric.Int64Counter
	checkpointSize metric.Int64Histogram
	blobWrites     metric.Int64Counter
	pendingWrites  metric.Int64Counter
	agentSteps     metric.Int64Counter
	agentLatency   metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("bqanalyst")

	saverOps, err := meter.Int64Counter("bqanalyst.saver.ops",
		metric.WithDescription("Number of checkpoint store operations"),
	)
	if err != nil {
		return nil, err
	}

	saverLatency, err := meter.Float64Histogram("bqanalyst.saver.latency_ms",
		metric.WithDescription("Checkpoint store operation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	saverErrors, err := meter.Int64Counter("bqanalyst.saver.errors",
		metric.WithDescription("Number of checkpoint store operation errors"),
	)
	if err != nil {
		return nil, err
	}

	checkpointSize, err := meter.Int64Histogram("bqanalyst.checkpoint.size_bytes",
		metric.WithDescription("Checkpoint payload size in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	blobWrites, err := meter.Int64Counter("bqanalyst.checkpoint.blob_writes",
		metric.WithDescription("Number of channel blobs written"),
	)
	if err != nil {
		return nil, err
	}

	pendingWrites, err := meter.Int64Counter("bqanalyst.checkpoint.pending_writes",
		metric.WithDescription("Number of pending task writes stored"),
	)
	if err != nil {
		return nil, err
	}

	agentSteps, err := meter.Int64Counter("bqanalyst.agent.steps",
		metric.WithDescription("Number of agent model steps"),
	)
	if err != nil {
		return nil, err
	}

	agentLatency, err := meter.Float64Histogram("bqanalyst.agent.step_latency_ms",
		metric.WithDescription("Agent model step latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		saverOps:       saverOps,
		saverLatency:   saverLatency,
		saverErrors:    saverErrors,
		checkpointSize: checkpointSize,
		blobWrites:     blobWrites,
		pendingWrites:  pendingWrites,
		agentSteps:     agentSteps,
		agentLatency:   agentLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordSaverOp records a checkpoint store operation.
func (m *otelMetrics) RecordSaverOp(ctx context.Context, op string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("operation", op),
	}

	m.saverOps.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.saverLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.saverErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordCheckpointPut records a committed checkpoint.
func (m *otelMetrics) RecordCheckpointPut(ctx context.Context, blobs int, sizeBytes int64) {
	m.blobWrites.Add(ctx, int64(blobs))
	m.checkpointSize.Record(ctx, sizeBytes)
}

// RecordPendingWrites records stored task writes.
func (m *otelMetrics) RecordPendingWrites(ctx context.Context, count int) {
	m.pendingWrites.Add(ctx, int64(count))
}

// RecordAgentStep records one agent model step.
func (m *otelMetrics) RecordAgentStep(ctx context.Context, duration time.Duration, toolCalls int, err error) {
	attrs := []attribute.KeyValue{
		attribute.Bool("tool_use", toolCalls > 0),
		attribute.Bool("success", err == nil),
	}
	m.agentSteps.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.agentLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}
