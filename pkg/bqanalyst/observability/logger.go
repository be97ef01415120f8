// Package observability provides structured logging, metrics, and
// distributed tracing for the analyst service.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds thread context to a logger.
// Returns a new logger with thread_id and checkpoint_ns fields.
func EnrichLogger(logger *slog.Logger, threadID, namespace string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("checkpoint_ns", namespace),
	)
}

// LogCheckpointPut logs a committed checkpoint.
func LogCheckpointPut(logger *slog.Logger, checkpointID string, blobs int, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("checkpoint_id", checkpointID),
		slog.Int("blobs_written", blobs),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointLoad logs a checkpoint tuple load.
func LogCheckpointLoad(logger *slog.Logger, checkpointID string, channels, pendingWrites int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint loaded",
		slog.String("checkpoint_id", checkpointID),
		slog.Int("channels", channels),
		slog.Int("pending_writes", pendingWrites),
	)
}

// LogPendingWrites logs stored task writes.
func LogPendingWrites(logger *slog.Logger, checkpointID, taskID string, count int) {
	if logger == nil {
		return
	}
	logger.Debug("pending writes saved",
		slog.String("checkpoint_id", checkpointID),
		slog.String("task_id", taskID),
		slog.Int("count", count),
	)
}

// LogThreadDeleted logs a thread deletion with per-collection counts.
func LogThreadDeleted(logger *slog.Logger, threadID string, documents int) {
	if logger == nil {
		return
	}
	logger.Info("thread deleted",
		slog.String("thread_id", threadID),
		slog.Int("documents", documents),
	)
}

// LogSaverError logs a failed saver operation.
func LogSaverError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Error("checkpoint operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogQueryStart logs the start of an agent query.
func LogQueryStart(logger *slog.Logger, threadID string, inputLen int) {
	if logger == nil {
		return
	}
	logger.Info("agent query starting",
		slog.String("thread_id", threadID),
		slog.Int("input_len", inputLen),
	)
}

// LogQueryComplete logs successful agent query completion.
func LogQueryComplete(logger *slog.Logger, threadID string, durationMs float64, steps, toolCalls int) {
	if logger == nil {
		return
	}
	logger.Info("agent query completed",
		slog.String("thread_id", threadID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
		slog.Int("tool_calls", toolCalls),
	)
}

// LogQueryError logs agent query failure.
func LogQueryError(logger *slog.Logger, threadID string, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("agent query failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogToolCall logs a tool invocation.
func LogToolCall(logger *slog.Logger, tool string, durationMs float64, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("tool call failed",
			slog.String("tool", tool),
			slog.Float64("duration_ms", durationMs),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("tool call completed",
		slog.String("tool", tool),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogQueryBlocked logs an SQL statement rejected by the safety denylist.
func LogQueryBlocked(logger *slog.Logger, keyword string) {
	if logger == nil {
		return
	}
	logger.Warn("sql statement blocked",
		slog.String("keyword", keyword),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
