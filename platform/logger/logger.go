// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// DeviceIDKey is the context key for the submitting device ID
	DeviceIDKey contextKey = "device_id"
	// BatchIDKey is the context key for the sync batch correlation ID
	BatchIDKey contextKey = "batch_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, device_id, and batch_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if deviceID, ok := ctx.Value(DeviceIDKey).(string); ok && deviceID != "" {
		newLogger = newLogger.WithDeviceID(deviceID)
	}

	if batchID, ok := ctx.Value(BatchIDKey).(string); ok && batchID != "" {
		newLogger = newLogger.WithBatchID(batchID)
	}

	return newLogger
}

// WithDeviceID returns a logger with the submitting device ID attached.
func (l *Logger) WithDeviceID(deviceID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("device_id", deviceID)),
	}
}

// WithBatchID returns a logger with the batch correlation ID attached.
func (l *Logger) WithBatchID(batchID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("batch_id", batchID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RecordSkipped logs a record-level failure recovered at batch granularity.
func (l *Logger) RecordSkipped(messageType, recordID, reason string) {
	l.Warn("record_skipped",
		slog.String("message_type", messageType),
		slog.String("record_id", recordID),
		slog.String("reason", reason),
	)
}

// LockBusy logs a lease acquisition timeout on a scheduled instance.
func (l *Logger) LockBusy(key string, waitedMs int64) {
	l.Warn("lease_busy",
		slog.String("key", key),
		slog.Int64("waited_ms", waitedMs),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
