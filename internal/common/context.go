package common

import (
	"context"
	"log/slog"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyProcessID contextKey = "process_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithProcessID adds the pipeline process ID to the context
func WithProcessID(ctx context.Context, processID string) context.Context {
	return context.WithValue(ctx, ContextKeyProcessID, processID)
}

// ProcessIDFromContext extracts the pipeline process ID from context
func ProcessIDFromContext(ctx context.Context) string {
	if processID, ok := ctx.Value(ContextKeyProcessID).(string); ok {
		return processID
	}
	return ""
}

// LoggerFrom returns logger annotated with the ids carried by ctx.
func LoggerFrom(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if pid := ProcessIDFromContext(ctx); pid != "" {
		logger = logger.With("process_id", pid)
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		logger = logger.With("req_id", rid)
	}
	return logger
}

// WithTimeout creates a context with the specified timeout; zero means no timeout.
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
