package logger

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog for structured logging
// This allows us to add custom functionality and swap implementations if needed
type Logger struct {
	*slog.Logger
}

type contextKey string

// requestIDKey is the context key the HTTP middleware stores request IDs under
const requestIDKey contextKey = "request_id"

// New creates a new logger instance
// In production, you might want to use JSON format for log aggregation tools
func New(level string) *Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	// Use JSON handler for structured logs
	handler := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(handler)

	return &Logger{Logger: logger}
}

// ContextWithRequestID stores a request ID for later retrieval by WithContext
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID stored by the middleware, if any
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithContext adds context values to the logger
// This is useful for adding request IDs, user IDs, etc.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		return &Logger{Logger: l.With("request_id", requestID)}
	}
	return l
}

// WithComponent tags every record with the owning component name
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.With("component", name)}
}
