// Package logger provides the structured logging interface used throughout the
// key management service. Concrete implementations live in
// internal/infrastructure/monitoring.
package logger

import "context"

// Fields is a structured set of key-value pairs attached to a log line.
type Fields map[string]interface{}

// Logger is the structured logging interface. All components depend on this
// interface rather than a concrete logging library.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	Fatal(ctx context.Context, msg string, err error, fields ...Fields)

	// WithFields returns a logger that always attaches fields to every entry.
	WithFields(fields Fields) Logger

	// ForContext returns a logger bound to request-scoped fields found on ctx,
	// such as a trace ID injected by the caller.
	ForContext(ctx context.Context) Logger
}
