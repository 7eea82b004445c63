// Package logging provides structured logging using Go's slog package.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

const (
	// ConnectionIDKey is the context key for connection IDs.
	ConnectionIDKey ContextKey = "connection_id"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (JSON format, Info level)
	InitLogger(LevelInfo, FormatJSON)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// ParseLevel maps a flag value to a Level. Unknown names map to LevelInfo.
func ParseLevel(name string) Level {
	switch name {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// InitLogger initializes the global logger with the specified level and format.
func InitLogger(level Level, format Format) {
	InitLoggerTo(os.Stdout, level, format)
}

// InitLoggerTo initializes the global logger writing to w. The CLI uses it to
// keep query output on stdout and logs on stderr.
func InitLoggerTo(w io.Writer, level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// WithConnectionID adds a connection ID to the context.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ConnectionIDKey, id)
}

// GetConnectionID retrieves the connection ID from the context.
func GetConnectionID(ctx context.Context) string {
	if id, ok := ctx.Value(ConnectionIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggerFromContext returns a logger with context values attached.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if id := GetConnectionID(ctx); id != "" {
		logger = logger.With("connection_id", id)
	}
	return logger
}

// Helper functions for common logging patterns

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// QueryExecuted logs a completed statement.
func QueryExecuted(backend, statement string, bindings, rows int, duration time.Duration, args ...any) {
	allArgs := []any{
		"backend", backend,
		"statement", statement,
		"bindings", bindings,
		"rows", rows,
		"duration_ms", duration.Milliseconds(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("query_executed", allArgs...)
}

// QueryFailed logs a statement that returned an error.
func QueryFailed(backend, statement string, err error, args ...any) {
	allArgs := []any{
		"backend", backend,
		"statement", statement,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("query_failed", allArgs...)
}

// TransactionEvent logs begin, commit, rollback and savepoint transitions.
// depth is the nesting depth after the transition.
func TransactionEvent(event string, depth int, args ...any) {
	allArgs := []any{
		"event", event,
		"depth", depth,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("transaction_event", allArgs...)
}

// CallbackFailed logs an after-commit or after-rollback callback failure.
func CallbackFailed(phase string, err error, args ...any) {
	allArgs := []any{
		"phase", phase,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Error("callback_failed", allArgs...)
}

// RetryScheduled logs a transient failure that will be retried.
func RetryScheduled(attempt int, delay time.Duration, err error, args ...any) {
	allArgs := []any{
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("retry_scheduled", allArgs...)
}

// SchemaChanged logs a successful DDL operation.
func SchemaChanged(operation, table string, args ...any) {
	allArgs := []any{
		"operation", operation,
		"table", table,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("schema_changed", allArgs...)
}

// MigrationApplied logs a migration step.
func MigrationApplied(id, direction string, args ...any) {
	allArgs := []any{
		"id", id,
		"direction", direction,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("migration_applied", allArgs...)
}

// ServerStartup logs server startup information.
func ServerStartup(serverType, addr string, args ...any) {
	allArgs := []any{
		"server_type", serverType,
		"addr", addr,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("server_startup", allArgs...)
}

// WebSocketEvent logs WebSocket events.
func WebSocketEvent(event string, clientCount int, args ...any) {
	allArgs := []any{
		"event", event,
		"client_count", clientCount,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("websocket_event", allArgs...)
}
