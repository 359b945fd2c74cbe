// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the process-wide structured logger.
var Logger *slog.Logger

// LogContextKey is a type for context keys used by the logging package.
type LogContextKey string

// Context keys picked up by the logger.
const (
	ActorIDKey     LogContextKey = "actor_id"
	OperationIDKey LogContextKey = "operation_id"
	TraceIDKey     LogContextKey = "trace_id"
)

// ctxHandler is a slog.Handler that adds context values to the log record.
type ctxHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing it to the underlying handler.
func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx != nil {
		if id, ok := ctx.Value(ActorIDKey).(string); ok && id != "" {
			r.AddAttrs(slog.String("actor_id", id))
		}
		if id, ok := ctx.Value(OperationIDKey).(string); ok && id != "" {
			r.AddAttrs(slog.String("operation_id", id))
		}
		if id, ok := ctx.Value(TraceIDKey).(string); ok && id != "" {
			r.AddAttrs(slog.String("trace_id", id))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func init() {
	Logger = NewLogger(os.Getenv("APP_ENV"), slog.LevelInfo)
}

// NewLogger builds a context-aware logger: JSON in production, text elsewhere.
func NewLogger(env string, level slog.Level) *slog.Logger {
	var handler slog.Handler
	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(&ctxHandler{handler})
}

// SetLogger replaces the process logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		Logger = l
	}
}

// WithActorID returns a new context carrying the actor id for log records.
func WithActorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ActorIDKey, id)
}

// WithOperationID returns a new context carrying an operation id for log records.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, OperationIDKey, id)
}

// StoreLogger provides structured logging for document store operations.
type StoreLogger struct {
	backend string
}

// NewStoreLogger creates a StoreLogger for the named backend.
func NewStoreLogger(backend string) *StoreLogger {
	return &StoreLogger{backend: backend}
}

// LogRetry logs a transaction attempt that lost an optimistic-concurrency race.
func (l *StoreLogger) LogRetry(ctx context.Context, attempt, maxAttempts int, err error) {
	Logger.WarnContext(ctx, "transaction conflict, retrying",
		slog.String("backend", l.backend),
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.String("error", err.Error()),
	)
}

// LogExhausted logs a transaction that ran out of attempts.
func (l *StoreLogger) LogExhausted(ctx context.Context, attempts int) {
	Logger.ErrorContext(ctx, "transaction retries exhausted",
		slog.String("backend", l.backend),
		slog.Int("attempts", attempts),
	)
}

// LogListenerError logs a live query that terminated with an error.
func (l *StoreLogger) LogListenerError(ctx context.Context, collection string, err error) {
	Logger.ErrorContext(ctx, "listener failed",
		slog.String("backend", l.backend),
		slog.String("collection", collection),
		slog.String("error", err.Error()),
	)
}

// LogPanic logs a recovered panic raised by a listener callback.
func (l *StoreLogger) LogPanic(ctx context.Context, collection string, recovered any, stack []byte) {
	Logger.ErrorContext(ctx, "PANIC in listener callback",
		slog.String("backend", l.backend),
		slog.String("collection", collection),
		slog.Any("panic", recovered),
		slog.String("stack", string(stack)),
	)
}
