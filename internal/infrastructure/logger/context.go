package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const requestIDKey ctxKey = iota

// WithRequestID stamps the request identifier into the context so every
// log line emitted under it can be tied back to one delivery.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFrom returns the stamped request identifier, or empty.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextLogger defers enrichment to emit time: each entry picks up the
// active span's trace_id/span_id and the context request_id, so log
// lines correlate with traces without plumbing fields by hand.
type ContextLogger struct {
	ctx  context.Context
	base *zap.Logger
}

// WithLogger pairs a logger with the calling context.
func WithLogger(ctx context.Context, base *zap.Logger) *ContextLogger {
	return &ContextLogger{ctx: ctx, base: base}
}

// With returns a child carrying extra fields.
func (cl *ContextLogger) With(fields ...zap.Field) *ContextLogger {
	base := cl.base
	if base == nil {
		base = zap.NewNop()
	}
	return &ContextLogger{ctx: cl.ctx, base: base.With(fields...)}
}

func (cl *ContextLogger) enrich() *zap.Logger {
	l := cl.base
	if l == nil {
		l = zap.NewNop()
	}
	if sc := trace.SpanContextFromContext(cl.ctx); sc.IsValid() {
		l = l.With(
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := RequestIDFrom(cl.ctx); id != "" {
		l = l.With(zap.String("request_id", id))
	}
	return l
}

// Debug logs at debug level with context enrichment.
func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) {
	cl.enrich().Debug(msg, fields...)
}

// Info logs at info level with context enrichment.
func (cl *ContextLogger) Info(msg string, fields ...zap.Field) {
	cl.enrich().Info(msg, fields...)
}

// Warn logs at warn level with context enrichment.
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) {
	cl.enrich().Warn(msg, fields...)
}

// Error logs at error level with context enrichment.
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) {
	cl.enrich().Error(msg, fields...)
}
