package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func fieldMap(entry observer.LoggedEntry) map[string]string {
	out := make(map[string]string, len(entry.Context))
	for _, f := range entry.Context {
		out[f.Key] = f.String
	}
	return out
}

func TestContextLoggerAddsRequestID(t *testing.T) {
	base, logs := observedLogger()
	ctx := WithRequestID(context.Background(), "req-42")

	WithLogger(ctx, base).Info("sync applied")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-42", fieldMap(logs.All()[0])["request_id"])
}

func TestContextLoggerOmitsAbsentRequestID(t *testing.T) {
	base, logs := observedLogger()

	WithLogger(context.Background(), base).Info("sync applied")

	require.Equal(t, 1, logs.Len())
	assert.NotContains(t, fieldMap(logs.All()[0]), "request_id")
}

func TestContextLoggerAddsTraceCorrelation(t *testing.T) {
	base, logs := observedLogger()
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
		SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	WithLogger(ctx, base).Warn("erp call retried")

	require.Equal(t, 1, logs.Len())
	fields := fieldMap(logs.All()[0])
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.Equal(t, sc.SpanID().String(), fields["span_id"])
}

func TestContextLoggerWithChainsFields(t *testing.T) {
	base, logs := observedLogger()

	WithLogger(context.Background(), base).
		With(zap.String("tenant_code", "acme")).
		With(zap.String("entity_id", "O-1")).
		Info("record updated")

	require.Equal(t, 1, logs.Len())
	fields := fieldMap(logs.All()[0])
	assert.Equal(t, "acme", fields["tenant_code"])
	assert.Equal(t, "O-1", fields["entity_id"])
}

func TestContextLoggerNilBaseDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		WithLogger(context.Background(), nil).Error("ignored")
		WithLogger(context.Background(), nil).With(zap.String("k", "v")).Info("ignored")
	})
}

func TestRequestIDFromEmptyContext(t *testing.T) {
	assert.Empty(t, RequestIDFrom(context.Background()))
}
