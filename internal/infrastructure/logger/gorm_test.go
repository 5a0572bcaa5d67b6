package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func traceQuery(l *GormLogger, begin time.Time, err error) {
	l.Trace(context.Background(), begin, func() (string, int64) {
		return "SELECT 1", 1
	}, err)
}

func TestGormLoggerLogsFailedQuery(t *testing.T) {
	base, logs := observedLogger()
	l := NewGormLogger(base, gormlogger.Error)

	traceQuery(l, time.Now(), errors.New("connection reset"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "query failed", entry.Message)
	assert.Equal(t, "SELECT 1", fieldMap(entry)["sql"])
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	base, logs := observedLogger()
	l := NewGormLogger(base, gormlogger.Error)

	traceQuery(l, time.Now(), gormlogger.ErrRecordNotFound)

	assert.Zero(t, logs.Len())
}

func TestGormLoggerWarnsOnSlowQuery(t *testing.T) {
	base, logs := observedLogger()
	l := NewGormLogger(base, gormlogger.Warn)

	traceQuery(l, time.Now().Add(-time.Second), nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "slow query", entry.Message)
}

func TestGormLoggerSilentDropsEverything(t *testing.T) {
	base, logs := observedLogger()
	l := NewGormLogger(base, gormlogger.Silent)

	traceQuery(l, time.Now().Add(-time.Second), errors.New("ignored"))

	assert.Zero(t, logs.Len())
}

func TestGormLoggerLogModeReturnsAdjustedCopy(t *testing.T) {
	base, logs := observedLogger()
	l := NewGormLogger(base, gormlogger.Error)

	muted := l.LogMode(gormlogger.Silent)
	muted.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, errors.New("x"))
	assert.Zero(t, logs.Len())

	// the original keeps its level
	traceQuery(l, time.Now(), errors.New("y"))
	assert.Equal(t, 1, logs.Len())
}

func TestGormLoggerCarriesRequestID(t *testing.T) {
	base, logs := observedLogger()
	l := NewGormLogger(base, gormlogger.Error)

	ctx := WithRequestID(context.Background(), "req-9")
	l.Trace(ctx, time.Now(), func() (string, int64) { return "UPDATE sync_records", 0 }, errors.New("deadlock"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-9", fieldMap(logs.All()[0])["request_id"])
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("info"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("warn"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel(""))
}
