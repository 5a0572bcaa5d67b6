package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, handler gin.HandlerFunc, middlewares ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.Use(middlewares...)
	router.GET("/t", handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/t", nil))
	return w
}

func TestRequestLogEmitsOneLinePerRequest(t *testing.T) {
	base, logs := observedLogger()

	serve(t, func(c *gin.Context) { c.Status(http.StatusOK) }, RequestLog(base))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "http request", entry.Message)

	fields := fieldMap(entry)
	assert.Equal(t, http.MethodGet, fields["method"])
	assert.Equal(t, "/t", fields["path"])
}

func TestRequestLogEscalatesByStatus(t *testing.T) {
	base, logs := observedLogger()
	serve(t, func(c *gin.Context) { c.Status(http.StatusNotFound) }, RequestLog(base))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)

	base, logs = observedLogger()
	serve(t, func(c *gin.Context) { c.Status(http.StatusBadGateway) }, RequestLog(base))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestRequestLogThreadsRequestIDIntoContext(t *testing.T) {
	base, _ := observedLogger()
	setID := func(c *gin.Context) { c.Set("request_id", "req-7") }

	var seen string
	serve(t, func(c *gin.Context) {
		seen = RequestIDFrom(c.Request.Context())
		c.Status(http.StatusOK)
	}, setID, RequestLog(base))

	assert.Equal(t, "req-7", seen)
}

func TestRecoveryLogsPanicAndAnswers500(t *testing.T) {
	base, logs := observedLogger()

	w := serve(t, func(*gin.Context) { panic("boom") }, Recovery(base))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "panic recovered", logs.All()[0].Message)
}
