package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxHeaderAttrLength caps header-derived span attributes so oversized
// headers cannot bloat trace storage.
const maxHeaderAttrLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	// Enabled controls whether tracing is active.
	Enabled bool
}

// Tracing returns OpenTelemetry tracing middleware. It wraps otelgin and
// enriches the server span with the request id and the tenant routing hints
// carried on webhook deliveries.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	baseMiddleware := otelgin.Middleware(cfg.ServiceName)

	return func(c *gin.Context) {
		baseMiddleware(c)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			enrichSpan(c, span)
		}
	}
}

func enrichSpan(c *gin.Context, span trace.Span) {
	if requestID := c.GetString("request_id"); requestID != "" {
		span.SetAttributes(attribute.String("request_id", truncate(requestID)))
	}
	if tenantCode := c.GetHeader("X-Tenant-Code"); tenantCode != "" {
		span.SetAttributes(attribute.String("tenant_code", truncate(tenantCode)))
	}
	if storeDomain := c.GetHeader("X-Store-Domain"); storeDomain != "" {
		span.SetAttributes(attribute.String("store_domain", truncate(storeDomain)))
	}

	if status := c.Writer.Status(); status >= 400 {
		span.SetStatus(codes.Error, c.FullPath())
	}
}

func truncate(s string) string {
	if len(s) > maxHeaderAttrLength {
		return s[:maxHeaderAttrLength]
	}
	return s
}
