package messaging

import (
	"context"

	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/messaging"
)

// NewAuditHandler returns a handler that writes one structured log line
// per envelope. Subscribed to *.*.* it becomes a cross-tenant audit
// trail of everything that flows through the bus.
func NewAuditHandler(log *zap.Logger) messaging.Handler {
	return messaging.HandlerFunc(func(_ context.Context, envelope *messaging.EventEnvelope) error {
		log.Info("event",
			zap.Int64("seq", envelope.Seq),
			zap.String("event_id", envelope.EventID.String()),
			zap.String("topic", string(envelope.Topic)),
			zap.String("tenant_code", envelope.TenantCode),
			zap.String("event_type", envelope.EventType),
			zap.String("trace_id", envelope.TraceID),
			zap.Time("occurred_at", envelope.OccurredAt))
		return nil
	})
}
