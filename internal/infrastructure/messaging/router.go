package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/messaging"
)

// publishAttempts bounds the retry loop for out-of-transaction publishes
const publishAttempts = 3

// Router is the publishing side of the event bus. All topics share one
// physical envelope log; the topic is a discriminator column, so adding
// a tenant or event type never provisions anything.
type Router struct {
	envelopes messaging.EnvelopeRepository
	logger    *zap.Logger
}

// NewRouter creates a router over the shared envelope log
func NewRouter(envelopes messaging.EnvelopeRepository, log *zap.Logger) *Router {
	return &Router{envelopes: envelopes, logger: log}
}

// PublishInTx appends the envelope inside the caller's open transaction,
// so publication commits atomically with the state change it announces
func (r *Router) PublishInTx(ctx context.Context, txProvider any, envelope *messaging.EventEnvelope) error {
	return r.envelopes.Append(ctx, txProvider, envelope)
}

// Publish appends the envelope outside any caller transaction. The log
// is idempotent on envelope ID, so retrying a failed append cannot
// double-publish.
func (r *Router) Publish(ctx context.Context, envelope *messaging.EventEnvelope) error {
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err = r.envelopes.Append(ctx, nil, envelope); err == nil {
			return nil
		}
		r.logger.Warn("envelope append failed",
			zap.String("topic", string(envelope.Topic)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return err
}
