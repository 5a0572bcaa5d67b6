package messaging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/messaging"
	"github.com/smarteros/backend/internal/domain/shared"
)

// defaultDedupTTL must outlive the longest plausible redelivery window
const defaultDedupTTL = 24 * time.Hour

// IdempotentHandler wraps a handler so repeated deliveries of the same
// envelope collapse into one effect. The key is scoped per group, so two
// groups each still see the envelope once.
type IdempotentHandler struct {
	group   string
	inner   messaging.Handler
	store   shared.IdempotencyStore
	ttl     time.Duration
	logger  *zap.Logger
}

// NewIdempotentHandler wraps inner with envelope-level deduplication
func NewIdempotentHandler(group string, inner messaging.Handler, store shared.IdempotencyStore, ttl time.Duration, log *zap.Logger) *IdempotentHandler {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &IdempotentHandler{group: group, inner: inner, store: store, ttl: ttl, logger: log}
}

func (h *IdempotentHandler) key(envelope *messaging.EventEnvelope) string {
	return "consumed:" + h.group + ":" + envelope.EventID.String()
}

// Handle runs the inner handler unless this group already completed the
// envelope. The mark is written only after the handler succeeds: a crash
// mid-handler leaves the key unset and the redelivered envelope runs
// again, which is the at-least-once contract. Handlers may see repeats.
func (h *IdempotentHandler) Handle(ctx context.Context, envelope *messaging.EventEnvelope) error {
	key := h.key(envelope)
	seen, err := h.store.IsProcessed(ctx, key)
	if err != nil {
		return err
	}
	if seen {
		h.logger.Debug("skipping redelivered envelope",
			zap.String("consumer_group", h.group),
			zap.String("event_id", envelope.EventID.String()))
		return nil
	}

	if err := h.inner.Handle(ctx, envelope); err != nil {
		return err
	}
	if err := h.store.MarkProcessed(ctx, key, h.ttl); err != nil {
		// The effect is already applied; surfacing the error would send
		// an applied envelope to the dead-letter set, so accept that the
		// next delivery may reach the handler again.
		h.logger.Warn("failed to record idempotency key, duplicate delivery possible",
			zap.String("key", key),
			zap.Error(err))
	}
	return nil
}
