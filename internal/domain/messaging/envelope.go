package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/smarteros/backend/internal/domain/shared"
)

// EventEnvelope is the published representation of one committed state
// transition. Seq is assigned by the envelope log on append and is the
// total order consumers read in; EventID is globally unique and serves
// as the dedup key for at-least-once delivery.
type EventEnvelope struct {
	Seq        int64           `json:"seq"`
	EventID    uuid.UUID       `json:"event_id"`
	TenantCode string          `json:"tenant_code"`
	Service    string          `json:"service"`
	EventType  string          `json:"event_type"`
	Topic      Topic           `json:"topic"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
	TraceID    string          `json:"trace_id"`
}

// NewEventEnvelope builds an envelope for a committed transition.
// Seq stays zero until the envelope log assigns it.
func NewEventEnvelope(tenantCode, service, eventType string, payload json.RawMessage, traceID string) (*EventEnvelope, error) {
	topic, err := BuildTopic(tenantCode, service, eventType)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "envelope payload is required")
	}
	return &EventEnvelope{
		EventID:    uuid.New(),
		TenantCode: tenantCode,
		Service:    service,
		EventType:  eventType,
		Topic:      topic,
		OccurredAt: time.Now(),
		Payload:    payload,
		TraceID:    traceID,
	}, nil
}

// EnvelopeAppender appends an envelope to the shared log. txProvider is
// the caller's open transaction so publication commits atomically with
// the state transition it describes.
type EnvelopeAppender interface {
	Append(ctx context.Context, txProvider any, envelope *EventEnvelope) error
}

// EnvelopeRepository reads the shared envelope log
type EnvelopeRepository interface {
	EnvelopeAppender
	FindAfter(ctx context.Context, afterSeq int64, limit int) ([]*EventEnvelope, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*EventEnvelope, error)
	MaxSeq(ctx context.Context) (int64, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
