package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smarteros/backend/internal/domain/shared"
)

// EntityType classifies the source-platform entity an event refers to
type EntityType string

const (
	EntityTypeOrder   EntityType = "order"
	EntityTypeStock   EntityType = "stock"
	EntityTypePartner EntityType = "partner"
)

// IsValid checks if the entity type is a known value
func (e EntityType) IsValid() bool {
	switch e {
	case EntityTypeOrder, EntityTypeStock, EntityTypePartner:
		return true
	}
	return false
}

// DedupKey identifies one logical external event. Two webhook deliveries
// carrying the same key are the same event regardless of arrival count.
type DedupKey struct {
	TenantID      uuid.UUID
	Source        string
	SourceEventID string
}

// String returns the canonical form used for storage and logging
func (k DedupKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.TenantID, k.Source, k.SourceEventID)
}

// InboundWebhookEvent is the durable record of a received webhook.
// Immutable once persisted; the conditional insert on its dedup key is
// the concurrency gate that makes redelivery harmless.
type InboundWebhookEvent struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Source        string          `json:"source"`
	SourceEventID string          `json:"source_event_id"`
	SourceTopic   string          `json:"source_topic"`
	EntityType    EntityType      `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Revision      int64           `json:"revision"`
	Payload       json.RawMessage `json:"payload"`
	ReceivedAt    time.Time       `json:"received_at"`
}

// NewInboundWebhookEvent validates and creates an inbound event record
func NewInboundWebhookEvent(tenantID uuid.UUID, source, sourceEventID, sourceTopic string, entityType EntityType, entityID string, revision int64, payload json.RawMessage) (*InboundWebhookEvent, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "tenant id is required")
	}
	if source == "" || sourceEventID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "source and source event id are required")
	}
	if !entityType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("unknown entity type: %s", entityType))
	}
	if entityID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "entity id is required")
	}
	if revision < 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "revision must not be negative")
	}
	return &InboundWebhookEvent{
		ID:            uuid.New(),
		TenantID:      tenantID,
		Source:        source,
		SourceEventID: sourceEventID,
		SourceTopic:   sourceTopic,
		EntityType:    entityType,
		EntityID:      entityID,
		Revision:      revision,
		Payload:       payload,
		ReceivedAt:    time.Now(),
	}, nil
}

// DedupKey derives the deduplication key for this event
func (e *InboundWebhookEvent) DedupKey() DedupKey {
	return DedupKey{
		TenantID:      e.TenantID,
		Source:        e.Source,
		SourceEventID: e.SourceEventID,
	}
}

// InboundEventRepository persists inbound webhook events.
// Record returns false when an event with the same dedup key already exists.
type InboundEventRepository interface {
	Record(ctx context.Context, event *InboundWebhookEvent) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*InboundWebhookEvent, error)
	FindByDedupKey(ctx context.Context, key DedupKey) (*InboundWebhookEvent, error)
}
