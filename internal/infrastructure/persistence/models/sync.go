package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/smarteros/backend/internal/domain/sync"
)

// InboundWebhookEventModel is the persistence model for inbound webhook
// events. The unique index over the dedup key columns is the concurrency
// gate for idempotent ingestion.
type InboundWebhookEventModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_inbound_dedup_key"`
	Source        string    `gorm:"size:64;not null;uniqueIndex:idx_inbound_dedup_key"`
	SourceEventID string    `gorm:"size:128;not null;uniqueIndex:idx_inbound_dedup_key"`
	SourceTopic   string    `gorm:"size:128"`
	EntityType    string    `gorm:"size:32;not null"`
	EntityID      string    `gorm:"size:128;not null"`
	Revision      int64     `gorm:"not null"`
	Payload       []byte    `gorm:"type:jsonb"`
	ReceivedAt    time.Time `gorm:"not null;index"`
}

// TableName returns the table name for InboundWebhookEventModel
func (InboundWebhookEventModel) TableName() string {
	return "inbound_webhook_events"
}

// ToDomain converts the model to a domain event
func (m *InboundWebhookEventModel) ToDomain() *sync.InboundWebhookEvent {
	return &sync.InboundWebhookEvent{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Source:        m.Source,
		SourceEventID: m.SourceEventID,
		SourceTopic:   m.SourceTopic,
		EntityType:    sync.EntityType(m.EntityType),
		EntityID:      m.EntityID,
		Revision:      m.Revision,
		Payload:       json.RawMessage(m.Payload),
		ReceivedAt:    m.ReceivedAt,
	}
}

// FromDomain populates the model from a domain event
func (m *InboundWebhookEventModel) FromDomain(e *sync.InboundWebhookEvent) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.Source = e.Source
	m.SourceEventID = e.SourceEventID
	m.SourceTopic = e.SourceTopic
	m.EntityType = string(e.EntityType)
	m.EntityID = e.EntityID
	m.Revision = e.Revision
	m.Payload = []byte(e.Payload)
	m.ReceivedAt = e.ReceivedAt
}

// SyncRecordModel is the persistence model for sync records. The unique
// index enforces one live record per (tenant, entity type, entity id);
// Version drives the compare-and-swap update.
type SyncRecordModel struct {
	VersionedModel
	TenantID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_sync_records_key"`
	EntityType    string     `gorm:"size:32;not null;uniqueIndex:idx_sync_records_key"`
	EntityID      string     `gorm:"size:128;not null;uniqueIndex:idx_sync_records_key"`
	State         string     `gorm:"size:16;not null;index"`
	Revision      int64      `gorm:"not null;default:0"`
	ERPID         string     `gorm:"size:128"`
	LastError     string     `gorm:"type:text"`
	RetryCount    int        `gorm:"not null;default:0"`
	LastAttemptAt *time.Time `gorm:""`
}

// TableName returns the table name for SyncRecordModel
func (SyncRecordModel) TableName() string {
	return "sync_records"
}

// ToDomain converts the model to a domain sync record
func (m *SyncRecordModel) ToDomain() *sync.SyncRecord {
	return &sync.SyncRecord{
		VersionedEntity: m.VersionedModel.ToDomain(),
		TenantID:        m.TenantID,
		EntityType:      sync.EntityType(m.EntityType),
		EntityID:        m.EntityID,
		State:           sync.SyncState(m.State),
		Revision:        m.Revision,
		ERPID:           m.ERPID,
		LastError:       m.LastError,
		RetryCount:      m.RetryCount,
		LastAttemptAt:   m.LastAttemptAt,
	}
}

// FromDomain populates the model from a domain sync record
func (m *SyncRecordModel) FromDomain(r *sync.SyncRecord) {
	m.FromDomainVersionedEntity(r.VersionedEntity)
	m.TenantID = r.TenantID
	m.EntityType = string(r.EntityType)
	m.EntityID = r.EntityID
	m.State = string(r.State)
	m.Revision = r.Revision
	m.ERPID = r.ERPID
	m.LastError = r.LastError
	m.RetryCount = r.RetryCount
	m.LastAttemptAt = r.LastAttemptAt
}
