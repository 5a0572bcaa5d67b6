package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/smarteros/backend/internal/domain/messaging"
)

// EventEnvelopeModel is the shared envelope log. Seq is the database
// assigned append order all consumer groups read in; the unique index on
// EventID makes retried publication idempotent.
type EventEnvelopeModel struct {
	Seq        int64     `gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	TenantCode string    `gorm:"size:64;not null;index"`
	Service    string    `gorm:"size:64;not null"`
	EventType  string    `gorm:"size:64;not null"`
	Topic      string    `gorm:"size:200;not null;index"`
	OccurredAt time.Time `gorm:"not null;index"`
	Payload    []byte    `gorm:"type:jsonb"`
	TraceID    string    `gorm:"size:64"`
}

// TableName returns the table name for EventEnvelopeModel
func (EventEnvelopeModel) TableName() string {
	return "event_envelopes"
}

// ToDomain converts the model to a domain envelope
func (m *EventEnvelopeModel) ToDomain() *messaging.EventEnvelope {
	return &messaging.EventEnvelope{
		Seq:        m.Seq,
		EventID:    m.EventID,
		TenantCode: m.TenantCode,
		Service:    m.Service,
		EventType:  m.EventType,
		Topic:      messaging.Topic(m.Topic),
		OccurredAt: m.OccurredAt,
		Payload:    json.RawMessage(m.Payload),
		TraceID:    m.TraceID,
	}
}

// FromDomain populates the model from a domain envelope
func (m *EventEnvelopeModel) FromDomain(e *messaging.EventEnvelope) {
	m.Seq = e.Seq
	m.EventID = e.EventID
	m.TenantCode = e.TenantCode
	m.Service = e.Service
	m.EventType = e.EventType
	m.Topic = e.Topic.String()
	m.OccurredAt = e.OccurredAt
	m.Payload = []byte(e.Payload)
	m.TraceID = e.TraceID
}

// ConsumerOffsetModel is the persistence model for per-group cursors
type ConsumerOffsetModel struct {
	GroupName string    `gorm:"size:128;not null;primaryKey;column:group_name"`
	Topic     string    `gorm:"size:200;not null;primaryKey"`
	Offset    int64     `gorm:"not null;default:0;column:last_seq"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for ConsumerOffsetModel
func (ConsumerOffsetModel) TableName() string {
	return "consumer_offsets"
}

// ToDomain converts the model to a domain offset
func (m *ConsumerOffsetModel) ToDomain() *messaging.ConsumerOffset {
	return &messaging.ConsumerOffset{
		Group:     m.GroupName,
		Topic:     messaging.Topic(m.Topic),
		Offset:    m.Offset,
		UpdatedAt: m.UpdatedAt,
	}
}

// RetryTicketModel is the persistence model for retry tickets. The
// unique subject index keeps at most one ticket per failing subject.
type RetryTicketModel struct {
	BaseModel
	TenantID      uuid.UUID `gorm:"type:uuid;not null;index"`
	SubjectType   string    `gorm:"size:32;not null;uniqueIndex:idx_retry_tickets_subject"`
	SubjectID     string    `gorm:"size:128;not null;uniqueIndex:idx_retry_tickets_subject"`
	AttemptCount  int       `gorm:"not null;default:0"`
	MaxAttempts   int       `gorm:"not null"`
	NextAttemptAt time.Time `gorm:"not null;index"`
	LastError     string    `gorm:"type:text"`
	Status        string    `gorm:"size:16;not null;index"`
}

// TableName returns the table name for RetryTicketModel
func (RetryTicketModel) TableName() string {
	return "retry_tickets"
}

// ToDomain converts the model to a domain retry ticket
func (m *RetryTicketModel) ToDomain() *messaging.RetryTicket {
	return &messaging.RetryTicket{
		BaseEntity:    m.BaseModel.ToDomain(),
		TenantID:      m.TenantID,
		SubjectType:   messaging.SubjectType(m.SubjectType),
		SubjectID:     m.SubjectID,
		AttemptCount:  m.AttemptCount,
		MaxAttempts:   m.MaxAttempts,
		NextAttemptAt: m.NextAttemptAt,
		LastError:     m.LastError,
		Status:        messaging.TicketStatus(m.Status),
	}
}

// FromDomain populates the model from a domain retry ticket
func (m *RetryTicketModel) FromDomain(t *messaging.RetryTicket) {
	m.FromDomainBaseEntity(t.BaseEntity)
	m.TenantID = t.TenantID
	m.SubjectType = string(t.SubjectType)
	m.SubjectID = t.SubjectID
	m.AttemptCount = t.AttemptCount
	m.MaxAttempts = t.MaxAttempts
	m.NextAttemptAt = t.NextAttemptAt
	m.LastError = t.LastError
	m.Status = string(t.Status)
}
