package sync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smarteros/backend/internal/domain/shared"
)

// SyncState is the reconciliation state of one external entity
type SyncState string

const (
	SyncStatePending  SyncState = "pending"
	SyncStateApplied  SyncState = "applied"
	SyncStateFailed   SyncState = "failed"
	SyncStateConflict SyncState = "conflict"
)

// SyncRecord tracks reconciliation of one (tenant, entity type, entity id).
// Exactly one live record exists per key; the unique constraint plus the
// version compare-and-swap are what make reconciliation idempotent.
//
// State transitions only move forward: pending -> applied or failed,
// failed -> pending (retry) or conflict. Conflict is terminal until a human
// intervenes; applied only reopens for a strictly higher revision.
type SyncRecord struct {
	shared.VersionedEntity
	TenantID      uuid.UUID  `json:"tenant_id"`
	EntityType    EntityType `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	State         SyncState  `json:"state"`
	Revision      int64      `json:"revision"`
	ERPID         string     `json:"erp_id"`
	LastError     string     `json:"last_error"`
	RetryCount    int        `json:"retry_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
}

// NewSyncRecord creates a pending record for an entity not seen before
func NewSyncRecord(tenantID uuid.UUID, entityType EntityType, entityID string) (*SyncRecord, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "tenant id is required")
	}
	if !entityType.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "unknown entity type")
	}
	if entityID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "entity id is required")
	}
	return &SyncRecord{
		VersionedEntity: shared.NewVersionedEntity(),
		TenantID:        tenantID,
		EntityType:      entityType,
		EntityID:        entityID,
		State:           SyncStatePending,
	}, nil
}

// IsStale reports whether the incoming revision carries nothing new.
// Last-writer-wins by revision, not by arrival time.
func (r *SyncRecord) IsStale(revision int64) bool {
	return r.State == SyncStateApplied && r.Revision >= revision
}

// BeginAttempt moves the record to pending for the given revision.
// Returns ErrConflict when the record needs manual resolution and
// ErrDuplicateEvent when the revision is already applied.
func (r *SyncRecord) BeginAttempt(revision int64) error {
	switch {
	case r.State == SyncStateConflict:
		return shared.ErrConflict
	case r.IsStale(revision):
		return shared.ErrDuplicateEvent
	}
	r.State = SyncStatePending
	now := time.Now()
	r.LastAttemptAt = &now
	r.Touch()
	return nil
}

// Apply records a successful ERP write for the given revision
func (r *SyncRecord) Apply(revision int64, erpID string) error {
	if r.State != SyncStatePending {
		return shared.ErrInvalidState
	}
	r.State = SyncStateApplied
	r.Revision = revision
	r.ERPID = erpID
	r.LastError = ""
	r.Touch()
	return nil
}

// Fail records a transient failure; the record stays eligible for retry
func (r *SyncRecord) Fail(reason string) error {
	if r.State != SyncStatePending {
		return shared.ErrInvalidState
	}
	r.State = SyncStateFailed
	r.LastError = reason
	r.RetryCount++
	r.Touch()
	return nil
}

// MarkConflict records an irreconcilable divergence; terminal until
// a human resolves it externally
func (r *SyncRecord) MarkConflict(reason string) error {
	if r.State != SyncStatePending && r.State != SyncStateFailed {
		return shared.ErrInvalidState
	}
	r.State = SyncStateConflict
	r.LastError = reason
	r.Touch()
	return nil
}

// SyncRecordRepository persists sync records with optimistic concurrency.
// Create fails with ErrAlreadyExists when a record for the key exists;
// UpdateCAS fails with ErrConcurrencyConflict when the stored version
// no longer matches. UpdateCASInTx runs the same compare-and-swap inside
// the caller's transaction (a *gorm.DB).
type SyncRecordRepository interface {
	Create(ctx context.Context, record *SyncRecord) error
	UpdateCAS(ctx context.Context, record *SyncRecord) error
	UpdateCASInTx(ctx context.Context, txProvider any, record *SyncRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*SyncRecord, error)
	FindByKey(ctx context.Context, tenantID uuid.UUID, entityType EntityType, entityID string) (*SyncRecord, error)
	ListByState(ctx context.Context, tenantID uuid.UUID, state SyncState, offset, limit int) ([]*SyncRecord, int64, error)
}
