package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity provides the common identity and timestamp fields for all entities
type BaseEntity struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBaseEntity creates a new base entity with a fresh identity
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch updates the modification timestamp
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now()
}

// VersionedEntity adds an optimistic concurrency version to BaseEntity.
// Persistence compares-and-swaps on Version instead of holding row locks
// across slow downstream calls.
type VersionedEntity struct {
	BaseEntity
	Version int `json:"version"`
}

// NewVersionedEntity creates a versioned entity starting at version 1
func NewVersionedEntity() VersionedEntity {
	return VersionedEntity{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// BumpVersion advances the version and modification timestamp
func (e *VersionedEntity) BumpVersion() {
	e.Version++
	e.Touch()
}
