package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/domain/sync"
	"github.com/smarteros/backend/internal/infrastructure/persistence/models"
)

// GormSyncRecordRepository implements SyncRecordRepository using GORM.
// Updates go through a version compare-and-swap so concurrent webhooks
// for the same entity serialize without a held lock.
type GormSyncRecordRepository struct {
	db *gorm.DB
}

// NewGormSyncRecordRepository creates a new GormSyncRecordRepository
func NewGormSyncRecordRepository(db *gorm.DB) *GormSyncRecordRepository {
	return &GormSyncRecordRepository{db: db}
}

// Create inserts a new sync record; the unique key index rejects a
// second live record for the same (tenant, entity type, entity id)
func (r *GormSyncRecordRepository) Create(ctx context.Context, record *sync.SyncRecord) error {
	var model models.SyncRecordModel
	model.FromDomain(record)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateCAS writes the record only when the stored version still matches
// the version the caller read. On success the stored version advances by
// one and the in-memory record is bumped to match.
func (r *GormSyncRecordRepository) UpdateCAS(ctx context.Context, record *sync.SyncRecord) error {
	return r.updateCAS(r.db.WithContext(ctx), record)
}

// UpdateCASInTx is UpdateCAS inside the caller's transaction
func (r *GormSyncRecordRepository) UpdateCASInTx(ctx context.Context, txProvider any, record *sync.SyncRecord) error {
	tx, ok := txProvider.(*gorm.DB)
	if !ok {
		return shared.NewDomainError("INVALID_INPUT", "txProvider must be a *gorm.DB")
	}
	return r.updateCAS(tx.WithContext(ctx), record)
}

func (r *GormSyncRecordRepository) updateCAS(db *gorm.DB, record *sync.SyncRecord) error {
	var model models.SyncRecordModel
	model.FromDomain(record)
	model.Version = record.Version + 1

	result := db.Model(&models.SyncRecordModel{}).
		Where("id = ? AND version = ?", record.ID, record.Version).
		Select("state", "revision", "erp_id", "last_error", "retry_count", "last_attempt_at", "version", "updated_at").
		Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	record.Version++
	return nil
}

// FindByID finds a sync record by its ID
func (r *GormSyncRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.SyncRecord, error) {
	var model models.SyncRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByKey finds the live sync record for one external entity
func (r *GormSyncRecordRepository) FindByKey(ctx context.Context, tenantID uuid.UUID, entityType sync.EntityType, entityID string) (*sync.SyncRecord, error) {
	var model models.SyncRecordModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantID, string(entityType), entityID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListByState returns a page of a tenant's records in the given state
func (r *GormSyncRecordRepository) ListByState(ctx context.Context, tenantID uuid.UUID, state sync.SyncState, offset, limit int) ([]*sync.SyncRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncRecordModel{}).
		Where("tenant_id = ? AND state = ?", tenantID, string(state))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recordModels []models.SyncRecordModel
	if err := query.Order("updated_at DESC").Offset(offset).Limit(limit).Find(&recordModels).Error; err != nil {
		return nil, 0, err
	}

	records := make([]*sync.SyncRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, total, nil
}
