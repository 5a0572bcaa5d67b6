package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/domain/sync"
	"github.com/smarteros/backend/internal/infrastructure/persistence/models"
)

// GormInboundEventRepository implements InboundEventRepository using GORM
type GormInboundEventRepository struct {
	db *gorm.DB
}

// NewGormInboundEventRepository creates a new GormInboundEventRepository
func NewGormInboundEventRepository(db *gorm.DB) *GormInboundEventRepository {
	return &GormInboundEventRepository{db: db}
}

// Record persists the event with a conditional insert on the dedup key.
// The insert itself is the concurrency gate: when another delivery of the
// same event already won, no row is written and Record returns false.
func (r *GormInboundEventRepository) Record(ctx context.Context, event *sync.InboundWebhookEvent) (bool, error) {
	var model models.InboundWebhookEventModel
	model.FromDomain(event)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "source"}, {Name: "source_event_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindByID finds an inbound event by its ID
func (r *GormInboundEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*sync.InboundWebhookEvent, error) {
	var model models.InboundWebhookEventModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByDedupKey finds an inbound event by its deduplication key
func (r *GormInboundEventRepository) FindByDedupKey(ctx context.Context, key sync.DedupKey) (*sync.InboundWebhookEvent, error) {
	var model models.InboundWebhookEventModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND source = ? AND source_event_id = ?", key.TenantID, key.Source, key.SourceEventID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
