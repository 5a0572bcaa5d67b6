package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smarteros/backend/internal/domain/messaging"
	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/infrastructure/persistence/models"
)

// GormEnvelopeRepository implements EnvelopeRepository over the shared
// envelope log table
type GormEnvelopeRepository struct {
	db *gorm.DB
}

// NewGormEnvelopeRepository creates a new GormEnvelopeRepository
func NewGormEnvelopeRepository(db *gorm.DB) *GormEnvelopeRepository {
	return &GormEnvelopeRepository{db: db}
}

// Append writes the envelope inside the caller's transaction so that the
// publish commits atomically with the state transition it describes.
// A retried append of the same EventID is a silent no-op.
func (r *GormEnvelopeRepository) Append(ctx context.Context, txProvider any, envelope *messaging.EventEnvelope) error {
	db := r.db
	if txProvider != nil {
		tx, ok := txProvider.(*gorm.DB)
		if !ok {
			return shared.NewDomainError("INVALID_INPUT", "txProvider must be a *gorm.DB")
		}
		db = tx
	}

	var model models.EventEnvelopeModel
	model.FromDomain(envelope)

	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		envelope.Seq = model.Seq
	}
	return nil
}

// FindAfter returns up to limit envelopes with Seq greater than afterSeq,
// in append order
func (r *GormEnvelopeRepository) FindAfter(ctx context.Context, afterSeq int64, limit int) ([]*messaging.EventEnvelope, error) {
	var envelopeModels []models.EventEnvelopeModel
	if err := r.db.WithContext(ctx).
		Where("seq > ?", afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&envelopeModels).Error; err != nil {
		return nil, err
	}

	envelopes := make([]*messaging.EventEnvelope, len(envelopeModels))
	for i := range envelopeModels {
		envelopes[i] = envelopeModels[i].ToDomain()
	}
	return envelopes, nil
}

// FindByEventID finds an envelope by its globally unique event ID
func (r *GormEnvelopeRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*messaging.EventEnvelope, error) {
	var model models.EventEnvelopeModel
	if err := r.db.WithContext(ctx).First(&model, "event_id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// MaxSeq returns the highest assigned sequence number, zero when empty
func (r *GormEnvelopeRepository) MaxSeq(ctx context.Context) (int64, error) {
	var maxSeq *int64
	if err := r.db.WithContext(ctx).
		Model(&models.EventEnvelopeModel{}).
		Select("MAX(seq)").
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	if maxSeq == nil {
		return 0, nil
	}
	return *maxSeq, nil
}

// DeleteBefore removes envelopes older than the cutoff and returns the
// number deleted; retention is a deployment policy, not correctness
func (r *GormEnvelopeRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("occurred_at < ?", cutoff).
		Delete(&models.EventEnvelopeModel{})
	return result.RowsAffected, result.Error
}
