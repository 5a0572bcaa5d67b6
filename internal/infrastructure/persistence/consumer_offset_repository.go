package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smarteros/backend/internal/domain/messaging"
	"github.com/smarteros/backend/internal/infrastructure/persistence/models"
)

// GormConsumerOffsetRepository implements ConsumerOffsetRepository using
// GORM. Advance is guarded so a cursor never moves backwards, which is
// what keeps redelivery from rewinding an acknowledged position.
type GormConsumerOffsetRepository struct {
	db *gorm.DB
}

// NewGormConsumerOffsetRepository creates a new GormConsumerOffsetRepository
func NewGormConsumerOffsetRepository(db *gorm.DB) *GormConsumerOffsetRepository {
	return &GormConsumerOffsetRepository{db: db}
}

// Get returns the last acknowledged seq for (group, topic), zero when the
// group has not consumed the topic yet
func (r *GormConsumerOffsetRepository) Get(ctx context.Context, group string, topic messaging.Topic) (int64, error) {
	var model models.ConsumerOffsetModel
	if err := r.db.WithContext(ctx).
		Where("group_name = ? AND topic = ?", group, topic.String()).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return model.Offset, nil
}

// Advance moves the cursor to seq, monotonically. A stale caller with a
// lower seq leaves the stored cursor untouched.
func (r *GormConsumerOffsetRepository) Advance(ctx context.Context, group string, topic messaging.Topic, seq int64) error {
	result := r.db.WithContext(ctx).
		Model(&models.ConsumerOffsetModel{}).
		Where("group_name = ? AND topic = ? AND last_seq < ?", group, topic.String(), seq).
		Updates(map[string]any{"last_seq": seq, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// no row moved: either the cursor is already at or past seq, or the
	// cursor does not exist yet
	model := models.ConsumerOffsetModel{
		GroupName: group,
		Topic:     topic.String(),
		Offset:    seq,
		UpdatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "group_name"}, {Name: "topic"}},
			DoNothing: true,
		}).
		Create(&model).Error
}

// MinOffset returns the lowest cursor across the group's topics, zero
// when the group has no cursors; dispatch resumes scanning from there
func (r *GormConsumerOffsetRepository) MinOffset(ctx context.Context, group string) (int64, error) {
	var minOffset *int64
	if err := r.db.WithContext(ctx).
		Model(&models.ConsumerOffsetModel{}).
		Where("group_name = ?", group).
		Select("MIN(last_seq)").
		Scan(&minOffset).Error; err != nil {
		return 0, err
	}
	if minOffset == nil {
		return 0, nil
	}
	return *minOffset, nil
}

// ListByGroup returns all cursors owned by a group
func (r *GormConsumerOffsetRepository) ListByGroup(ctx context.Context, group string) ([]*messaging.ConsumerOffset, error) {
	var offsetModels []models.ConsumerOffsetModel
	if err := r.db.WithContext(ctx).
		Where("group_name = ?", group).
		Order("topic ASC").
		Find(&offsetModels).Error; err != nil {
		return nil, err
	}

	offsets := make([]*messaging.ConsumerOffset, len(offsetModels))
	for i := range offsetModels {
		offsets[i] = offsetModels[i].ToDomain()
	}
	return offsets, nil
}
