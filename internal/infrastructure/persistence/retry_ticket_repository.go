package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/smarteros/backend/internal/domain/messaging"
	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/infrastructure/persistence/models"
)

// GormRetryTicketRepository implements RetryTicketRepository using GORM
type GormRetryTicketRepository struct {
	db *gorm.DB
}

// NewGormRetryTicketRepository creates a new GormRetryTicketRepository
func NewGormRetryTicketRepository(db *gorm.DB) *GormRetryTicketRepository {
	return &GormRetryTicketRepository{db: db}
}

// Save persists a new ticket; the unique subject index rejects a second
// live ticket for the same subject
func (r *GormRetryTicketRepository) Save(ctx context.Context, ticket *messaging.RetryTicket) error {
	var model models.RetryTicketModel
	model.FromDomain(ticket)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists changes to an existing ticket
func (r *GormRetryTicketRepository) Update(ctx context.Context, ticket *messaging.RetryTicket) error {
	var model models.RetryTicketModel
	model.FromDomain(ticket)
	result := r.db.WithContext(ctx).Model(&models.RetryTicketModel{}).
		Where("id = ?", ticket.ID).
		Select("attempt_count", "max_attempts", "next_attempt_at", "last_error", "status", "updated_at").
		Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a ticket, used when its subject finally succeeds
func (r *GormRetryTicketRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.RetryTicketModel{}, "id = ?", id).Error
}

// FindByID finds a ticket by its ID
func (r *GormRetryTicketRepository) FindByID(ctx context.Context, id uuid.UUID) (*messaging.RetryTicket, error) {
	var model models.RetryTicketModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySubject finds the live ticket for a subject
func (r *GormRetryTicketRepository) FindBySubject(ctx context.Context, subjectType messaging.SubjectType, subjectID string) (*messaging.RetryTicket, error) {
	var model models.RetryTicketModel
	if err := r.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", string(subjectType), subjectID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindDue returns scheduled tickets whose next attempt time has passed,
// oldest first
func (r *GormRetryTicketRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*messaging.RetryTicket, error) {
	var ticketModels []models.RetryTicketModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", string(messaging.TicketStatusScheduled), now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&ticketModels).Error; err != nil {
		return nil, err
	}

	tickets := make([]*messaging.RetryTicket, len(ticketModels))
	for i := range ticketModels {
		tickets[i] = ticketModels[i].ToDomain()
	}
	return tickets, nil
}

// ListDead returns a page of dead-lettered tickets with the total count
func (r *GormRetryTicketRepository) ListDead(ctx context.Context, offset, limit int) ([]*messaging.RetryTicket, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.RetryTicketModel{}).
		Where("status = ?", string(messaging.TicketStatusDead))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var ticketModels []models.RetryTicketModel
	if err := query.Order("updated_at DESC").Offset(offset).Limit(limit).Find(&ticketModels).Error; err != nil {
		return nil, 0, err
	}

	tickets := make([]*messaging.RetryTicket, len(ticketModels))
	for i := range ticketModels {
		tickets[i] = ticketModels[i].ToDomain()
	}
	return tickets, total, nil
}
