package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RetryTicketRepository persists retry tickets. At most one ticket exists
// per (subject type, subject id); Save fails with ErrAlreadyExists when
// the subject already has one.
type RetryTicketRepository interface {
	Save(ctx context.Context, ticket *RetryTicket) error
	Update(ctx context.Context, ticket *RetryTicket) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*RetryTicket, error)
	FindBySubject(ctx context.Context, subjectType SubjectType, subjectID string) (*RetryTicket, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]*RetryTicket, error)
	ListDead(ctx context.Context, offset, limit int) ([]*RetryTicket, int64, error)
}
