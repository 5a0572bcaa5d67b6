package messaging

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/smarteros/backend/internal/domain/shared"
)

// SubjectType names the kind of thing a retry ticket tracks
type SubjectType string

const (
	// SubjectWebhookEvent retries reconciliation of an inbound webhook event
	SubjectWebhookEvent SubjectType = "webhook_event"
	// SubjectDelivery retries delivery of an envelope to a consumer group
	SubjectDelivery SubjectType = "delivery"
)

// TicketStatus is the retry ticket lifecycle state
type TicketStatus string

const (
	TicketStatusScheduled TicketStatus = "scheduled"
	TicketStatusDead      TicketStatus = "dead"
)

// RetryTicket tracks the retry budget for one failing subject. Created on
// first failure, rescheduled with backoff on each subsequent failure,
// deleted on success, moved to dead after the attempt budget runs out.
type RetryTicket struct {
	shared.BaseEntity
	TenantID      uuid.UUID    `json:"tenant_id"`
	SubjectType   SubjectType  `json:"subject_type"`
	SubjectID     string       `json:"subject_id"`
	AttemptCount  int          `json:"attempt_count"`
	MaxAttempts   int          `json:"max_attempts"`
	NextAttemptAt time.Time    `json:"next_attempt_at"`
	LastError     string       `json:"last_error"`
	Status        TicketStatus `json:"status"`
}

// NewRetryTicket creates a ticket after the first failed attempt,
// scheduled for the given delay
func NewRetryTicket(tenantID uuid.UUID, subjectType SubjectType, subjectID, reason string, maxAttempts int, delay time.Duration) (*RetryTicket, error) {
	if subjectID == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "subject id is required")
	}
	if maxAttempts <= 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "max attempts must be positive")
	}
	return &RetryTicket{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      tenantID,
		SubjectType:   subjectType,
		SubjectID:     subjectID,
		AttemptCount:  1,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: time.Now().Add(delay),
		LastError:     reason,
		Status:        TicketStatusScheduled,
	}, nil
}

// Due reports whether the ticket is eligible for a retry attempt
func (t *RetryTicket) Due(now time.Time) bool {
	return t.Status == TicketStatusScheduled && !now.Before(t.NextAttemptAt)
}

// Exhausted reports whether the attempt budget has run out
func (t *RetryTicket) Exhausted() bool {
	return t.AttemptCount >= t.MaxAttempts
}

// Reschedule records another failed attempt and pushes the next attempt
// out by the given delay
func (t *RetryTicket) Reschedule(reason string, delay time.Duration) error {
	if t.Status != TicketStatusScheduled {
		return shared.ErrInvalidState
	}
	t.AttemptCount++
	t.LastError = reason
	t.NextAttemptAt = time.Now().Add(delay)
	t.Touch()
	return nil
}

// MarkDead moves the ticket to the dead-letter set
func (t *RetryTicket) MarkDead(reason string) {
	t.Status = TicketStatusDead
	if reason != "" {
		t.LastError = reason
	}
	t.Touch()
}

// ResetForReplay re-arms a dead ticket for a manual replay with a fresh
// attempt budget
func (t *RetryTicket) ResetForReplay() error {
	if t.Status != TicketStatusDead {
		return shared.ErrInvalidState
	}
	t.Status = TicketStatusScheduled
	t.AttemptCount = 0
	t.NextAttemptAt = time.Now()
	t.Touch()
	return nil
}

// Backoff returns the delay before the given attempt using exponential
// growth with full jitter. Attempt 1 draws from (0, base], each further
// attempt doubles the ceiling up to max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ceiling := base << (attempt - 1)
	if ceiling > max || ceiling <= 0 {
		ceiling = max
	}
	return time.Duration(rand.Int63n(int64(ceiling)) + 1)
}
