package messaging

import (
	"context"
	"encoding/json"
	"errors"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/identity"
	"github.com/smarteros/backend/internal/domain/messaging"
	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/domain/sync"
)

// deadLetterEventType names the envelope published when a subject is
// dead-lettered, for audit consumers
const deadLetterEventType = "sync_dead_letter"

// Replayer re-runs reconciliation for a recorded inbound event
type Replayer interface {
	Replay(ctx context.Context, eventID uuid.UUID) error
}

// ReplayerFunc adapts a function to the Replayer interface
type ReplayerFunc func(ctx context.Context, eventID uuid.UUID) error

func (f ReplayerFunc) Replay(ctx context.Context, eventID uuid.UUID) error {
	return f(ctx, eventID)
}

// DeadLetterArchiver stores the payload of an exhausted subject outside
// the hot tables and returns its location
type DeadLetterArchiver interface {
	Archive(ctx context.Context, ticket *messaging.RetryTicket, payload []byte) (string, error)
}

// Publisher appends an envelope to the log outside a caller transaction
type Publisher interface {
	Publish(ctx context.Context, envelope *messaging.EventEnvelope) error
}

// RetryManagerConfig tunes the retry poll loop and backoff curve
type RetryManagerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

func (c RetryManagerConfig) withDefaults() RetryManagerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// RetryManager drives due retry tickets back through the sync engine and
// moves exhausted ones to the dead-letter set. An exhausted subject is
// never dropped silently: its payload is archived and a dead-letter
// envelope is published for operators to act on.
type RetryManager struct {
	tickets   messaging.RetryTicketRepository
	inbound   sync.InboundEventRepository
	tenants   identity.TenantRepository
	replayer  Replayer
	archiver  DeadLetterArchiver
	publisher Publisher
	cfg       RetryManagerConfig
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// NewRetryManager creates a retry manager; archiver may be nil
func NewRetryManager(
	tickets messaging.RetryTicketRepository,
	inbound sync.InboundEventRepository,
	tenants identity.TenantRepository,
	replayer Replayer,
	archiver DeadLetterArchiver,
	publisher Publisher,
	cfg RetryManagerConfig,
	log *zap.Logger,
) *RetryManager {
	return &RetryManager{
		tickets:   tickets,
		inbound:   inbound,
		tenants:   tenants,
		replayer:  replayer,
		archiver:  archiver,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    log,
	}
}

// Start launches the background poll loop
func (m *RetryManager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		for {
			if err := m.RunDue(ctx); err != nil && ctx.Err() == nil {
				m.logger.Error("retry sweep failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it
func (m *RetryManager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// RunDue processes one batch of due tickets
func (m *RetryManager) RunDue(ctx context.Context) error {
	due, err := m.tickets.FindDue(ctx, time.Now(), m.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, ticket := range due {
		if err := m.attempt(ctx, ticket); err != nil {
			m.logger.Error("retry attempt bookkeeping failed",
				zap.String("ticket_id", ticket.ID.String()),
				zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// ListDead returns the dead-letter set for the admin API
func (m *RetryManager) ListDead(ctx context.Context, offset, limit int) ([]*messaging.RetryTicket, int64, error) {
	return m.tickets.ListDead(ctx, offset, limit)
}

// ReplayDead re-arms a dead ticket and attempts it immediately
func (m *RetryManager) ReplayDead(ctx context.Context, ticketID uuid.UUID) error {
	ticket, err := m.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := ticket.ResetForReplay(); err != nil {
		return err
	}
	if err := m.tickets.Update(ctx, ticket); err != nil {
		return err
	}
	return m.attempt(ctx, ticket)
}

// attempt replays one ticket's subject and either resolves, reschedules
// or dead-letters the ticket
func (m *RetryManager) attempt(ctx context.Context, ticket *messaging.RetryTicket) error {
	if ticket.SubjectType != messaging.SubjectWebhookEvent {
		ticket.MarkDead("unreplayable subject type " + string(ticket.SubjectType))
		return m.tickets.Update(ctx, ticket)
	}
	eventID, err := uuid.Parse(ticket.SubjectID)
	if err != nil {
		ticket.MarkDead("malformed subject id: " + err.Error())
		return m.tickets.Update(ctx, ticket)
	}

	replayErr := m.replayer.Replay(ctx, eventID)
	if replayErr == nil || errors.Is(replayErr, shared.ErrConflict) {
		// resolved, or terminal conflict already announced by the engine
		return m.tickets.Delete(ctx, ticket.ID)
	}

	delay := messaging.Backoff(ticket.AttemptCount+1, m.cfg.BaseBackoff, m.cfg.MaxBackoff)
	if err := ticket.Reschedule(replayErr.Error(), delay); err != nil {
		return err
	}
	if ticket.Exhausted() {
		return m.exhaust(ctx, ticket, replayErr)
	}
	return m.tickets.Update(ctx, ticket)
}

// DeadLetter records an envelope a consumer group gave up on. It lands
// directly in the dead-letter set; the dispatcher already spent the
// delivery budget.
func (m *RetryManager) DeadLetter(ctx context.Context, group string, envelope *messaging.EventEnvelope, cause error) error {
	tenant, err := m.tenants.FindByCode(ctx, envelope.TenantCode)
	if err != nil {
		return err
	}
	ticket, err := messaging.NewRetryTicket(
		tenant.ID,
		messaging.SubjectDelivery,
		group+":"+envelope.EventID.String(),
		cause.Error(),
		1,
		0,
	)
	if err != nil {
		return err
	}
	ticket.MarkDead(cause.Error())

	location := ""
	if m.archiver != nil {
		if location, err = m.archiver.Archive(ctx, ticket, envelope.Payload); err != nil {
			m.logger.Error("dead-letter archive failed",
				zap.String("ticket_id", ticket.ID.String()),
				zap.Error(err))
		}
	}
	if err := m.tickets.Save(ctx, ticket); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return nil
		}
		return err
	}
	// A group choking on dead-letter notices must not mint new notices
	// for them, or every failure becomes an endless chain.
	if envelope.EventType != deadLetterEventType {
		m.publishNotice(ctx, ticket, location)
	}
	return nil
}

type deadLetterNotice struct {
	TicketID        string `json:"ticket_id"`
	SubjectType     string `json:"subject_type"`
	SubjectID       string `json:"subject_id"`
	AttemptCount    int    `json:"attempt_count"`
	LastError       string `json:"last_error"`
	ArchiveLocation string `json:"archive_location,omitempty"`
}

// exhaust moves the ticket to the dead-letter set, archives the original
// payload and publishes a dead-letter envelope
func (m *RetryManager) exhaust(ctx context.Context, ticket *messaging.RetryTicket, cause error) error {
	ticket.MarkDead(cause.Error())

	location := ""
	if event, err := m.findPayload(ctx, ticket); err != nil {
		m.logger.Warn("dead-letter payload lookup failed",
			zap.String("ticket_id", ticket.ID.String()),
			zap.Error(err))
	} else if m.archiver != nil {
		location, err = m.archiver.Archive(ctx, ticket, event)
		if err != nil {
			m.logger.Error("dead-letter archive failed",
				zap.String("ticket_id", ticket.ID.String()),
				zap.Error(err))
		}
	}

	if err := m.tickets.Update(ctx, ticket); err != nil {
		return err
	}

	m.publishNotice(ctx, ticket, location)
	m.logger.Error("retry budget exhausted, subject dead-lettered",
		zap.String("ticket_id", ticket.ID.String()),
		zap.String("subject_id", ticket.SubjectID),
		zap.Int("attempts", ticket.AttemptCount),
		zap.Error(cause))
	return nil
}

func (m *RetryManager) findPayload(ctx context.Context, ticket *messaging.RetryTicket) ([]byte, error) {
	eventID, err := uuid.Parse(ticket.SubjectID)
	if err != nil {
		return nil, err
	}
	event, err := m.inbound.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(event)
}

func (m *RetryManager) publishNotice(ctx context.Context, ticket *messaging.RetryTicket, location string) {
	tenant, err := m.tenants.FindByID(ctx, ticket.TenantID)
	if err != nil {
		m.logger.Error("cannot publish dead-letter notice without tenant",
			zap.String("ticket_id", ticket.ID.String()),
			zap.Error(err))
		return
	}
	body, err := json.Marshal(deadLetterNotice{
		TicketID:        ticket.ID.String(),
		SubjectType:     string(ticket.SubjectType),
		SubjectID:       ticket.SubjectID,
		AttemptCount:    ticket.AttemptCount,
		LastError:       ticket.LastError,
		ArchiveLocation: location,
	})
	if err != nil {
		return
	}
	envelope, err := messaging.NewEventEnvelope(tenant.Code, "erp", deadLetterEventType, body, "")
	if err != nil {
		return
	}
	if err := m.publisher.Publish(ctx, envelope); err != nil {
		m.logger.Error("failed to publish dead-letter notice",
			zap.String("ticket_id", ticket.ID.String()),
			zap.Error(err))
	}
}
