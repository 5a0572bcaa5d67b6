package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smarteros/backend/internal/domain/identity"
	"github.com/smarteros/backend/internal/domain/messaging"
	"github.com/smarteros/backend/internal/domain/shared"
	"github.com/smarteros/backend/internal/domain/sync"
	"github.com/smarteros/backend/internal/infrastructure/logger"
)

// serviceSegment is the service name used in published topic names
const serviceSegment = "erp"

// casAttempts bounds the reload-and-retry loop when a concurrent webhook
// for the same entity wins the compare-and-swap
const casAttempts = 3

// OutcomeStatus describes how an inbound event was resolved
type OutcomeStatus string

const (
	OutcomeApplied        OutcomeStatus = "applied"
	OutcomeDuplicate      OutcomeStatus = "duplicate"
	OutcomeStale          OutcomeStatus = "stale"
	OutcomeRetryScheduled OutcomeStatus = "retry_scheduled"
	OutcomeConflict       OutcomeStatus = "conflict"
)

// Outcome is the result of processing one inbound webhook event
type Outcome struct {
	Status   OutcomeStatus
	Record   *sync.SyncRecord
	TicketID uuid.UUID
}

// EngineConfig tunes retry budgets and backoff for the engine
type EngineConfig struct {
	MaxAttempts      int
	AttemptsPerClass map[string]int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
}

// attemptsFor returns the retry budget for an event class
func (c EngineConfig) attemptsFor(entityType sync.EntityType) int {
	if n, ok := c.AttemptsPerClass[string(entityType)]; ok && n > 0 {
		return n
	}
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return 8
}

func (c EngineConfig) backoffBounds() (time.Duration, time.Duration) {
	base := c.BaseBackoff
	if base <= 0 {
		base = time.Second
	}
	max := c.MaxBackoff
	if max <= 0 {
		max = 5 * time.Minute
	}
	return base, max
}

// TxRunner runs a function inside a database transaction
type TxRunner interface {
	Transaction(fn func(tx *gorm.DB) error) error
}

// EnvelopePublisher publishes an envelope inside the caller's transaction
type EnvelopePublisher interface {
	PublishInTx(ctx context.Context, txProvider any, envelope *messaging.EventEnvelope) error
}

// Engine is the reconciliation state machine. It converts one inbound
// webhook event into at most one forward sync record transition plus the
// matching ERP write, and publishes an envelope for every committed
// transition. All serialization is per entity via the record's version
// compare-and-swap; no lock is held across the ERP round-trip.
type Engine struct {
	inbound   sync.InboundEventRepository
	records   sync.SyncRecordRepository
	tenants   identity.TenantRepository
	tickets   messaging.RetryTicketRepository
	erp       sync.ERPAdapter
	publisher EnvelopePublisher
	tx        TxRunner
	cfg       EngineConfig
	logger    *zap.Logger
}

// NewEngine creates a sync engine
func NewEngine(
	inbound sync.InboundEventRepository,
	records sync.SyncRecordRepository,
	tenants identity.TenantRepository,
	tickets messaging.RetryTicketRepository,
	erp sync.ERPAdapter,
	publisher EnvelopePublisher,
	tx TxRunner,
	cfg EngineConfig,
	log *zap.Logger,
) *Engine {
	return &Engine{
		inbound:   inbound,
		records:   records,
		tenants:   tenants,
		tickets:   tickets,
		erp:       erp,
		publisher: publisher,
		tx:        tx,
		cfg:       cfg,
		logger:    log,
	}
}

// ProcessInbound runs the full pipeline for one verified webhook event.
// The conditional insert on the dedup key is the concurrency gate; a
// redelivered event still re-enters reconciliation, which no-ops when
// the earlier delivery already completed and resumes it when it did not.
func (e *Engine) ProcessInbound(ctx context.Context, tenant *identity.Tenant, event *sync.InboundWebhookEvent) (*Outcome, error) {
	recorded, err := e.inbound.Record(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("record inbound event: %w", err)
	}
	if !recorded {
		// redelivery: reconcile the originally recorded event so an
		// abandoned in-flight sync resumes instead of being lost
		original, err := e.inbound.FindByDedupKey(ctx, event.DedupKey())
		if err != nil {
			return nil, err
		}
		outcome, err := e.Reconcile(ctx, tenant, original)
		if err != nil {
			return outcome, err
		}
		if outcome.Status == OutcomeApplied {
			return outcome, nil
		}
		return &Outcome{Status: OutcomeDuplicate, Record: outcome.Record}, nil
	}

	return e.Reconcile(ctx, tenant, event)
}

// Reconcile performs steps 3 onward for a durably recorded event: claim
// the sync record, write to the ERP, commit the transition and publish.
// Manual replay of dead-lettered events re-enters here.
func (e *Engine) Reconcile(ctx context.Context, tenant *identity.Tenant, event *sync.InboundWebhookEvent) (*Outcome, error) {
	log := logger.WithLogger(ctx, e.logger).With(
		zap.String("tenant_code", tenant.Code),
		zap.String("entity_type", string(event.EntityType)),
		zap.String("entity_id", event.EntityID),
		zap.Int64("revision", event.Revision),
	)

	record, outcome, err := e.claim(ctx, event)
	if outcome != nil || err != nil {
		return outcome, err
	}

	entity, created, erpErr := e.writeERP(ctx, tenant, event)
	if erpErr != nil {
		return e.handleFailure(ctx, log, tenant, event, record, erpErr)
	}

	if err := e.commitApplied(ctx, tenant, event, record, entity.ID, created); err != nil {
		return nil, err
	}
	log.Info("sync record applied",
		zap.String("erp_id", entity.ID),
		zap.Bool("created", created))
	return &Outcome{Status: OutcomeApplied, Record: record}, nil
}

// Replay re-runs reconciliation for a previously recorded event, looked
// up by ID. The retry manager and the dead-letter replay endpoint enter
// here; the event is already durable so ingestion is skipped.
func (e *Engine) Replay(ctx context.Context, eventID uuid.UUID) (*Outcome, error) {
	event, err := e.inbound.FindByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	tenant, err := e.tenants.FindByID(ctx, event.TenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.CanProcessEvents() {
		return nil, shared.ErrTenantSuspended
	}
	return e.Reconcile(ctx, tenant, event)
}

// claim moves the record to pending for this revision using the version
// compare-and-swap; the CAS is the per-entity critical section and it
// never spans a network call
func (e *Engine) claim(ctx context.Context, event *sync.InboundWebhookEvent) (*sync.SyncRecord, *Outcome, error) {
	record, err := e.loadOrCreate(ctx, event)
	if err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		if err := record.BeginAttempt(event.Revision); err != nil {
			switch {
			case errors.Is(err, shared.ErrConflict):
				return nil, &Outcome{Status: OutcomeConflict, Record: record}, shared.ErrConflict
			case errors.Is(err, shared.ErrDuplicateEvent):
				return nil, &Outcome{Status: OutcomeStale, Record: record}, nil
			default:
				return nil, nil, err
			}
		}

		err := e.records.UpdateCAS(ctx, record)
		if err == nil {
			return record, nil, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, nil, err
		}

		// another webhook for the same entity won; re-read and re-decide
		record, err = e.records.FindByID(ctx, record.ID)
		if err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, shared.ErrConcurrencyConflict
}

func (e *Engine) loadOrCreate(ctx context.Context, event *sync.InboundWebhookEvent) (*sync.SyncRecord, error) {
	record, err := e.records.FindByKey(ctx, event.TenantID, event.EntityType, event.EntityID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	record, err = sync.NewSyncRecord(event.TenantID, event.EntityType, event.EntityID)
	if err != nil {
		return nil, err
	}
	if err := e.records.Create(ctx, record); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// lost the creation race to a concurrent webhook
			return e.records.FindByKey(ctx, event.TenantID, event.EntityType, event.EntityID)
		}
		return nil, err
	}
	return record, nil
}

// writeERP performs the lookup-before-write against the ERP so a crash
// and retry after a partially successful write never duplicates entities
func (e *Engine) writeERP(ctx context.Context, tenant *identity.Tenant, event *sync.InboundWebhookEvent) (*sync.ERPEntity, bool, error) {
	ref := ExternalRef(event)
	payload, err := BuildERPPayload(event)
	if err != nil {
		return nil, false, err
	}

	existing, err := e.erp.FindByExternalRef(ctx, tenant.ID, event.EntityType, ref)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		entity, err := e.erp.Create(ctx, tenant.ID, payload)
		return entity, true, err
	}
	entity, err := e.erp.Update(ctx, tenant.ID, existing.ID, payload)
	return entity, false, err
}

// commitApplied commits the applied transition and its envelope in one
// transaction; an envelope exists exactly when the transition committed
func (e *Engine) commitApplied(ctx context.Context, tenant *identity.Tenant, event *sync.InboundWebhookEvent, record *sync.SyncRecord, erpID string, created bool) error {
	if err := record.Apply(event.Revision, erpID); err != nil {
		return err
	}

	envelope, err := e.transitionEnvelope(ctx, tenant, event, record, created)
	if err != nil {
		return err
	}

	if err := e.tx.Transaction(func(tx *gorm.DB) error {
		if err := e.records.UpdateCASInTx(ctx, tx, record); err != nil {
			return err
		}
		return e.publisher.PublishInTx(ctx, tx, envelope)
	}); err != nil {
		return err
	}

	e.clearTicket(ctx, event)
	return nil
}

func (e *Engine) handleFailure(ctx context.Context, log *logger.ContextLogger, tenant *identity.Tenant, event *sync.InboundWebhookEvent, record *sync.SyncRecord, erpErr error) (*Outcome, error) {
	if errors.Is(erpErr, shared.ErrConflict) {
		return e.commitConflict(ctx, log, tenant, event, record, erpErr)
	}

	// everything else is retried: a dependency outage, a rejected lease
	// that the next attempt re-resolves, or an unclassified error
	if err := record.Fail(erpErr.Error()); err != nil {
		return nil, err
	}
	if err := e.records.UpdateCAS(ctx, record); err != nil {
		return nil, err
	}

	ticketID, err := e.ensureTicket(ctx, event, erpErr)
	if err != nil {
		return nil, err
	}
	log.Warn("sync attempt failed, retry scheduled",
		zap.String("ticket_id", ticketID.String()),
		zap.Error(erpErr))
	return &Outcome{Status: OutcomeRetryScheduled, Record: record, TicketID: ticketID}, nil
}

func (e *Engine) commitConflict(ctx context.Context, log *logger.ContextLogger, tenant *identity.Tenant, event *sync.InboundWebhookEvent, record *sync.SyncRecord, cause error) (*Outcome, error) {
	if err := record.MarkConflict(cause.Error()); err != nil {
		return nil, err
	}

	envelope, err := e.conflictEnvelope(ctx, tenant, event, record, cause)
	if err != nil {
		return nil, err
	}
	if err := e.tx.Transaction(func(tx *gorm.DB) error {
		if err := e.records.UpdateCASInTx(ctx, tx, record); err != nil {
			return err
		}
		return e.publisher.PublishInTx(ctx, tx, envelope)
	}); err != nil {
		return nil, err
	}

	log.Error("sync conflict requires manual resolution", zap.Error(cause))
	return &Outcome{Status: OutcomeConflict, Record: record}, shared.ErrConflict
}

// ensureTicket creates the retry ticket on first failure; later failures
// of the same subject are rescheduled by the retry manager
func (e *Engine) ensureTicket(ctx context.Context, event *sync.InboundWebhookEvent, cause error) (uuid.UUID, error) {
	subjectID := event.ID.String()
	existing, err := e.tickets.FindBySubject(ctx, messaging.SubjectWebhookEvent, subjectID)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return uuid.Nil, err
	}

	base, maxBackoff := e.cfg.backoffBounds()
	ticket, err := messaging.NewRetryTicket(
		event.TenantID,
		messaging.SubjectWebhookEvent,
		subjectID,
		cause.Error(),
		e.cfg.attemptsFor(event.EntityType),
		messaging.Backoff(1, base, maxBackoff),
	)
	if err != nil {
		return uuid.Nil, err
	}
	if err := e.tickets.Save(ctx, ticket); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			if existing, findErr := e.tickets.FindBySubject(ctx, messaging.SubjectWebhookEvent, subjectID); findErr == nil {
				return existing.ID, nil
			}
		}
		return uuid.Nil, err
	}
	return ticket.ID, nil
}

// clearTicket removes the subject's retry ticket after a success
func (e *Engine) clearTicket(ctx context.Context, event *sync.InboundWebhookEvent) {
	ticket, err := e.tickets.FindBySubject(ctx, messaging.SubjectWebhookEvent, event.ID.String())
	if err != nil {
		return
	}
	if err := e.tickets.Delete(ctx, ticket.ID); err != nil {
		e.logger.Warn("failed to remove retry ticket after success",
			zap.String("ticket_id", ticket.ID.String()),
			zap.Error(err))
	}
}

type transitionPayload struct {
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	ERPID         string `json:"erp_id,omitempty"`
	Revision      int64  `json:"revision"`
	State         string `json:"state"`
	Source        string `json:"source"`
	SourceEventID string `json:"source_event_id"`
	Error         string `json:"error,omitempty"`
}

func (e *Engine) transitionEnvelope(ctx context.Context, tenant *identity.Tenant, event *sync.InboundWebhookEvent, record *sync.SyncRecord, created bool) (*messaging.EventEnvelope, error) {
	action := "updated"
	if created {
		action = "created"
	}
	return e.buildEnvelope(ctx, tenant, fmt.Sprintf("%s_%s", event.EntityType, action), transitionPayload{
		EntityType:    string(event.EntityType),
		EntityID:      event.EntityID,
		ERPID:         record.ERPID,
		Revision:      record.Revision,
		State:         string(record.State),
		Source:        event.Source,
		SourceEventID: event.SourceEventID,
	})
}

func (e *Engine) conflictEnvelope(ctx context.Context, tenant *identity.Tenant, event *sync.InboundWebhookEvent, record *sync.SyncRecord, cause error) (*messaging.EventEnvelope, error) {
	return e.buildEnvelope(ctx, tenant, "sync_conflict", transitionPayload{
		EntityType:    string(event.EntityType),
		EntityID:      event.EntityID,
		ERPID:         record.ERPID,
		Revision:      event.Revision,
		State:         string(record.State),
		Source:        event.Source,
		SourceEventID: event.SourceEventID,
		Error:         cause.Error(),
	})
}

func (e *Engine) buildEnvelope(ctx context.Context, tenant *identity.Tenant, eventType string, payload transitionPayload) (*messaging.EventEnvelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	return messaging.NewEventEnvelope(tenant.Code, serviceSegment, eventType, body, traceID)
}
