package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/smarteros/backend/internal/domain/messaging"
	"github.com/smarteros/backend/internal/domain/shared"
)

// setupMessagingTestDB creates an in-memory SQLite database for testing
func setupMessagingTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE event_envelopes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			tenant_code TEXT NOT NULL,
			service TEXT NOT NULL,
			event_type TEXT NOT NULL,
			topic TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			payload BLOB,
			trace_id TEXT
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE consumer_offsets (
			group_name TEXT NOT NULL,
			topic TEXT NOT NULL,
			last_seq INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY(group_name, topic)
		)
	`).Error
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE retry_tickets (
			id TEXT PRIMARY KEY,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			tenant_id TEXT NOT NULL,
			subject_type TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL,
			next_attempt_at DATETIME NOT NULL,
			last_error TEXT,
			status TEXT NOT NULL,
			UNIQUE(subject_type, subject_id)
		)
	`).Error
	require.NoError(t, err)

	return db
}

func newEnvelope(t *testing.T, tenantCode, eventType string) *messaging.EventEnvelope {
	t.Helper()
	env, err := messaging.NewEventEnvelope(tenantCode, "erp", eventType, json.RawMessage(`{"ok":true}`), "trace-1")
	require.NoError(t, err)
	return env
}

func TestGormEnvelopeRepository_AppendAssignsSeq(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormEnvelopeRepository(db)
	ctx := context.Background()

	first := newEnvelope(t, "t1", "order_created")
	require.NoError(t, repo.Append(ctx, nil, first))
	second := newEnvelope(t, "t1", "order_updated")
	require.NoError(t, repo.Append(ctx, nil, second))

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)

	maxSeq, err := repo.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), maxSeq)
}

func TestGormEnvelopeRepository_AppendIsIdempotentByEventID(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormEnvelopeRepository(db)
	ctx := context.Background()

	env := newEnvelope(t, "t1", "order_created")
	require.NoError(t, repo.Append(ctx, nil, env))
	require.NoError(t, repo.Append(ctx, nil, env), "retried publication is a no-op")

	envelopes, err := repo.FindAfter(ctx, 0, 10)
	require.NoError(t, err)
	assert.Len(t, envelopes, 1)
}

func TestGormEnvelopeRepository_AppendInTransaction(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormEnvelopeRepository(db)
	ctx := context.Background()

	// a rolled back transaction publishes nothing
	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, repo.Append(ctx, tx, newEnvelope(t, "t1", "order_created")))
		return assert.AnError
	})
	require.Error(t, err)

	envelopes, err := repo.FindAfter(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, envelopes, "no speculative publication")
}

func TestGormEnvelopeRepository_FindAfter(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormEnvelopeRepository(db)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, nil, newEnvelope(t, "t1", "order_created")))
	}

	envelopes, err := repo.FindAfter(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	assert.Equal(t, int64(3), envelopes[0].Seq)
	assert.Equal(t, int64(4), envelopes[1].Seq)
}

func TestGormConsumerOffsetRepository_AdvanceIsMonotonic(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormConsumerOffsetRepository(db)
	ctx := context.Background()
	topic, err := messaging.ParseTopic("t1.erp.order_created")
	require.NoError(t, err)

	off, err := repo.Get(ctx, "audit", topic)
	require.NoError(t, err)
	assert.Zero(t, off)

	require.NoError(t, repo.Advance(ctx, "audit", topic, 5))
	require.NoError(t, repo.Advance(ctx, "audit", topic, 3), "stale advance is ignored")

	off, err = repo.Get(ctx, "audit", topic)
	require.NoError(t, err)
	assert.Equal(t, int64(5), off)

	require.NoError(t, repo.Advance(ctx, "audit", topic, 8))
	off, err = repo.Get(ctx, "audit", topic)
	require.NoError(t, err)
	assert.Equal(t, int64(8), off)
}

func TestGormConsumerOffsetRepository_GroupsAreIndependent(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormConsumerOffsetRepository(db)
	ctx := context.Background()
	topic, err := messaging.ParseTopic("t1.erp.order_created")
	require.NoError(t, err)

	require.NoError(t, repo.Advance(ctx, "audit", topic, 10))
	require.NoError(t, repo.Advance(ctx, "analytics", topic, 2))

	auditOff, err := repo.Get(ctx, "audit", topic)
	require.NoError(t, err)
	analyticsOff, err := repo.Get(ctx, "analytics", topic)
	require.NoError(t, err)
	assert.Equal(t, int64(10), auditOff)
	assert.Equal(t, int64(2), analyticsOff)
}

func TestGormConsumerOffsetRepository_MinOffset(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormConsumerOffsetRepository(db)
	ctx := context.Background()

	orderTopic, _ := messaging.ParseTopic("t1.erp.order_created")
	stockTopic, _ := messaging.ParseTopic("t1.erp.stock_updated")

	minOff, err := repo.MinOffset(ctx, "audit")
	require.NoError(t, err)
	assert.Zero(t, minOff)

	require.NoError(t, repo.Advance(ctx, "audit", orderTopic, 9))
	require.NoError(t, repo.Advance(ctx, "audit", stockTopic, 4))

	minOff, err = repo.MinOffset(ctx, "audit")
	require.NoError(t, err)
	assert.Equal(t, int64(4), minOff)
}

func TestGormRetryTicketRepository_OneLiveTicketPerSubject(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormRetryTicketRepository(db)
	ctx := context.Background()

	ticket, err := messaging.NewRetryTicket(uuid.New(), messaging.SubjectWebhookEvent, "evt-1", "boom", 8, time.Second)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, ticket))

	dup, err := messaging.NewRetryTicket(uuid.New(), messaging.SubjectWebhookEvent, "evt-1", "boom again", 8, time.Second)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Save(ctx, dup), shared.ErrAlreadyExists)
}

func TestGormRetryTicketRepository_FindDue(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormRetryTicketRepository(db)
	ctx := context.Background()

	due, err := messaging.NewRetryTicket(uuid.New(), messaging.SubjectWebhookEvent, "evt-1", "boom", 8, -time.Minute)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, due))

	future, err := messaging.NewRetryTicket(uuid.New(), messaging.SubjectWebhookEvent, "evt-2", "boom", 8, time.Hour)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, future))

	dead, err := messaging.NewRetryTicket(uuid.New(), messaging.SubjectWebhookEvent, "evt-3", "boom", 1, -time.Minute)
	require.NoError(t, err)
	dead.MarkDead("exhausted")
	require.NoError(t, repo.Save(ctx, dead))

	tickets, err := repo.FindDue(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "evt-1", tickets[0].SubjectID)

	deadTickets, total, err := repo.ListDead(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, deadTickets, 1)
	assert.Equal(t, "evt-3", deadTickets[0].SubjectID)
}

func TestGormRetryTicketRepository_UpdateAndDelete(t *testing.T) {
	db := setupMessagingTestDB(t)
	repo := NewGormRetryTicketRepository(db)
	ctx := context.Background()

	ticket, err := messaging.NewRetryTicket(uuid.New(), messaging.SubjectWebhookEvent, "evt-1", "boom", 8, time.Second)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, ticket))

	require.NoError(t, ticket.Reschedule("still down", time.Minute))
	require.NoError(t, repo.Update(ctx, ticket))

	stored, err := repo.FindBySubject(ctx, messaging.SubjectWebhookEvent, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AttemptCount)
	assert.Equal(t, "still down", stored.LastError)

	require.NoError(t, repo.Delete(ctx, ticket.ID))
	_, err = repo.FindBySubject(ctx, messaging.SubjectWebhookEvent, "evt-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
