package messaging

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetryTicket(t *testing.T) {
	ticket, err := NewRetryTicket(uuid.New(), SubjectWebhookEvent, "evt-1", "erp unreachable", 8, time.Second)
	require.NoError(t, err)

	assert.Equal(t, 1, ticket.AttemptCount)
	assert.Equal(t, TicketStatusScheduled, ticket.Status)
	assert.False(t, ticket.Exhausted())
	assert.False(t, ticket.Due(time.Now()))
	assert.True(t, ticket.Due(time.Now().Add(2*time.Second)))
}

func TestRetryTicket_RescheduleUntilExhausted(t *testing.T) {
	ticket, err := NewRetryTicket(uuid.New(), SubjectWebhookEvent, "evt-1", "boom", 3, 0)
	require.NoError(t, err)

	require.NoError(t, ticket.Reschedule("still down", time.Minute))
	assert.Equal(t, 2, ticket.AttemptCount)
	assert.False(t, ticket.Exhausted())

	require.NoError(t, ticket.Reschedule("still down", time.Minute))
	assert.Equal(t, 3, ticket.AttemptCount)
	assert.True(t, ticket.Exhausted())
}

func TestRetryTicket_DeadLetterAndReplay(t *testing.T) {
	ticket, err := NewRetryTicket(uuid.New(), SubjectWebhookEvent, "evt-1", "boom", 1, 0)
	require.NoError(t, err)
	require.True(t, ticket.Exhausted())

	ticket.MarkDead("retry budget exhausted")
	assert.Equal(t, TicketStatusDead, ticket.Status)
	assert.False(t, ticket.Due(time.Now().Add(time.Hour)))
	assert.Error(t, ticket.Reschedule("x", time.Minute))

	require.NoError(t, ticket.ResetForReplay())
	assert.Equal(t, TicketStatusScheduled, ticket.Status)
	assert.Zero(t, ticket.AttemptCount)
	assert.True(t, ticket.Due(time.Now()))
}

func TestBackoff(t *testing.T) {
	base := time.Second
	max := 5 * time.Minute

	for attempt := 1; attempt <= 20; attempt++ {
		ceiling := base << (attempt - 1)
		if ceiling > max || ceiling <= 0 {
			ceiling = max
		}
		for i := 0; i < 50; i++ {
			d := Backoff(attempt, base, max)
			assert.Greater(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, ceiling)
		}
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.LessOrEqual(t, Backoff(63, time.Second, 5*time.Minute), 5*time.Minute)
	}
}
