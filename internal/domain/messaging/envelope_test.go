package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventEnvelope(t *testing.T) {
	payload := json.RawMessage(`{"order_id":"E-100"}`)
	env, err := NewEventEnvelope("t1", "erp", "order_created", payload, "trace-1")
	require.NoError(t, err)

	assert.Equal(t, Topic("t1.erp.order_created"), env.Topic)
	assert.NotEqual(t, uuid.Nil, env.EventID)
	assert.Zero(t, env.Seq)
	assert.Equal(t, "trace-1", env.TraceID)
}

func TestNewEventEnvelope_Validation(t *testing.T) {
	_, err := NewEventEnvelope("t.1", "erp", "order_created", json.RawMessage(`{}`), "")
	assert.Error(t, err)

	_, err = NewEventEnvelope("t1", "erp", "order_created", nil, "")
	assert.Error(t, err)
}

func TestConsumerGroup_Matches(t *testing.T) {
	audit, err := ParsePattern("*.erp.*")
	require.NoError(t, err)
	tenantOnly, err := ParsePattern("t1.*.*")
	require.NoError(t, err)

	group := &ConsumerGroup{
		Name:     "audit",
		Patterns: []TopicPattern{audit, tenantOnly},
		Handler: HandlerFunc(func(ctx context.Context, envelope *EventEnvelope) error {
			return nil
		}),
	}

	orderTopic, _ := ParseTopic("t2.erp.order_created")
	assert.True(t, group.Matches(orderTopic))

	notifyTopic, _ := ParseTopic("t1.notify.message_sent")
	assert.True(t, group.Matches(notifyTopic))

	otherTopic, _ := ParseTopic("t2.notify.message_sent")
	assert.False(t, group.Matches(otherTopic))
}
