package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/messaging"
)

type memIdempotency struct {
	keys map[string]bool
}

func (m *memIdempotency) IsProcessed(_ context.Context, key string) (bool, error) {
	return m.keys[key], nil
}

func (m *memIdempotency) MarkProcessed(_ context.Context, key string, _ time.Duration) error {
	m.keys[key] = true
	return nil
}

func (m *memIdempotency) Remove(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func TestIdempotentHandlerCollapsesRedelivery(t *testing.T) {
	store := &memIdempotency{keys: make(map[string]bool)}
	inner := &recordingHandler{}
	h := NewIdempotentHandler("g", inner, store, time.Hour, zap.NewNop())
	envelope := mustEnvelope(t, "acme", "order_created")

	require.NoError(t, h.Handle(context.Background(), envelope))
	require.NoError(t, h.Handle(context.Background(), envelope))
	assert.Len(t, inner.seen, 1)
}

func TestIdempotentHandlerScopesPerGroup(t *testing.T) {
	store := &memIdempotency{keys: make(map[string]bool)}
	first := &recordingHandler{}
	second := &recordingHandler{}
	envelope := mustEnvelope(t, "acme", "order_created")

	require.NoError(t, NewIdempotentHandler("a", first, store, time.Hour, zap.NewNop()).Handle(context.Background(), envelope))
	require.NoError(t, NewIdempotentHandler("b", second, store, time.Hour, zap.NewNop()).Handle(context.Background(), envelope))
	assert.Len(t, first.seen, 1)
	assert.Len(t, second.seen, 1)
}

func TestIdempotentHandlerFailureLeavesNoMark(t *testing.T) {
	store := &memIdempotency{keys: make(map[string]bool)}
	inner := &recordingHandler{err: errors.New("boom")}
	h := NewIdempotentHandler("g", inner, store, time.Hour, zap.NewNop())
	envelope := mustEnvelope(t, "acme", "order_created")

	require.Error(t, h.Handle(context.Background(), envelope))
	assert.Empty(t, store.keys)

	// next delivery is processed again
	inner.err = nil
	require.NoError(t, h.Handle(context.Background(), envelope))
	assert.Len(t, inner.seen, 2)
}

// stepIdempotency records the order of store calls relative to the handler.
type stepIdempotency struct {
	memIdempotency
	steps   *[]string
	markErr error
}

func (s *stepIdempotency) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	*s.steps = append(*s.steps, "mark")
	if s.markErr != nil {
		return s.markErr
	}
	return s.memIdempotency.MarkProcessed(ctx, key, ttl)
}

type stepHandler struct {
	steps *[]string
}

func (h *stepHandler) Handle(context.Context, *messaging.EventEnvelope) error {
	*h.steps = append(*h.steps, "handle")
	return nil
}

func TestIdempotentHandlerMarksOnlyAfterSuccess(t *testing.T) {
	// An interrupted handler must be redelivered, so the dedup mark may
	// never precede the effect it stands for.
	var steps []string
	store := &stepIdempotency{memIdempotency: memIdempotency{keys: make(map[string]bool)}, steps: &steps}
	h := NewIdempotentHandler("g", &stepHandler{steps: &steps}, store, time.Hour, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), mustEnvelope(t, "acme", "order_created")))
	assert.Equal(t, []string{"handle", "mark"}, steps)
}

func TestIdempotentHandlerToleratesMarkFailure(t *testing.T) {
	// Once the effect is applied a failing store must not push the
	// envelope toward the dead-letter set; a duplicate delivery is the
	// lesser harm.
	var steps []string
	store := &stepIdempotency{memIdempotency: memIdempotency{keys: make(map[string]bool)}, steps: &steps, markErr: errors.New("store down")}
	h := NewIdempotentHandler("g", &stepHandler{steps: &steps}, store, time.Hour, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), mustEnvelope(t, "acme", "order_created")))
	assert.Equal(t, []string{"handle", "mark"}, steps)
}

var _ messaging.Handler = (*IdempotentHandler)(nil)
