package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStoreMarkAndCheck(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	seen, err := store.IsProcessed(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, store.MarkProcessed(ctx, "k1", time.Minute))
	seen, err = store.IsProcessed(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestInMemoryIdempotencyStoreExpiry(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.MarkProcessed(ctx, "k1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	seen, err := store.IsProcessed(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestInMemoryIdempotencyStoreRemove(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.MarkProcessed(ctx, "k1", time.Minute))
	require.NoError(t, store.Remove(ctx, "k1"))
	seen, err := store.IsProcessed(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.Zero(t, store.Size())
}

func TestInMemoryIdempotencyStoreCleanup(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.MarkProcessed(ctx, "k1", time.Millisecond))
	require.NoError(t, store.MarkProcessed(ctx, "k2", time.Hour))
	time.Sleep(5 * time.Millisecond)
	store.cleanup()
	assert.Equal(t, 1, store.Size())
}
