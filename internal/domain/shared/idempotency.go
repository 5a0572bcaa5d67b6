package shared

import (
	"context"
	"time"
)

// IdempotencyStore tracks which keys have already been processed so that
// at-least-once delivery can be collapsed into exactly-once effects.
type IdempotencyStore interface {
	// IsProcessed returns true when the key has already been marked
	IsProcessed(ctx context.Context, key string) (bool, error)

	// MarkProcessed records the key with a TTL; expired keys may be
	// processed again, so the TTL must exceed the maximum redelivery window
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) error

	// Remove deletes the key, allowing reprocessing (used on handler failure)
	Remove(ctx context.Context, key string) error
}
