package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys of completed operations for a while so
// that a repeated request can be recognized
type IdempotencyStore interface {
	// MarkProcessed records key with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed reports whether key is present and not expired
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close releases the store's resources
	Close() error
}

// DefaultIdempotencyTTL is how long completed run keys are remembered
const DefaultIdempotencyTTL = 24 * time.Hour
