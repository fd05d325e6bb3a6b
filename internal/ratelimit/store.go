package ratelimit

import (
	"context"
	"time"
)

// IncrementEntry names one counter to increment and the expiry to apply.
type IncrementEntry struct {
	Key string
	TTL time.Duration
}

// CounterStore is the shared atomic counter backend. Implementations must
// provide an atomic increment; the limiter relies on it as its only
// cross-process synchronization primitive.
type CounterStore interface {
	// Get returns the current value for each key, zero for missing keys,
	// in the same order as keys.
	Get(ctx context.Context, keys ...string) ([]int64, error)
	// IncrementAndExpire increments every entry by one and applies its TTL,
	// as a single batch.
	IncrementAndExpire(ctx context.Context, entries ...IncrementEntry) error
	// Delete removes the given counters. Used for admin resets.
	Delete(ctx context.Context, keys ...string) error
}
