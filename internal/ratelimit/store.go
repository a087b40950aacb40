// Package ratelimit implements the fixed-window request quota that guards the
// oracle endpoint. Counters live in a shared store (Redis) when one is
// configured; when the store is absent or unreachable the limiter fails open
// to an in-process counter map rather than denying traffic. Fresh results are
// memoized for a few seconds so bursts of near-simultaneous checks for the
// same identifier do not each round-trip to the store.
package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the minimal counter contract the limiter needs. Keys hold
// integer counters with an expiry. Implementations must make Incr atomic:
// the returned count is the value after this caller's increment, even under
// concurrent access from other processes.
type CounterStore interface {
	// Get returns the current count for key. ok is false when the key does
	// not exist (or has expired).
	Get(ctx context.Context, key string) (count int64, ok bool, err error)

	// Incr atomically increments key and returns the new count. When the key
	// is created by this call, its expiry is set to window; an existing key's
	// expiry is left untouched.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// TTL reports how long until key expires. A zero or negative duration
	// means the key is already stale (or has no expiry recorded).
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
