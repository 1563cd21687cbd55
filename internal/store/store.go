// Package store provides the atomic counter-with-expiry primitive that rate
// limiting is built on. Both backends guarantee that the
// increment-and-renew-expiry sequence is atomic with respect to concurrent
// callers on the same key.
package store

import (
	"context"
	"time"
)

// Counter is a keyed integer counter whose expiry is renewed on every
// increment.
type Counter interface {
	// Incr atomically increments key and renews its expiry to ttl. It
	// returns the new count and the time the key had left *before* the
	// renewal; prev is negative when the key was created (or had
	// expired) on this call.
	Incr(ctx context.Context, key string, ttl time.Duration) (count int64, prev time.Duration, err error)

	// Reset deletes the counter for key.
	Reset(ctx context.Context, key string) error

	Close() error
}
