// Package lock provides advisory locking for approval requests.
//
// Locks are used to serialize decision processing and reminder scans
// per request across process instances. They are advisory: correctness
// is still guaranteed by guarded status updates in the store, the lock
// only reduces wasted work under contention.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired indicates the lock is held by another holder.
var ErrNotAcquired = errors.New("lock held by another holder")

// Locker acquires advisory locks keyed by request ID.
type Locker interface {
	// Acquire acquires the lock for key with the given TTL.
	// Returns ErrNotAcquired if another holder owns the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Handle, error)
}

// Handle represents a held lock.
type Handle interface {
	// Extend extends the TTL of the held lock.
	Extend(ctx context.Context, ttl time.Duration) error

	// Release releases the lock. Safe to call more than once.
	Release(ctx context.Context) error

	// Key returns the locked key.
	Key() string
}
