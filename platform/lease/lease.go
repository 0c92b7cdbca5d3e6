// Package lease provides a time-bounded mutual-exclusion primitive used to
// serialize concurrent updates to a contended row (a scheduled work
// instance touched by multiple devices). The backing coordination store is
// hidden behind the Locker interface so it is swappable without touching
// reconciliation logic.
package lease

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the lease could not be acquired within
// the caller's wait budget. Callers map this to a non-retrying "busy"
// outcome; it must never feed an outer retry policy.
var ErrNotAcquired = errors.New("lease: not acquired")

// Lease is a held lock with a TTL. The holder may renew it while long
// work is in progress and must release it when done. An unreleased lease
// expires on its own after the TTL.
type Lease interface {
	// Key returns the resource key the lease guards.
	Key() string
	// Renew extends the lease by ttl. Fails if the lease has already
	// expired or was taken over by another holder.
	Renew(ctx context.Context, ttl time.Duration) error
	// Release frees the lease if this holder still owns it.
	Release(ctx context.Context) error
}

// Locker acquires leases on named resources.
type Locker interface {
	// Acquire obtains a lease on key with the given ttl, blocking up to
	// wait for a competing holder to release it. Returns ErrNotAcquired
	// when the wait budget is exhausted.
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (Lease, error)
}
