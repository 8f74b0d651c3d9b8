// Package lock provides per-execution mutual exclusion so a single instance
// drives a given execution at a time.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotHeld is returned when releasing or renewing a lock this owner
	// does not hold, including locks that expired and were taken over.
	ErrNotHeld = errors.New("lock not held")
)

// Locker acquires leases keyed by execution ID. A lease expires after its
// TTL, so a crashed holder never blocks an execution forever; live holders
// renew before expiry.
type Locker interface {
	// Acquire attempts to take the lock. It returns false without error
	// while any unexpired lease exists, including one taken by another
	// goroutine of the same instance.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees the lock if this acquisition still holds it.
	Release(ctx context.Context, key string) error
	// Renew extends the lease if this acquisition still holds it.
	Renew(ctx context.Context, key string, ttl time.Duration) error
}
