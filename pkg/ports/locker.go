package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock obtained from a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker provides mutual exclusion across planner instances sharing a store.
type Locker interface {
	// Lock blocks until the lock for key is held or ctx is done. The lock expires
	// after ttl even if never released.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
