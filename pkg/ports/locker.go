package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock taken by DistributedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes access to one checkpoint across processes that
// share a store, for example several `tasktree serve` replicas over Redis.
type DistributedLocker interface {
	// Lock blocks until the lock for key (a task ID) is held or ctx ends. The
	// lock expires after ttl if the holder dies without unlocking.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
