package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock taken by a Locker.
type UnlockFunc func(ctx context.Context) error

// Locker serializes snapshot writes of one session across processes sharing
// a store.
type Locker interface {
	// Lock blocks until key is held, ctx ends, or the implementation gives up.
	// The lock expires after ttl if the holder never calls the UnlockFunc.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
