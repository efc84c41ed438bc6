package cache

import (
	"context"
	"time"
)

// Cache is the small key/value surface the calendar module needs:
// short-lived values read at most once, plus per-key mutual exclusion.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// GetDel returns the value and removes it. found is false for
	// missing or expired keys.
	GetDel(ctx context.Context, key string) (value string, found bool, err error)
	Locker
}

type Locker interface {
	// TryLock acquires key for ttl. ok is false when another holder owns it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Unlock releases key only if token still owns it.
	Unlock(ctx context.Context, key, token string) error
}
