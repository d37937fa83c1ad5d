package cache

import (
	"context"
	"time"
)

// Store is the shared cache used for SSO state replay markers, rate limit
// counters and cached sessions. Redis and the SQL database both implement it.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Purger is implemented by stores that need expired rows removed.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
