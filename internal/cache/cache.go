// Package cache provides a small JSON-value cache abstraction with a Redis
// implementation for production and an in-memory one for tests and
// single-node setups.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss indicates the key is absent (or expired).
var ErrMiss = errors.New("cache miss")

// Cache stores JSON-encoded values under string keys. Get decodes into
// dest and returns ErrMiss when the key is absent. A zero TTL means no
// expiry. Increment adds amount to the integer at key, treating a missing
// key as zero, and returns the new value.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Increment(ctx context.Context, key string, amount int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}
