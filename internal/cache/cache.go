// Package cache provides the fast tier used in front of durable stores:
// a plain TTL key-value contract with Redis and in-process implementations.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is the generic TTL key-value contract. Implementations assume no
// other semantics (no pub/sub, no counters).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
