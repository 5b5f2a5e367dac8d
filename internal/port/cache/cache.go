// Package cache defines the port for byte-oriented key-value caching.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque values under string keys. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
