package providers

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by CacheProvider.Get when the key is absent
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider defines the interface for short-lived caching of external
// lookups such as classifier predictions
type CacheProvider interface {
	// Get retrieves a value, returning ErrCacheMiss when absent
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a time to live
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error
}
