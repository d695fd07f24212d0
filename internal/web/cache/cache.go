// Package cache stores rendered documents of the fixture API so repeated reads skip the
// serializer. Entries are dropped wholesale whenever the underlying store changes.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when a key is absent or expired
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL; zero selects the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values under the backend's prefix
	Clear(ctx context.Context) error
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is the default time-to-live for cached items
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "spine:",
	}
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
