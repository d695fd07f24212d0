// Package ratelimit throttles clients of the fixture API so callers can exercise their
// handling of 429 responses.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Limiter decides whether the next request of a client may proceed
type Limiter interface {
	// Allow consumes one request for key
	Allow(ctx context.Context, key string) (*Info, error)
	Close() error
}

// Info describes the state of a key after a call to Allow
type Info struct {
	// Limit is the number of requests allowed per window
	Limit int
	// Remaining is what is left of the current window
	Remaining int
	// ResetAt is when a refused key may try again
	ResetAt time.Time
	Allowed bool
}

// Config sets the request budget of every key
type Config struct {
	Limit  int
	Window time.Duration
	// Prefix namespaces keys in shared backends
	Prefix string
}

// DefaultConfig allows 100 requests per minute
func DefaultConfig() Config {
	return Config{
		Limit:  100,
		Window: time.Minute,
		Prefix: "spine:ratelimit:",
	}
}

func (c Config) validate() error {
	if c.Limit <= 0 {
		return errors.New("limit must be greater than 0")
	}
	if c.Window <= 0 {
		return errors.New("window must be greater than 0")
	}
	return nil
}
