package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is an in-memory Limiter. Each key holds up to Limit tokens which refill
// at Limit per Window.
type TokenBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  Config
	now     func() time.Time

	cleanup *time.Ticker
	done    chan struct{}
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a TokenBucket. A positive cleanupInterval starts a goroutine
// forgetting keys idle for two windows; Close stops it.
func NewTokenBucket(config Config, cleanupInterval time.Duration) (*TokenBucket, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	tb := &TokenBucket{
		buckets: make(map[string]*bucket),
		config:  config,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		tb.cleanup = time.NewTicker(cleanupInterval)
		go tb.cleanupLoop()
	}
	return tb, nil
}

// Allow consumes a token of key
func (tb *TokenBucket) Allow(ctx context.Context, key string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	limit := tb.config.Limit

	b, exists := tb.buckets[key]
	if !exists {
		b = &bucket{tokens: limit, lastRefill: now}
		tb.buckets[key] = b
	}

	if elapsed := now.Sub(b.lastRefill); elapsed > 0 {
		refill := int(float64(limit) * elapsed.Seconds() / tb.config.Window.Seconds())
		if refill > 0 {
			b.tokens = min(limit, b.tokens+refill)
			b.lastRefill = now
		}
	}

	info := &Info{
		Limit:   limit,
		ResetAt: b.lastRefill.Add(tb.config.Window),
	}
	if b.tokens > 0 {
		b.tokens--
		info.Allowed = true
	}
	info.Remaining = b.tokens
	return info, nil
}

// Len returns the number of tracked keys
func (tb *TokenBucket) Len() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return len(tb.buckets)
}

func (tb *TokenBucket) cleanupLoop() {
	for {
		select {
		case <-tb.cleanup.C:
			tb.sweep()
		case <-tb.done:
			return
		}
	}
}

// sweep forgets keys untouched for two windows
func (tb *TokenBucket) sweep() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	threshold := 2 * tb.config.Window
	now := tb.now()
	for key, b := range tb.buckets {
		if now.Sub(b.lastRefill) > threshold {
			delete(tb.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine
func (tb *TokenBucket) Close() error {
	select {
	case <-tb.done:
	default:
		close(tb.done)
		if tb.cleanup != nil {
			tb.cleanup.Stop()
		}
	}
	return nil
}
