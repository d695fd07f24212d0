package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowScript counts a request in the fixed window of KEYS[1], starting the window on
// the first request. Returns the count and the milliseconds left in the window.
var windowScript = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return {count, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter is a fixed window Limiter shared by every process using the same Redis
type RedisLimiter struct {
	client *redis.Client
	config Config
	now    func() time.Time
}

// NewRedisLimiter connects to the Redis server at url and verifies the connection
func NewRedisLimiter(ctx context.Context, url string, config Config) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	l, err := NewRedisLimiterWithClient(client, config)
	if err != nil {
		client.Close()
		return nil, err
	}
	return l, nil
}

// NewRedisLimiterWithClient creates a RedisLimiter on an existing client
func NewRedisLimiterWithClient(client *redis.Client, config Config) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{client: client, config: config, now: time.Now}, nil
}

// Allow counts a request of key in its current window
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Info, error) {
	res, err := windowScript.Run(ctx, r.client, []string{r.config.Prefix + key}, r.config.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	if len(res) != 2 {
		return nil, errors.New("unexpected redis script result")
	}

	count, ttl := int(res[0]), time.Duration(res[1])*time.Millisecond
	if ttl < 0 {
		ttl = r.config.Window
	}

	remaining := r.config.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return &Info{
		Limit:     r.config.Limit,
		Remaining: remaining,
		ResetAt:   r.now().Add(ttl),
		Allowed:   count <= r.config.Limit,
	}, nil
}

// Reset forgets the window of key
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.config.Prefix+key).Err()
}

// Close closes the Redis connection
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
