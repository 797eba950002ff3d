// Package ratelimit throttles unauthenticated endpoints per client IP using a
// token bucket kept in Redis.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "gophaudio:ratelimit:ip:"
	keyTTL    = 10 * time.Second
)

// Result is the outcome of a single Allow call.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter decides whether a request from ip may proceed.
type Limiter interface {
	Allow(ctx context.Context, ip string) (*Result, error)
}

// tokenBucket refills at rate tokens per second up to burst and takes one
// token per call, atomically.
var tokenBucket = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + ((now - last_update) * rate))

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// RedisLimiter is a Limiter backed by Redis.
type RedisLimiter struct {
	client *redis.Client
	rate   int
	burst  int
	now    func() time.Time
	// run evaluates the bucket script; replaced in tests
	run func(ctx context.Context, key string, args ...any) ([]int64, error)
}

// New connects to redisURL and returns a limiter allowing rate requests per
// second with the given burst.
func New(ctx context.Context, redisURL string, rate, burst int) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return newRedisLimiter(client, rate, burst), nil
}

func newRedisLimiter(client *redis.Client, rate, burst int) *RedisLimiter {
	l := &RedisLimiter{client: client, rate: rate, burst: burst, now: time.Now}
	l.run = func(ctx context.Context, key string, args ...any) ([]int64, error) {
		return tokenBucket.Run(ctx, client, []string{key}, args...).Int64Slice()
	}
	return l
}

// Allow takes a token for ip. When Redis is unreachable the request is
// allowed and the error is returned alongside for logging.
func (l *RedisLimiter) Allow(ctx context.Context, ip string) (*Result, error) {
	if l.rate <= 0 {
		return &Result{Allowed: true, Remaining: int64(l.burst)}, nil
	}

	out, err := l.run(ctx, keyPrefix+hashIP(ip), l.rate, l.burst, l.now().Unix(), int(keyTTL.Seconds()))
	if err != nil {
		return &Result{Allowed: true, Remaining: int64(l.burst)}, fmt.Errorf("rate limit check: %w", err)
	}
	if len(out) != 3 {
		return &Result{Allowed: true, Remaining: int64(l.burst)}, fmt.Errorf("rate limit check: unexpected reply %v", out)
	}

	return &Result{
		Allowed:    out[0] == 1,
		RetryAfter: time.Duration(out[1]) * time.Second,
		Remaining:  out[2],
	}, nil
}

// Ping checks Redis connectivity.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// hashIP keeps raw addresses out of Redis.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}

// Unlimited is a Limiter that lets everything through. It is used when no
// Redis is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (*Result, error) {
	return &Result{Allowed: true}, nil
}
