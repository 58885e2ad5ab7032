package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// fixedWindowLua admits a request while the counter is below the limit. The
// key expires when the window ends, so an absent key starts a new window.
// Rejected requests never touch the counter.
//
// KEYS[1] counter key, ARGV[1] limit, ARGV[2] window in milliseconds.
// Returns {admitted (0|1), count, milliseconds until the window ends}.
const fixedWindowLua = `
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count == 0 then
  redis.call("SET", KEYS[1], 1, "PX", window)
  return {1, 1, window}
end

local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], window)
  ttl = window
end

if count < limit then
  count = redis.call("INCR", KEYS[1])
  return {1, count, ttl}
end
return {0, count, ttl}
`

// RedisLimiter applies fixed-window limits with state held in Redis, so all
// replicas pointing at the same Redis share one budget per key. Redis runs the
// whole check in a single script, which gives the same atomicity as the
// in-memory mutex.
type RedisLimiter struct {
	client   redis.UniversalClient
	script   *redis.Script
	max      int
	window   time.Duration
	prefix   string
	failOpen bool
	now      func() time.Time
}

// RedisOption configures a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithKeyPrefix namespaces limiter keys in Redis.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisLimiter) {
		r.prefix = prefix
	}
}

// WithFailOpen admits requests when Redis cannot be reached. By default such
// requests are rejected.
func WithFailOpen(failOpen bool) RedisOption {
	return func(r *RedisLimiter) {
		r.failOpen = failOpen
	}
}

// NewRedisLimiter creates a Redis-backed limiter. The limiter owns client and
// closes it on Close.
func NewRedisLimiter(client redis.UniversalClient, maxRequests int, window time.Duration, opts ...RedisOption) (*RedisLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if maxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be positive, got %d", maxRequests)
	}
	if window < time.Millisecond {
		return nil, fmt.Errorf("window must be at least 1ms, got %s", window)
	}

	r := &RedisLimiter{
		client: client,
		script: redis.NewScript(fixedWindowLua),
		max:    maxRequests,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CheckAndRecord runs the window script for key.
func (r *RedisLimiter) CheckAndRecord(ctx context.Context, key string) (Decision, Info, error) {
	vals, err := r.script.Run(ctx, r.client, []string{r.prefix + key}, r.max, r.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Reject, Info{}, errors.Wrapf(err, "run fixed window script for key %q", key)
	}
	if len(vals) != 3 {
		return Reject, Info{}, errors.Errorf("unexpected script result %v", vals)
	}

	now := r.now()
	remainingWindow := time.Duration(vals[2]) * time.Millisecond
	info := Info{
		Limit:     r.max,
		Remaining: max(r.max-int(vals[1]), 0),
		ResetAt:   now.Add(remainingWindow),
	}
	if vals[0] == 1 {
		return Admit, info, nil
	}
	info.RetryAfter = remainingWindow
	return Reject, info, nil
}

// Allow implements Limiter. Redis errors are logged and resolved by the
// fail-open setting.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, Info) {
	decision, info, err := r.CheckAndRecord(ctx, key)
	if err == nil {
		return decision, info
	}

	slog.Error("Rate limiter store unavailable", "error", err, "fail_open", r.failOpen)
	info = Info{Limit: r.max, ResetAt: r.now().Add(r.window)}
	if r.failOpen {
		info.Remaining = r.max
		return Admit, info
	}
	info.RetryAfter = r.window
	return Reject, info
}

// Ping checks connectivity to Redis.
func (r *RedisLimiter) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "ping redis")
}

// Close closes the underlying client.
func (r *RedisLimiter) Close() {
	if err := r.client.Close(); err != nil {
		slog.Warn("Failed to close redis client", "error", err)
	}
}
