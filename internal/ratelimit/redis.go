package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisWindowTTLSeconds outlives the one-second window so late hits still find their counter.
const redisWindowTTLSeconds = 2

// hitScript increments the window counter and sets its expiry on first hit.
var hitScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return hits
`)

// RedisLimiter counts hits per key and second in Redis, shared by every replica.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Allow counts one hit on key in the window containing now.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if l == nil || l.client == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	window := now.Unix()
	hits, errRun := hitScript.Run(ctx, l.client, []string{l.windowKey(key, window)}, redisWindowTTLSeconds).Int64()
	if errRun != nil {
		return Result{}, errRun
	}
	return windowResult(hits, limit, window), nil
}

// windowKey is "<prefix>:<key>:<unix second>".
func (l *RedisLimiter) windowKey(key string, window int64) string {
	parts := make([]string, 0, 3)
	if l.prefix != "" {
		parts = append(parts, l.prefix)
	}
	parts = append(parts, key, strconv.FormatInt(window, 10))
	return strings.Join(parts, ":")
}

// windowResult turns a hit count into a Result for the window starting at window.
func windowResult(hits int64, limit int, window int64) Result {
	reset := time.Unix(window+1, 0).UTC()
	if hits > int64(limit) {
		return Result{Allowed: false, Reset: reset}
	}
	return Result{Allowed: true, Remaining: limit - int(hits), Reset: reset}
}
