package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// slidingWindow keeps one sorted-set member per admitted request, scored by
// its arrival time in milliseconds.
//
// KEYS[1] key, ARGV: now ms, window ms, limit, member.
// Returns {allowed, count, retry ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, count + 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, count, tonumber(oldest[2]) + window - now}
`)

// RedisLimiter is the sliding-window log of MemoryLimiter kept in Redis, so
// every API instance pointing at the same Redis shares one budget per key.
type RedisLimiter struct {
	redis     *redis.Client
	perMinute int
	prefix    string
	now       func() time.Time
}

func NewRedisLimiter(client *redis.Client, perMinute int, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RedisLimiter{redis: client, perMinute: perMinute, prefix: prefix, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := slidingWindow.Run(ctx, l.redis,
		[]string{l.redisKey(key)},
		l.now().UnixMilli(), Window.Milliseconds(), l.perMinute, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}

	d := Decision{
		Allowed: res[0] == 1,
		Limit:   l.perMinute,
	}
	if d.Allowed {
		d.Remaining = l.perMinute - int(res[1])
	} else {
		d.RetryAfter = time.Duration(res[2]) * time.Millisecond
	}
	return d, nil
}

func (l *RedisLimiter) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", l.prefix, key)
}

