package middleware

import (
	"context"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"studio-backend/internal/shared/telemetry"
)

const redisRateLimitPrefix = "ratelimit:"

// tokenBucketScript refills and consumes atomically. Times are in milliseconds.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	local elapsed = (now - last_update) / 1000
	if elapsed > 0 then
		tokens = math.min(burst, tokens + (elapsed * rate))
	end

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil(((1 - tokens) / rate) * 1000)
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_update', now)
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after}
`)

// RedisLimiter shares token buckets across instances through Redis.
// Redis errors fail open.
type RedisLimiter struct {
	client redis.Scripter
	now    func() time.Time
}

// NewRedisLimiter builds a limiter on the given client.
func NewRedisLimiter(client redis.Scripter) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, rule RateLimitRule) (bool, time.Duration) {
	if l == nil || l.client == nil {
		return true, 0
	}
	if rule.Rate <= 0 || rule.Burst <= 0 {
		return true, 0
	}
	ttl := int(math.Ceil(float64(rule.Burst)/rule.Rate)) + 1
	res, err := tokenBucketScript.Run(ctx, l.client,
		[]string{redisRateLimitPrefix + key},
		rule.Rate, rule.Burst, l.now().UnixMilli(), ttl,
	).Int64Slice()
	if err != nil || len(res) < 2 {
		telemetry.Warn("ratelimit.redis_unavailable", map[string]any{"error": errString(err)})
		return true, 0
	}
	if res[0] == 1 {
		return true, 0
	}
	return false, time.Duration(res[1]) * time.Millisecond
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
