package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucket refills the whole bucket once per elapsed interval and takes
// one token per call. State lives in a hash so every instance sharing the
// Redis sees the same budget.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local interval = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(state[1]) or capacity
local last_refill = tonumber(state[2]) or now

local passed = math.floor((now - last_refill) / interval)
if passed > 0 then
	tokens = capacity
	last_refill = last_refill + passed * interval
end

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill', last_refill)
redis.call('PEXPIRE', key, interval * 2)
return {allowed, tokens, last_refill}
`)

// Redis is a distributed token-bucket limiter.
type Redis struct {
	rdb    redis.Scripter
	limit  int
	period time.Duration
	prefix string
	now    func() time.Time
}

// NewRedis allows limit requests per key in each period across all
// instances sharing rdb.
func NewRedis(rdb redis.Scripter, limit int, period time.Duration, prefix string) *Redis {
	return &Redis{rdb: rdb, limit: limit, period: period, prefix: prefix, now: time.Now}
}

// WithClock replaces the time source.
func (r *Redis) WithClock(now func() time.Time) *Redis {
	r.now = now
	return r
}

// Allow takes one token for key. On Redis failure the request is allowed
// and the error returned so the caller can log it.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	if r.limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	now := r.now().UnixMilli()
	interval := r.period.Milliseconds()
	res, err := tokenBucket.Run(ctx, r.rdb, []string{r.key(key)}, r.limit, interval, now).Int64Slice()
	if err != nil {
		return Decision{Allowed: true, Limit: r.limit}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) < 3 {
		return Decision{Allowed: true, Limit: r.limit}, fmt.Errorf("redis rate limit: unexpected reply %v", res)
	}

	d := Decision{Allowed: res[0] == 1, Limit: r.limit, Remaining: int(res[1])}
	if !d.Allowed {
		d.RetryAfter = time.Duration(res[2]+interval-now) * time.Millisecond
	}
	return d, nil
}

func (r *Redis) key(k string) string {
	return r.prefix + ":" + k
}
