package ratelimit

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hashtrail-project/hashtrail/pkg/config"
	"github.com/hashtrail-project/hashtrail/pkg/errclass"
)

// FromConfig builds the limiter selected by cfg. The returned close function
// releases backend connections and is never nil. A disabled config yields a
// nil Limiter.
func FromConfig(cfg config.RateLimitConfig) (Limiter, func() error, error) {
	nop := func() error { return nil }
	if !cfg.Enabled {
		return nil, nop, nil
	}

	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.PerMinute, time.Minute), nop, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		return NewRedis(rdb, cfg.PerMinute, time.Minute, cfg.KeyPrefix), rdb.Close, nil
	}
	return nil, nop, errclass.ErrMalformedInput.WithMessagef("unknown rate limit backend: %s", cfg.Backend)
}
