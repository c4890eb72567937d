package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window per-key counter. Redis failures allow the
// request: analytics ingest should degrade open, not closed.
type RedisLimiter struct {
	rdb       *redis.Client
	perSecond int
}

func NewRedisLimiter(rdb *redis.Client, perSecond int) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, perSecond: perSecond}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if l.rdb == nil || l.perSecond <= 0 {
		return true
	}

	k := "ratelimit:" + key
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return true
	}

	// Set expiry on first request
	if count == 1 {
		l.rdb.Expire(ctx, k, time.Second)
	}

	return count <= int64(l.perSecond)
}
