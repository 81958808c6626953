// Package redislimiter is a fixed-window rate limiter backed by Redis, for
// multi-instance deployments where counters must be shared.
package redislimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit configures a named bucket.
type Limit struct {
	Limit  int
	Window time.Duration
}

type Limiter struct {
	rdb    *redis.Client
	limits map[string]Limit
	prefix string
}

func New(rdb *redis.Client, limits map[string]Limit) *Limiter {
	return &Limiter{rdb: rdb, limits: limits, prefix: "rl:"}
}

func (l *Limiter) WithPrefix(p string) *Limiter { l.prefix = p; return l }

// AllowNamed consumes one unit from the bucket for key. INCR plus a
// first-touch EXPIRE gives a fixed window shared across instances.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	lim, ok := l.limits[bucket]
	if !ok {
		lim, ok = l.limits["default"]
		if !ok {
			return true, nil
		}
	}
	if lim.Limit <= 0 || lim.Window <= 0 {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rkey := l.prefix + bucket + ":" + key
	n, err := l.rdb.Incr(ctx, rkey).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, rkey, lim.Window).Err(); err != nil {
			return false, err
		}
	}
	return n <= int64(lim.Limit), nil
}
