package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "klinik:throttle:"

// SlidingWindow counts events per key in a Redis sorted set scored by
// nanosecond timestamps, so the window slides instead of resetting on
// a fixed boundary.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
}

// Result reports the outcome of a single Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Allow records one event for key and reports whether it fits inside
// the window. A nil client or non-positive limit disables throttling.
func (sw SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (Result, error) {
	if sw.Client == nil || max <= 0 || window <= 0 {
		return Result{Allowed: true, Remaining: max, ResetAt: time.Now().Add(window)}, nil
	}

	now := time.Now()
	resetAt := now.Add(window)
	cutoff := float64(now.Add(-window).UnixNano())

	prefix := sw.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	redisKey := prefix + key

	pipe := sw.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%f", cutoff))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{ResetAt: resetAt}, err
	}

	current := int(countCmd.Val())
	remaining := max - current
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: current <= max, Remaining: remaining, ResetAt: resetAt}, nil
}
