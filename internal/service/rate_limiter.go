package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/portfolio-backend/pkg/database"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding window log kept in one Redis sorted set per key
type RateLimiter struct {
	redis  *database.Redis
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter allowing limit requests per window
func NewRateLimiter(redis *database.Redis, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redis,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a request for key. When the limit is reached it returns false
// and how long until the oldest request leaves the window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := r.now()
	windowStart := now.Add(-r.window)
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	err := r.redis.Client.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10)).Err()
	if err != nil {
		return false, 0, fmt.Errorf("failed to clean old entries: %w", err)
	}

	count, err := r.redis.Client.ZCard(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	if count >= int64(r.limit) {
		retryAfter := r.window
		oldest, err := r.redis.Client.ZRangeWithScores(ctx, redisKey, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestTime := time.UnixMilli(int64(oldest[0].Score))
			retryAfter = r.window - now.Sub(oldestTime)
		}
		return false, retryAfter, nil
	}

	err = r.redis.Client.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	}).Err()
	if err != nil {
		return false, 0, fmt.Errorf("failed to add entry: %w", err)
	}

	if err := r.redis.Client.Expire(ctx, redisKey, r.window+time.Minute).Err(); err != nil {
		return false, 0, fmt.Errorf("failed to set expiry: %w", err)
	}

	return true, 0, nil
}
