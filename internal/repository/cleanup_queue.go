package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prperemyshlev/portfolio-backend/pkg/database"
	"github.com/redis/go-redis/v9"
)

// cleanupQueueKey holds one member per pending user, scored by fire time
const cleanupQueueKey = "cleanup:unverified"

// cleanupQueue implements CleanupQueue on a Redis sorted set
type cleanupQueue struct {
	redis *database.Redis
}

// NewCleanupQueue creates a new cleanup queue
func NewCleanupQueue(redis *database.Redis) CleanupQueue {
	return &cleanupQueue{redis: redis}
}

// Schedule adds or moves userID to fire at the given time
func (q *cleanupQueue) Schedule(ctx context.Context, userID string, at time.Time) error {
	err := q.redis.Client.ZAdd(ctx, cleanupQueueKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: userID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup for user %s: %w", userID, err)
	}
	return nil
}

// Cancel drops any pending cleanup for userID
func (q *cleanupQueue) Cancel(ctx context.Context, userID string) error {
	if err := q.redis.Client.ZRem(ctx, cleanupQueueKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to cancel cleanup for user %s: %w", userID, err)
	}
	return nil
}

// Due lists user IDs whose fire time has been reached
func (q *cleanupQueue) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := q.redis.Client.ZRangeByScore(ctx, cleanupQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read due cleanups: %w", err)
	}
	return ids, nil
}

// Claim removes userID; only the caller that actually removed it gets true
func (q *cleanupQueue) Claim(ctx context.Context, userID string) (bool, error) {
	removed, err := q.redis.Client.ZRem(ctx, cleanupQueueKey, userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim cleanup for user %s: %w", userID, err)
	}
	return removed == 1, nil
}
