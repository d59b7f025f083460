package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/portfolio-backend/internal/repository"
	"go.uber.org/zap"
)

// Reaper deletes accounts that were not verified within the grace period.
// Pending deletions live in a durable queue, so they survive restarts and
// are shared by every running instance.
type Reaper struct {
	queue     repository.CleanupQueue
	users     repository.UserRepository
	grace     time.Duration
	interval  time.Duration
	batchSize int
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewReaper creates a new reaper
func NewReaper(
	queue repository.CleanupQueue,
	users repository.UserRepository,
	grace time.Duration,
	interval time.Duration,
	batchSize int,
	metrics *Metrics,
	logger *zap.Logger,
) *Reaper {
	return &Reaper{
		queue:     queue,
		users:     users,
		grace:     grace,
		interval:  interval,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// Schedule queues userID for deletion once the grace period has passed
func (r *Reaper) Schedule(ctx context.Context, userID string) error {
	return r.queue.Schedule(ctx, userID, r.now().Add(r.grace))
}

// Cancel drops the pending deletion of userID
func (r *Reaper) Cancel(ctx context.Context, userID string) error {
	return r.queue.Cancel(ctx, userID)
}

// RunOnce processes the entries due at now and returns how many accounts were deleted
func (r *Reaper) RunOnce(ctx context.Context, now time.Time) (int, error) {
	ids, err := r.queue.Due(ctx, now, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due cleanups: %w", err)
	}

	deleted := 0
	for _, id := range ids {
		claimed, err := r.queue.Claim(ctx, id)
		if err != nil {
			r.logger.Warn("failed to claim cleanup", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if !claimed {
			// another instance took it
			continue
		}

		removed, err := r.users.DeleteUnverified(ctx, id)
		if err != nil {
			r.logger.Warn("failed to delete unverified user, retrying later",
				zap.String("user_id", id),
				zap.Error(err),
			)
			if err := r.queue.Schedule(ctx, id, now.Add(r.interval)); err != nil {
				r.logger.Error("failed to reschedule cleanup", zap.String("user_id", id), zap.Error(err))
			}
			continue
		}

		if removed {
			deleted++
			r.logger.Info("unverified user deleted", zap.String("user_id", id))
		}
	}

	r.metrics.reap(ctx, deleted)
	return deleted, nil
}

// Run polls the queue until ctx is cancelled
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("reaper started", zap.Duration("interval", r.interval), zap.Duration("grace", r.grace))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx, r.now()); err != nil && ctx.Err() == nil {
			r.logger.Error("reaper pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
		}
	}
}
