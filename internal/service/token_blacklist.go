package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prperemyshlev/portfolio-backend/pkg/database"
)

// TokenBlacklistService tracks access tokens revoked before their expiry.
// Tokens are keyed by their jti, so the signed token itself is never stored.
type TokenBlacklistService struct {
	redis *database.Redis
}

// NewTokenBlacklistService creates a new token blacklist service
func NewTokenBlacklistService(redis *database.Redis) *TokenBlacklistService {
	return &TokenBlacklistService{redis: redis}
}

func blacklistKey(tokenID string) string {
	return fmt.Sprintf("blacklist:access:%s", tokenID)
}

// Revoke blacklists tokenID for ttl; an already expired token needs no entry
func (s *TokenBlacklistService) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}

	if err := s.redis.Client.Set(ctx, blacklistKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return nil
}

// IsRevoked checks if a token is in the blacklist
func (s *TokenBlacklistService) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	exists, err := s.redis.Client.Exists(ctx, blacklistKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return exists > 0, nil
}
