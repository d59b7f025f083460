package service

import (
	"fmt"

	"github.com/prperemyshlev/portfolio-backend/internal/domain"
)

// Session is the result of a login or refresh
type Session struct {
	User   domain.PublicUser
	Tokens domain.TokenPair
}

// issueTokens signs a fresh access/refresh pair for userID
func (s *authService) issueTokens(userID string) (domain.TokenPair, error) {
	accessToken, err := s.jwtManager.Issue(domain.TokenKindAccess, userID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwtManager.Issue(domain.TokenKindRefresh, userID)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func newSession(user *domain.User, tokens domain.TokenPair) *Session {
	return &Session{
		User:   user.Public(),
		Tokens: tokens,
	}
}
