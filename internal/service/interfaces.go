package service

import (
	"context"

	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/internal/dto"
)

// AuthService defines the account and session operations.
// Every returned error is an *apperrors.Error.
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*domain.PublicUser, error)
	VerifyEmail(ctx context.Context, token string) error
	Login(ctx context.Context, req *dto.LoginRequest) (*Session, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*Session, error)
	Logout(ctx context.Context, userID string, access *domain.TokenClaims) error
	ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, token string, req *dto.ResetPasswordRequest) error
	ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error
	UpdateUsername(ctx context.Context, userID string, req *dto.UpdateUsernameRequest) (*domain.PublicUser, error)
	DeleteAccount(ctx context.Context, userID string) error

	// Authenticate verifies an access token and loads its user
	Authenticate(ctx context.Context, accessToken string) (*domain.PublicUser, *domain.TokenClaims, error)
}
