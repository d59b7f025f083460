package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prperemyshlev/portfolio-backend/internal/apperrors"
	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/internal/dto"
	"github.com/prperemyshlev/portfolio-backend/internal/repository"
	"github.com/prperemyshlev/portfolio-backend/internal/utils"
	"go.uber.org/zap"
)

// authService implements AuthService interface
type authService struct {
	userRepo   repository.UserRepository
	jwtManager *utils.JWTManager
	hasher     *utils.PasswordHasher
	validator  *utils.Validator
	blacklist  *TokenBlacklistService
	reaper     *Reaper
	notifier   *Notifier
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repository.UserRepository,
	jwtManager *utils.JWTManager,
	hasher *utils.PasswordHasher,
	validator *utils.Validator,
	blacklist *TokenBlacklistService,
	reaper *Reaper,
	notifier *Notifier,
	metrics *Metrics,
	logger *zap.Logger,
) AuthService {
	return &authService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		hasher:     hasher,
		validator:  validator,
		blacklist:  blacklist,
		reaper:     reaper,
		notifier:   notifier,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Register creates an unverified account and mails its verification link
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*domain.PublicUser, error) {
	in := *req
	in.Email = utils.SanitizeEmail(in.Email)

	if err := s.validator.Struct(&in); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	_, err := s.userRepo.FindByUsernameOrEmail(ctx, in.Username, in.Email)
	if err == nil {
		return nil, apperrors.Conflict("Username or email already exists")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		Fullname:     in.Fullname,
		PasswordHash: passwordHash,
		Verification: false,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, apperrors.Conflict("Username or email already exists")
		}
		return nil, apperrors.Internal(err)
	}

	s.metrics.registration(ctx)
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))

	if err := s.reaper.Schedule(ctx, user.ID); err != nil {
		s.logger.Error("failed to schedule unverified account cleanup",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	token, err := s.jwtManager.Issue(domain.TokenKindEmailVerify, user.ID)
	if err != nil {
		s.logger.Error("failed to issue email verification token",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	} else {
		s.notifier.SendVerification(ctx, user, token, s.jwtManager.TTL(domain.TokenKindEmailVerify))
	}

	public := user.Public()
	return &public, nil
}

// VerifyEmail marks the token's user as verified; repeating it is harmless
func (s *authService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.Validation("Verification token is required")
	}

	claims, err := s.jwtManager.Verify(domain.TokenKindEmailVerify, token)
	if err != nil {
		return actionTokenError(err, "verification")
	}

	if err := s.userRepo.MarkVerified(ctx, claims.UserID); err != nil {
		return userError(err)
	}

	if err := s.reaper.Cancel(ctx, claims.UserID); err != nil {
		s.logger.Warn("failed to cancel unverified account cleanup",
			zap.String("user_id", claims.UserID),
			zap.Error(err),
		)
	}

	return nil
}

// Login authenticates a verified user and starts a new session
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (session *Session, err error) {
	defer func() { s.metrics.login(ctx, err) }()

	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, userError(err)
	}

	if !user.Verification {
		return nil, apperrors.Forbidden("Email is not verified. Please verify your email before logging in")
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) {
		return nil, apperrors.Unauthorized("Invalid password")
	}

	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	// overwriting the stored token invalidates any earlier session
	if err := s.userRepo.SetRefreshToken(ctx, user.ID, &tokens.RefreshToken); err != nil {
		return nil, userError(err)
	}

	return newSession(user, tokens), nil
}

// RefreshAccessToken rotates the session identified by refreshToken
func (s *authService) RefreshAccessToken(ctx context.Context, refreshToken string) (session *Session, err error) {
	defer func() { s.metrics.refresh(ctx, err) }()

	if refreshToken == "" {
		return nil, apperrors.Unauthorized("Refresh token is required")
	}

	claims, err := s.jwtManager.Verify(domain.TokenKindRefresh, refreshToken)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return nil, apperrors.TokenExpired("Refresh token has expired", http.StatusUnauthorized)
		}
		return nil, apperrors.Unauthorized("Invalid refresh token")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, userError(err)
	}

	if !user.HasRefreshToken(refreshToken) {
		return nil, apperrors.InvalidRefreshToken("Refresh token is expired or already used")
	}

	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.userRepo.SwapRefreshToken(ctx, user.ID, refreshToken, tokens.RefreshToken); err != nil {
		if errors.Is(err, repository.ErrRefreshTokenMismatch) {
			return nil, apperrors.InvalidRefreshToken("Refresh token is expired or already used")
		}
		return nil, userError(err)
	}

	return newSession(user, tokens), nil
}

// Logout ends the user's session and revokes the presented access token
func (s *authService) Logout(ctx context.Context, userID string, access *domain.TokenClaims) error {
	if err := s.userRepo.SetRefreshToken(ctx, userID, nil); err != nil {
		return userError(err)
	}

	if access != nil {
		ttl := access.ExpiresAt.Sub(s.now())
		if err := s.blacklist.Revoke(ctx, access.ID, ttl); err != nil {
			s.logger.Warn("failed to revoke access token",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// ForgotPassword mails a reset link when the email belongs to an account.
// The caller cannot tell whether it did.
func (s *authService) ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest) error {
	in := *req
	in.Email = utils.SanitizeEmail(in.Email)

	if err := s.validator.Struct(&in); err != nil {
		return apperrors.Validation(err.Error())
	}

	user, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperrors.Internal(err)
	}

	token, err := s.jwtManager.Issue(domain.TokenKindResetPassword, user.ID)
	if err != nil {
		return apperrors.Internal(err)
	}

	s.notifier.SendPasswordReset(ctx, user, token, s.jwtManager.TTL(domain.TokenKindResetPassword))
	return nil
}

// ResetPassword replaces the password of the token's user and ends their session
func (s *authService) ResetPassword(ctx context.Context, token string, req *dto.ResetPasswordRequest) error {
	if token == "" {
		return apperrors.Validation("Reset token is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return apperrors.Validation(err.Error())
	}

	claims, err := s.jwtManager.Verify(domain.TokenKindResetPassword, token)
	if err != nil {
		return actionTokenError(err, "reset")
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return apperrors.Internal(err)
	}

	if err := s.userRepo.UpdatePassword(ctx, claims.UserID, passwordHash); err != nil {
		return userError(err)
	}

	return nil
}

// ChangePassword replaces the password after checking the current one
func (s *authService) ChangePassword(ctx context.Context, userID string, req *dto.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return apperrors.Validation(err.Error())
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return userError(err)
	}

	if !s.hasher.Verify(req.OldPassword, user.PasswordHash) {
		return apperrors.Unauthorized("Old password is incorrect")
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return apperrors.Internal(err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, passwordHash); err != nil {
		return userError(err)
	}

	return nil
}

// UpdateUsername renames the user
func (s *authService) UpdateUsername(ctx context.Context, userID string, req *dto.UpdateUsernameRequest) (*domain.PublicUser, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	user, err := s.userRepo.UpdateUsername(ctx, userID, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, apperrors.Conflict("Username already exists")
		}
		return nil, userError(err)
	}

	public := user.Public()
	return &public, nil
}

// DeleteAccount removes the user
func (s *authService) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return userError(err)
	}

	if err := s.reaper.Cancel(ctx, userID); err != nil {
		s.logger.Warn("failed to cancel unverified account cleanup",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	s.logger.Info("user deleted", zap.String("user_id", userID))
	return nil
}

// Authenticate validates an access token
func (s *authService) Authenticate(ctx context.Context, accessToken string) (*domain.PublicUser, *domain.TokenClaims, error) {
	if accessToken == "" {
		return nil, nil, apperrors.MissingToken("Access token is required")
	}

	claims, err := s.jwtManager.Verify(domain.TokenKindAccess, accessToken)
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return nil, nil, apperrors.TokenExpired("Access token has expired", http.StatusUnauthorized)
		}
		return nil, nil, apperrors.InvalidToken("Invalid access token", http.StatusUnauthorized)
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	if revoked {
		return nil, nil, apperrors.InvalidToken("Access token has been revoked", http.StatusUnauthorized)
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, nil, userError(err)
	}

	public := user.Public()
	return &public, claims, nil
}

// actionTokenError maps a failed emailed-link token to a 400
func actionTokenError(err error, purpose string) error {
	if errors.Is(err, utils.ErrTokenExpired) {
		return apperrors.TokenExpired("The "+purpose+" link has expired", http.StatusBadRequest)
	}
	return apperrors.InvalidToken("Invalid "+purpose+" token", http.StatusBadRequest)
}

func userError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("User not found")
	}
	return apperrors.Internal(err)
}
