package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prperemyshlev/portfolio-backend/internal/apperrors"
	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/internal/dto"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.Register(ctx, &dto.RegisterRequest{
		Username: "alice",
		Email:    " Alice@X.com ",
		Fullname: "Alice Liddell",
		Password: "secret1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@x.com", user.Email)
	assert.False(t, user.Verification)

	body, err := json.Marshal(user)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "password")
	assert.NotContains(t, string(body), "refresh_token")

	stored := env.users.Get(user.ID)
	require.NotNil(t, stored)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.Nil(t, stored.RefreshToken)

	due, err := env.queue.Due(ctx, env.clock.Now().Add(gracePeriod), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{user.ID}, due)

	token := env.lastLinkToken(t, "verify-email")
	claims, err := env.jwt.Verify(domain.TokenKindEmailVerify, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	msgs := env.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "alice@x.com", msgs[0].To)
	assert.Contains(t, msgs[0].HTMLBody, "http://localhost:3000/verify-email/")
	assert.Contains(t, msgs[0].HTMLBody, "10 minutes")
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  dto.RegisterRequest
	}{
		{name: "missing username", req: dto.RegisterRequest{Email: "a@x.com", Fullname: "Alice L", Password: "secret1"}},
		{name: "short username", req: dto.RegisterRequest{Username: "al", Email: "a@x.com", Fullname: "Alice L", Password: "secret1"}},
		{name: "bad email", req: dto.RegisterRequest{Username: "alice", Email: "nope", Fullname: "Alice L", Password: "secret1"}},
		{name: "short fullname", req: dto.RegisterRequest{Username: "alice", Email: "a@x.com", Fullname: "Al", Password: "secret1"}},
		{name: "short password", req: dto.RegisterRequest{Username: "alice", Email: "a@x.com", Fullname: "Alice L", Password: "123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Register(context.Background(), &tt.req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
		})
	}

	assert.Equal(t, 0, env.users.Len())
}

func TestRegister_Conflict(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@x.com", "secret1")

	_, err := env.svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "alice", Email: "other@x.com", Fullname: "Alice Two", Password: "secret1",
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = env.svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "alice2", Email: "ALICE@x.com", Fullname: "Alice Two", Password: "secret1",
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

	assert.Equal(t, 1, env.users.Len())
}

func TestRegister_MailFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t)
	env.mail.err = errors.New("smtp down")

	user, err := env.svc.Register(context.Background(), &dto.RegisterRequest{
		Username: "alice", Email: "alice@x.com", Fullname: "Alice Liddell", Password: "secret1",
	})
	require.NoError(t, err)
	require.NoError(t, env.notifier.Wait(context.Background()))

	assert.NotNil(t, env.users.Get(user.ID))
	assert.Empty(t, env.mail.messages())
}

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "alice@x.com", "secret1")
	token := env.lastLinkToken(t, "verify-email")

	require.NoError(t, env.svc.VerifyEmail(ctx, token))
	assert.True(t, env.users.Get(user.ID).Verification)

	due, err := env.queue.Due(ctx, env.clock.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	// idempotent
	require.NoError(t, env.svc.VerifyEmail(ctx, token))
	assert.True(t, env.users.Get(user.ID).Verification)
}

func TestVerifyEmail_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "alice@x.com", "secret1")
	token := env.lastLinkToken(t, "verify-email")

	err := env.svc.VerifyEmail(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	err = env.svc.VerifyEmail(ctx, "not-a-token")
	assert.Equal(t, apperrors.CodeInvalidToken, apperrors.As(err).Code)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

	access, err := env.jwt.Issue(domain.TokenKindAccess, user.ID)
	require.NoError(t, err)
	err = env.svc.VerifyEmail(ctx, access)
	assert.Equal(t, apperrors.CodeInvalidToken, apperrors.As(err).Code)

	env.clock.Advance(11 * time.Minute)
	err = env.svc.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
	assert.False(t, env.users.Get(user.ID).Verification)
}

func TestVerifyEmail_UserGone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "alice@x.com", "secret1")
	token := env.lastLinkToken(t, "verify-email")

	require.NoError(t, env.users.Delete(ctx, user.ID))

	err := env.svc.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLogin_BeforeVerificationIsForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@x.com", "secret1")

	_, err := env.svc.Login(context.Background(), &dto.LoginRequest{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Equal(t, http.StatusForbidden, apperrors.HTTPStatus(err))
}

func TestLogin_Failures(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "secret1")
	ctx := context.Background()

	_, err := env.svc.Login(ctx, &dto.LoginRequest{Username: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = env.svc.Login(ctx, &dto.LoginRequest{Username: "nobody", Password: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = env.svc.Login(ctx, &dto.LoginRequest{Username: "alice", Password: "wrong-password"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
}

func TestLogin_PersistsRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.registerVerified(t, "alice", "alice@x.com", "secret1")

	first := env.login(t, "alice", "secret1")
	assert.Equal(t, user.ID, first.User.ID)
	assert.NotEmpty(t, first.Tokens.AccessToken)
	require.NotNil(t, env.users.Get(user.ID).RefreshToken)
	assert.Equal(t, first.Tokens.RefreshToken, *env.users.Get(user.ID).RefreshToken)

	second := env.login(t, "alice", "secret1")
	assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)
	assert.Equal(t, second.Tokens.RefreshToken, *env.users.Get(user.ID).RefreshToken)
}

func TestRefreshAccessToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerVerified(t, "alice", "alice@x.com", "secret1")
	session := env.login(t, "alice", "secret1")

	rotated, err := env.svc.RefreshAccessToken(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, rotated.User.ID)
	assert.NotEqual(t, session.Tokens.RefreshToken, rotated.Tokens.RefreshToken)
	assert.Equal(t, rotated.Tokens.RefreshToken, *env.users.Get(user.ID).RefreshToken)

	// the rotated-out token is dead
	_, err = env.svc.RefreshAccessToken(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Equal(t, apperrors.CodeInvalidRefreshToken, apperrors.As(err).Code)
}

func TestRefreshAccessToken_ReplayAfterSecondLogin(t *testing.T) {
	env := newTestEnv(t)
	env.registerVerified(t, "alice", "alice@x.com", "secret1")

	first := env.login(t, "alice", "secret1")
	env.login(t, "alice", "secret1")

	_, err := env.svc.RefreshAccessToken(context.Background(), first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Equal(t, http.StatusForbidden, apperrors.HTTPStatus(err))
}

func TestRefreshAccessToken_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerVerified(t, "alice", "alice@x.com", "secret1")
	session := env.login(t, "alice", "secret1")

	_, err := env.svc.RefreshAccessToken(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = env.svc.RefreshAccessToken(ctx, session.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	env.clock.Advance(8 * 24 * time.Hour)
	_, err = env.svc.RefreshAccessToken(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))

	env.clock.Advance(-8 * 24 * time.Hour)
	require.NoError(t, env.users.Delete(ctx, user.ID))
	_, err = env.svc.RefreshAccessToken(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerVerified(t, "alice", "alice@x.com", "secret1")
	session := env.login(t, "alice", "secret1")

	_, claims, err := env.svc.Authenticate(ctx, session.Tokens.AccessToken)
	require.NoError(t, err)

	require.NoError(t, env.svc.Logout(ctx, user.ID, claims))
	assert.Nil(t, env.users.Get(user.ID).RefreshToken)

	_, err = env.svc.RefreshAccessToken(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, _, err = env.svc.Authenticate(ctx, session.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))

	// a fresh login is unaffected by the revoked token
	again := env.login(t, "alice", "secret1")
	_, _, err = env.svc.Authenticate(ctx, again.Tokens.AccessToken)
	assert.NoError(t, err)
}

func TestForgotAndResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerVerified(t, "alice", "alice@x.com", "secret1")
	session := env.login(t, "alice", "secret1")

	require.NoError(t, env.svc.ForgotPassword(ctx, &dto.ForgotPasswordRequest{Email: "ALICE@x.com"}))
	token := env.lastLinkToken(t, "reset-password")

	err := env.svc.ResetPassword(ctx, token, &dto.ResetPasswordRequest{NewPassword: "secret2"})
	require.NoError(t, err)
	assert.Nil(t, env.users.Get(user.ID).RefreshToken)

	_, err = env.svc.RefreshAccessToken(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = env.svc.Login(ctx, &dto.LoginRequest{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	env.login(t, "alice", "secret2")
}

func TestForgotPassword_UnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.ForgotPassword(ctx, &dto.ForgotPasswordRequest{Email: "ghost@x.com"}))
	require.NoError(t, env.notifier.Wait(ctx))
	assert.Empty(t, env.mail.messages())

	err := env.svc.ForgotPassword(ctx, &dto.ForgotPasswordRequest{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestResetPassword_Failures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerVerified(t, "alice", "alice@x.com", "secret1")
	require.NoError(t, env.svc.ForgotPassword(ctx, &dto.ForgotPasswordRequest{Email: "alice@x.com"}))
	token := env.lastLinkToken(t, "reset-password")

	err := env.svc.ResetPassword(ctx, "", &dto.ResetPasswordRequest{NewPassword: "secret2"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	err = env.svc.ResetPassword(ctx, token, &dto.ResetPasswordRequest{})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	verifyToken, err := env.jwt.Issue(domain.TokenKindEmailVerify, user.ID)
	require.NoError(t, err)
	err = env.svc.ResetPassword(ctx, verifyToken, &dto.ResetPasswordRequest{NewPassword: "secret2"})
	assert.Equal(t, apperrors.CodeInvalidToken, apperrors.As(err).Code)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

	env.clock.Advance(16 * time.Minute)
	err = env.svc.ResetPassword(ctx, token, &dto.ResetPasswordRequest{NewPassword: "secret2"})
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerVerified(t, "alice", "alice@x.com", "secret1")
	session := env.login(t, "alice", "secret1")

	err := env.svc.ChangePassword(ctx, user.ID, &dto.ChangePasswordRequest{OldPassword: "nope-nope", NewPassword: "secret2"})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	err = env.svc.ChangePassword(ctx, user.ID, &dto.ChangePasswordRequest{OldPassword: "secret1"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	require.NoError(t, env.svc.ChangePassword(ctx, user.ID, &dto.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret2"}))
	assert.Nil(t, env.users.Get(user.ID).RefreshToken)

	_, err = env.svc.RefreshAccessToken(ctx, session.Tokens.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	env.login(t, "alice", "secret2")
}

func TestUpdateUsername(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.registerVerified(t, "alice", "alice@x.com", "secret1")
	env.registerVerified(t, "bobby", "bob@x.com", "secret1")

	updated, err := env.svc.UpdateUsername(ctx, alice.ID, &dto.UpdateUsernameRequest{Username: "alice_w"})
	require.NoError(t, err)
	assert.Equal(t, "alice_w", updated.Username)
	assert.Equal(t, "alice_w", env.users.Get(alice.ID).Username)

	_, err = env.svc.UpdateUsername(ctx, alice.ID, &dto.UpdateUsernameRequest{Username: "bobby"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = env.svc.UpdateUsername(ctx, alice.ID, &dto.UpdateUsernameRequest{Username: "ab"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "alice", "alice@x.com", "secret1")

	require.NoError(t, env.svc.DeleteAccount(ctx, user.ID))
	assert.Nil(t, env.users.Get(user.ID))

	due, err := env.queue.Due(ctx, env.clock.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	err = env.svc.DeleteAccount(ctx, user.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.registerVerified(t, "alice", "alice@x.com", "secret1")
	session := env.login(t, "alice", "secret1")

	got, claims, err := env.svc.Authenticate(ctx, session.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, domain.TokenKindAccess, claims.Kind)

	_, _, err = env.svc.Authenticate(ctx, "")
	assert.Equal(t, apperrors.CodeMissingToken, apperrors.As(err).Code)
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))

	_, _, err = env.svc.Authenticate(ctx, session.Tokens.RefreshToken)
	assert.Equal(t, apperrors.CodeInvalidToken, apperrors.As(err).Code)
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))

	env.clock.Advance(25 * time.Hour)
	_, _, err = env.svc.Authenticate(ctx, session.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
	assert.Equal(t, http.StatusUnauthorized, apperrors.HTTPStatus(err))
	env.clock.Advance(-25 * time.Hour)

	require.NoError(t, env.users.Delete(ctx, user.ID))
	_, _, err = env.svc.Authenticate(ctx, session.Tokens.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
