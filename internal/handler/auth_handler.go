package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/portfolio-backend/internal/apperrors"
	"github.com/prperemyshlev/portfolio-backend/internal/dto"
	"github.com/prperemyshlev/portfolio-backend/internal/service"
)

// Session cookie names
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookieConfig controls the session cookies
type CookieConfig struct {
	MaxAge int // seconds
	Secure bool
}

// AuthHandler handles account and session requests
type AuthHandler struct {
	authService service.AuthService
	cookies     CookieConfig
	logger      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService service.AuthService, cookies CookieConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
		logger:      logger,
	}
}

// Register handles user registration
// @Summary Register a new user
// @Tags users
// @Accept json
// @Produce json
// @Param request body dto.RegisterRequest true "Registration request"
// @Success 201 {object} dto.APIResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 429 {object} dto.ErrorResponse
// @Router /users/create [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if !h.bind(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusCreated, user, "User created successfully. Please check your email to verify your account")
}

// VerifyEmail redeems an email verification link
// @Summary Verify email address
// @Tags users
// @Produce json
// @Param token path string true "Verification token"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /users/verify-email/{token} [get]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if err := h.authService.VerifyEmail(c.Request.Context(), c.Param("token")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, nil, "Email verified successfully")
}

// Login handles user login
// @Summary Login user
// @Description Authenticate with username and password; tokens are also set as cookies
// @Tags users
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "Login request"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /users/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.bind(c, &req) {
		return
	}

	session, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setSessionCookies(c, session)
	respond(c, http.StatusOK, sessionResponse(session), "Login successful")
}

// RefreshToken rotates the refresh token
// @Summary Refresh tokens
// @Description Reads the refreshToken cookie or a bearer token
// @Tags users
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /users/refresh-token [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token := tokenFromRequest(c, RefreshTokenCookie)

	session, err := h.authService.RefreshAccessToken(c.Request.Context(), token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setSessionCookies(c, session)
	respond(c, http.StatusOK, sessionResponse(session), "Access token refreshed successfully")
}

// Logout handles user logout
// @Summary Logout user
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /users/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	user, claims := currentUser(c)

	if err := h.authService.Logout(c.Request.Context(), user.ID, claims); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.clearSessionCookies(c)
	respond(c, http.StatusOK, nil, "Logout successful")
}

// CurrentUser returns the signed-in user
// @Summary Get current user
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /users/verify [get]
func (h *AuthHandler) CurrentUser(c *gin.Context) {
	user, _ := currentUser(c)
	respond(c, http.StatusOK, user, "Success")
}

// ForgotPassword mails a password reset link
// @Summary Request a password reset
// @Description The response is the same whether or not the email is registered
// @Tags users
// @Accept json
// @Produce json
// @Param request body dto.ForgotPasswordRequest true "Email"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /users/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, nil, "If an account with that email exists, a password reset link has been sent")
}

// ResetPassword sets a new password using a reset link
// @Summary Reset password
// @Tags users
// @Accept json
// @Produce json
// @Param token path string true "Reset token"
// @Param request body dto.ResetPasswordRequest true "New password"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /users/reset-password/{token} [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), c.Param("token"), &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, nil, "Password reset successfully. Please log in with your new password")
}

// UpdateUsername renames the signed-in user
// @Summary Update username
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.UpdateUsernameRequest true "New username"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /users/update-username [put]
func (h *AuthHandler) UpdateUsername(c *gin.Context) {
	var req dto.UpdateUsernameRequest
	if !h.bind(c, &req) {
		return
	}

	user, _ := currentUser(c)
	updated, err := h.authService.UpdateUsername(c.Request.Context(), user.ID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, updated, "Username updated successfully")
}

// ChangePassword changes the signed-in user's password
// @Summary Change password
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body dto.ChangePasswordRequest true "Old and new password"
// @Success 200 {object} dto.APIResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /users/change-password [put]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req dto.ChangePasswordRequest
	if !h.bind(c, &req) {
		return
	}

	user, _ := currentUser(c)
	if err := h.authService.ChangePassword(c.Request.Context(), user.ID, &req); err != nil {
		respondError(c, h.logger, err)
		return
	}

	respond(c, http.StatusOK, nil, "Password changed successfully")
}

// DeleteAccount removes the signed-in user
// @Summary Delete account
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /users/delete-account [delete]
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	user, _ := currentUser(c)
	if err := h.authService.DeleteAccount(c.Request.Context(), user.ID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.clearSessionCookies(c)
	respond(c, http.StatusOK, nil, "Account deleted successfully")
}

// bind decodes the JSON body into req; field rules are checked by the service
func (h *AuthHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, h.logger, apperrors.Validation("Invalid request body"))
		return false
	}
	return true
}

func (h *AuthHandler) setSessionCookies(c *gin.Context, session *service.Session) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(AccessTokenCookie, session.Tokens.AccessToken, h.cookies.MaxAge, "/", "", h.cookies.Secure, true)
	c.SetCookie(RefreshTokenCookie, session.Tokens.RefreshToken, h.cookies.MaxAge, "/", "", h.cookies.Secure, true)
}

func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", h.cookies.Secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", h.cookies.Secure, true)
}

func sessionResponse(session *service.Session) dto.SessionResponse {
	return dto.SessionResponse{
		User:         session.User,
		AccessToken:  session.Tokens.AccessToken,
		RefreshToken: session.Tokens.RefreshToken,
	}
}
