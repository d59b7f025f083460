package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/internal/service"
)

// Context keys set by AuthMiddleware
const (
	ContextUserKey   = "user"
	ContextClaimsKey = "claims"
)

// AuthMiddleware verifies the access token from the accessToken cookie or
// the Authorization header and attaches the user and claims to the context
func AuthMiddleware(authService service.AuthService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c, AccessTokenCookie)

		user, claims, err := authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextClaimsKey, claims)

		c.Next()
	}
}

// tokenFromRequest reads the named cookie, falling back to a bearer token
func tokenFromRequest(c *gin.Context, cookieName string) string {
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}

	scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// currentUser returns what AuthMiddleware attached
func currentUser(c *gin.Context) (*domain.PublicUser, *domain.TokenClaims) {
	user, _ := c.MustGet(ContextUserKey).(*domain.PublicUser)
	claims, _ := c.MustGet(ContextClaimsKey).(*domain.TokenClaims)
	return user, claims
}
