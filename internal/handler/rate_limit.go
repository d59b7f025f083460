package handler

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/portfolio-backend/internal/dto"
	"github.com/prperemyshlev/portfolio-backend/internal/service"
)

// CodeRateLimited is the error code of a throttled request
const CodeRateLimited = "RATE_LIMITED"

// RateLimitMiddleware throttles requests per client IP and route.
// When Redis is unavailable requests are let through.
func RateLimitMiddleware(rateLimiter *service.RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.FullPath() + ":" + c.ClientIP()

		allowed, retryAfter, err := rateLimiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if !allowed {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Message: "Too many requests, try again in " + strconv.Itoa(seconds) + "s",
				Code:    CodeRateLimited,
			})
			return
		}

		c.Next()
	}
}
