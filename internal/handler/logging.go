package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/prperemyshlev/portfolio-backend/internal/domain"
)

// LoggerMiddleware logs one line per request, at warn level for client
// errors and error level for server errors
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		level := zapcore.InfoLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}

		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("size", c.Writer.Size()),
		}
		if user, ok := c.Get(ContextUserKey); ok {
			if u, ok := user.(*domain.PublicUser); ok {
				fields = append(fields, zap.String("user_id", u.ID))
			}
		}

		logger.Log(level, "HTTP request", fields...)
	}
}
