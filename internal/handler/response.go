package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/prperemyshlev/portfolio-backend/internal/apperrors"
	"github.com/prperemyshlev/portfolio-backend/internal/dto"
)

// respond writes the success envelope
func respond(c *gin.Context, status int, data interface{}, message string) {
	c.JSON(status, dto.NewAPIResponse(status, data, message))
}

// respondError writes err as {message, code} and aborts the chain.
// Internal errors are logged; the client only sees a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	appErr := apperrors.As(err)

	if appErr.Status >= 500 {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	c.AbortWithStatusJSON(appErr.Status, dto.ErrorResponse{
		Message: appErr.Message,
		Code:    appErr.Code,
	})
}
