package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

type HealthChecker struct {
	infra Infrastructure
}

func NewHealthChecker(infra Infrastructure) *HealthChecker {
	return &HealthChecker{
		infra: infra,
	}
}

func (h *HealthChecker) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		if err := h.infra.Repositories().Ping(ctx); err != nil {
			errs <- fmt.Errorf("store: %w", err)
			return
		}
		errs <- nil
	}()

	go func() {
		if err := h.infra.Redis().Ping(ctx); err != nil {
			errs <- fmt.Errorf("redis: %w", err)
			return
		}
		errs <- nil
	}()

	return errors.Join(<-errs, <-errs)
}

func (h *HealthChecker) Handler(c *gin.Context) {
	if err := h.check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "fail",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "pass",
	})
}
