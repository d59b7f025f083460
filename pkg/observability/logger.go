package observability

import (
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// InitLogger builds the JSON production logger in production and the
// console development logger everywhere else
func InitLogger(env string) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	switch env {
	case "production":
		logger, err = zap.NewProduction()
	case "test":
		logger = zap.NewNop()
	default:
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	zap.ReplaceGlobals(logger)

	return logger, nil
}

// SyncLogger flushes logger, ignoring the error stderr returns when it is a terminal
func SyncLogger(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && (errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL)) {
		return nil
	}
	return err
}
