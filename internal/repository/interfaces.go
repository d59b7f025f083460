package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/portfolio-backend/internal/domain"
)

// UserRepository defines methods for user operations.
// Implementations must enforce username and email uniqueness themselves
// and report violations as ErrDuplicateUser.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindByUsernameOrEmail returns the first user matching either field
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error)

	MarkVerified(ctx context.Context, id string) error
	UpdateUsername(ctx context.Context, id, username string) (*domain.User, error)
	// UpdatePassword replaces the hash and clears the refresh token in one write
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	// SetRefreshToken overwrites the stored refresh token; nil clears it
	SetRefreshToken(ctx context.Context, id string, token *string) error
	// SwapRefreshToken replaces current with next only if current is still stored
	SwapRefreshToken(ctx context.Context, id, current, next string) error

	Delete(ctx context.Context, id string) error
	// DeleteUnverified deletes the user only while it is still unverified
	DeleteUnverified(ctx context.Context, id string) (bool, error)
}

// CleanupQueue is a durable schedule of unverified accounts awaiting deletion
type CleanupQueue interface {
	Schedule(ctx context.Context, userID string, at time.Time) error
	Cancel(ctx context.Context, userID string) error
	// Due returns up to limit user IDs whose fire time is not after now
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
	// Claim removes userID from the queue and reports whether this caller removed it
	Claim(ctx context.Context, userID string) (bool, error)
}
