package repository

import (
	"context"
	"fmt"

	"github.com/prperemyshlev/portfolio-backend/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User    UserRepository
	Cleanup CleanupQueue

	ping func(ctx context.Context) error
}

// NewRepositories creates repositories backed by PostgreSQL and Redis
func NewRepositories(db *database.Postgres, redis *database.Redis) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Cleanup: NewCleanupQueue(redis),
		ping:    db.Ping,
	}
}

// NewMongoRepositories creates repositories backed by MongoDB and Redis
func NewMongoRepositories(ctx context.Context, db *database.Mongo, redis *database.Redis) (*Repositories, error) {
	users, err := NewUserMongoRepository(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mongo user repository: %w", err)
	}

	return &Repositories{
		User:    users,
		Cleanup: NewCleanupQueue(redis),
		ping:    db.Ping,
	}, nil
}

// Ping checks the credential store
func (r *Repositories) Ping(ctx context.Context) error {
	if r.ping == nil {
		return nil
	}
	return r.ping(ctx)
}
