package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/pkg/database"
)

const (
	userColumns = `id, username, email, fullname, password_hash, refresh_token, verification, created_at, updated_at`

	// unique_violation
	pqUniqueViolation = "23505"
)

// userRepository implements UserRepository on PostgreSQL
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	_, err := r.db.DB.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.Fullname,
		user.PasswordHash,
		user.RefreshToken,
		user.Verification,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s/%s: %w", user.Username, user.Email, ErrDuplicateUser)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	// ids are UUIDs; anything else can never match and would make postgres reject the cast
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	user, err := r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("user with id %s: %w", id, err)
	}
	return user, nil
}

// GetByUsername retrieves a user by username
func (r *userRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	user, err := r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	if err != nil {
		return nil, fmt.Errorf("user with username %s: %w", username, err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, fmt.Errorf("user with email %s: %w", email, err)
	}
	return user, nil
}

// FindByUsernameOrEmail retrieves the first user holding either the username or the email
func (r *userRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $2 LIMIT 1`

	user, err := r.getOne(ctx, query, username, email)
	if err != nil {
		return nil, fmt.Errorf("user with username %s or email %s: %w", username, email, err)
	}
	return user, nil
}

// MarkVerified sets verification to true
func (r *userRepository) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE users SET verification = TRUE, updated_at = $2 WHERE id = $1`
	return r.execOne(ctx, id, query, id, time.Now().UTC())
}

// UpdateUsername changes the username and returns the updated user
func (r *userRepository) UpdateUsername(ctx context.Context, id, username string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	query := `
		UPDATE users
		SET username = $2, updated_at = $3
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := r.getOne(ctx, query, id, username, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("username %s: %w", username, ErrDuplicateUser)
		}
		return nil, fmt.Errorf("failed to update username of user %s: %w", id, err)
	}

	return user, nil
}

// UpdatePassword replaces the password hash and revokes the refresh token
func (r *userRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, refresh_token = NULL, updated_at = $3
		WHERE id = $1
	`
	return r.execOne(ctx, id, query, id, passwordHash, time.Now().UTC())
}

// SetRefreshToken overwrites the stored refresh token
func (r *userRepository) SetRefreshToken(ctx context.Context, id string, token *string) error {
	query := `UPDATE users SET refresh_token = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, id, query, id, token, time.Now().UTC())
}

// SwapRefreshToken rotates the refresh token only if current is still the stored one
func (r *userRepository) SwapRefreshToken(ctx context.Context, id, current, next string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	query := `
		UPDATE users
		SET refresh_token = $3, updated_at = $4
		WHERE id = $1 AND refresh_token = $2
	`

	result, err := r.db.DB.ExecContext(ctx, query, id, current, next, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrRefreshTokenMismatch)
	}

	return nil
}

// Delete deletes a user by ID
func (r *userRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, id, `DELETE FROM users WHERE id = $1`, id)
}

// DeleteUnverified deletes the user if it exists and is still unverified
func (r *userRepository) DeleteUnverified(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1 AND verification = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete unverified user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *userRepository) getOne(ctx context.Context, query string, args ...interface{}) (*domain.User, error) {
	user := &domain.User{}
	var refreshToken sql.NullString

	err := r.db.DB.QueryRowContext(ctx, query, args...).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Fullname,
		&user.PasswordHash,
		&refreshToken,
		&user.Verification,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if refreshToken.Valid {
		user.RefreshToken = &refreshToken.String
	}

	return user, nil
}

// execOne runs a statement that must touch exactly the row identified by id
func (r *userRepository) execOne(ctx context.Context, id, query string, args ...interface{}) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	result, err := r.db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("user with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
