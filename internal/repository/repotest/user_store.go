// Package repotest provides an in-memory UserRepository for tests.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prperemyshlev/portfolio-backend/internal/domain"
	"github.com/prperemyshlev/portfolio-backend/internal/repository"
)

// UserStore keeps users in a map and enforces the same uniqueness and
// conditional-update rules as the database implementations.
type UserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User

	// Err, when set, is returned by every call
	Err error
}

var _ repository.UserRepository = (*UserStore)(nil)

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

// Get returns a copy of the stored user, or nil
func (s *UserStore) Get(id string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return clone(u)
	}
	return nil
}

// Len returns the number of stored users
func (s *UserStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *UserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return fmt.Errorf("user %s/%s: %w", user.Username, user.Email, repository.ErrDuplicateUser)
		}
	}

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
	s.users[user.ID] = clone(user)

	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.ID == id })
}

func (s *UserStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.Username == username })
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.Email == email })
}

func (s *UserStore) FindByUsernameOrEmail(_ context.Context, username, email string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.Username == username || u.Email == email })
}

func (s *UserStore) MarkVerified(_ context.Context, id string) error {
	return s.update(id, func(u *domain.User) error {
		u.Verification = true
		return nil
	})
}

func (s *UserStore) UpdateUsername(_ context.Context, id, username string) (*domain.User, error) {
	s.mu.Lock()
	for _, existing := range s.users {
		if existing.ID != id && existing.Username == username {
			s.mu.Unlock()
			return nil, fmt.Errorf("username %s: %w", username, repository.ErrDuplicateUser)
		}
	}
	s.mu.Unlock()

	if err := s.update(id, func(u *domain.User) error {
		u.Username = username
		return nil
	}); err != nil {
		return nil, err
	}
	return s.Get(id), nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.update(id, func(u *domain.User) error {
		u.PasswordHash = passwordHash
		u.RefreshToken = nil
		return nil
	})
}

func (s *UserStore) SetRefreshToken(_ context.Context, id string, token *string) error {
	return s.update(id, func(u *domain.User) error {
		u.RefreshToken = copyString(token)
		return nil
	})
}

func (s *UserStore) SwapRefreshToken(_ context.Context, id, current, next string) error {
	err := s.update(id, func(u *domain.User) error {
		if !u.HasRefreshToken(current) {
			return repository.ErrRefreshTokenMismatch
		}
		u.RefreshToken = &next
		return nil
	})
	if err != nil {
		return fmt.Errorf("user %s: %w", id, err)
	}
	return nil
}

func (s *UserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user with id %s not found: %w", id, repository.ErrNotFound)
	}
	delete(s.users, id)
	return nil
}

func (s *UserStore) DeleteUnverified(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	u, ok := s.users[id]
	if !ok || u.Verification {
		return false, nil
	}
	delete(s.users, id)
	return true, nil
}

func (s *UserStore) find(match func(*domain.User) bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) update(id string, apply func(*domain.User) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("user with id %s not found: %w", id, repository.ErrNotFound)
	}
	if err := apply(u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func clone(u *domain.User) *domain.User {
	c := *u
	c.RefreshToken = copyString(u.RefreshToken)
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
