package domain

import "time"

// User represents an account in the system
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	Fullname     string    `json:"fullname" db:"fullname"`
	PasswordHash string    `json:"-" db:"password_hash"`
	RefreshToken *string   `json:"-" db:"refresh_token"`
	Verification bool      `json:"verification" db:"verification"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// PublicUser is a user without credentials, safe to return to clients
type PublicUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Fullname     string    `json:"fullname"`
	Verification bool      `json:"verification"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Public strips the password hash and refresh token
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Fullname:     u.Fullname,
		Verification: u.Verification,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// HasRefreshToken reports whether token is the refresh token currently stored for the user
func (u *User) HasRefreshToken(token string) bool {
	return u.RefreshToken != nil && token != "" && *u.RefreshToken == token
}
