package domain

import "time"

// TokenKind selects the secret, lifetime and purpose of a signed token
type TokenKind string

const (
	TokenKindAccess        TokenKind = "access"
	TokenKindRefresh       TokenKind = "refresh"
	TokenKindEmailVerify   TokenKind = "email_verify"
	TokenKindResetPassword TokenKind = "reset_password"
)

// TokenClaims is the verified content of a token
type TokenClaims struct {
	UserID    string
	Kind      TokenKind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair represents a pair of access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TTL returns how long the token stays valid from now
func (tc TokenClaims) TTL() time.Duration {
	return time.Until(tc.ExpiresAt)
}
