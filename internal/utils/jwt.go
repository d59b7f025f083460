package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prperemyshlev/portfolio-backend/internal/domain"
)

var (
	// ErrTokenExpired is returned when the token's expiry has passed
	ErrTokenExpired = errors.New("token is expired")

	// ErrInvalidToken is returned for malformed, tampered or mis-signed tokens
	ErrInvalidToken = errors.New("invalid token")
)

// TokenSpec is the secret and lifetime of one token kind
type TokenSpec struct {
	Secret string
	TTL    time.Duration
}

// tokenClaims is the JWT payload shared by every token kind
type tokenClaims struct {
	UserID string `json:"id"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies signed, time-limited tokens.
// Each kind has its own secret and lifetime; nothing is stored server side.
type JWTManager struct {
	specs map[domain.TokenKind]TokenSpec
	now   func() time.Time
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(specs map[domain.TokenKind]TokenSpec) *JWTManager {
	return &JWTManager{
		specs: specs,
		now:   time.Now,
	}
}

// WithClock returns a copy of the manager that reads time from now
func (j *JWTManager) WithClock(now func() time.Time) *JWTManager {
	cpy := *j
	cpy.now = now
	return &cpy
}

// TTL returns the configured lifetime of kind
func (j *JWTManager) TTL(kind domain.TokenKind) time.Duration {
	return j.specs[kind].TTL
}

// Issue signs a token of the given kind for userID
func (j *JWTManager) Issue(kind domain.TokenKind, userID string) (string, error) {
	spec, ok := j.specs[kind]
	if !ok {
		return "", fmt.Errorf("unknown token kind %q", kind)
	}

	now := j.now()
	claims := tokenClaims{
		UserID: userID,
		Type:   string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(spec.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(spec.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return tokenString, nil
}

// Verify checks signature, kind and expiry of tokenString.
// It fails with ErrTokenExpired or ErrInvalidToken.
func (j *JWTManager) Verify(kind domain.TokenKind, tokenString string) (*domain.TokenClaims, error) {
	spec, ok := j.specs[kind]
	if !ok {
		return nil, fmt.Errorf("unknown token kind %q: %w", kind, ErrInvalidToken)
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(spec.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Type != string(kind) {
		return nil, fmt.Errorf("%w: unexpected token type %q", ErrInvalidToken, claims.Type)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidToken)
	}

	result := &domain.TokenClaims{
		UserID:    claims.UserID,
		Kind:      kind,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}

	return result, nil
}
