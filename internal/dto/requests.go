package dto

import "github.com/prperemyshlev/portfolio-backend/internal/domain"

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=4,max=25"`
	Email    string `json:"email" validate:"required,email"`
	Fullname string `json:"fullname" validate:"required,min=4,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest asks for a reset link to be mailed
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest carries the new password for a reset link
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// ChangePasswordRequest represents a password change by a signed-in user
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// UpdateUsernameRequest represents a username change
type UpdateUsernameRequest struct {
	Username string `json:"username" validate:"required,min=4,max=25"`
}

// SessionResponse is returned by login and refresh
type SessionResponse struct {
	User         domain.PublicUser `json:"user"`
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
}

// APIResponse is the envelope for every successful response
type APIResponse struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// NewAPIResponse builds a success envelope; success follows the status code
func NewAPIResponse(status int, data interface{}, message string) APIResponse {
	return APIResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < 400,
	}
}
