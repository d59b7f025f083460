// Package apperrors defines the error taxonomy returned by the account
// service and its mapping onto HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds, matchable with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrTokenExpired = errors.New("token expired")
	ErrInternal     = errors.New("internal error")
)

// Stable codes sent to clients alongside the message.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeConflict            = "CONFLICT"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeTokenExpired        = "TOKEN_EXPIRED"
	CodeInvalidRefreshToken = "INVALID_REFRESH_TOKEN"
	CodeForbidden           = "FORBIDDEN"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is an application error with a client-facing message and status.
type Error struct {
	Kind    error
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func Validation(message string) *Error {
	return &Error{Kind: ErrValidation, Code: CodeValidation, Message: message, Status: http.StatusBadRequest}
}

// Conflict is reported as 400, the status clients of this API already expect
// for duplicate usernames and emails.
func Conflict(message string) *Error {
	return &Error{Kind: ErrConflict, Code: CodeConflict, Message: message, Status: http.StatusBadRequest}
}

func NotFound(message string) *Error {
	return &Error{Kind: ErrNotFound, Code: CodeNotFound, Message: message, Status: http.StatusNotFound}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: ErrUnauthorized, Code: CodeUnauthorized, Message: message, Status: http.StatusUnauthorized}
}

func MissingToken(message string) *Error {
	return &Error{Kind: ErrUnauthorized, Code: CodeMissingToken, Message: message, Status: http.StatusUnauthorized}
}

// InvalidToken carries the status of the flow that rejected the token:
// 400 for emailed action tokens, 401 for session tokens.
func InvalidToken(message string, status int) *Error {
	kind := ErrUnauthorized
	if status == http.StatusBadRequest {
		kind = ErrValidation
	}
	return &Error{Kind: kind, Code: CodeInvalidToken, Message: message, Status: status}
}

func TokenExpired(message string, status int) *Error {
	return &Error{Kind: ErrTokenExpired, Code: CodeTokenExpired, Message: message, Status: status}
}

func Forbidden(message string) *Error {
	return &Error{Kind: ErrForbidden, Code: CodeForbidden, Message: message, Status: http.StatusForbidden}
}

func InvalidRefreshToken(message string) *Error {
	return &Error{Kind: ErrForbidden, Code: CodeInvalidRefreshToken, Message: message, Status: http.StatusForbidden}
}

// Internal hides err from clients; the message is always generic.
func Internal(err error) *Error {
	return &Error{
		Kind:    ErrInternal,
		Code:    CodeInternal,
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// As extracts an *Error from err, converting unclassified errors into Internal.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	return As(err).Status
}
