package errors

import (
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// AppError defines the interface for application-specific errors
type AppError interface {
	error
	HTTPCode() int     // HTTP status code
	ErrorCode() string // Business error code
	Message() string   // User-friendly error message
	Details() any      // Detailed error information (optional)
}

// BaseError is a basic error structure that implements the AppError interface
type BaseError struct {
	httpCode  int
	errorCode string
	message   string
	details   any
}

// NewBaseError creates a new base error
func NewBaseError(httpCode int, errorCode, message string, details any) *BaseError {
	return &BaseError{
		httpCode:  httpCode,
		errorCode: errorCode,
		message:   message,
		details:   details,
	}
}

// Error implements the error interface
func (e *BaseError) Error() string {
	return e.message
}

// WrapMessage wraps the error with additional context message
func (e *BaseError) WrapMessage(message string) error {
	return pkgerrors.Wrap(e, message)
}

// HTTPCode returns the HTTP status code
func (e *BaseError) HTTPCode() int {
	return e.httpCode
}

// ErrorCode returns the business error code
func (e *BaseError) ErrorCode() string {
	return e.errorCode
}

// Message returns the user-friendly error message
func (e *BaseError) Message() string {
	return e.message
}

// Details returns detailed error information
func (e *BaseError) Details() any {
	return e.details
}

// Is matches any BaseError carrying the same business code, so errors.Is keeps
// working on copies produced by WithDetails.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}

	return e.errorCode == t.errorCode
}

// WithDetails returns a copy of the error carrying details
func (e *BaseError) WithDetails(details any) *BaseError {
	return &BaseError{
		httpCode:  e.httpCode,
		errorCode: e.errorCode,
		message:   e.message,
		details:   details,
	}
}

// Predefined error types
var (
	// Registration
	ErrUserAlreadyExists = NewBaseError(
		http.StatusBadRequest,
		"USER_ALREADY_EXISTS",
		"User already exists",
		nil,
	)

	ErrUserNotFound = NewBaseError(
		http.StatusNotFound,
		"USER_NOT_FOUND",
		"User not found",
		nil,
	)

	// Login. Unknown username and wrong password share this value.
	ErrInvalidCredentials = NewBaseError(
		http.StatusUnauthorized,
		"INVALID_CREDENTIALS",
		"Invalid credentials",
		nil,
	)

	// Token verification
	ErrTokenMissing = NewBaseError(
		http.StatusUnauthorized,
		"TOKEN_MISSING",
		"No token provided",
		nil,
	)

	ErrTokenMalformed = NewBaseError(
		http.StatusUnauthorized,
		"TOKEN_MALFORMED",
		"Invalid token",
		nil,
	)

	ErrTokenInvalidSignature = NewBaseError(
		http.StatusUnauthorized,
		"TOKEN_INVALID_SIGNATURE",
		"Invalid token",
		nil,
	)

	ErrTokenExpired = NewBaseError(
		http.StatusUnauthorized,
		"TOKEN_EXPIRED",
		"Token expired",
		nil,
	)

	ErrForbidden = NewBaseError(
		http.StatusForbidden,
		"FORBIDDEN",
		"Permission denied",
		nil,
	)

	// Collaborators
	ErrStoreUnavailable = NewBaseError(
		http.StatusServiceUnavailable,
		"STORE_UNAVAILABLE",
		"Service temporarily unavailable, please retry",
		nil,
	)

	ErrPasswordHashFailed = NewBaseError(
		http.StatusInternalServerError,
		"PASSWORD_HASH_FAILED",
		"Internal server error",
		nil,
	)

	ErrTokenIssueFailed = NewBaseError(
		http.StatusInternalServerError,
		"TOKEN_ISSUE_FAILED",
		"Internal server error",
		nil,
	)

	ErrValidationFailed = NewBaseError(
		http.StatusBadRequest,
		"VALIDATION_FAILED",
		"Input validation failed",
		nil,
	)

	ErrInternalError = NewBaseError(
		http.StatusInternalServerError,
		"INTERNAL_ERROR",
		"Internal server error",
		nil,
	)
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates every field problem found in a single input.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError from the given field problems.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidationFailed) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// HTTPCode returns the HTTP status code
func (e *ValidationError) HTTPCode() int {
	return ErrValidationFailed.HTTPCode()
}

// ErrorCode returns the business error code
func (e *ValidationError) ErrorCode() string {
	return ErrValidationFailed.ErrorCode()
}

// Message returns the user-friendly error message
func (e *ValidationError) Message() string {
	return ErrValidationFailed.Message()
}

// Details returns the field list
func (e *ValidationError) Details() any {
	return e.Fields
}

// StoreError wraps a connectivity failure of the credential store. The cause is
// kept for logs; clients only ever see ErrStoreUnavailable's message.
type StoreError struct {
	err     error
	details string
}

// NewStoreError creates a store connectivity error
func NewStoreError(err error, details string) AppError {
	return &StoreError{
		err:     err,
		details: details,
	}
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.err == nil {
		return e.details
	}

	return pkgerrors.Wrap(e.err, e.details).Error()
}

// Unwrap exposes the driver error.
func (e *StoreError) Unwrap() error {
	return e.err
}

// Is lets errors.Is(err, ErrStoreUnavailable) match.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// HTTPCode returns the HTTP status code
func (e *StoreError) HTTPCode() int {
	return ErrStoreUnavailable.HTTPCode()
}

// ErrorCode returns the business error code
func (e *StoreError) ErrorCode() string {
	return ErrStoreUnavailable.ErrorCode()
}

// Message returns the user-friendly error message
func (e *StoreError) Message() string {
	return ErrStoreUnavailable.Message()
}

// Details returns detailed error information
func (e *StoreError) Details() any {
	return e.details
}
