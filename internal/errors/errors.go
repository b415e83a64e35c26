// Package errors provides the application error types and helpers.
package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// APIError represents a structured API error with an HTTP status code.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Predefined API errors.
var (
	ErrBadRequest        = &APIError{HTTPStatus: http.StatusBadRequest, Code: "BAD_REQUEST", Message: "Invalid request parameters"}
	ErrInvalidJSON       = &APIError{HTTPStatus: http.StatusBadRequest, Code: "INVALID_JSON", Message: "Invalid JSON format"}
	ErrValidation        = &APIError{HTTPStatus: http.StatusBadRequest, Code: "VALIDATION_FAILED", Message: "Validation failed"}
	ErrDuplicateResource = &APIError{HTTPStatus: http.StatusConflict, Code: "DUPLICATE_RESOURCE", Message: "Resource already exists"}
	ErrResourceNotFound  = &APIError{HTTPStatus: http.StatusNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrInternalServer    = &APIError{HTTPStatus: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: "Internal server error"}
	ErrDatabase          = &APIError{HTTPStatus: http.StatusInternalServerError, Code: "DATABASE_ERROR", Message: "Database operation failed"}
	ErrUnauthorized      = &APIError{HTTPStatus: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Unauthorized access"}
	ErrForbidden         = &APIError{HTTPStatus: http.StatusForbidden, Code: "FORBIDDEN", Message: "Access forbidden"}

	// Attendance-specific errors.
	ErrAlreadyTimedIn  = &APIError{HTTPStatus: http.StatusConflict, Code: "ALREADY_TIMED_IN", Message: "Already timed in"}
	ErrNoActiveSession = &APIError{HTTPStatus: http.StatusConflict, Code: "NO_ACTIVE_SESSION", Message: "No active time-in found"}
	ErrStateConflict   = &APIError{HTTPStatus: http.StatusConflict, Code: "STATE_CONFLICT", Message: "Conflicting attendance state"}
	ErrPolicyViolation = &APIError{HTTPStatus: http.StatusUnprocessableEntity, Code: "POLICY_VIOLATION", Message: "Attendance policy violation"}
)

// NewAPIError creates a new APIError based on a predefined error with a custom message.
func NewAPIError(base *APIError, message string) *APIError {
	return &APIError{
		HTTPStatus: base.HTTPStatus,
		Code:       base.Code,
		Message:    message,
	}
}

// NewValidationError creates a validation error with a custom message.
func NewValidationError(message string) *APIError {
	return NewAPIError(ErrValidation, message)
}

// NewAuthenticationError creates an authentication error with a custom message.
func NewAuthenticationError(message string) *APIError {
	return NewAPIError(ErrUnauthorized, message)
}

// NewNotFoundError creates a not found error with a custom message.
func NewNotFoundError(message string) *APIError {
	return NewAPIError(ErrResourceNotFound, message)
}

// NewForbiddenError creates a forbidden error with a custom message.
func NewForbiddenError(message string) *APIError {
	return NewAPIError(ErrForbidden, message)
}

// ParseDBError maps database driver errors to APIErrors.
// Returns nil when err is nil.
func ParseDBError(err error) *APIError {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrResourceNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateResource
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return ErrDuplicateResource
	}

	// SQLite reports unique violations as plain strings.
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateResource
	}

	return ErrDatabase
}

// IsDuplicateKey reports whether err is a unique-constraint violation on any
// supported dialect. The session engine relies on this to map the open-session
// unique index into a state-conflict outcome instead of a generic failure.
func IsDuplicateKey(err error) bool {
	return ParseDBError(err) == ErrDuplicateResource
}
