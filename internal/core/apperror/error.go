// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All unit-of-work failures surface as AppError so hosts can map them consistently.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400 / 422)
	CodeValidation       = "VALIDATION_ERROR"
	CodeValidationFailed = "VALIDATION_FAILED"

	// Unit-of-work protocol violations (409 / 500)
	CodeNotInTransaction        = "NOT_IN_TRANSACTION"
	CodeRepeatedCommit          = "REPEATED_COMMIT"
	CodeEmptyActionTarget       = "EMPTY_ACTION_TARGET"
	CodeMirrorWhileCommitting   = "MIRROR_WHILE_COMMITTING"
	CodeRollbackWhileCommitting = "ROLLBACK_WHILE_COMMITTING"
	CodeNoDataContext           = "NO_DATA_CONTEXT"
	CodeContextPoolExhausted    = "CONTEXT_POOL_EXHAUSTED"

	// Authorization errors (401)
	CodeUnauthorized = "UNAUTHORIZED"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409)
	CodeConflict               = "CONFLICT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeLockUpgradeDeadlock    = "LOCK_UPGRADE_DEADLOCK"
)

// Sentinels for errors.Is. They match any AppError carrying the same code.
var (
	ErrNotInTransaction        = &AppError{Code: CodeNotInTransaction}
	ErrRepeatedCommit          = &AppError{Code: CodeRepeatedCommit}
	ErrEmptyActionTarget       = &AppError{Code: CodeEmptyActionTarget}
	ErrValidationFailed        = &AppError{Code: CodeValidationFailed}
	ErrMirrorWhileCommitting   = &AppError{Code: CodeMirrorWhileCommitting}
	ErrRollbackWhileCommitting = &AppError{Code: CodeRollbackWhileCommitting}
	ErrNoDataContext           = &AppError{Code: CodeNoDataContext}
	ErrContextPoolExhausted    = &AppError{Code: CodeContextPoolExhausted}
	ErrNotFound                = &AppError{Code: CodeNotFound}
	ErrValidation              = &AppError{Code: CodeValidation}
	ErrConflict                = &AppError{Code: CodeConflict}
	ErrConcurrentModification  = &AppError{Code: CodeConcurrentModification}
	ErrLockUpgradeDeadlock     = &AppError{Code: CodeLockUpgradeDeadlock}
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (entity key, validation result, ...)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a request validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewValidationFailed wraps an unsatisfied validation result (422).
// result is stored under the "result" detail.
func NewValidationFailed(message string, result any) *AppError {
	return &AppError{
		Code:       CodeValidationFailed,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"result": result},
	}
}

// NewNotInTransaction is returned by Commit, Rollback and lock-promoting
// queries issued without a preceding BeginTransaction.
func NewNotInTransaction(op string) *AppError {
	return &AppError{
		Code:       CodeNotInTransaction,
		Message:    "transaction has not been opened",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"operation": op},
	}
}

// NewRepeatedCommit is returned when Commit re-enters a running commit.
func NewRepeatedCommit() *AppError {
	return &AppError{
		Code:       CodeRepeatedCommit,
		Message:    "transaction commit is already in progress",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewEmptyActionTarget is returned when a scheduled action targets an empty aggregate.
func NewEmptyActionTarget(entityType string) *AppError {
	return &AppError{
		Code:       CodeEmptyActionTarget,
		Message:    fmt.Sprintf("object is empty, cannot persist it (type %s)", entityType),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"entity_type": entityType},
	}
}

// NewMirrorWhileCommitting is returned when a mirroring query runs inside a commit.
func NewMirrorWhileCommitting(key string) *AppError {
	return &AppError{
		Code:       CodeMirrorWhileCommitting,
		Message:    "cannot add mirror while the data context is committing",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"key": key},
	}
}

// NewRollbackWhileCommitting is returned when Rollback or Close is called from
// inside Commit, e.g. by a pre-commit hook.
func NewRollbackWhileCommitting() *AppError {
	return &AppError{
		Code:       CodeRollbackWhileCommitting,
		Message:    "cannot roll back while the data context is committing",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewNoDataContext is returned when no data context is bound to the call chain.
func NewNoDataContext() *AppError {
	return &AppError{
		Code:       CodeNoDataContext,
		Message:    "data context is not bound to this session",
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewContextPoolExhausted is returned when the context pool reached its active limit.
func NewContextPoolExhausted(limit int) *AppError {
	return &AppError{
		Code:       CodeContextPoolExhausted,
		Message:    "data context pool exhausted",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"max_active": limit},
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewConflict creates a conflict error (409), e.g. a duplicate key.
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another session. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewLockUpgradeDeadlock is returned when two shared holders of key both ask
// for an exclusive lock on it.
func NewLockUpgradeDeadlock(key string) *AppError {
	return &AppError{
		Code:       CodeLockUpgradeDeadlock,
		Message:    "lock upgrade would deadlock with another shared holder",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"key": key},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode checks whether the error chain carries an AppError with code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}
