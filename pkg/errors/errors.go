package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Status     int    `json:"status"`
	Suggestion string `json:"suggestion,omitempty"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors by code so cloned and wrapped instances still compare
// equal to their sentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrFileValidation     = New("FILE_VALIDATION_ERROR", http.StatusBadRequest, "file failed validation")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrModuleNotReady     = New("MODULE_NOT_READY", http.StatusConflict, "module processing has not completed")
	ErrModuleHasLearners  = New("MODULE_HAS_LEARNERS", http.StatusConflict, "module has incomplete assignments")
)

// ErrPlanLimit signals that the organization's subscription ceiling was hit.
var ErrPlanLimit = &Error{
	Code:       "PLAN_LIMIT_EXCEEDED",
	Status:     http.StatusPaymentRequired,
	Message:    "subscription plan limit reached",
	Suggestion: "upgrade your plan to add more modules or members",
}

// RateLimitError is returned when a (user, action) pair exceeds its window.
// RetryAfter tells the client how long to back off.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Action, e.RetryAfter)
}

// HTTPError converts the rate limit violation to the common error shape.
func (e *RateLimitError) HTTPError() *Error {
	return &Error{
		Code:       "RATE_LIMITED",
		Status:     http.StatusTooManyRequests,
		Message:    fmt.Sprintf("too many %s requests", e.Action),
		Suggestion: fmt.Sprintf("retry after %d seconds", int(e.RetryAfter.Seconds()+0.5)),
	}
}

// ProcessingError wraps a document processing failure and records whether a
// retry could succeed (transient tool failure) or not (malformed document).
type ProcessingError struct {
	Message   string
	Retryable bool
	Err       error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError builds a ProcessingError.
func NewProcessingError(message string, retryable bool, err error) *ProcessingError {
	return &ProcessingError{Message: message, Retryable: retryable, Err: err}
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.HTTPError()
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
