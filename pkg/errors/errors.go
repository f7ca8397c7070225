package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the error kinds the core operations return. The HTTP
// layer maps these to status codes; the core never chooses a status itself.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrAlreadyExists      = errors.New("resource already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrThrottled          = errors.New("too many attempts")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenMalformed     = errors.New("token malformed")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrEnqueueFailed      = errors.New("enqueue failed")
	ErrCacheUnavailable   = errors.New("cache unavailable")
	ErrTimeout            = errors.New("operation timed out")
	ErrInternal           = errors.New("internal error")
)

// AppError is a structured application error with an HTTP status mapping.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// InvalidCredentials creates a 401 error. The message is identical for an
// unknown email and a wrong password so callers cannot enumerate accounts.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// Throttled creates a 429 error for a locked-out login identity.
func Throttled() *AppError {
	return &AppError{
		Code:    "THROTTLED",
		Message: "too many failed attempts, try again later",
		Status:  http.StatusTooManyRequests,
		Err:     ErrThrottled,
	}
}

// TokenExpired creates a 401 error for a token past its expiry.
func TokenExpired() *AppError {
	return &AppError{
		Code:    "TOKEN_EXPIRED",
		Message: "token has expired",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenExpired,
	}
}

// TokenMalformed creates a 401 error for a token that fails signature or
// structural verification.
func TokenMalformed() *AppError {
	return &AppError{
		Code:    "TOKEN_MALFORMED",
		Message: "token is malformed",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenMalformed,
	}
}

// TokenRevoked creates a 401 error for an explicitly revoked token.
func TokenRevoked() *AppError {
	return &AppError{
		Code:    "TOKEN_REVOKED",
		Message: "token has been revoked",
		Status:  http.StatusUnauthorized,
		Err:     ErrTokenRevoked,
	}
}

// EnqueueFailed creates a 503 error for a write task the queue did not
// durably accept. The caller must not assume any side effects happened.
func EnqueueFailed(err error) *AppError {
	return &AppError{
		Code:    "ENQUEUE_FAILED",
		Message: "could not accept the write for processing",
		Status:  http.StatusServiceUnavailable,
		Err:     fmt.Errorf("%w: %w", ErrEnqueueFailed, err),
	}
}

// Timeout creates a 504 error for an operation that ran out of its deadline.
// Distinct from Internal so dashboards can tell a slow dependency apart from
// a broken one.
func Timeout(err error) *AppError {
	return &AppError{
		Code:    "TIMEOUT",
		Message: "the operation timed out",
		Status:  http.StatusGatewayTimeout,
		Err:     fmt.Errorf("%w: %w", ErrTimeout, err),
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrTokenRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrEnqueueFailed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
