// Package apperr holds the error kinds shared by the store, session and HTTP
// layers. Callers wrap them with fmt.Errorf and test with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth means the session is missing, invalid or expired.
	ErrAuth = errors.New("authentication required")
	// ErrConflict means a uniqueness constraint rejected the write.
	ErrConflict = errors.New("already exists")
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient means the backing store is unavailable. The caller may retry.
	ErrTransient = errors.New("temporarily unavailable")
	ErrInvalid   = errors.New("invalid request")
	ErrForbidden = errors.New("forbidden")
)

// Transient wraps a store or network failure as ErrTransient, keeping the cause.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Status maps an error to the HTTP status code the API responds with.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether re-triggering the operation may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
