// Package errors defines the sentinel errors shared across the build and
// serve phases, plus an AppError wrapper that carries an HTTP status code
// across the query-engine boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrIndexNotBuilt means the serve phase was started without a completed
	// build (missing or false status marker).
	ErrIndexNotBuilt = errors.New("index not built")
	// ErrArtifactMissing means a required build artifact (partial index,
	// final index, offset map, URL table) is absent.
	ErrArtifactMissing = errors.New("artifact missing")
	// ErrCorruptRecord means an index record failed to decode. Corrupt
	// records abort the operation rather than dropping postings silently.
	ErrCorruptRecord = errors.New("corrupt index record")
	// ErrInvalidInput covers malformed requests and unparsable documents.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal is the catch-all for unexpected failures.
	ErrInternal = errors.New("internal error")
	// ErrTimeout means an operation exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
)

// AppError pairs a sentinel error with a human-readable message and the HTTP
// status code the serving layer should emit.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel in an AppError.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf is New with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status the handler should return.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotBuilt), errors.Is(err, ErrArtifactMissing):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
