// Package apperror defines the error types shared across the application.
//
// Two families of errors exist:
//   - AppError: a typed, human-readable error that wraps a sentinel (ErrNotFound,
//     ErrValidation, ErrConflict). Handlers map the sentinel to an HTTP status.
//   - FetchError: a failed call to the remote book service, tagged with the
//     operation that issued it. The service layer catches these and turns them
//     into a user-visible notice; they never reach a handler.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrConflict   = errors.New("conflict")
	ErrFetch      = errors.New("fetch failed")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a write that lost a race against a concurrent writer,
// e.g. an optimistic Redis transaction that kept failing.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// FetchError is returned when a call to the remote book service fails.
//
// It covers all three failure modes the same way:
//   - the request never got a response (network error)
//   - the response was not 2xx
//   - the body could not be decoded into the expected shape
//
// Op names the operation that issued the call ("listUsers", "loadRecommendations", ...).
// Err is the underlying cause and is reachable through errors.Unwrap.
type FetchError struct {
	Op  string
	Err error
}

// Fetch wraps cause in a FetchError for the given operation.
func Fetch(op string, cause error) *FetchError {
	return &FetchError{Op: op, Err: cause}
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, ErrFetch)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, ErrFetch, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrFetch) match any FetchError regardless of its cause.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}
