// Package apperror defines the error taxonomy shared by every layer.
//
// Services return these typed errors; the HTTP layer maps them to status
// codes with errors.Is/errors.As. Nothing outside the handler package ever
// sees an HTTP status code.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Each corresponds to one kind of failure the API can
// report; AppError wraps exactly one of them so errors.Is works through
// any amount of fmt.Errorf("%w") wrapping done by intermediate layers.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidRating   = errors.New("invalid rating")
	ErrDuplicateRating = errors.New("duplicate rating")
	ErrImage           = errors.New("image processing failed")
)

// AppError carries a sentinel plus a human-readable message.
//
// Details holds per-field messages for validation failures — the API
// aggregates every field error into one response rather than failing on
// the first, so a client can fix a whole form in one round trip.
type AppError struct {
	Err     error    // wrapped sentinel
	Message string   // human-readable summary
	Details []string // optional per-field messages (validation only)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports that no resource of the given kind exists with that id.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ValidationFailed reports a single invalid input.
func ValidationFailed(message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Details: []string{message},
	}
}

// ValidationErrors aggregates several field-level messages into one error.
func ValidationErrors(messages []string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: strings.Join(messages, "; "),
		Details: messages,
	}
}

// Conflict reports a uniqueness violation (e.g. an already-registered email).
func Conflict(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden reports that the authenticated caller lacks permission.
// HTTP handlers map this to 403.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized reports a missing, invalid or expired credential.
// HTTP handlers map this to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// InvalidRating reports a grade that is missing, non-integer or outside [0,5].
func InvalidRating(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidRating,
		Message: message,
	}
}

// DuplicateRating reports a second rating from the same rater on one book.
func DuplicateRating(bookID string) *AppError {
	return &AppError{
		Err:     ErrDuplicateRating,
		Message: fmt.Sprintf("book %s has already been rated by this user", bookID),
	}
}

// ImageProcessing reports a failure in the cover image pipeline.
func ImageProcessing(message string) *AppError {
	return &AppError{
		Err:     ErrImage,
		Message: message,
	}
}
