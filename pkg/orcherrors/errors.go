// Package orcherrors defines the orchestrator's error-kind taxonomy
// (spec.md §7): a fixed set of kinds, not a fixed set of Go types, so that
// every layer above the RPC Client can branch on "what kind of failure was
// this" via errors.Is/errors.As without depending on grpc directly.
package orcherrors

import (
	"errors"
	"fmt"
)

// Sentinel kind markers. Wrap one of these with fmt.Errorf("...: %w", ErrX)
// (or use the typed wrappers below) so errors.Is(err, ErrX) succeeds.
var (
	ErrConnection = errors.New("connection error")
	ErrTimeout    = errors.New("timeout error")
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrCancelled  = errors.New("cancelled")
	ErrInternal   = errors.New("internal error")
)

// ValidationError carries the field-level detail behind ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: field %q: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError constructs a *ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError carries the resource identity behind ErrNotFound.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError constructs a *NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsValidationError reports whether err (or any error it wraps) is a
// *ValidationError, mirroring teacher pkg/services' IsValidationError helper.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err (or any error it wraps) is a *NotFoundError
// or the bare ErrNotFound sentinel.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe) || errors.Is(err, ErrNotFound)
}

// IsCancelled reports whether err represents a cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsTimeout reports whether err represents a deadline exceeded condition.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
