// Package errors provides the error vocabulary shared by the meditation service.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a session, highlight or psalm does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a request that failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable indicates an upstream scripture source could not serve a request.
	ErrUnavailable = errors.New("unavailable")
	// ErrBusy indicates the session is loading scripture and cannot accept gestures.
	ErrBusy = errors.New("busy")
)

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string // "session", "highlight", "psalm"
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError reports a request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UpstreamError reports a failed call to a remote scripture API.
type UpstreamError struct {
	Service    string // "esv", "api.bible"
	StatusCode int    // 0 when the request never produced a response
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s returned status %d: %v", e.Service, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s request failed", e.Service)
}

// Unwrap exposes both the underlying cause and ErrUnavailable.
func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Err, ErrUnavailable}
	}
	return []error{ErrUnavailable}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewUpstream creates an UpstreamError
func NewUpstream(service string, statusCode int, err error) *UpstreamError {
	return &UpstreamError{
		Service:    service,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target any) bool {
	return errors.As(err, target)
}
