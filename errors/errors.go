// Package errors defines the structured error type and taxonomy used across
// the image-loading core.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryDecode    Category = "decode"
	CategoryFetch     Category = "fetch"
	CategoryCache     Category = "cache"
	CategoryState     Category = "state"
	CategoryConfig    Category = "config"
	CategoryTransient Category = "transient"
	CategoryInput     Category = "input"
)

// LoadError is the structured error type used throughout the module.
type LoadError struct {
	Category  Category
	Op        string // operation name
	Err       error
	Retryable bool
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// New creates a non-retryable LoadError.
func New(category Category, op string, err error) *LoadError {
	return &LoadError{Category: category, Op: op, Err: err}
}

// Transient creates a retryable LoadError.
func Transient(op string, err error) *LoadError {
	return &LoadError{Category: CategoryTransient, Op: op, Err: err, Retryable: true}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsRetryable reports whether err represents a transient failure.
func IsRetryable(err error) bool {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Retryable
	}
	return false
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Category == cat
	}
	return false
}

// IsUnsupportedFormat reports whether err stems from malformed or unknown
// image bytes.
func IsUnsupportedFormat(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat)
}

// IsCapabilityUnavailable reports whether err is a capability-negotiation
// result rather than a real failure. Callers seeing it should fall back to
// full decode, not fail the load.
func IsCapabilityUnavailable(err error) bool {
	return errors.Is(err, ErrCapabilityUnavailable)
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat     = errors.New("unsupported image format")
	ErrFetchFailed           = errors.New("fetch failed")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrInvalidDimensions     = errors.New("invalid dimensions")
	ErrEmptyInput            = errors.New("empty input")
	ErrWorkerPoolFull        = errors.New("worker pool queue full")
	ErrLoaderClosed          = errors.New("loader closed")
)
