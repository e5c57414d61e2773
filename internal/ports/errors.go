package ports

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common infrastructure errors that can occur during storage and
// normative table interactions.
var (
	// ErrServiceUnavailable indicates that an external collaborator (norm
	// service, database) is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrRateLimited indicates that the collaborator rejected the request
	// because of rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidUpstreamResponse indicates that a collaborator returned a
	// response that could not be decoded.
	ErrInvalidUpstreamResponse = errors.New("invalid upstream response")

	// ErrConflict indicates that a conditional write lost a race with a
	// concurrent writer.
	ErrConflict = errors.New("concurrent modification")

	// ErrUnauthenticated indicates a missing, malformed or expired session
	// token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConfigNotFound indicates that required configuration is missing.
	ErrConfigNotFound = errors.New("configuration not found")
)

// LookupError represents a failure talking to a normative lookup source.
type LookupError struct {
	// Source identifies the lookup backend, e.g. "file" or "http".
	Source string

	// Operation is the lookup that failed ("subtest" or "composite").
	Operation string

	// Err is the underlying error that occurred.
	Err error

	// RetryAfter indicates how long to wait before retrying, if known.
	RetryAfter *time.Duration
}

// Error implements the error interface for LookupError.
func (e *LookupError) Error() string {
	msg := fmt.Sprintf("lookup error: source=%s, operation=%s, err=%v", e.Source, e.Operation, e.Err)
	if e.RetryAfter != nil {
		msg += fmt.Sprintf(", retry_after=%v", *e.RetryAfter)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LookupError) Unwrap() error { return e.Err }

// IsRetryable returns true if the lookup may succeed when repeated with the
// same inputs.
func (e *LookupError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLookupError creates a new LookupError with the given details.
func NewLookupError(source, operation string, err error) *LookupError {
	return &LookupError{
		Source:    source,
		Operation: operation,
		Err:       err,
	}
}

// StoreError represents an error from the task store.
type StoreError struct {
	// Backend names the store implementation ("memory", "badger", "postgres").
	Backend string

	// Operation is the store method that failed.
	Operation string

	// Key is the record identifier involved, if any.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: backend=%s, operation=%s, key=%s, err=%v", e.Backend, e.Operation, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error { return e.Err }

// IsRetryable returns true for connectivity failures and lost races.
func (e *StoreError) IsRetryable() bool {
	return errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout) ||
		errors.Is(e.Err, ErrConflict)
}

// NewStoreError creates a new StoreError with the given details.
func NewStoreError(backend, operation, key string, err error) *StoreError {
	return &StoreError{
		Backend:   backend,
		Operation: operation,
		Key:       key,
		Err:       err,
	}
}

// ConfigError represents an error from configuration operations.
type ConfigError struct {
	// ConfigKey is the configuration key that was involved in the failed
	// operation.
	ConfigKey string

	// Err is the underlying error that caused the configuration operation
	// to fail.
	Err error
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: key=%s, err=%v", e.ConfigKey, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a new ConfigError with the given details.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{
		ConfigKey: key,
		Err:       err,
	}
}

// retryable is implemented by infrastructure errors that know whether they
// are transient.
type retryable interface {
	IsRetryable() bool
}

// IsTransient reports whether err is an infrastructure fault that a caller
// may retry with unchanged inputs. Domain errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var r retryable
	if errors.As(err, &r) && r.IsRetryable() {
		return true
	}
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, context.DeadlineExceeded)
}

// RetryAfterHint returns the retry delay carried by err, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) && lookupErr.RetryAfter != nil {
		return *lookupErr.RetryAfter, true
	}
	return 0, false
}
