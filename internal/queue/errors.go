// VitalSync - Wearable Health Data Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vitalsync

package queue

import (
	"errors"
	"strings"
)

var (
	// ErrJobNotFound is returned when a job ID does not exist.
	ErrJobNotFound = errors.New("sync job not found")

	// ErrInvalidProvider is returned for a provider that is not registered.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrCredentialsRevoked is returned by a Syncer when the provider rejects
	// the stored credentials. It should be wrapped in a PermanentError.
	ErrCredentialsRevoked = errors.New("provider credentials revoked")

	// ErrLeaseHeld is reported when another holder has the tick lease.
	ErrLeaseHeld = errors.New("queue lease held by another holder")

	// ErrStoreClosed is returned by a store after Close.
	ErrStoreClosed = errors.New("queue store closed")

	// ErrInvalidRotationConfig wraps rotation configs that cannot be scheduled.
	ErrInvalidRotationConfig = errors.New("invalid rotation config")

	// ErrProcessorStopped is returned by ProcessQueue after Shutdown.
	ErrProcessorStopped = errors.New("queue processor stopped")

	// errRunInterrupted marks a sync cut short because its queue run ended.
	errRunInterrupted = errors.New("queue run interrupted")
)

// ErrorCategory groups sync failures for logs and events.
type ErrorCategory int

const (
	ErrorCategoryUnknown ErrorCategory = iota
	ErrorCategoryConnection
	ErrorCategoryTimeout
	ErrorCategoryCredentials
	ErrorCategoryRateLimit
	ErrorCategoryValidation
)

// String returns the string representation of the error category.
func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryConnection:
		return "connection"
	case ErrorCategoryTimeout:
		return "timeout"
	case ErrorCategoryCredentials:
		return "credentials"
	case ErrorCategoryRateLimit:
		return "rate_limit"
	case ErrorCategoryValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// RetryableError is a transient sync failure. The job is retried through
// the user's failover policy.
type RetryableError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(message string, cause error) *RetryableError {
	return &RetryableError{
		Message:  message,
		Cause:    cause,
		Category: categorize(message, cause),
	}
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// PermanentError is a failure that retrying cannot fix, such as revoked
// credentials or a deleted account. No retry is scheduled.
type PermanentError struct {
	Message  string
	Cause    error
	Category ErrorCategory
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, cause error) *PermanentError {
	category := categorize(message, cause)
	if category == ErrorCategoryUnknown {
		category = ErrorCategoryValidation
	}
	return &PermanentError{
		Message:  message,
		Cause:    cause,
		Category: category,
	}
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// IsPermanentError reports whether err, or anything it wraps, is a PermanentError.
func IsPermanentError(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// IsRetryableError reports whether err wraps a RetryableError.
func IsRetryableError(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Category returns the category carried by err, or ErrorCategoryUnknown.
func Category(err error) ErrorCategory {
	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		return retryErr.Category
	}
	var permErr *PermanentError
	if errors.As(err, &permErr) {
		return permErr.Category
	}
	return categorize("", err)
}

func categorize(message string, cause error) ErrorCategory {
	if errors.Is(cause, ErrCredentialsRevoked) {
		return ErrorCategoryCredentials
	}
	s := strings.ToLower(message)
	if cause != nil {
		s += " " + strings.ToLower(cause.Error())
	}
	switch {
	case containsAny(s, "revoked", "unauthorized", "forbidden", "credential"):
		return ErrorCategoryCredentials
	case containsAny(s, "timeout", "deadline", "timed out"):
		return ErrorCategoryTimeout
	case containsAny(s, "rate limit", "too many requests", "429"):
		return ErrorCategoryRateLimit
	case containsAny(s, "connection", "connect", "refused", "reset", "network"):
		return ErrorCategoryConnection
	case containsAny(s, "invalid", "validation", "malformed", "parse"):
		return ErrorCategoryValidation
	default:
		return ErrorCategoryUnknown
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
