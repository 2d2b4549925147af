// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package resilience

import (
	"errors"
	"time"
)

// ErrCircuitOpen is returned when a call is rejected because the
// circuit breaker is open (or half-open with its probe quota spent).
// It is a fast-fail signal: the protected operation was never invoked.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// RetryableError represents a transient failure (network timeout,
// connection refused, provider 5xx). Operations failing this way are
// safe to retry.
type RetryableError struct {
	Message string
	Cause   error
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(message string, cause error) *RetryableError {
	return &RetryableError{Message: message, Cause: cause}
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

// TerminalError represents an unrecoverable failure (bad credentials,
// malformed request, provider 4xx). Retrying cannot help.
type TerminalError struct {
	Message string
	Cause   error
}

// NewTerminalError creates a new terminal error.
func NewTerminalError(message string, cause error) *TerminalError {
	return &TerminalError{Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *TerminalError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error unwrapping.
func (e *TerminalError) Unwrap() error {
	return e.Cause
}

// RateLimitedError signals that the provider asked us to back off
// (HTTP 429). It is neither retried inline nor treated as a dependency
// failure: pagination loops stop early and keep the progress made so
// far. RetryAfter carries the provider's Retry-After hint when present.
type RateLimitedError struct {
	Message    string
	RetryAfter time.Duration
}

// NewRateLimitedError creates a new rate-limited error.
func NewRateLimitedError(message string, retryAfter time.Duration) *RateLimitedError {
	return &RateLimitedError{Message: message, RetryAfter: retryAfter}
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return e.Message
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// IsTerminal checks if the error is terminal (non-retryable).
func IsTerminal(err error) bool {
	var termErr *TerminalError
	return errors.As(err, &termErr)
}

// IsRateLimited checks if the error is a provider rate-limit signal.
func IsRateLimited(err error) bool {
	var rlErr *RateLimitedError
	return errors.As(err, &rlErr)
}
