// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/metrics"
)

// Policy is a bounded exponential-backoff retry wrapper around a single
// fallible operation. It is stateless configuration, applied per call,
// and safe to share between goroutines.
type Policy struct {
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int

	// InitialDelay is the sleep after the first failed attempt.
	InitialDelay time.Duration

	// MaxDelay caps the backoff growth. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier is the backoff growth factor (commonly 2.0).
	Multiplier float64

	// Breaker, when set, is consulted before every attempt. A rejected
	// attempt fails fast with ErrCircuitOpen without consuming a retry
	// slot, and every attempted call reports its outcome back.
	Breaker *Breaker

	// Retryable classifies errors; nil defaults to IsRetryable.
	// Anything not retryable (terminal, rate-limited) is returned
	// immediately without further attempts.
	Retryable func(error) bool
}

// Execute runs fn under the policy. The operation name appears in logs
// and retry metrics. It returns nil on the first success, the original
// error for non-retryable failures, ErrCircuitOpen (wrapped) when the
// breaker rejects, ctx.Err() when cancelled during a backoff sleep, and
// an exhaustion error wrapping the last failure otherwise.
func (p *Policy) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		var done func(bool)
		if p.Breaker != nil {
			var err error
			done, err = p.Breaker.Allow()
			if err != nil {
				logging.Warn().
					Str("operation", operation).
					Str("breaker", p.Breaker.Name()).
					Msg("[CIRCUIT BREAKER] Request rejected")
				return err
			}
		}

		err := fn(ctx)
		if done != nil {
			done(err == nil)
		}
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		delay := backoffDelay(p.InitialDelay, p.MaxDelay, p.Multiplier, attempt)
		metrics.RetryAttempts.WithLabelValues(operation).Inc()
		logging.Info().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("delay", delay).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// Do runs fn under the policy and returns its typed result. It exists
// because methods cannot carry type parameters.
func Do[T any](ctx context.Context, p *Policy, operation string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := p.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// backoffDelay calculates the sleep after failedAttempt attempts.
// Formula: initial * multiplier^(failedAttempt-1), capped at maxDelay.
func backoffDelay(initial, maxDelay time.Duration, multiplier float64, failedAttempt int) time.Duration {
	if initial <= 0 {
		return 0
	}
	if multiplier < 1 {
		multiplier = 2
	}

	// Cap the exponent to prevent float overflow (2^63 is the max for time.Duration)
	if failedAttempt > 50 {
		failedAttempt = 50
	}

	factor := math.Pow(multiplier, float64(failedAttempt-1))
	delay := time.Duration(float64(initial) * factor)

	// Handle overflow (negative duration means overflow occurred)
	if delay < 0 {
		delay = math.MaxInt64
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	return delay
}
