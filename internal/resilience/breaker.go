// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

// Package resilience provides the failure-handling primitives shared by
// the sync engine and the provider clients: a per-dependency circuit
// breaker and a bounded exponential-backoff retry policy. The breaker
// fails fast while a dependency is unhealthy; the retry policy absorbs
// transient faults and classifies everything else as terminal.
package resilience

import (
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/metrics"
)

// BreakerConfig configures one circuit breaker instance.
type BreakerConfig struct {
	// Name identifies the protected dependency in logs and metrics.
	Name string

	// FailureThreshold is the number of consecutive failures that
	// opens the circuit.
	FailureThreshold uint32

	// SuccessThreshold is the number of consecutive successes in
	// half-open state required to close the circuit again. It also
	// bounds how many probe calls half-open admits.
	SuccessThreshold uint32

	// RecoveryTimeout is how long the circuit stays open before the
	// next call is allowed through as a half-open probe.
	RecoveryTimeout time.Duration
}

// Breaker is a per-dependency circuit breaker.
//
// DETERMINISM NOTE: recovery timing uses real time (via sony/gobreaker).
// This is intentional for production resilience: the clock decides when
// to probe a failing dependency again, not data integrity. Tests use
// short real timeouts rather than a mocked clock.
type Breaker struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker[any]
}

// NewBreaker creates a circuit breaker that opens after
// FailureThreshold consecutive failures, waits RecoveryTimeout, then
// requires SuccessThreshold consecutive half-open successes to close.
// A single half-open failure reopens it immediately.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}

	// Initialize state metric so the gauge exists before the first transition
	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(stateToFloat(gobreaker.StateClosed))

	cb := gobreaker.NewTwoStepCircuitBreaker[any](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.RecoveryTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= cfg.FailureThreshold
			if trip {
				logging.Warn().
					Str("breaker", cfg.Name).
					Uint32("consecutive_failures", counts.ConsecutiveFailures).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().
				Str("breaker", name).
				Str("from", fromStr).
				Str("to", toStr).
				Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &Breaker{name: cfg.Name, cb: cb}
}

// Allow reports whether a call to the dependency may proceed. On
// admission it returns a done callback that the caller must invoke with
// the call's outcome; the breaker never sees calls whose outcome is not
// reported. While the circuit is open the returned error wraps
// ErrCircuitOpen and the protected call must not be made.
//
// The first Allow after RecoveryTimeout elapses transitions the breaker
// from open to half-open and is admitted as a probe.
func (b *Breaker) Allow() (func(success bool), error) {
	done, err := b.cb.Allow()
	if err != nil {
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
	}

	return func(success bool) {
		if success {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		}
		done(success)
	}, nil
}

// Name returns the dependency name the breaker protects.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state as "closed", "half-open" or "open".
// Reading the state also applies any pending open-to-half-open
// transition whose recovery timeout has elapsed.
func (b *Breaker) State() string {
	return stateToString(b.cb.State())
}

// Counts returns the breaker's request counters for the current
// generation. Counters reset on every state transition.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
