// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"context"
	"time"

	"github.com/nilskh/discolog/internal/metrics"
)

// Decision classifies one incoming record against what is already
// known, locally or earlier in the same run.
type Decision string

const (
	// DecisionNew means the record has never been seen and should be
	// transformed and persisted.
	DecisionNew Decision = "new"

	// DecisionDuplicateExact means a record with the same natural key
	// is already persisted. Catches reruns of the same import.
	DecisionDuplicateExact Decision = "duplicate_exact"

	// DecisionDuplicateWindow means a persisted play of the same track
	// sits within the dedup window of this one. Catches the provider
	// reporting one physical play twice under slightly different
	// timestamps.
	DecisionDuplicateWindow Decision = "duplicate_window"

	// DecisionDuplicateSession means the same natural key was already
	// accepted earlier in this run but is still staged in an
	// uncommitted checkpoint, so a storage lookup cannot see it yet.
	DecisionDuplicateSession Decision = "duplicate_session"
)

// GuardHooks supplies the persistence lookups the guard consults. Both
// run against live storage, not a start-of-run snapshot, so records
// committed by an earlier checkpoint of the same run are still caught.
type GuardHooks struct {
	// ExistsByKey reports whether a record with the natural key is
	// persisted.
	ExistsByKey func(ctx context.Context, naturalKey string) (bool, error)

	// ExistsInWindow reports whether a persisted play of the same
	// track lies within the window around playedAt, in either
	// direction. Nil for kinds without window deduplication.
	ExistsInWindow func(ctx context.Context, trackKey string, playedAt time.Time, window time.Duration) (bool, error)
}

// Candidate carries the identity fields of one incoming record.
// TrackKey and PlayedAt are only meaningful for windowed kinds.
type Candidate struct {
	NaturalKey string
	TrackKey   string
	PlayedAt   time.Time
}

// Guard decides whether an incoming record is new, an exact repeat, a
// time-window near-duplicate, or already seen in the current run. The
// checks apply strictly in that order, so a record that is both
// persisted and staged reports the persisted duplicate.
type Guard struct {
	kind   Kind
	window time.Duration
	hooks  GuardHooks
}

// NewGuard creates a guard for one kind. A zero window disables the
// near-duplicate check regardless of hooks.
func NewGuard(kind Kind, window time.Duration, hooks GuardHooks) *Guard {
	return &Guard{kind: kind, window: window, hooks: hooks}
}

// Decide classifies one record. seen holds the natural keys accepted
// earlier in this run; the caller owns it and adds keys only for
// records the guard reported as new.
func (g *Guard) Decide(ctx context.Context, c Candidate, seen map[string]struct{}) (Decision, error) {
	exists, err := g.hooks.ExistsByKey(ctx, c.NaturalKey)
	if err != nil {
		return "", err
	}
	if exists {
		return g.record(DecisionDuplicateExact), nil
	}

	if g.window > 0 && g.hooks.ExistsInWindow != nil && c.TrackKey != "" {
		near, err := g.hooks.ExistsInWindow(ctx, c.TrackKey, c.PlayedAt, g.window)
		if err != nil {
			return "", err
		}
		if near {
			return g.record(DecisionDuplicateWindow), nil
		}
	}

	if _, ok := seen[c.NaturalKey]; ok {
		return g.record(DecisionDuplicateSession), nil
	}

	return g.record(DecisionNew), nil
}

func (g *Guard) record(d Decision) Decision {
	metrics.DedupDecisions.WithLabelValues(g.kind.String(), string(d)).Inc()
	return d
}
