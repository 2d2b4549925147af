// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/models"
	"github.com/nilskh/discolog/internal/models/lastfm"
)

// runScrobblesSync walks the Last.fm listening history newest-first
// from the persisted cursor and commits accepted scrobbles in
// checkpoint batches. No per-record lookups are made; everything the
// job needs is on the page.
func (m *Manager) runScrobblesSync(ctx context.Context, limit int) (*runOutcome, error) {
	kind := KindScrobbles

	// The cursor is the newest play timestamp a full run has seen, so
	// each incremental run only pages over what came after it. A load
	// failure falls back to a full walk, which dedup makes harmless.
	var cursor int64
	if prev, err := m.state.Load(ctx, kind); err != nil {
		logging.Warn().Err(err).Msg("Could not load scrobble cursor, walking full history")
	} else if prev != nil {
		cursor = prev.Cursor
	}

	skip, err := m.store.ScrobbleKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("load known scrobble keys: %w", err)
	}
	logging.Debug().Int("known", len(skip)).Int64("cursor", cursor).Msg("Loaded known scrobble keys")
	m.progress.Run(kind, 0)

	guard := NewGuard(kind, m.cfg.Sync.DedupWindow, GuardHooks{
		ExistsByKey:    m.store.HasScrobble,
		ExistsInWindow: m.store.HasScrobbleWithinWindow,
	})

	seen := make(map[string]struct{})
	batch := make([]models.Scrobble, 0, m.checkpointSize())

	// The next cursor must cover skipped records too, or a fully
	// synced history would re-walk from the old cursor forever.
	maxSeen := cursor
	observe := func(t lastfm.Track) {
		if uts := t.UTS(); uts > maxSeen {
			maxSeen = uts
		}
	}

	fetcher := NewFetcher(FetcherConfig{
		Operation:     "lastfm_recent_tracks",
		CourtesyDelay: m.cfg.Lastfm.CourtesyDelay,
		Limit:         limit,
		Retry:         m.lastfmRetry,
	}, func(ctx context.Context, page int) (*Page[lastfm.Track], error) {
		return m.lastfm.RecentPage(ctx, page, cursor)
	}, func(t lastfm.Track) string {
		return ScrobbleNaturalKey(t.Artist.Text, t.Name, t.UTS())
	})
	fetcher.OnTotal = func(total int) { m.progress.SetTotal(kind, total) }

	onRecord := func(t lastfm.Track) error {
		observe(t)
		key := ScrobbleNaturalKey(t.Artist.Text, t.Name, t.UTS())
		label := scrobbleLabel(t)

		playedAt, ok := t.PlayedAt()
		if !ok {
			m.recordSkip(kind, label)
			return nil
		}

		decision, derr := guard.Decide(ctx, Candidate{
			NaturalKey: key,
			TrackKey:   TrackKey(t.Artist.Text, t.Name),
			PlayedAt:   playedAt,
		}, seen)
		if derr != nil {
			m.recordFailure(kind, key, label, derr)
			return nil
		}
		if decision != DecisionNew {
			m.recordSkip(kind, label)
			return nil
		}

		m.progress.Step(kind, label)
		seen[key] = struct{}{}
		batch = append(batch, buildScrobble(t, playedAt))
		if len(batch) >= m.checkpointSize() {
			return m.flushScrobbles(ctx, &batch)
		}
		return nil
	}

	res, ferr := fetcher.FetchAll(ctx, skip, onRecord, func(t lastfm.Track) {
		observe(t)
		m.recordSkip(kind, scrobbleLabel(t))
	})

	if flushErr := m.flushScrobbles(ctx, &batch); flushErr != nil && ferr == nil {
		ferr = flushErr
	}
	if ferr != nil {
		return nil, ferr
	}

	out := &runOutcome{partial: res.RateLimited || res.LimitReached, cursor: cursor}
	if !out.partial && maxSeen > cursor {
		out.cursor = maxSeen
	}
	return out, nil
}

// flushScrobbles commits the staged checkpoint batch and resets it.
func (m *Manager) flushScrobbles(ctx context.Context, batch *[]models.Scrobble) error {
	if len(*batch) == 0 {
		return nil
	}
	res, err := m.store.InsertScrobbles(ctx, *batch)
	if err != nil {
		return fmt.Errorf("commit scrobble checkpoint: %w", err)
	}
	*batch = (*batch)[:0]
	m.creditCheckpoint(KindScrobbles, res)
	return nil
}

func scrobbleLabel(t lastfm.Track) string {
	if t.Artist.Text == "" {
		return t.Name
	}
	return t.Artist.Text + " - " + t.Name
}

func buildScrobble(t lastfm.Track, playedAt time.Time) models.Scrobble {
	return models.Scrobble{
		ID:         uuid.New(),
		NaturalKey: ScrobbleNaturalKey(t.Artist.Text, t.Name, t.UTS()),
		TrackKey:   TrackKey(t.Artist.Text, t.Name),
		Artist:     t.Artist.Text,
		Track:      t.Name,
		Album:      t.Album.Text,
		MBID:       t.MBID,
		PlayedAt:   playedAt,
		Source:     "lastfm",
		CreatedAt:  time.Now().UTC(),
	}
}
