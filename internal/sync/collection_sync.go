// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/models"
	"github.com/nilskh/discolog/internal/models/discogs"
	"github.com/nilskh/discolog/internal/resilience"
)

// runCollectionSync walks the Discogs collection newest-first, enriches
// each unknown release with a per-release detail lookup, and commits
// accepted releases in checkpoint batches.
func (m *Manager) runCollectionSync(ctx context.Context, limit int) (*runOutcome, error) {
	kind := KindCollection

	skip, err := m.store.ReleaseIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load known release ids: %w", err)
	}
	logging.Debug().Int("known", len(skip)).Msg("Loaded known release ids")
	m.progress.Run(kind, 0)

	// Releases have no near-duplicate window; the guard only checks
	// storage for ids that slipped past the skip set.
	guard := NewGuard(kind, 0, GuardHooks{
		ExistsByKey: func(ctx context.Context, naturalKey string) (bool, error) {
			id, perr := strconv.ParseInt(naturalKey, 10, 64)
			if perr != nil {
				return false, fmt.Errorf("malformed release key %q: %w", naturalKey, perr)
			}
			return m.store.HasRelease(ctx, id)
		},
	})

	seen := make(map[string]struct{})
	batch := make([]models.Release, 0, m.checkpointSize())

	fetcher := NewFetcher(FetcherConfig{
		Operation:     "discogs_collection",
		CourtesyDelay: m.cfg.Discogs.CourtesyDelay,
		Limit:         limit,
		Retry:         m.discogsRetry,
	}, m.discogs.CollectionPage, func(item discogs.CollectionItem) string {
		return ReleaseNaturalKey(item.ID)
	})
	fetcher.OnTotal = func(total int) { m.progress.SetTotal(kind, total) }

	onRecord := func(item discogs.CollectionItem) error {
		key := ReleaseNaturalKey(item.ID)
		label := collectionLabel(item)

		decision, derr := guard.Decide(ctx, Candidate{NaturalKey: key}, seen)
		if derr != nil {
			m.recordFailure(kind, key, label, derr)
			return nil
		}
		if decision != DecisionNew {
			m.recordSkip(kind, label)
			return nil
		}

		detail, ferr := resilience.Do(ctx, m.discogsRetry, "discogs_release_detail", func(ctx context.Context) (*discogs.Release, error) {
			return m.discogs.Release(ctx, item.ID)
		})
		if ferr != nil {
			// A broken provider or a rate limit ends the run; the
			// record stays uncounted so a later run picks it up.
			if errors.Is(ferr, resilience.ErrCircuitOpen) || resilience.IsRateLimited(ferr) || ctx.Err() != nil {
				return ferr
			}
			m.recordFailure(kind, key, label, ferr)
			return nil
		}

		m.progress.Step(kind, label)
		seen[key] = struct{}{}
		batch = append(batch, buildRelease(item, detail))
		if len(batch) >= m.checkpointSize() {
			return m.flushReleases(ctx, &batch)
		}
		return nil
	}

	res, ferr := fetcher.FetchAll(ctx, skip, onRecord, func(item discogs.CollectionItem) {
		m.recordSkip(kind, collectionLabel(item))
	})

	// Commit whatever is staged no matter how the walk ended, so an
	// aborted run keeps every record it already accepted.
	if flushErr := m.flushReleases(ctx, &batch); flushErr != nil && ferr == nil {
		ferr = flushErr
	}

	if ferr != nil {
		if !resilience.IsRateLimited(ferr) {
			return nil, ferr
		}
		logging.Warn().Err(ferr).Msg("Discogs rate limited mid-record, keeping partial progress")
		res.RateLimited = true
	}

	return &runOutcome{partial: res.RateLimited || res.LimitReached}, nil
}

// flushReleases commits the staged checkpoint batch and resets it.
func (m *Manager) flushReleases(ctx context.Context, batch *[]models.Release) error {
	if len(*batch) == 0 {
		return nil
	}
	res, err := m.store.InsertReleases(ctx, *batch)
	if err != nil {
		return fmt.Errorf("commit release checkpoint: %w", err)
	}
	*batch = (*batch)[:0]
	m.creditCheckpoint(KindCollection, res)
	return nil
}

func collectionLabel(item discogs.CollectionItem) string {
	artists := discogs.JoinArtists(item.BasicInformation.Artists)
	if artists == "" {
		return item.BasicInformation.Title
	}
	return artists + " - " + item.BasicInformation.Title
}

// buildRelease maps a collection item plus its detail lookup onto the
// local release model. The detail record wins where both carry a
// field; the collection listing fills the gaps.
func buildRelease(item discogs.CollectionItem, detail *discogs.Release) models.Release {
	basic := item.BasicInformation
	now := time.Now().UTC()

	rel := models.Release{
		ID:         uuid.New(),
		DiscogsID:  item.ID,
		InstanceID: item.InstanceID,
		Title:      basic.Title,
		Artists:    discogs.JoinArtists(basic.Artists),
		Year:       basic.Year,
		Labels:     joinLabels(basic.Labels),
		Formats:    joinFormats(basic.Formats),
		Genres:     strings.Join(basic.Genres, ", "),
		Styles:     strings.Join(basic.Styles, ", "),
		Rating:     item.Rating,
		Thumb:      basic.Thumb,
		CoverImage: basic.CoverImage,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if added, err := time.Parse(time.RFC3339, item.DateAdded); err == nil {
		rel.AddedAt = added.UTC()
	} else {
		rel.AddedAt = now
	}

	if detail == nil {
		return rel
	}
	if detail.Title != "" {
		rel.Title = detail.Title
	}
	if len(detail.Artists) > 0 {
		rel.Artists = discogs.JoinArtists(detail.Artists)
	}
	if detail.Year > 0 {
		rel.Year = detail.Year
	}
	rel.Country = detail.Country
	rel.Released = detail.Released
	if len(detail.Labels) > 0 {
		rel.Labels = joinLabels(detail.Labels)
	}
	if len(detail.Formats) > 0 {
		rel.Formats = joinFormats(detail.Formats)
	}
	if len(detail.Genres) > 0 {
		rel.Genres = strings.Join(detail.Genres, ", ")
	}
	if len(detail.Styles) > 0 {
		rel.Styles = strings.Join(detail.Styles, ", ")
	}
	if img := detail.PrimaryImage(); img != "" {
		rel.CoverImage = img
	}
	return rel
}

func joinLabels(labels []discogs.Label) string {
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		name := discogs.CleanArtistName(l.Name)
		if l.CatNo != "" && l.CatNo != "none" {
			name += " (" + l.CatNo + ")"
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, "; ")
}

func joinFormats(formats []discogs.Format) string {
	parts := make([]string, 0, len(formats))
	for _, f := range formats {
		parts = append(parts, f.Describe())
	}
	return strings.Join(parts, "; ")
}
