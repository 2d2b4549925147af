// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core tables. All columns live in the
// initial CREATE TABLE statements; schema changes go through new
// statements here until the first tagged release.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		// Record collection, one row per Discogs release. discogs_id
		// carries the uniqueness the sync engine relies on; ON CONFLICT
		// DO NOTHING inserts stay silent for re-synced releases.
		`CREATE TABLE IF NOT EXISTS releases (
			id UUID PRIMARY KEY,
			discogs_id BIGINT NOT NULL UNIQUE,
			instance_id BIGINT,
			title TEXT NOT NULL,
			artists TEXT NOT NULL,
			year INTEGER,
			country TEXT,
			released TEXT,
			labels TEXT,
			formats TEXT,
			genres TEXT,
			styles TEXT,
			rating INTEGER DEFAULT 0,
			thumb TEXT,
			cover_image TEXT,
			added_at TIMESTAMP,
			notes TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Listening history, one row per play. natural_key is
		// artist|track|uts and unique; track_key backs the
		// near-duplicate window lookup.
		`CREATE TABLE IF NOT EXISTS scrobbles (
			id UUID PRIMARY KEY,
			natural_key TEXT NOT NULL UNIQUE,
			track_key TEXT NOT NULL,
			artist TEXT NOT NULL,
			track TEXT NOT NULL,
			album TEXT,
			mbid TEXT,
			played_at TIMESTAMP NOT NULL,
			source TEXT NOT NULL DEFAULT 'lastfm',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

// createIndexes creates indexes for the common query patterns: release
// browsing by artist or year, scrobble listing by recency, and the
// dedup window probe on (track_key, played_at).
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_releases_artists ON releases(artists)`,
		`CREATE INDEX IF NOT EXISTS idx_releases_year ON releases(year)`,
		`CREATE INDEX IF NOT EXISTS idx_releases_added_at ON releases(added_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scrobbles_played_at ON scrobbles(played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scrobbles_track_window ON scrobbles(track_key, played_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scrobbles_artist ON scrobbles(artist)`,
	}

	for _, index := range indexes {
		if _, err := db.conn.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", index, err)
		}
	}
	return nil
}
