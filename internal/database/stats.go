// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/nilskh/discolog/internal/metrics"
	"github.com/nilskh/discolog/internal/models"
)

// LibraryStats aggregates the library for the stats endpoint: release
// and scrobble totals, distinct artists heard, and the most played
// artists across the whole history.
//
// Performance: single-digit milliseconds on a library of tens of
// thousands of scrobbles; DuckDB aggregates columnar data in memory.
func (db *DB) LibraryStats(ctx context.Context, topN int) (*models.LibraryStats, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if topN < 1 {
		topN = 10
	}
	if topN > 100 {
		topN = 100
	}

	start := time.Now()
	stats := &models.LibraryStats{}

	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM releases),
			(SELECT COUNT(*) FROM scrobbles),
			(SELECT COUNT(DISTINCT artist) FROM scrobbles)
	`).Scan(&stats.TotalReleases, &stats.TotalScrobbles, &stats.UniqueArtists)
	if err != nil {
		metrics.RecordDBQuery("stats", "library", time.Since(start), err)
		return nil, fmt.Errorf("failed to aggregate library totals: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT artist, COUNT(*) AS plays
		FROM scrobbles
		GROUP BY artist
		ORDER BY plays DESC, artist ASC
		LIMIT ?
	`, topN)
	metrics.RecordDBQuery("stats", "library", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to rank artists: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var ap models.ArtistPlays
		if err := rows.Scan(&ap.Artist, &ap.Plays); err != nil {
			return nil, fmt.Errorf("failed to scan artist plays: %w", err)
		}
		stats.TopArtists = append(stats.TopArtists, ap)
	}
	return stats, rows.Err()
}
