// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/metrics"
	"github.com/nilskh/discolog/internal/models"
)

const scrobbleColumns = `id, natural_key, track_key, artist, track, album, mbid,
	played_at, source, created_at`

const insertScrobbleQuery = `INSERT INTO scrobbles (
		id, natural_key, track_key, artist, track, album, mbid,
		played_at, source, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

// InsertScrobbles commits one checkpoint batch of scrobbles, with the
// same fast-path-then-isolate strategy as InsertReleases.
func (db *DB) InsertScrobbles(ctx context.Context, scrobbles []models.Scrobble) (*BatchResult, error) {
	if len(scrobbles) == 0 {
		return &BatchResult{}, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.insertScrobblesTx(ctx, scrobbles)
	if err == nil {
		metrics.RecordDBQuery("insert_batch", "scrobbles", time.Since(start), nil)
		return res, nil
	}
	if ctx.Err() != nil || isConnectionError(err) {
		metrics.RecordDBQuery("insert_batch", "scrobbles", time.Since(start), err)
		return nil, err
	}

	logging.Debug().Err(err).Int("batch", len(scrobbles)).
		Msg("Scrobble batch transaction failed, isolating per record")
	res = db.insertScrobblesPerRecord(ctx, scrobbles)
	metrics.RecordDBQuery("insert_batch", "scrobbles", time.Since(start), nil)
	return res, nil
}

func (db *DB) insertScrobblesTx(ctx context.Context, scrobbles []models.Scrobble) (*BatchResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Warn().Err(rbErr).Msg("Scrobble batch rollback failed")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertScrobbleQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	stmtExec := func(ctx context.Context, _ string, args ...interface{}) (sql.Result, error) {
		return stmt.ExecContext(ctx, args...)
	}
	for i := range scrobbles {
		if _, err := execScrobbleInsert(ctx, stmtExec, &scrobbles[i]); err != nil {
			return nil, fmt.Errorf("insert scrobble %s: %w", scrobbles[i].NaturalKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit scrobble batch: %w", err)
	}
	committed = true
	return &BatchResult{Inserted: len(scrobbles)}, nil
}

func (db *DB) insertScrobblesPerRecord(ctx context.Context, scrobbles []models.Scrobble) *BatchResult {
	res := &BatchResult{}
	for i := range scrobbles {
		s := &scrobbles[i]
		if _, err := execScrobbleInsert(ctx, db.conn.ExecContext, s); err != nil {
			res.Failed = append(res.Failed, RecordError{Key: s.NaturalKey, Err: err})
			continue
		}
		res.Inserted++
	}
	return res
}

func execScrobbleInsert(ctx context.Context, exec execFunc, s *models.Scrobble) (sql.Result, error) {
	return exec(ctx, insertScrobbleQuery,
		s.ID, s.NaturalKey, s.TrackKey, s.Artist, s.Track, s.Album, s.MBID,
		s.PlayedAt, s.Source, s.CreatedAt,
	)
}

// ScrobbleKeys returns the natural keys of every stored scrobble, for
// the sync engine's skip set.
func (db *DB) ScrobbleKeys(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT natural_key FROM scrobbles`)
	metrics.RecordDBQuery("list_keys", "scrobbles", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobble keys: %w", err)
	}
	defer closeQuietly(rows)

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan scrobble key: %w", err)
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// HasScrobble reports whether the exact play is stored.
func (db *DB) HasScrobble(ctx context.Context, naturalKey string) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scrobbles WHERE natural_key = ?`, naturalKey).Scan(&count)
	metrics.RecordDBQuery("exists", "scrobbles", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to check scrobble %s: %w", naturalKey, err)
	}
	return count > 0, nil
}

// HasScrobbleWithinWindow reports whether a play of the same track is
// stored strictly less than window away from playedAt in either
// direction. A play at exactly the window boundary does not match.
func (db *DB) HasScrobbleWithinWindow(ctx context.Context, trackKey string, playedAt time.Time, window time.Duration) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scrobbles
		 WHERE track_key = ?
		   AND abs(date_diff('second', played_at, CAST(? AS TIMESTAMP))) < ?`,
		trackKey, playedAt.UTC(), int64(window.Seconds())).Scan(&count)
	metrics.RecordDBQuery("window_probe", "scrobbles", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to probe scrobble window for %s: %w", trackKey, err)
	}
	return count > 0, nil
}

// RecentScrobbles returns one page of the listening history, newest
// first, plus the total count.
func (db *DB) RecentScrobbles(ctx context.Context, page, pageSize int) ([]models.Scrobble, int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}

	start := time.Now()
	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM scrobbles`).Scan(&total); err != nil {
		metrics.RecordDBQuery("list", "scrobbles", time.Since(start), err)
		return nil, 0, fmt.Errorf("failed to count scrobbles: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+scrobbleColumns+` FROM scrobbles
		 ORDER BY played_at DESC LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize)
	metrics.RecordDBQuery("list", "scrobbles", time.Since(start), err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query scrobbles: %w", err)
	}
	defer closeQuietly(rows)

	scrobbles := make([]models.Scrobble, 0, pageSize)
	for rows.Next() {
		var s models.Scrobble
		if err := rows.Scan(
			&s.ID, &s.NaturalKey, &s.TrackKey, &s.Artist, &s.Track, &s.Album, &s.MBID,
			&s.PlayedAt, &s.Source, &s.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan scrobble: %w", err)
		}
		scrobbles = append(scrobbles, s)
	}
	return scrobbles, total, rows.Err()
}
