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
	"strconv"
	"strings"
	"time"

	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/metrics"
	"github.com/nilskh/discolog/internal/models"
)

const releaseColumns = `id, discogs_id, instance_id, title, artists, year, country, released,
	labels, formats, genres, styles, rating, thumb, cover_image, added_at, notes,
	created_at, updated_at`

const insertReleaseQuery = `INSERT INTO releases (
		id, discogs_id, instance_id, title, artists, year, country, released,
		labels, formats, genres, styles, rating, thumb, cover_image, added_at, notes,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

// InsertReleases commits one checkpoint batch of releases. The fast
// path runs the whole batch in a single transaction; if any record
// trips a statement error the batch is retried record by record so one
// bad record cannot sink the checkpoint. The returned BatchResult
// accounts for every record either way.
func (db *DB) InsertReleases(ctx context.Context, releases []models.Release) (*BatchResult, error) {
	if len(releases) == 0 {
		return &BatchResult{}, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.insertReleasesTx(ctx, releases)
	if err == nil {
		metrics.RecordDBQuery("insert_batch", "releases", time.Since(start), nil)
		return res, nil
	}
	if ctx.Err() != nil || isConnectionError(err) {
		metrics.RecordDBQuery("insert_batch", "releases", time.Since(start), err)
		return nil, err
	}

	logging.Debug().Err(err).Int("batch", len(releases)).
		Msg("Release batch transaction failed, isolating per record")
	res = db.insertReleasesPerRecord(ctx, releases)
	metrics.RecordDBQuery("insert_batch", "releases", time.Since(start), nil)
	return res, nil
}

func (db *DB) insertReleasesTx(ctx context.Context, releases []models.Release) (*BatchResult, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logging.Warn().Err(rbErr).Msg("Release batch rollback failed")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertReleaseQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer closeWithLog(stmt, "prepared statement")

	stmtExec := func(ctx context.Context, _ string, args ...interface{}) (sql.Result, error) {
		return stmt.ExecContext(ctx, args...)
	}
	for i := range releases {
		if _, err := execReleaseInsert(ctx, stmtExec, &releases[i]); err != nil {
			return nil, fmt.Errorf("insert release %d: %w", releases[i].DiscogsID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit release batch: %w", err)
	}
	committed = true
	return &BatchResult{Inserted: len(releases)}, nil
}

func (db *DB) insertReleasesPerRecord(ctx context.Context, releases []models.Release) *BatchResult {
	res := &BatchResult{}
	for i := range releases {
		rel := &releases[i]
		if _, err := execReleaseInsert(ctx, db.conn.ExecContext, rel); err != nil {
			res.Failed = append(res.Failed, RecordError{
				Key: strconv.FormatInt(rel.DiscogsID, 10),
				Err: err,
			})
			continue
		}
		res.Inserted++
	}
	return res
}

type execFunc func(ctx context.Context, query string, args ...interface{}) (sql.Result, error)

func execReleaseInsert(ctx context.Context, exec execFunc, rel *models.Release) (sql.Result, error) {
	return exec(ctx, insertReleaseQuery,
		rel.ID, rel.DiscogsID, rel.InstanceID, rel.Title, rel.Artists, rel.Year,
		rel.Country, rel.Released, rel.Labels, rel.Formats, rel.Genres, rel.Styles,
		rel.Rating, rel.Thumb, rel.CoverImage, rel.AddedAt, rel.Notes,
		rel.CreatedAt, rel.UpdatedAt,
	)
}

// ReleaseIDs returns the natural keys of every stored release, for the
// sync engine's skip set.
func (db *DB) ReleaseIDs(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, `SELECT discogs_id FROM releases`)
	metrics.RecordDBQuery("list_keys", "releases", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query release ids: %w", err)
	}
	defer closeQuietly(rows)

	ids := make(map[string]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan release id: %w", err)
		}
		ids[strconv.FormatInt(id, 10)] = struct{}{}
	}
	return ids, rows.Err()
}

// HasRelease reports whether a release with the Discogs id is stored.
func (db *DB) HasRelease(ctx context.Context, discogsID int64) (bool, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM releases WHERE discogs_id = ?`, discogsID).Scan(&count)
	metrics.RecordDBQuery("exists", "releases", time.Since(start), err)
	if err != nil {
		return false, fmt.Errorf("failed to check release %d: %w", discogsID, err)
	}
	return count > 0, nil
}

// ListReleases returns one page of the collection plus the total match
// count. Zero filter fields mean no filter; results come newest first
// by collection add date.
func (db *DB) ListReleases(ctx context.Context, filter models.ReleaseFilter) ([]models.Release, int, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var where []string
	var args []interface{}
	if filter.Artist != "" {
		where = append(where, `artists ILIKE '%' || ? || '%'`)
		args = append(args, filter.Artist)
	}
	if filter.Year != 0 {
		where = append(where, `year = ?`)
		args = append(args, filter.Year)
	}
	if filter.Genre != "" {
		where = append(where, `genres ILIKE '%' || ? || '%'`)
		args = append(args, filter.Genre)
	}
	if filter.Format != "" {
		where = append(where, `formats ILIKE '%' || ? || '%'`)
		args = append(args, filter.Format)
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	start := time.Now()
	var total int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM releases`+whereSQL, args...).Scan(&total)
	if err != nil {
		metrics.RecordDBQuery("list", "releases", time.Since(start), err)
		return nil, 0, fmt.Errorf("failed to count releases: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 500 {
		pageSize = 500
	}

	query := `SELECT ` + releaseColumns + ` FROM releases` + whereSQL +
		` ORDER BY added_at DESC, discogs_id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("list", "releases", time.Since(start), err)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query releases: %w", err)
	}
	defer closeQuietly(rows)

	releases := make([]models.Release, 0, pageSize)
	for rows.Next() {
		rel, err := scanRelease(rows)
		if err != nil {
			return nil, 0, err
		}
		releases = append(releases, rel)
	}
	return releases, total, rows.Err()
}

// GetRelease returns the release with the Discogs id, or ErrNotFound.
func (db *DB) GetRelease(ctx context.Context, discogsID int64) (*models.Release, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM releases WHERE discogs_id = ?`, discogsID)
	rel, err := scanRelease(row)
	metrics.RecordDBQuery("get", "releases", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("release %d: %w", discogsID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// UpdateReleaseNotes stores generated collection notes on a release.
func (db *DB) UpdateReleaseNotes(ctx context.Context, discogsID int64, notes string) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE releases SET notes = ?, updated_at = ? WHERE discogs_id = ?`,
		notes, time.Now().UTC(), discogsID)
	metrics.RecordDBQuery("update_notes", "releases", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update notes for release %d: %w", discogsID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("release %d: %w", discogsID, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRelease(row rowScanner) (models.Release, error) {
	var rel models.Release
	err := row.Scan(
		&rel.ID, &rel.DiscogsID, &rel.InstanceID, &rel.Title, &rel.Artists, &rel.Year,
		&rel.Country, &rel.Released, &rel.Labels, &rel.Formats, &rel.Genres, &rel.Styles,
		&rel.Rating, &rel.Thumb, &rel.CoverImage, &rel.AddedAt, &rel.Notes,
		&rel.CreatedAt, &rel.UpdatedAt,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return rel, fmt.Errorf("failed to scan release: %w", err)
	}
	return rel, err
}

// isConnectionError reports whether an error means the database itself
// is unusable, as opposed to a statement-level failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "bad connection") ||
		strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "connection refused")
}
