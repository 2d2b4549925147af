// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/nilskh/discolog/internal/config"
	"github.com/nilskh/discolog/internal/database"
	"github.com/nilskh/discolog/internal/models"
	"github.com/nilskh/discolog/internal/models/discogs"
	"github.com/nilskh/discolog/internal/models/lastfm"
	syncpkg "github.com/nilskh/discolog/internal/sync"
)

// testDBSemaphore serializes DuckDB creation across parallel tests.
// Concurrent CGO database setup can hang under CI resource pressure.
var testDBSemaphore = make(chan struct{}, 1)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := database.New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "1GB",
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return db
}

func setupTestBadger(t *testing.T) *badger.DB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "discolog-api-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	opts := badger.DefaultOptions(filepath.Join(tmpDir, "badger"))
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open badger: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(tmpDir)
	})
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port: 3313,
		},
		API: config.APIConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
		},
		Discogs: config.DiscogsConfig{
			Enabled:  true,
			Username: "test-user",
			Token:    "test-token",
		},
		Lastfm: config.LastfmConfig{
			Enabled: true,
			User:    "test-user",
			APIKey:  "test-key",
		},
		Security: config.SecurityConfig{
			AuthMode:          "none",
			RateLimitDisabled: true,
			CORSOrigins:       []string{"*"},
		},
		Sync: config.SyncConfig{
			CheckpointSize:          10,
			RetryAttempts:           2,
			RetryInitialDelay:       time.Millisecond,
			RetryMaxDelay:           5 * time.Millisecond,
			RetryMultiplier:         2.0,
			BreakerFailureThreshold: 5,
			BreakerSuccessThreshold: 2,
			BreakerRecoveryTimeout:  100 * time.Millisecond,
			DedupWindow:             10 * time.Minute,
		},
	}
}

// setupTestHandler builds a handler over a real in-memory database.
// Sync, enrichment, auth and the websocket hub stay nil; tests that
// need them construct their own.
func setupTestHandler(t *testing.T) *Handler {
	t.Helper()
	return NewHandler(setupTestDB(t), nil, nil, testConfig(), nil, nil, nil)
}

// serveHandler routes a request through the full router so URL params
// and middleware behave as in production.
func serveHandler(handler *Handler, cfg *config.Config, req *http.Request) *httptest.ResponseRecorder {
	router := NewRouter(handler, nil, cfg)
	rec := httptest.NewRecorder()
	router.Setup().ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *models.APIResponse {
	t.Helper()

	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return &resp
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()

	if rec.Code != wantStatus {
		t.Errorf("status = %d, want %d (body %s)", rec.Code, wantStatus, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	if resp.Status != "error" {
		t.Errorf("envelope status = %q, want %q", resp.Status, "error")
	}
	if resp.Error == nil {
		t.Fatal("expected error details in envelope")
	}
	if resp.Error.Code != wantCode {
		t.Errorf("error code = %q, want %q", resp.Error.Code, wantCode)
	}
}

func apiTestRelease(discogsID int64, title, artists string) models.Release {
	now := time.Now().UTC()
	return models.Release{
		ID:         uuid.New(),
		DiscogsID:  discogsID,
		InstanceID: discogsID * 10,
		Title:      title,
		Artists:    artists,
		Year:       1994,
		Labels:     "Warp (WAP50)",
		Formats:    "2×Vinyl, LP, Album",
		Genres:     "Electronic",
		Styles:     "IDM, Ambient",
		AddedAt:    now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func apiTestScrobble(artist, track string, playedAt time.Time) models.Scrobble {
	key := artist + "|" + track
	return models.Scrobble{
		ID:         uuid.New(),
		NaturalKey: key + "|" + strconv.FormatInt(playedAt.Unix(), 10),
		TrackKey:   key,
		Artist:     artist,
		Track:      track,
		Album:      "Test Album",
		PlayedAt:   playedAt.UTC(),
		Source:     "lastfm",
		CreatedAt:  time.Now().UTC(),
	}
}

func insertReleases(t *testing.T, db *database.DB, releases ...models.Release) {
	t.Helper()

	if _, err := db.InsertReleases(context.Background(), releases); err != nil {
		t.Fatalf("InsertReleases() error = %v", err)
	}
}

func insertScrobbles(t *testing.T, db *database.DB, scrobbles ...models.Scrobble) {
	t.Helper()

	if _, err := db.InsertScrobbles(context.Background(), scrobbles); err != nil {
		t.Fatalf("InsertScrobbles() error = %v", err)
	}
}

// stubCollectionSource hands back a single empty page. blockUntil, when
// set, holds the fetch open so a test can observe a running sync.
type stubCollectionSource struct {
	blockUntil chan struct{}
}

func (s *stubCollectionSource) CollectionPage(ctx context.Context, page int) (*syncpkg.Page[discogs.CollectionItem], error) {
	if s.blockUntil != nil {
		select {
		case <-s.blockUntil:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &syncpkg.Page[discogs.CollectionItem]{}, nil
}

func (s *stubCollectionSource) Release(ctx context.Context, id int64) (*discogs.Release, error) {
	return &discogs.Release{ID: id}, nil
}

type stubScrobbleSource struct{}

func (s *stubScrobbleSource) RecentPage(ctx context.Context, page int, from int64) (*syncpkg.Page[lastfm.Track], error) {
	return &syncpkg.Page[lastfm.Track]{}, nil
}

// setupSyncHandler builds a handler whose sync manager runs against the
// stubbed sources and the given config.
func setupSyncHandler(t *testing.T, cfg *config.Config, col *stubCollectionSource) (*Handler, *syncpkg.Manager) {
	t.Helper()

	db := setupTestDB(t)
	state := syncpkg.NewRunStateStore(setupTestBadger(t))
	manager := syncpkg.NewManager(db, state, col, &stubScrobbleSource{}, cfg, nil)
	t.Cleanup(manager.Stop)

	return NewHandler(db, manager, nil, cfg, nil, nil, nil), manager
}

func waitForIdle(t *testing.T, m *syncpkg.Manager, kind syncpkg.Kind) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !m.IsRunning(kind) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sync %s still running after 10s", kind)
}
