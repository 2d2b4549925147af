// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nilskh/discolog/internal/enrich"
	"github.com/nilskh/discolog/internal/models"
)

func decodeReleasesPage(t *testing.T, rec *httptest.ResponseRecorder) *releasesPage {
	t.Helper()

	resp := decodeEnvelope(t, rec)
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var page releasesPage
	if err := json.Unmarshal(raw, &page); err != nil {
		t.Fatalf("decode releases page: %v", err)
	}
	return &page
}

func TestReleasesEmptyLibrary(t *testing.T) {
	handler := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/releases", nil)
	rec := serveHandler(handler, handler.cfg, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	page := decodeReleasesPage(t, rec)
	if page.Total != 0 {
		t.Errorf("total = %d, want 0", page.Total)
	}
	if len(page.Releases) != 0 {
		t.Errorf("len(releases) = %d, want 0", len(page.Releases))
	}
}

func TestReleasesPagination(t *testing.T) {
	handler := setupTestHandler(t)
	insertReleases(t, handler.db,
		apiTestRelease(1, "Selected Ambient Works 85-92", "Aphex Twin"),
		apiTestRelease(2, "Music Has the Right to Children", "Boards of Canada"),
		apiTestRelease(3, "Endtroducing.....", "DJ Shadow"),
		apiTestRelease(4, "Dummy", "Portishead"),
		apiTestRelease(5, "Entroducing", "DJ Shadow"),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/releases?page=2&page_size=2", nil)
	rec := serveHandler(handler, handler.cfg, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	page := decodeReleasesPage(t, rec)
	if page.Total != 5 {
		t.Errorf("total = %d, want 5", page.Total)
	}
	if len(page.Releases) != 2 {
		t.Errorf("len(releases) = %d, want 2", len(page.Releases))
	}
	if page.Page != 2 || page.PageSize != 2 {
		t.Errorf("page/page_size = %d/%d, want 2/2", page.Page, page.PageSize)
	}
}

func TestReleasesFilterByArtist(t *testing.T) {
	handler := setupTestHandler(t)
	insertReleases(t, handler.db,
		apiTestRelease(1, "Selected Ambient Works 85-92", "Aphex Twin"),
		apiTestRelease(2, "Music Has the Right to Children", "Boards of Canada"),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/releases?artist=aphex", nil)
	rec := serveHandler(handler, handler.cfg, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	page := decodeReleasesPage(t, rec)
	if page.Total != 1 {
		t.Fatalf("total = %d, want 1", page.Total)
	}
	if page.Releases[0].Artists != "Aphex Twin" {
		t.Errorf("artist = %q, want %q", page.Releases[0].Artists, "Aphex Twin")
	}
}

func TestReleasesRejectsBadPagination(t *testing.T) {
	handler := setupTestHandler(t)

	tests := []struct {
		name  string
		query string
	}{
		{"zero page", "?page=0"},
		{"oversized page size", "?page_size=1000"},
		{"year out of range", "?year=123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/releases"+tt.query, nil)
			rec := serveHandler(handler, handler.cfg, req)

			assertErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
		})
	}
}

func TestReleaseByID(t *testing.T) {
	handler := setupTestHandler(t)
	insertReleases(t, handler.db, apiTestRelease(42, "Selected Ambient Works 85-92", "Aphex Twin"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/releases/42", nil)
	rec := serveHandler(handler, handler.cfg, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var release models.Release
	if err := json.Unmarshal(raw, &release); err != nil {
		t.Fatalf("decode release: %v", err)
	}
	if release.DiscogsID != 42 {
		t.Errorf("discogs_id = %d, want 42", release.DiscogsID)
	}
	if release.Title != "Selected Ambient Works 85-92" {
		t.Errorf("title = %q, want %q", release.Title, "Selected Ambient Works 85-92")
	}
}

func TestReleaseNotFound(t *testing.T) {
	handler := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/releases/999", nil)
	rec := serveHandler(handler, handler.cfg, req)

	assertErrorCode(t, rec, http.StatusNotFound, "NOT_FOUND")
}

func TestReleaseRejectsBadID(t *testing.T) {
	handler := setupTestHandler(t)

	for _, id := range []string{"abc", "-5", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/releases/"+id, nil)
		rec := serveHandler(handler, handler.cfg, req)

		assertErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
	}
}

func TestGenerateReleaseNotesDisabled(t *testing.T) {
	handler := setupTestHandler(t)
	insertReleases(t, handler.db, apiTestRelease(42, "Selected Ambient Works 85-92", "Aphex Twin"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/releases/42/notes", nil)
	rec := serveHandler(handler, handler.cfg, req)

	assertErrorCode(t, rec, http.StatusForbidden, "ENRICH_DISABLED")
}

func TestGenerateReleaseNotesPersists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"A landmark ambient techno album."},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Enrich.Enabled = true
	cfg.Enrich.BaseURL = server.URL + "/v1"
	cfg.Enrich.Model = "test-model"
	cfg.Enrich.Timeout = 5 * time.Second

	db := setupTestDB(t)
	handler := NewHandler(db, nil, enrich.NewClient(cfg.Enrich, cfg.Sync), cfg, nil, nil, nil)
	insertReleases(t, db, apiTestRelease(42, "Selected Ambient Works 85-92", "Aphex Twin"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/releases/42/notes", nil)
	rec := serveHandler(handler, cfg, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var release models.Release
	if err := json.Unmarshal(raw, &release); err != nil {
		t.Fatalf("decode release: %v", err)
	}
	if release.Notes != "A landmark ambient techno album." {
		t.Errorf("notes = %q, want generated text", release.Notes)
	}

	stored, err := db.GetRelease(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetRelease() error = %v", err)
	}
	if stored.Notes != "A landmark ambient techno album." {
		t.Errorf("stored notes = %q, want generated text", stored.Notes)
	}
}

func TestGenerateReleaseNotesUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Enrich.Enabled = true
	cfg.Enrich.BaseURL = server.URL + "/v1"
	cfg.Enrich.Model = "test-model"
	cfg.Enrich.Timeout = 5 * time.Second

	db := setupTestDB(t)
	handler := NewHandler(db, nil, enrich.NewClient(cfg.Enrich, cfg.Sync), cfg, nil, nil, nil)
	insertReleases(t, db, apiTestRelease(42, "Selected Ambient Works 85-92", "Aphex Twin"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/releases/42/notes", nil)
	rec := serveHandler(handler, cfg, req)

	assertErrorCode(t, rec, http.StatusBadGateway, "ENRICH_ERROR")
}

func TestRecentScrobbles(t *testing.T) {
	handler := setupTestHandler(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	insertScrobbles(t, handler.db,
		apiTestScrobble("Aphex Twin", "Xtal", base),
		apiTestScrobble("Aphex Twin", "Tha", base.Add(4*time.Minute)),
		apiTestScrobble("Boards of Canada", "Roygbiv", base.Add(9*time.Minute)),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scrobbles/recent?page_size=2", nil)
	rec := serveHandler(handler, handler.cfg, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var page scrobblesPage
	if err := json.Unmarshal(raw, &page); err != nil {
		t.Fatalf("decode scrobbles page: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("total = %d, want 3", page.Total)
	}
	if len(page.Scrobbles) != 2 {
		t.Fatalf("len(scrobbles) = %d, want 2", len(page.Scrobbles))
	}
	// Newest first.
	if page.Scrobbles[0].Track != "Roygbiv" {
		t.Errorf("first track = %q, want %q", page.Scrobbles[0].Track, "Roygbiv")
	}
}

func TestRecentScrobblesRejectsBadPagination(t *testing.T) {
	handler := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scrobbles/recent?page=0", nil)
	rec := serveHandler(handler, handler.cfg, req)

	assertErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestStats(t *testing.T) {
	handler := setupTestHandler(t)
	insertReleases(t, handler.db,
		apiTestRelease(1, "Selected Ambient Works 85-92", "Aphex Twin"),
		apiTestRelease(2, "Music Has the Right to Children", "Boards of Canada"),
	)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	insertScrobbles(t, handler.db,
		apiTestScrobble("Aphex Twin", "Xtal", base),
		apiTestScrobble("Aphex Twin", "Tha", base.Add(4*time.Minute)),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := serveHandler(handler, handler.cfg, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}
	resp := decodeEnvelope(t, rec)
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var stats models.LibraryStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalReleases != 2 {
		t.Errorf("total_releases = %d, want 2", stats.TotalReleases)
	}
	if stats.TotalScrobbles != 2 {
		t.Errorf("total_scrobbles = %d, want 2", stats.TotalScrobbles)
	}
	if resp.Metadata == nil || resp.Metadata.QueryTimeMS < 0 {
		t.Error("expected query time metadata")
	}
}

func TestStatsRejectsBadTopN(t *testing.T) {
	handler := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats?top=500", nil)
	rec := serveHandler(handler, handler.cfg, req)

	assertErrorCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}
