// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nilskh/discolog/internal/database"
	"github.com/nilskh/discolog/internal/enrich"
	"github.com/nilskh/discolog/internal/models"
	"github.com/nilskh/discolog/internal/resilience"
	"github.com/nilskh/discolog/internal/validation"
)

const (
	defaultPageSize = 50
	defaultTopN     = 10
)

// pageSizeDefault prefers the configured page size so operators can tune
// payload sizes without a rebuild.
func (h *Handler) pageSizeDefault() int {
	if h.cfg != nil && h.cfg.API.DefaultPageSize > 0 {
		return h.cfg.API.DefaultPageSize
	}
	return defaultPageSize
}

// listReleasesParams mirrors the query string of the release listing so
// the shared validator can reject out-of-range values before they reach
// the database.
type listReleasesParams struct {
	Artist   string `validate:"omitempty,max=200"`
	Year     int    `validate:"omitempty,min=1000,max=3000"`
	Genre    string `validate:"omitempty,max=100"`
	Format   string `validate:"omitempty,max=100"`
	Page     int    `validate:"min=1"`
	PageSize int    `validate:"min=1,max=500"`
}

// releasesPage is the paged envelope of the release listing.
type releasesPage struct {
	Releases []models.Release `json:"releases"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// scrobblesPage is the paged envelope of the listening history.
type scrobblesPage struct {
	Scrobbles []models.Scrobble `json:"scrobbles"`
	Total     int               `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
}

// Releases lists the collection with optional filters and pagination.
func (h *Handler) Releases(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !h.requireDB(w) {
		return
	}

	q := r.URL.Query()
	params := listReleasesParams{
		Artist:   q.Get("artist"),
		Year:     getIntParam(r, "year", 0),
		Genre:    q.Get("genre"),
		Format:   q.Get("format"),
		Page:     getIntParam(r, "page", 1),
		PageSize: getIntParam(r, "page_size", h.pageSizeDefault()),
	}
	if verr := validation.ValidateStruct(&params); verr != nil {
		respondValidationError(w, verr)
		return
	}

	start := time.Now()
	releases, total, err := h.db.ListReleases(r.Context(), models.ReleaseFilter{
		Artist:   params.Artist,
		Year:     params.Year,
		Genre:    params.Genre,
		Format:   params.Format,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list releases", err)
		return
	}

	respondSuccess(w, http.StatusOK, releasesPage{
		Releases: releases,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	}, start)
}

// Release returns a single release by its Discogs id.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !h.requireDB(w) {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid release id", err)
		return
	}

	start := time.Now()
	release, err := h.db.GetRelease(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Release not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load release", err)
		return
	}

	respondSuccess(w, http.StatusOK, release, start)
}

// GenerateReleaseNotes asks the enrichment backend for collection notes
// on one release and persists the result. The generated text is returned
// on the release itself.
func (h *Handler) GenerateReleaseNotes(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !h.requireDB(w) {
		return
	}

	if !h.enrich.Enabled() {
		respondError(w, http.StatusForbidden, "ENRICH_DISABLED", "Enrichment is not configured", nil)
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid release id", err)
		return
	}

	release, err := h.db.GetRelease(r.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Release not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load release", err)
		return
	}

	start := time.Now()
	notes, err := h.enrich.ReleaseNotes(r.Context(), release)
	if err != nil {
		switch {
		case errors.Is(err, enrich.ErrDisabled):
			respondError(w, http.StatusForbidden, "ENRICH_DISABLED", "Enrichment is not configured", err)
		case resilience.IsRateLimited(err):
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Enrichment backend is rate limiting requests", err)
		case errors.Is(err, resilience.ErrCircuitOpen):
			respondError(w, http.StatusServiceUnavailable, "ENRICH_ERROR", "Enrichment backend is temporarily unavailable", err)
		default:
			respondError(w, http.StatusBadGateway, "ENRICH_ERROR", "Enrichment request failed", err)
		}
		return
	}

	if err := h.db.UpdateReleaseNotes(r.Context(), id, notes); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to save notes", err)
		return
	}

	release.Notes = notes
	respondSuccess(w, http.StatusOK, release, start)
}

// RecentScrobbles pages through the listening history, newest first.
func (h *Handler) RecentScrobbles(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !h.requireDB(w) {
		return
	}

	page := getIntParam(r, "page", 1)
	pageSize := getIntParam(r, "page_size", h.pageSizeDefault())
	if page < 1 || pageSize < 1 || pageSize > 500 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid pagination parameters", nil)
		return
	}

	start := time.Now()
	scrobbles, total, err := h.db.RecentScrobbles(r.Context(), page, pageSize)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list scrobbles", err)
		return
	}

	respondSuccess(w, http.StatusOK, scrobblesPage{
		Scrobbles: scrobbles,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	}, start)
}

// Stats aggregates the library and history into one answer.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !h.requireDB(w) {
		return
	}

	topN := getIntParam(r, "top", defaultTopN)
	if topN < 1 || topN > 100 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Parameter top must be between 1 and 100", nil)
		return
	}

	start := time.Now()
	stats, err := h.db.LibraryStats(r.Context(), topN)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to compute stats", err)
		return
	}

	respondSuccess(w, http.StatusOK, stats, start)
}
