// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	syncpkg "github.com/nilskh/discolog/internal/sync"
	"github.com/nilskh/discolog/internal/validation"
)

// triggerRequest is the optional body of a sync trigger. A missing body
// means a full sync with no item cap.
type triggerRequest struct {
	Limit int `json:"limit" validate:"min=0,max=1000000"`
}

// TriggerSync starts a background sync for the kind named in the URL.
// The run itself is owned by the manager; the response only reports
// whether it was accepted.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	kind, ok := syncpkg.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown sync kind", nil)
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, verr)
		return
	}

	if h.sync == nil {
		respondError(w, http.StatusServiceUnavailable, "INTERNAL_ERROR", "Sync manager not available", nil)
		return
	}

	if err := h.sync.Trigger(kind, req.Limit); err != nil {
		switch {
		case errors.Is(err, syncpkg.ErrSyncRunning):
			respondError(w, http.StatusConflict, "SYNC_CONFLICT", "A sync of this kind is already running", err)
		case errors.Is(err, syncpkg.ErrSourceDisabled):
			respondError(w, http.StatusForbidden, "SYNC_DISABLED", "This sync source is not configured", err)
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start sync", err)
		}
		return
	}

	respondSuccess(w, http.StatusAccepted, map[string]interface{}{
		"status": "started",
		"kind":   kind,
	}, time.Time{})
}

// SyncProgress reports the live counters for one sync kind. Idle kinds
// answer with a zero-valued progress rather than an error so the UI can
// poll unconditionally.
func (h *Handler) SyncProgress(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	kind, ok := syncpkg.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown sync kind", nil)
		return
	}

	if h.sync == nil {
		respondError(w, http.StatusServiceUnavailable, "INTERNAL_ERROR", "Sync manager not available", nil)
		return
	}

	respondSuccess(w, http.StatusOK, h.sync.Progress().Get(kind), time.Time{})
}

// SyncStatus reports every kind in one answer: enabled flags, breaker
// state and the progress of the current or most recent run.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	if h.sync == nil {
		respondError(w, http.StatusServiceUnavailable, "INTERNAL_ERROR", "Sync manager not available", nil)
		return
	}

	start := time.Now()
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"sources": h.sync.Status(r.Context()),
	}, start)
}
