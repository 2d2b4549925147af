// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package api

import (
	"net/http"
	"time"

	"github.com/nilskh/discolog/internal/models"
)

// Health reports overall service health. The answer is 200 even when
// degraded; orchestrators that need a hard signal use the readiness
// probe instead.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	status := models.HealthStatus{
		Status:        "healthy",
		Version:       Version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}

	if h.db != nil {
		status.DatabaseConnected = h.db.Ping(r.Context()) == nil
	}
	if !status.DatabaseConnected {
		status.Status = "degraded"
	}

	if h.cfg != nil {
		status.DiscogsEnabled = h.cfg.Discogs.Enabled
		status.LastfmEnabled = h.cfg.Lastfm.Enabled
	}
	status.EnrichEnabled = h.enrich.Enabled()

	respondSuccess(w, http.StatusOK, status, time.Time{})
}

// HealthLive is the liveness probe: answers as long as the process can
// serve HTTP at all.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).String(),
	}, time.Time{})
}

// HealthReady is the readiness probe: 200 only when the database
// answers, 503 otherwise so load balancers stop routing here.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	data := map[string]interface{}{
		"database_connected": dbConnected,
		"ready_to_serve":     dbConnected,
		"uptime":             time.Since(h.startTime).String(),
	}

	if !dbConnected {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status: "not_ready",
			Data:   data,
		})
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "ready",
		Data:   data,
	})
}
