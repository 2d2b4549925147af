// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

// Package api serves the HTTP surface: sync triggers and progress,
// library browsing, listening history, stats, auth and the websocket
// progress stream. Responses share the models.APIResponse envelope.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nilskh/discolog/internal/auth"
	"github.com/nilskh/discolog/internal/config"
	"github.com/nilskh/discolog/internal/database"
	"github.com/nilskh/discolog/internal/enrich"
	"github.com/nilskh/discolog/internal/logging"
	syncpkg "github.com/nilskh/discolog/internal/sync"
	ws "github.com/nilskh/discolog/internal/websocket"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Handler carries the dependencies of every endpoint. Optional pieces
// (enrich client, websocket hub, jwt manager) may be nil; the affected
// endpoints answer with a service error instead.
type Handler struct {
	db        *database.DB
	sync      *syncpkg.Manager
	enrich    *enrich.Client
	cfg       *config.Config
	jwt       *auth.JWTManager
	verifier  *auth.Verifier
	hub       *ws.Hub
	startTime time.Time
}

// NewHandler creates the API handler.
func NewHandler(db *database.DB, syncMgr *syncpkg.Manager, enrichClient *enrich.Client, cfg *config.Config, jwtMgr *auth.JWTManager, verifier *auth.Verifier, hub *ws.Hub) *Handler {
	return &Handler{
		db:        db,
		sync:      syncMgr,
		enrich:    enrichClient,
		cfg:       cfg,
		jwt:       jwtMgr,
		verifier:  verifier,
		hub:       hub,
		startTime: time.Now(),
	}
}

func (h *Handler) requireDB(w http.ResponseWriter) bool {
	if h.db == nil {
		respondError(w, http.StatusServiceUnavailable, "DATABASE_ERROR", "Database not available", nil)
		return false
	}
	return true
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebsocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebsocketOrigin accepts only configured origins. Browsers always
// send Origin on websocket dials; an empty Origin means a non-browser
// client, which the token check already covers.
func (h *Handler) checkWebsocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if h.cfg == nil {
		return true
	}
	for _, allowed := range h.cfg.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("Websocket connection rejected from unauthorized origin")
	return false
}

// Websocket upgrades the connection and attaches it to the hub for the
// live progress stream.
func (h *Handler) Websocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "INTERNAL_ERROR", "Websocket service unavailable", nil)
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
