// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

// Package main is the entry point for the Discolog server.
//
// Discolog is a self-hosted backend for a personal music library: it
// imports a Discogs record collection and a Last.fm listening history
// into a local DuckDB database and serves both over a JSON API with a
// live websocket progress stream.
//
// Components start in this order:
//
//  1. Configuration: koanf v2 layering defaults, config.yaml and
//     environment variables
//  2. DuckDB: the library and history store
//  3. BadgerDB: the sync run-state store (incremental cursors)
//  4. Source clients: Discogs and Last.fm, each behind its own
//     circuit breaker
//  5. Sync manager, websocket hub, enrichment client
//  6. HTTP server on port 3313 (a nod to the 33 1/3 rpm LP)
//
// Everything long-running lives under a suture supervisor tree: the
// sync layer (hub, sync manager) and the API layer (HTTP server)
// restart independently on failure.
//
// Minimal development setup:
//
//	export DISCOGS_ENABLED=true
//	export DISCOGS_USERNAME=your-username
//	export DISCOGS_TOKEN=your-token
//	export LASTFM_ENABLED=true
//	export LASTFM_USER=your-username
//	export LASTFM_API_KEY=your-key
//	export AUTH_MODE=none
//	./discolog
//
// Production adds JWT authentication:
//
//	export AUTH_MODE=jwt
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ADMIN_USERNAME=admin
//	export ADMIN_PASSWORD=secure-password
//
// SIGINT and SIGTERM trigger a graceful shutdown: the server drains
// in-flight requests, running syncs checkpoint and stop, and both
// databases close cleanly.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/nilskh/discolog/internal/api"
	"github.com/nilskh/discolog/internal/auth"
	"github.com/nilskh/discolog/internal/config"
	"github.com/nilskh/discolog/internal/database"
	"github.com/nilskh/discolog/internal/enrich"
	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/supervisor"
	"github.com/nilskh/discolog/internal/supervisor/services"
	syncpkg "github.com/nilskh/discolog/internal/sync"
	ws "github.com/nilskh/discolog/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Bool("discogs_enabled", cfg.Discogs.Enabled).
		Bool("lastfm_enabled", cfg.Lastfm.Enabled).
		Str("auth_mode", cfg.Security.AuthMode).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Discolog")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	stateDB, err := openStateDB(cfg.State.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open run-state store")
	}
	defer func() {
		if err := stateDB.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing run-state store")
		}
	}()

	var collectionSrc syncpkg.CollectionSource
	if cfg.Discogs.Enabled {
		collectionSrc = syncpkg.NewDiscogsClient(cfg.Discogs)
		logging.Info().Str("username", cfg.Discogs.Username).Msg("Discogs collection sync enabled")
	}
	var scrobbleSrc syncpkg.ScrobbleSource
	if cfg.Lastfm.Enabled {
		scrobbleSrc = syncpkg.NewLastfmClient(cfg.Lastfm)
		logging.Info().Str("user", cfg.Lastfm.User).Msg("Last.fm scrobble sync enabled")
	}
	if collectionSrc == nil && scrobbleSrc == nil {
		logging.Warn().Msg("No sync sources configured; the API serves whatever the database already holds")
	}

	wsHub := ws.NewHub()
	syncManager := syncpkg.NewManager(db, syncpkg.NewRunStateStore(stateDB), collectionSrc, scrobbleSrc, cfg, wsHub)

	enrichClient := enrich.NewClient(cfg.Enrich, cfg.Sync)
	if enrichClient.Enabled() {
		logging.Info().Str("model", cfg.Enrich.Model).Msg("AI collection notes enabled")
	}

	var jwtManager *auth.JWTManager
	var verifier *auth.Verifier
	var authmw *auth.Middleware

	switch cfg.Security.AuthMode {
	case "jwt":
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
		}
		verifier, err = auth.NewVerifier(cfg.Security.AdminUsername, cfg.Security.AdminPassword)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize credential verifier")
		}
		authmw = auth.NewMiddleware(jwtManager)
		logging.Info().Msg("JWT authentication enabled")
	default:
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  Sync triggers and note generation are open to anyone")
		logging.Warn().Msg("  who can reach this port. Use only on trusted networks.")
		logging.Warn().Msg("============================================================")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (RATE_LIMIT_DISABLED=true)")
	}

	handler := api.NewHandler(db, syncManager, enrichClient, cfg, jwtManager, verifier, wsHub)
	router := api.NewRouter(handler, authmw, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(slog.New(logging.NewSlogHandler()), supervisor.DefaultTreeConfig())
	tree.AddSyncService(services.NewWebsocketHubService(wsHub))
	tree.AddSyncService(services.NewSyncManagerService(syncManager))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
	}

	logging.Info().Msg("Discolog stopped")
}

// openStateDB opens the Badger store that keeps sync cursors across
// restarts. Badger creates the directory if it does not exist.
func openStateDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	return badger.Open(opts)
}
