// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nilskh/discolog/internal/auth"
	"github.com/nilskh/discolog/internal/config"
	"github.com/nilskh/discolog/internal/middleware"
)

const (
	healthRateLimit = 1000
	loginRateLimit  = 5
	loginRateWindow = 5 * time.Minute
)

// Router assembles the HTTP surface: handlers, auth guard and the
// chi middleware stack.
type Router struct {
	handler *Handler
	auth    *auth.Middleware
	cfg     *config.Config
}

// NewRouter wires a handler and an auth guard into a router. The auth
// middleware may be nil when auth_mode is "none"; guarded routes then
// pass through.
func NewRouter(handler *Handler, authmw *auth.Middleware, cfg *config.Config) *Router {
	return &Router{
		handler: handler,
		auth:    authmw,
		cfg:     cfg,
	}
}

// Setup builds the route tree. The websocket endpoint deliberately
// skips the metrics and compression wrappers: both buffer the response
// writer, which breaks the connection hijack the upgrade needs.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.corsHandler())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.rateLimit(healthRateLimit, time.Minute))
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		// Tight limit on login to slow down credential stuffing.
		r.With(router.rateLimit(loginRateLimit, loginRateWindow)).Post("/login", router.handler.Login)
		r.Post("/logout", router.handler.Logout)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.configuredRateLimit())
		r.Use(middleware.PrometheusMetrics)
		r.Use(chimiddleware.Compress(5))

		r.Get("/releases", router.handler.Releases)
		r.Get("/releases/{id}", router.handler.Release)
		r.With(router.requireAuth()).Post("/releases/{id}/notes", router.handler.GenerateReleaseNotes)

		r.Get("/scrobbles/recent", router.handler.RecentScrobbles)
		r.Get("/stats", router.handler.Stats)

		r.Get("/sync/status", router.handler.SyncStatus)
		r.Get("/sync/{kind}/progress", router.handler.SyncProgress)
		r.With(router.requireAuth()).Post("/sync/{kind}", router.handler.TriggerSync)
	})

	r.Route("/api/v1/ws", func(r chi.Router) {
		r.Use(router.configuredRateLimit())
		r.Get("/", router.handler.Websocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (router *Router) corsHandler() func(http.Handler) http.Handler {
	var origins []string
	if router.cfg != nil {
		origins = router.cfg.Security.CORSOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}

// configuredRateLimit applies the operator-tuned limit from the
// security config.
func (router *Router) configuredRateLimit() func(http.Handler) http.Handler {
	reqs := 100
	window := time.Minute
	if router.cfg != nil {
		if router.cfg.Security.RateLimitDisabled {
			return passthrough
		}
		if router.cfg.Security.RateLimitReqs > 0 {
			reqs = router.cfg.Security.RateLimitReqs
		}
		if router.cfg.Security.RateLimitWindow > 0 {
			window = router.cfg.Security.RateLimitWindow
		}
	}
	return router.rateLimit(reqs, window)
}

func (router *Router) rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if router.cfg != nil && router.cfg.Security.RateLimitDisabled {
		return passthrough
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests", nil)
		}),
	)
}

func (router *Router) requireAuth() func(http.Handler) http.Handler {
	if router.auth == nil {
		return passthrough
	}
	return router.auth.RequireAuth
}

func passthrough(next http.Handler) http.Handler {
	return next
}
