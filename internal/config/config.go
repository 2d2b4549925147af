// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

// Package config provides layered configuration for Discolog.
//
// Configuration loading order (koanf v2):
//  1. Defaults: built-in sensible defaults for all optional settings
//  2. Config file: optional YAML file (config.yaml) for persistent settings
//  3. Environment variables: override any setting
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Discogs  DiscogsConfig  `koanf:"discogs"`
	Lastfm   LastfmConfig   `koanf:"lastfm"`
	Enrich   EnrichConfig   `koanf:"enrich"`
	Database DatabaseConfig `koanf:"database"`
	State    StateConfig    `koanf:"state"`
	Sync     SyncConfig     `koanf:"sync"`
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DiscogsConfig holds Discogs connection settings. The collection sync pulls
// the configured user's collection folder 0 (the "All" folder).
//
// Environment variables:
//   - DISCOGS_ENABLED: enable the collection sync (default: false)
//   - DISCOGS_USERNAME: Discogs username owning the collection
//   - DISCOGS_TOKEN: personal access token from Settings > Developers
type DiscogsConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Username string `koanf:"username"`
	Token    string `koanf:"token"`
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string `koanf:"base_url"`
	// PerPage is the collection page size (Discogs caps at 100).
	PerPage int `koanf:"per_page"`
	// CourtesyDelay is the minimum interval between page requests.
	// Discogs allows 60 requests/minute for authenticated clients.
	CourtesyDelay time.Duration `koanf:"courtesy_delay"`
}

// LastfmConfig holds Last.fm connection settings for the scrobble import.
//
// Environment variables:
//   - LASTFM_ENABLED: enable the scrobble import (default: false)
//   - LASTFM_USER: Last.fm username whose history is imported
//   - LASTFM_API_KEY: API key from https://www.last.fm/api/account/create
type LastfmConfig struct {
	Enabled bool   `koanf:"enabled"`
	User    string `koanf:"user"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	// PerPage is the recent-tracks page size (Last.fm caps at 200).
	PerPage       int           `koanf:"per_page"`
	CourtesyDelay time.Duration `koanf:"courtesy_delay"`
}

// EnrichConfig holds settings for the AI collection-notes client.
// Any OpenAI-compatible chat completions endpoint works.
type EnrichConfig struct {
	Enabled   bool          `koanf:"enabled"`
	BaseURL   string        `koanf:"base_url"`
	APIKey    string        `koanf:"api_key"`
	Model     string        `koanf:"model"`
	MaxTokens int           `koanf:"max_tokens"`
	Timeout   time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the number of DuckDB threads (0 = runtime.NumCPU).
	Threads int `koanf:"threads"`
}

// StateConfig holds the Badger run-state store location. The store keeps
// per-kind sync run summaries and the incremental scrobble cursor.
type StateConfig struct {
	Path string `koanf:"path"`
}

// SyncConfig holds the import engine settings shared by both sync kinds.
type SyncConfig struct {
	// CheckpointSize is the number of accepted records committed per batch.
	CheckpointSize int `koanf:"checkpoint_size"`

	// Retry settings for outbound provider calls.
	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryInitialDelay time.Duration `koanf:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `koanf:"retry_max_delay"`
	RetryMultiplier   float64       `koanf:"retry_multiplier"`

	// Circuit breaker settings, one breaker per provider.
	BreakerFailureThreshold int           `koanf:"breaker_failure_threshold"`
	BreakerSuccessThreshold int           `koanf:"breaker_success_threshold"`
	BreakerRecoveryTimeout  time.Duration `koanf:"breaker_recovery_timeout"`

	// DedupWindow is the span within which two scrobbles of the same track
	// count as one physical play. Applied symmetrically around the event.
	DedupWindow time.Duration `koanf:"dedup_window"`

	// Periodic scheduling. When disabled, syncs run only on API trigger.
	ScheduleEnabled    bool          `koanf:"schedule_enabled"`
	CollectionInterval time.Duration `koanf:"collection_interval"`
	ScrobblesInterval  time.Duration `koanf:"scrobbles_interval"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
	// Environment mode: "development" or "production".
	Environment string `koanf:"environment"`
}

// APIConfig holds API pagination limits.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// SecurityConfig holds authentication and rate limit settings.
type SecurityConfig struct {
	// AuthMode is "none" (open, development) or "jwt" (admin login).
	AuthMode       string        `koanf:"auth_mode"`
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`
	AdminUsername  string        `koanf:"admin_username"`
	AdminPassword  string        `koanf:"admin_password"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	Level string `koanf:"level"`
	// Format is json (production) or console (development).
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks configuration invariants. Called by Load; callers building
// a Config by hand (tests) should call it themselves.
func (c *Config) Validate() error {
	if c.Discogs.Enabled {
		if c.Discogs.Username == "" {
			return fmt.Errorf("DISCOGS_USERNAME is required when the collection sync is enabled")
		}
		if c.Discogs.Token == "" {
			return fmt.Errorf("DISCOGS_TOKEN is required when the collection sync is enabled")
		}
	}
	if c.Discogs.PerPage < 1 || c.Discogs.PerPage > 100 {
		return fmt.Errorf("discogs per_page must be 1-100, got %d", c.Discogs.PerPage)
	}

	if c.Lastfm.Enabled {
		if c.Lastfm.User == "" {
			return fmt.Errorf("LASTFM_USER is required when the scrobble import is enabled")
		}
		if c.Lastfm.APIKey == "" {
			return fmt.Errorf("LASTFM_API_KEY is required when the scrobble import is enabled")
		}
	}
	if c.Lastfm.PerPage < 1 || c.Lastfm.PerPage > 200 {
		return fmt.Errorf("lastfm per_page must be 1-200, got %d", c.Lastfm.PerPage)
	}

	if c.Enrich.Enabled && c.Enrich.APIKey == "" {
		return fmt.Errorf("ENRICH_API_KEY is required when enrichment is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}

	if c.Sync.CheckpointSize < 1 {
		return fmt.Errorf("sync checkpoint_size must be positive, got %d", c.Sync.CheckpointSize)
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("sync retry_attempts must be at least 1, got %d", c.Sync.RetryAttempts)
	}
	if c.Sync.RetryMultiplier < 1 {
		return fmt.Errorf("sync retry_multiplier must be >= 1, got %g", c.Sync.RetryMultiplier)
	}
	if c.Sync.RetryInitialDelay < 0 || c.Sync.RetryMaxDelay < c.Sync.RetryInitialDelay {
		return fmt.Errorf("sync retry delays invalid: initial=%s max=%s",
			c.Sync.RetryInitialDelay, c.Sync.RetryMaxDelay)
	}
	if c.Sync.BreakerFailureThreshold < 1 || c.Sync.BreakerSuccessThreshold < 1 {
		return fmt.Errorf("sync breaker thresholds must be positive")
	}
	if c.Sync.DedupWindow <= 0 {
		return fmt.Errorf("sync dedup_window must be positive, got %s", c.Sync.DedupWindow)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}

	if c.API.DefaultPageSize < 1 || c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api page sizes invalid: default=%d max=%d",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}

	switch c.Security.AuthMode {
	case "none":
		// Open mode; main() logs a warning banner.
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters when auth_mode=jwt")
		}
		if c.Security.AdminUsername == "" || c.Security.AdminPassword == "" {
			return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required when auth_mode=jwt")
		}
	default:
		return fmt.Errorf("auth_mode must be \"none\" or \"jwt\", got %q", c.Security.AuthMode)
	}

	return nil
}
