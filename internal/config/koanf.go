// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/discolog/config.yaml",
	"/etc/discolog/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are layered
// first, then overridden by the config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Discogs: DiscogsConfig{
			Enabled:       false,
			BaseURL:       "https://api.discogs.com",
			PerPage:       100,
			CourtesyDelay: 1100 * time.Millisecond, // under the 60 req/min cap
		},
		Lastfm: LastfmConfig{
			Enabled:       false,
			BaseURL:       "https://ws.audioscrobbler.com/2.0/",
			PerPage:       200,
			CourtesyDelay: 250 * time.Millisecond,
		},
		Enrich: EnrichConfig{
			Enabled:   false,
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 400,
			Timeout:   60 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/discolog.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		State: StateConfig{
			Path: "/data/state",
		},
		Sync: SyncConfig{
			CheckpointSize:          50,
			RetryAttempts:           5,
			RetryInitialDelay:       2 * time.Second,
			RetryMaxDelay:           60 * time.Second,
			RetryMultiplier:         2.0,
			BreakerFailureThreshold: 5,
			BreakerSuccessThreshold: 2,
			BreakerRecoveryTimeout:  60 * time.Second,
			DedupWindow:             10 * time.Minute,
			ScheduleEnabled:         false,
			CollectionInterval:      24 * time.Hour,
			ScrobblesInterval:       15 * time.Minute,
		},
		Server: ServerConfig{
			Port:        3313,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Security: SecurityConfig{
			AuthMode:          "none",
			SessionTimeout:    24 * time.Hour,
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. defaults from struct
//  2. optional YAML config file
//  3. environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// DISCOGS_TOKEN -> discogs.token, HTTP_PORT -> server.port, etc.
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches CONFIG_PATH and the default paths; returns the
// first existing file or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// they arrive as env strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated env values into slices for the
// known slice fields. YAML-sourced slices pass through untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return "" and are ignored, so unrelated environment
// noise never leaks into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"discogs_enabled":        "discogs.enabled",
		"discogs_username":       "discogs.username",
		"discogs_token":          "discogs.token",
		"discogs_base_url":       "discogs.base_url",
		"discogs_per_page":       "discogs.per_page",
		"discogs_courtesy_delay": "discogs.courtesy_delay",

		"lastfm_enabled":        "lastfm.enabled",
		"lastfm_user":           "lastfm.user",
		"lastfm_api_key":        "lastfm.api_key",
		"lastfm_base_url":       "lastfm.base_url",
		"lastfm_per_page":       "lastfm.per_page",
		"lastfm_courtesy_delay": "lastfm.courtesy_delay",

		"enrich_enabled":    "enrich.enabled",
		"enrich_base_url":   "enrich.base_url",
		"enrich_api_key":    "enrich.api_key",
		"enrich_model":      "enrich.model",
		"enrich_max_tokens": "enrich.max_tokens",
		"enrich_timeout":    "enrich.timeout",

		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		"state_path": "state.path",

		"sync_checkpoint_size":           "sync.checkpoint_size",
		"sync_retry_attempts":            "sync.retry_attempts",
		"sync_retry_initial_delay":       "sync.retry_initial_delay",
		"sync_retry_max_delay":           "sync.retry_max_delay",
		"sync_retry_multiplier":          "sync.retry_multiplier",
		"sync_breaker_failure_threshold": "sync.breaker_failure_threshold",
		"sync_breaker_success_threshold": "sync.breaker_success_threshold",
		"sync_breaker_recovery_timeout":  "sync.breaker_recovery_timeout",
		"sync_dedup_window":              "sync.dedup_window",
		"sync_schedule_enabled":          "sync.schedule_enabled",
		"sync_collection_interval":       "sync.collection_interval",
		"sync_scrobbles_interval":        "sync.scrobbles_interval",

		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		"auth_mode":           "security.auth_mode",
		"jwt_secret":          "security.jwt_secret",
		"session_timeout":     "security.session_timeout",
		"admin_username":      "security.admin_username",
		"admin_password":      "security.admin_password",
		"rate_limit_reqs":     "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"rate_limit_disabled": "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if path, ok := envMappings[key]; ok {
		return path
	}
	return ""
}
