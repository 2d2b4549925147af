// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

// Package enrich generates collection notes for releases through any
// OpenAI-compatible chat completions endpoint.
package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/nilskh/discolog/internal/config"
	"github.com/nilskh/discolog/internal/metrics"
	"github.com/nilskh/discolog/internal/models"
	"github.com/nilskh/discolog/internal/resilience"
)

// ErrDisabled is returned when note generation is requested but no
// enrichment endpoint is configured.
var ErrDisabled = errors.New("enrichment is not configured")

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 400

	userAgent = "Discolog/1.0 +https://github.com/nilskh/discolog"

	maxErrorBodySize = 4096

	systemPrompt = "You are a knowledgeable record collector writing brief " +
		"liner notes. Given a release's catalog details, write two to three " +
		"sentences about the release: its musical context, sound and " +
		"significance. Plain text only, no markdown, no preamble."
)

// Client calls a chat completions endpoint to write collection notes.
//
// Requests run under the same retry policy the sync engine uses for
// providers, with a dedicated circuit breaker so a failing enrichment
// backend never affects sync traffic. Safe for concurrent use.
type Client struct {
	cfg     config.EnrichConfig
	client  *http.Client
	policy  *resilience.Policy
	breaker *resilience.Breaker
}

// NewClient creates an enrichment client. The sync config supplies the
// retry and breaker knobs.
func NewClient(cfg config.EnrichConfig, syncCfg config.SyncConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             "enrich",
		FailureThreshold: uint32(syncCfg.BreakerFailureThreshold),
		SuccessThreshold: uint32(syncCfg.BreakerSuccessThreshold),
		RecoveryTimeout:  syncCfg.BreakerRecoveryTimeout,
	})

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		policy: &resilience.Policy{
			MaxAttempts:  syncCfg.RetryAttempts,
			InitialDelay: syncCfg.RetryInitialDelay,
			MaxDelay:     syncCfg.RetryMaxDelay,
			Multiplier:   syncCfg.RetryMultiplier,
			Breaker:      breaker,
		},
	}
}

// Enabled reports whether the client can serve requests. An API key is
// not required: local OpenAI-compatible servers often run without one.
func (c *Client) Enabled() bool {
	return c != nil && c.cfg.Enabled && c.cfg.BaseURL != "" && c.cfg.Model != ""
}

// Chat completions wire format, the subset this client uses.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// ReleaseNotes generates collection notes for one release. Returns
// ErrDisabled when no endpoint is configured.
func (c *Client) ReleaseNotes(ctx context.Context, release *models.Release) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	prompt := buildPrompt(release)
	return resilience.Do(ctx, c.policy, "enrich_release_notes", func(ctx context.Context) (string, error) {
		return c.complete(ctx, prompt)
	})
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	maxTokens := c.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", resilience.NewTerminalError("marshal chat request", err)
	}

	reqURL := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return "", resilience.NewTerminalError("create chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordProviderRequest("enrich", "chat_completion", "error", duration)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", resilience.NewRetryableError("enrich chat request failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		result := "error"
		if resilience.IsRateLimited(err) {
			result = "rate_limited"
		}
		metrics.RecordProviderRequest("enrich", "chat_completion", result, duration)
		return "", err
	}
	metrics.RecordProviderRequest("enrich", "chat_completion", "success", duration)

	var completion chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", resilience.NewRetryableError("decode chat completion: truncated response", err)
		}
		return "", resilience.NewTerminalError("decode chat completion response", err)
	}

	if len(completion.Choices) == 0 {
		return "", resilience.NewTerminalError("chat completion returned no choices", nil)
	}
	notes := strings.TrimSpace(completion.Choices[0].Message.Content)
	if notes == "" {
		return "", resilience.NewTerminalError("chat completion returned empty content", nil)
	}
	return notes, nil
}

// classifyStatus maps a completion response status onto the resilience
// error classes: 429 is a rate-limit signal, 5xx is retryable, any other
// non-200 is terminal.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return resilience.NewRateLimitedError(
			"enrich endpoint rate limited (HTTP 429)",
			parseRetryAfter(resp.Header.Get("Retry-After")),
		)
	case resp.StatusCode >= 500:
		return resilience.NewRetryableError(
			fmt.Sprintf("enrich endpoint returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body)), nil)
	default:
		return resilience.NewTerminalError(
			fmt.Sprintf("enrich endpoint returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body)), nil)
	}
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(h + "s"); err == nil && seconds > 0 {
		return seconds
	}
	return 0
}

func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return string(body)
}

// buildPrompt renders the release's catalog details as the user message.
// Only populated fields appear.
func buildPrompt(release *models.Release) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", release.Title)
	fmt.Fprintf(&b, "Artists: %s\n", release.Artists)
	if release.Year > 0 {
		fmt.Fprintf(&b, "Year: %d\n", release.Year)
	}
	if release.Country != "" {
		fmt.Fprintf(&b, "Country: %s\n", release.Country)
	}
	if release.Labels != "" {
		fmt.Fprintf(&b, "Labels: %s\n", release.Labels)
	}
	if release.Formats != "" {
		fmt.Fprintf(&b, "Formats: %s\n", release.Formats)
	}
	if release.Genres != "" {
		fmt.Fprintf(&b, "Genres: %s\n", release.Genres)
	}
	if release.Styles != "" {
		fmt.Fprintf(&b, "Styles: %s\n", release.Styles)
	}
	return b.String()
}
