// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/nilskh/discolog/internal/metrics"
	"github.com/nilskh/discolog/internal/resilience"
)

// userAgent identifies this application to provider APIs. Discogs
// rejects requests without a meaningful User-Agent.
const userAgent = "Discolog/1.0 +https://github.com/nilskh/discolog"

// maxErrorBodySize limits the maximum amount of response body read for error reporting
// This prevents unbounded memory allocation when reading large error responses
const maxErrorBodySize = 64 * 1024 // 64KB

// readBodyForError reads the response body for error reporting (max 64KB)
// Returns the body content or a placeholder message if reading fails
func readBodyForError(r io.Reader) []byte {
	limitedReader := io.LimitReader(r, maxErrorBodySize)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}

// newProviderHTTPClient returns the HTTP client used for provider API
// calls. Retries and rate-limit policy live outside the client, so a
// plain timeout is all it carries.
func newProviderHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// parseRetryAfter reads the Retry-After header's delay-seconds form.
// Zero when absent or unparseable.
func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if seconds, err := time.ParseDuration(h + "s"); err == nil && seconds > 0 {
		return seconds
	}
	return 0
}

// classifyResponse maps a provider response status onto the error
// classes the retry policy and fetcher act on: 429 is a rate-limit
// signal, 5xx is retryable, any other non-200 is terminal. Returns nil
// for 200.
func classifyResponse(provider, operation string, resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return resilience.NewRateLimitedError(
			fmt.Sprintf("%s %s rate limited (HTTP 429)", provider, operation),
			parseRetryAfter(resp.Header.Get("Retry-After")),
		)
	case resp.StatusCode >= 500:
		body := readBodyForError(resp.Body)
		return resilience.NewRetryableError(
			fmt.Sprintf("%s %s returned status %d: %s", provider, operation, resp.StatusCode, string(body)), nil)
	default:
		body := readBodyForError(resp.Body)
		return resilience.NewTerminalError(
			fmt.Sprintf("%s %s returned status %d: %s", provider, operation, resp.StatusCode, string(body)), nil)
	}
}

// doProviderGet executes one GET against a provider API, records the
// request metric, and classifies failures. The caller owns the
// returned body and must close it.
func doProviderGet(ctx context.Context, client *http.Client, provider, operation, reqURL string, header http.Header) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, resilience.NewTerminalError(fmt.Sprintf("create %s %s request", provider, operation), err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		metrics.RecordProviderRequest(provider, operation, "error", duration)
		// Cancellation is the caller's doing, not a provider failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, resilience.NewRetryableError(fmt.Sprintf("%s %s request failed", provider, operation), err)
	}

	if err := classifyResponse(provider, operation, resp); err != nil {
		_ = resp.Body.Close()
		result := "error"
		if resilience.IsRateLimited(err) {
			result = "rate_limited"
		}
		metrics.RecordProviderRequest(provider, operation, result, duration)
		return nil, err
	}

	metrics.RecordProviderRequest(provider, operation, "success", duration)
	return resp.Body, nil
}

// decodeProviderJSON decodes a provider response body. A truncated
// read is retryable; a payload that does not match the expected shape
// is terminal.
func decodeProviderJSON(body io.ReadCloser, result interface{}, what string) error {
	defer body.Close()

	if err := json.NewDecoder(body).Decode(result); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return resilience.NewRetryableError(fmt.Sprintf("decode %s: truncated response", what), err)
		}
		return resilience.NewTerminalError(fmt.Sprintf("decode %s response", what), err)
	}
	return nil
}
