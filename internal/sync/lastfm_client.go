// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nilskh/discolog/internal/config"
	"github.com/nilskh/discolog/internal/models/lastfm"
	"github.com/nilskh/discolog/internal/resilience"
)

const defaultLastfmBaseURL = "https://ws.audioscrobbler.com/2.0/"

// LastfmClient reads a user's listening history from the Last.fm API.
//
// Like DiscogsClient it performs plain calls and classifies failures;
// the surrounding fetcher and retry policy decide what to do with
// them. Safe for concurrent use.
type LastfmClient struct {
	baseURL string
	user    string
	apiKey  string
	perPage int
	client  *http.Client
}

// NewLastfmClient creates a Last.fm API client from configuration.
func NewLastfmClient(cfg config.LastfmConfig) *LastfmClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultLastfmBaseURL
	}
	perPage := cfg.PerPage
	if perPage <= 0 || perPage > 200 {
		perPage = 200
	}
	return &LastfmClient{
		baseURL: baseURL,
		user:    cfg.User,
		apiKey:  cfg.APIKey,
		perPage: perPage,
		client:  newProviderHTTPClient(),
	}
}

// RecentPage fetches one page of user.getrecenttracks, newest first.
// from limits the walk to scrobbles after that Unix timestamp; zero
// means the full history. The synthetic now-playing entry is filtered
// out, so every returned track has a timestamp.
func (c *LastfmClient) RecentPage(ctx context.Context, page int, from int64) (*Page[lastfm.Track], error) {
	params := url.Values{}
	params.Set("method", "user.getrecenttracks")
	params.Set("user", c.user)
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(c.perPage))
	params.Set("page", strconv.Itoa(page))
	if from > 0 {
		params.Set("from", strconv.FormatInt(from, 10))
	}

	reqURL := c.baseURL + "?" + params.Encode()

	body, err := doProviderGet(ctx, c.client, "lastfm", "recent_tracks", reqURL, nil)
	if err != nil {
		return nil, err
	}

	// Last.fm may return its error envelope with HTTP 200, so decode
	// both shapes at once and check the error code first.
	var payload struct {
		lastfm.APIError
		lastfm.RecentTracksResponse
	}
	if err := decodeProviderJSON(body, &payload, "lastfm recent tracks"); err != nil {
		return nil, err
	}
	if payload.Code != 0 {
		return nil, classifyLastfmError(payload.APIError)
	}

	tracks := payload.RecentTracks.Tracks
	completed := make([]lastfm.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.NowPlaying() {
			continue
		}
		completed = append(completed, t)
	}

	attr := payload.RecentTracks.Attr
	return &Page[lastfm.Track]{
		Records: completed,
		HasMore: int64(attr.Page) < int64(attr.TotalPages),
		Total:   int(attr.Total),
	}, nil
}

// classifyLastfmError maps a Last.fm error code onto the resilience
// taxonomy. Backend hiccups (8, 11, 16) are retryable, 29 is the rate
// limit, everything else is terminal.
func classifyLastfmError(apiErr lastfm.APIError) error {
	msg := fmt.Sprintf("lastfm error %d: %s", apiErr.Code, apiErr.Message)
	switch apiErr.Code {
	case lastfm.ErrorCodeRateLimit:
		return resilience.NewRateLimitedError(msg, 0)
	case lastfm.ErrorCodeOperationFailed, lastfm.ErrorCodeServiceOffline, lastfm.ErrorCodeTemporarilyUnavailable:
		return resilience.NewRetryableError(msg, nil)
	default:
		return resilience.NewTerminalError(msg, nil)
	}
}
