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
	"github.com/nilskh/discolog/internal/models/discogs"
)

const defaultDiscogsBaseURL = "https://api.discogs.com"

// DiscogsClient reads a user's collection from the Discogs API.
//
// The client performs one plain HTTP call per method and classifies
// failures onto the resilience error taxonomy; retries, pacing and the
// circuit breaker are applied by the fetcher and retry policy around
// it. Safe for concurrent use.
type DiscogsClient struct {
	baseURL  string
	username string
	token    string
	perPage  int
	client   *http.Client
}

// NewDiscogsClient creates a Discogs API client from configuration.
func NewDiscogsClient(cfg config.DiscogsConfig) *DiscogsClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultDiscogsBaseURL
	}
	perPage := cfg.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	return &DiscogsClient{
		baseURL:  baseURL,
		username: cfg.Username,
		token:    cfg.Token,
		perPage:  perPage,
		client:   newProviderHTTPClient(),
	}
}

func (c *DiscogsClient) header() http.Header {
	h := http.Header{}
	if c.token != "" {
		h.Set("Authorization", "Discogs token="+c.token)
	}
	return h
}

// CollectionPage fetches one page of the user's "All" collection
// folder (folder 0), sorted by the date the release was added, newest
// first.
func (c *DiscogsClient) CollectionPage(ctx context.Context, page int) (*Page[discogs.CollectionItem], error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(c.perPage))
	params.Set("sort", "added")
	params.Set("sort_order", "desc")

	reqURL := fmt.Sprintf("%s/users/%s/collection/folders/0/releases?%s",
		c.baseURL, url.PathEscape(c.username), params.Encode())

	body, err := doProviderGet(ctx, c.client, "discogs", "collection_page", reqURL, c.header())
	if err != nil {
		return nil, err
	}

	var resp discogs.CollectionResponse
	if err := decodeProviderJSON(body, &resp, "discogs collection"); err != nil {
		return nil, err
	}

	return &Page[discogs.CollectionItem]{
		Records: resp.Releases,
		HasMore: resp.Pagination.Page < resp.Pagination.Pages,
		Total:   resp.Pagination.Items,
	}, nil
}

// Release fetches the full detail payload for one release.
func (c *DiscogsClient) Release(ctx context.Context, id int64) (*discogs.Release, error) {
	reqURL := fmt.Sprintf("%s/releases/%d", c.baseURL, id)

	body, err := doProviderGet(ctx, c.client, "discogs", "release_detail", reqURL, c.header())
	if err != nil {
		return nil, err
	}

	var release discogs.Release
	if err := decodeProviderJSON(body, &release, "discogs release"); err != nil {
		return nil, err
	}
	return &release, nil
}
