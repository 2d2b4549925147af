// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package lastfm

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// IntString is an integer that Last.fm may encode as a JSON string
// ("2543") or as a plain number.
type IntString int64

// UnmarshalJSON implements json.Unmarshaler.
func (n *IntString) UnmarshalJSON(data []byte) error {
	s := string(bytes.Trim(data, `"`))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse int %q: %w", s, err)
	}
	*n = IntString(v)
	return nil
}

// RecentTracksResponse is the envelope from user.getrecenttracks.
type RecentTracksResponse struct {
	RecentTracks RecentTracks `json:"recenttracks"`
}

// RecentTracks holds one page of tracks plus the pagination block.
type RecentTracks struct {
	Tracks []Track    `json:"track"`
	Attr   RecentAttr `json:"@attr"`
}

// RecentAttr is the "@attr" pagination block.
type RecentAttr struct {
	User       string    `json:"user"`
	Page       IntString `json:"page"`
	PerPage    IntString `json:"perPage"`
	TotalPages IntString `json:"totalPages"`
	Total      IntString `json:"total"`
}

// Entity is Last.fm's name-plus-mbid object. The display name lives
// under the "#text" key.
type Entity struct {
	Text string `json:"#text"`
	MBID string `json:"mbid"`
}

// TrackDate carries the scrobble timestamp. Absent on the synthetic
// now-playing entry.
type TrackDate struct {
	UTS  IntString `json:"uts"`
	Text string    `json:"#text"`
}

// TrackAttr marks the synthetic now-playing entry.
type TrackAttr struct {
	NowPlaying string `json:"nowplaying"`
}

// Image is one artwork URL at a named size.
type Image struct {
	Size string `json:"size"`
	URL  string `json:"#text"`
}

// Track is one scrobble from the recent tracks listing, newest first.
type Track struct {
	Artist Entity     `json:"artist"`
	Album  Entity     `json:"album"`
	Name   string     `json:"name"`
	MBID   string     `json:"mbid"`
	URL    string     `json:"url"`
	Images []Image    `json:"image"`
	Date   *TrackDate `json:"date,omitempty"`
	Attr   *TrackAttr `json:"@attr,omitempty"`
}

// NowPlaying reports whether this is the synthetic now-playing entry
// rather than a completed listen.
func (t Track) NowPlaying() bool {
	return t.Attr != nil && t.Attr.NowPlaying == "true"
}

// UTS returns the scrobble's Unix timestamp, or zero for the
// now-playing entry.
func (t Track) UTS() int64 {
	if t.Date == nil {
		return 0
	}
	return int64(t.Date.UTS)
}

// PlayedAt returns the scrobble timestamp in UTC. ok is false for the
// now-playing entry.
func (t Track) PlayedAt() (time.Time, bool) {
	uts := t.UTS()
	if uts == 0 {
		return time.Time{}, false
	}
	return time.Unix(uts, 0).UTC(), true
}

// APIError is Last.fm's error envelope. The API sometimes returns it
// with HTTP 200, so callers check the body as well as the status code.
type APIError struct {
	Code    int    `json:"error"`
	Message string `json:"message"`
}

// Error codes from the Last.fm error table that matter for retry
// classification. Everything else is treated as terminal.
const (
	ErrorCodeOperationFailed        = 8
	ErrorCodeServiceOffline         = 11
	ErrorCodeTemporarilyUnavailable = 16
	ErrorCodeRateLimit              = 29
)
