// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

// Package models defines the local entities the sync engine writes and the
// API serves: releases (the record collection) and scrobbles (the listening
// history), plus the shared API response envelope.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Release is one physical record in the collection, mapped from a Discogs
// release. DiscogsID is the natural key: the same release is never persisted
// twice regardless of how often the collection is synced.
type Release struct {
	ID         uuid.UUID `json:"id"`
	DiscogsID  int64     `json:"discogs_id"`
	InstanceID int64     `json:"instance_id"`
	Title      string    `json:"title"`
	Artists    string    `json:"artists"`
	Year       int       `json:"year,omitempty"`
	// Country and Released come from the per-release detail lookup,
	// not the collection listing. Released keeps Discogs' partial-date
	// text form ("1994-03-08" or just "1994").
	Country    string    `json:"country,omitempty"`
	Released   string    `json:"released,omitempty"`
	Labels     string    `json:"labels,omitempty"`
	Formats    string    `json:"formats,omitempty"`
	Genres     string    `json:"genres,omitempty"`
	Styles     string    `json:"styles,omitempty"`
	Rating     int       `json:"rating,omitempty"`
	Thumb      string    `json:"thumb,omitempty"`
	CoverImage string    `json:"cover_image,omitempty"`
	// AddedAt is when the release entered the Discogs collection.
	AddedAt time.Time `json:"added_at"`
	// Notes holds the AI-generated collection notes, if any.
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scrobble is one listening event imported from Last.fm.
//
// NaturalKey identifies the exact event (artist|track|uts); TrackKey
// identifies the logical track (artist|track, lowercased) and backs the
// near-duplicate window check.
type Scrobble struct {
	ID         uuid.UUID `json:"id"`
	NaturalKey string    `json:"-"`
	TrackKey   string    `json:"-"`
	Artist     string    `json:"artist"`
	Track      string    `json:"track"`
	Album      string    `json:"album,omitempty"`
	MBID       string    `json:"mbid,omitempty"`
	PlayedAt   time.Time `json:"played_at"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReleaseFilter narrows ListReleases queries. Zero values mean "no filter".
type ReleaseFilter struct {
	Artist string
	Year   int
	Genre  string
	Format string

	Page     int
	PageSize int
}

// ArtistPlays is one row of the most-played-artists ranking.
type ArtistPlays struct {
	Artist string `json:"artist"`
	Plays  int    `json:"plays"`
}

// LibraryStats summarizes the library for the stats endpoint.
type LibraryStats struct {
	TotalReleases  int           `json:"total_releases"`
	TotalScrobbles int           `json:"total_scrobbles"`
	UniqueArtists  int           `json:"unique_artists"`
	TopArtists     []ArtistPlays `json:"top_artists"`
}
