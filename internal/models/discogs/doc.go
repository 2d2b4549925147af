// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

// Package discogs provides data models for Discogs API responses.
//
// Two endpoint families are covered, matching how the collection sync
// walks the API:
//
// Collection listing (paginated summary rows):
//   - CollectionResponse: envelope from
//     /users/{username}/collection/folders/0/releases
//   - CollectionItem: one folder entry with its BasicInformation summary
//   - Pagination: Discogs' standard pagination block
//
// Release detail (one call per new release):
//   - Release: full payload from /releases/{id}, including country,
//     release date, tracklist and images the summary rows lack
//
// # Field Naming Conventions
//
// JSON fields use snake_case to match the Discogs API. Artist names may
// carry Discogs' numeric disambiguation suffix ("Nirvana (2)"); use
// CleanArtistName or JoinArtists to render them for display.
//
// # Version Compatibility
//
// These models target the public Discogs API (api.discogs.com). Unknown
// fields in future API revisions are ignored by the JSON decoder.
package discogs
