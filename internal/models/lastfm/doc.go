// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

// Package lastfm provides data models for Last.fm API responses.
//
// Only the user.getrecenttracks method is covered, which is what the
// listening-history sync walks:
//
//   - RecentTracksResponse: top-level envelope
//   - RecentTracks: the track list plus its "@attr" pagination block
//   - Track: one scrobble, or the synthetic now-playing entry
//
// # API Quirks
//
// Last.fm's JSON departs from the obvious encoding in ways these models
// absorb:
//
//   - Numbers arrive as strings ("totalPages": "13"). IntString decodes
//     either form.
//   - Display names live under the "#text" key of nested objects
//     ("artist": {"#text": "Slowdive", "mbid": "..."}).
//   - The currently playing track is prepended to page one with an
//     "@attr": {"nowplaying": "true"} marker and no date. It is not a
//     completed listen; Track.NowPlaying identifies it.
//
// Errors may arrive with HTTP 200 and an APIError body; code 29 is the
// rate limit.
package lastfm
