// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"strconv"
	"strings"
)

// Kind identifies one import pipeline. Each kind has at most one
// running job at a time; jobs of different kinds are independent.
type Kind string

const (
	// KindCollection imports the Discogs collection inventory.
	KindCollection Kind = "collection"

	// KindScrobbles imports the Last.fm listening history.
	KindScrobbles Kind = "scrobbles"
)

// Kinds lists every sync kind in display order.
func Kinds() []Kind {
	return []Kind{KindCollection, KindScrobbles}
}

// ParseKind validates a kind string from the API layer.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindCollection, KindScrobbles:
		return Kind(s), true
	default:
		return "", false
	}
}

func (k Kind) String() string {
	return string(k)
}

// ReleaseNaturalKey builds the natural key for a collection item. The
// Discogs release ID is immutable, so it alone identifies the item.
func ReleaseNaturalKey(discogsID int64) string {
	return strconv.FormatInt(discogsID, 10)
}

// ScrobbleNaturalKey builds the natural key for one listening event.
// Two scrobbles are the same event only if track identity and play
// timestamp all match.
func ScrobbleNaturalKey(artist, track string, uts int64) string {
	return TrackKey(artist, track) + "|" + strconv.FormatInt(uts, 10)
}

// TrackKey builds the track identity used by window deduplication.
// Case folding absorbs the tag inconsistencies Last.fm reports for the
// same track across scrobblers.
func TrackKey(artist, track string) string {
	return strings.ToLower(strings.TrimSpace(artist)) + "|" + strings.ToLower(strings.TrimSpace(track))
}
