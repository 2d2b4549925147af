// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package discogs

import (
	"regexp"
	"strings"
)

// CollectionResponse is the envelope returned by the collection folder
// listing endpoint (/users/{username}/collection/folders/0/releases).
type CollectionResponse struct {
	Pagination Pagination       `json:"pagination"`
	Releases   []CollectionItem `json:"releases"`
}

// Pagination is Discogs' standard pagination block. Items is the total
// record count across all pages.
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// CollectionItem is one entry in a collection folder. ID is the
// release identifier (the same value as BasicInformation.ID) and is
// the natural key for collection sync.
type CollectionItem struct {
	ID               int64            `json:"id"`
	InstanceID       int64            `json:"instance_id"`
	Rating           int              `json:"rating"`
	DateAdded        string           `json:"date_added"`
	BasicInformation BasicInformation `json:"basic_information"`
}

// BasicInformation is the release summary embedded in collection
// listings. It lacks country, release date, notes and tracklist, which
// only the per-release detail endpoint provides.
type BasicInformation struct {
	ID         int64    `json:"id"`
	MasterID   int64    `json:"master_id"`
	Title      string   `json:"title"`
	Year       int      `json:"year"`
	Thumb      string   `json:"thumb"`
	CoverImage string   `json:"cover_image"`
	Formats    []Format `json:"formats"`
	Artists    []Artist `json:"artists"`
	Labels     []Label  `json:"labels"`
	Genres     []string `json:"genres"`
	Styles     []string `json:"styles"`
}

// Artist is one entry of a release's artist credit. Join is the
// connector Discogs renders between this artist and the next ("&",
// "feat.", ","); ANV is the artist name variation used on this
// release.
type Artist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	ANV  string `json:"anv"`
	Join string `json:"join"`
	Role string `json:"role,omitempty"`
}

// Format describes one physical format of a release. Qty is a string
// in the API ("2" for a double LP).
type Format struct {
	Name         string   `json:"name"`
	Qty          string   `json:"qty"`
	Descriptions []string `json:"descriptions"`
}

// Describe renders the format the way it appears on a release page,
// e.g. "2×Vinyl, LP, Album".
func (f Format) Describe() string {
	var b strings.Builder
	if f.Qty != "" && f.Qty != "1" {
		b.WriteString(f.Qty)
		b.WriteString("×")
	}
	b.WriteString(f.Name)
	for _, d := range f.Descriptions {
		b.WriteString(", ")
		b.WriteString(d)
	}
	return b.String()
}

// Label is one label credit with its catalog number.
type Label struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	CatNo string `json:"catno"`
}

var artistNumberSuffix = regexp.MustCompile(`\s+\(\d+\)$`)

// CleanArtistName strips the numeric disambiguation suffix Discogs
// appends to non-unique artist names ("Nirvana (2)" becomes "Nirvana").
func CleanArtistName(name string) string {
	return artistNumberSuffix.ReplaceAllString(name, "")
}

// JoinArtists renders an artist credit the way Discogs displays it,
// honoring each artist's join connector. The name variation takes
// precedence over the canonical name when present.
func JoinArtists(artists []Artist) string {
	var b strings.Builder
	for i, a := range artists {
		name := a.ANV
		if name == "" {
			name = a.Name
		}
		b.WriteString(CleanArtistName(name))

		if i == len(artists)-1 {
			break
		}
		join := strings.TrimSpace(a.Join)
		if join == "" || join == "," {
			b.WriteString(", ")
		} else {
			b.WriteString(" ")
			b.WriteString(join)
			b.WriteString(" ")
		}
	}
	return b.String()
}
