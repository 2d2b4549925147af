// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package discogs

// Release is the full payload from /releases/{id}. Compared to the
// collection summary it adds country, release date, notes, tracklist
// and images.
type Release struct {
	ID       int64  `json:"id"`
	MasterID int64  `json:"master_id"`
	Title    string `json:"title"`
	Year     int    `json:"year"`
	// Released is a partial date in text form, "1994-03-08" or "1994".
	Released  string   `json:"released"`
	Country   string   `json:"country"`
	Notes     string   `json:"notes"`
	Genres    []string `json:"genres"`
	Styles    []string `json:"styles"`
	Artists   []Artist `json:"artists"`
	Labels    []Label  `json:"labels"`
	Formats   []Format `json:"formats"`
	Tracklist []Track  `json:"tracklist"`
	Images    []Image  `json:"images"`
	Thumb     string   `json:"thumb"`
	URI       string   `json:"uri"`
	// LowestPrice is null when no copies are for sale.
	LowestPrice *float64 `json:"lowest_price"`
	NumForSale  int      `json:"num_for_sale"`
}

// Track is one tracklist row. Position and Duration are free-text in
// the API ("A1", "4:36").
type Track struct {
	Position string `json:"position"`
	Title    string `json:"title"`
	Duration string `json:"duration"`
}

// Image is one release image. Type is "primary" or "secondary".
type Image struct {
	Type   string `json:"type"`
	URI    string `json:"uri"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// PrimaryImage returns the URI of the primary image, falling back to
// the first image, then the empty string.
func (r *Release) PrimaryImage() string {
	for _, img := range r.Images {
		if img.Type == "primary" {
			return img.URI
		}
	}
	if len(r.Images) > 0 {
		return r.Images[0].URI
	}
	return ""
}
