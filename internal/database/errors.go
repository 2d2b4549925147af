// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package database

import (
	"errors"
	"io"

	"github.com/nilskh/discolog/internal/logging"
)

// ErrNotFound is returned by single-record lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// BatchResult reports what a checkpoint commit did with each record.
// Inserted counts records present in storage after the commit; a
// record another writer beat us to still counts, the commit is
// idempotent. Failed carries the records storage rejected.
type BatchResult struct {
	Inserted int
	Failed   []RecordError
}

// RecordError is one record storage rejected, identified by its
// natural key.
type RecordError struct {
	Key string
	Err error
}

// closeQuietly closes a resource and explicitly ignores any error.
// For cleanup in error paths where Close errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}
