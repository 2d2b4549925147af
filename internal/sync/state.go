// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// RunState is the persisted summary of the last finished run for one
// kind. Cursor is the incremental high-water mark (the newest scrobble
// timestamp walked); it only moves forward after a complete walk, so a
// run cut short by a rate limit or a record limit never hides the gap
// it left behind.
type RunState struct {
	Kind        Kind      `json:"kind"`
	CompletedAt time.Time `json:"completed_at"`
	Succeeded   int       `json:"succeeded"`
	Skipped     int       `json:"skipped"`
	Errored     int       `json:"errored"`
	Partial     bool      `json:"partial,omitempty"`
	Cursor      int64     `json:"cursor,omitempty"`
}

// RunStateStore persists run summaries in BadgerDB so incremental
// cursors and last-run info survive application restarts.
type RunStateStore struct {
	db *badger.DB
}

// NewRunStateStore creates a run state store on the provided BadgerDB
// instance.
func NewRunStateStore(db *badger.DB) *RunStateStore {
	return &RunStateStore{db: db}
}

func runStateKey(kind Kind) []byte {
	return []byte("sync:" + string(kind) + ":state")
}

// Save persists the run summary for its kind, overwriting any previous
// one.
func (s *RunStateStore) Save(ctx context.Context, state *RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runStateKey(state.Kind), data)
	})
}

// Load retrieves the last saved run summary for the kind.
// Returns nil, nil if none has been saved.
func (s *RunStateStore) Load(ctx context.Context, kind Kind) (*RunState, error) {
	var state RunState

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runStateKey(kind))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})

	if err != nil {
		return nil, fmt.Errorf("load run state: %w", err)
	}

	if state.Kind == "" {
		return nil, nil
	}

	return &state, nil
}

// Clear removes the saved state for the kind. The next run walks the
// provider from the beginning.
func (s *RunStateStore) Clear(ctx context.Context, kind Kind) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(runStateKey(kind))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
