// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"sync"
	"time"
)

// Status is the lifecycle state of one sync job.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Progress is the externally visible state of one sync job. Counter
// semantics: Current counts every record the job has looked at in fetch
// order, Succeeded only records committed to storage, Skipped known or
// duplicate records, Errored records that failed individually. While a
// checkpoint batch is staged but uncommitted, Succeeded lags Current;
// the counters reconcile at every commit and sum to Current once the
// job reaches a terminal status.
type Progress struct {
	Status      Status    `json:"status"`
	Current     int       `json:"current"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Skipped     int       `json:"skipped"`
	Errored     int       `json:"errored"`
	CurrentItem string    `json:"current_item,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	Message     string    `json:"message,omitempty"`
}

// ProgressStore holds per-kind job progress. One writer per kind (the
// job goroutine) mutates it; any number of concurrent readers poll it.
// Reads return point-in-time copies and never block on a running job.
type ProgressStore struct {
	mu   sync.RWMutex
	jobs map[Kind]*Progress
}

// NewProgressStore creates an empty progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{jobs: make(map[Kind]*Progress)}
}

// Get returns a copy of the progress for the kind. Kinds that never
// ran report StatusIdle.
func (s *ProgressStore) Get(kind Kind) Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.jobs[kind]
	if !ok {
		return Progress{Status: StatusIdle}
	}
	return *p
}

// Snapshot returns a copy of every kind's progress.
func (s *ProgressStore) Snapshot() map[Kind]Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Kind]Progress, len(s.jobs))
	for kind, p := range s.jobs {
		out[kind] = *p
	}
	return out
}

// Begin resets the kind to a fresh starting state. Called by the
// trigger path before the job goroutine launches.
func (s *ProgressStore) Begin(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[kind] = &Progress{Status: StatusStarting, StartedAt: time.Now().UTC()}
}

// Run marks the job running. A zero total means the provider has not
// reported a collection size yet.
func (s *ProgressStore) Run(kind Kind, total int) {
	s.update(kind, func(p *Progress) {
		p.Status = StatusRunning
		if total > 0 {
			p.Total = total
		}
	})
}

// SetTotal records the provider-reported collection size once known.
func (s *ProgressStore) SetTotal(kind Kind, total int) {
	s.update(kind, func(p *Progress) {
		if total > 0 {
			p.Total = total
		}
	})
}

// Step advances the record cursor. Current only ever grows; when the
// provider never reported a total it trails the cursor instead.
func (s *ProgressStore) Step(kind Kind, label string) {
	s.update(kind, func(p *Progress) {
		p.Current++
		p.CurrentItem = label
		if p.Total < p.Current {
			p.Total = p.Current
		}
	})
}

// AddSucceeded credits records committed by a checkpoint.
func (s *ProgressStore) AddSucceeded(kind Kind, n int) {
	s.update(kind, func(p *Progress) { p.Succeeded += n })
}

// Skip counts an already-known or duplicate record.
func (s *ProgressStore) Skip(kind Kind) {
	s.update(kind, func(p *Progress) { p.Skipped++ })
}

// Fail counts a record that errored individually.
func (s *ProgressStore) Fail(kind Kind) {
	s.update(kind, func(p *Progress) { p.Errored++ })
}

// AddFailed counts several individually errored records at once.
func (s *ProgressStore) AddFailed(kind Kind, n int) {
	s.update(kind, func(p *Progress) { p.Errored += n })
}

// Complete freezes the job in its terminal success state.
func (s *ProgressStore) Complete(kind Kind) {
	s.update(kind, func(p *Progress) {
		p.Status = StatusCompleted
		p.CurrentItem = ""
	})
}

// Error freezes the job in its terminal failure state with a
// human-readable message.
func (s *ProgressStore) Error(kind Kind, msg string) {
	s.update(kind, func(p *Progress) {
		p.Status = StatusError
		p.Message = msg
		p.CurrentItem = ""
	})
}

func (s *ProgressStore) update(kind Kind, fn func(*Progress)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.jobs[kind]
	if !ok {
		p = &Progress{Status: StatusIdle}
		s.jobs[kind] = p
	}
	fn(p)
}
