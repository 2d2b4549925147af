// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nilskh/discolog/internal/config"
	"github.com/nilskh/discolog/internal/database"
	"github.com/nilskh/discolog/internal/models"
	"github.com/nilskh/discolog/internal/models/discogs"
	"github.com/nilskh/discolog/internal/models/lastfm"
)

// newTestConfig returns a config tuned for fast test runs: tiny retry
// delays, no courtesy pacing, and a checkpoint small enough to exercise
// batch boundaries with little data.
func newTestConfig() *config.Config {
	return &config.Config{
		Discogs: config.DiscogsConfig{
			Enabled:  true,
			Username: "test-user",
			Token:    "test-token",
			PerPage:  100,
		},
		Lastfm: config.LastfmConfig{
			Enabled: true,
			User:    "test-user",
			APIKey:  "test-key",
			PerPage: 200,
		},
		Sync: config.SyncConfig{
			CheckpointSize:          10,
			RetryAttempts:           2,
			RetryInitialDelay:       time.Millisecond,
			RetryMaxDelay:           5 * time.Millisecond,
			RetryMultiplier:         2.0,
			BreakerFailureThreshold: 5,
			BreakerSuccessThreshold: 2,
			BreakerRecoveryTimeout:  100 * time.Millisecond,
			DedupWindow:             10 * time.Minute,
		},
	}
}

// newTestManager wires a manager against mocks and a throwaway badger
// run-state store.
func newTestManager(t *testing.T, cfg *config.Config, store Store, col CollectionSource, scr ScrobbleSource) *Manager {
	t.Helper()

	db, cleanup := createTestBadgerDB(t)
	t.Cleanup(cleanup)
	return NewManager(store, NewRunStateStore(db), col, scr, cfg, nil)
}

// waitForIdle polls until the kind's run has wound down.
func waitForIdle(t *testing.T, m *Manager, kind Kind) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if !m.IsRunning(kind) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sync %s still running after 10s", kind)
}

// mockStore is an in-memory Store. Error fields inject failures; by
// default everything reads and writes the maps.
type mockStore struct {
	mu        sync.Mutex
	releases  map[string]models.Release
	scrobbles map[string]models.Scrobble

	releaseBatches  [][]models.Release
	scrobbleBatches [][]models.Scrobble

	rejectKeys map[string]error // per-record rejects by natural key
	insertErr  error            // whole-batch failure
	keysErr    error            // skip-set load failure
}

func newMockStore() *mockStore {
	return &mockStore{
		releases:   make(map[string]models.Release),
		scrobbles:  make(map[string]models.Scrobble),
		rejectKeys: make(map[string]error),
	}
}

func (s *mockStore) addRelease(discogsID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strconv.FormatInt(discogsID, 10)
	s.releases[key] = models.Release{DiscogsID: discogsID}
}

func (s *mockStore) addScrobble(sc models.Scrobble) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrobbles[sc.NaturalKey] = sc
}

func (s *mockStore) ReleaseIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keysErr != nil {
		return nil, s.keysErr
	}
	ids := make(map[string]struct{}, len(s.releases))
	for k := range s.releases {
		ids[k] = struct{}{}
	}
	return ids, nil
}

func (s *mockStore) ScrobbleKeys(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keysErr != nil {
		return nil, s.keysErr
	}
	keys := make(map[string]struct{}, len(s.scrobbles))
	for k := range s.scrobbles {
		keys[k] = struct{}{}
	}
	return keys, nil
}

func (s *mockStore) HasRelease(ctx context.Context, discogsID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.releases[strconv.FormatInt(discogsID, 10)]
	return ok, nil
}

func (s *mockStore) HasScrobble(ctx context.Context, naturalKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.scrobbles[naturalKey]
	return ok, nil
}

func (s *mockStore) HasScrobbleWithinWindow(ctx context.Context, trackKey string, playedAt time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.scrobbles {
		if sc.TrackKey != trackKey {
			continue
		}
		delta := playedAt.Sub(sc.PlayedAt)
		if delta < 0 {
			delta = -delta
		}
		if delta < window {
			return true, nil
		}
	}
	return false, nil
}

func (s *mockStore) InsertReleases(ctx context.Context, releases []models.Release) (*database.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	res := &database.BatchResult{}
	for _, rel := range releases {
		key := strconv.FormatInt(rel.DiscogsID, 10)
		if err, ok := s.rejectKeys[key]; ok {
			res.Failed = append(res.Failed, database.RecordError{Key: key, Err: err})
			continue
		}
		s.releases[key] = rel
		res.Inserted++
	}
	// The job reuses its batch slice between checkpoints; keep a copy.
	cp := make([]models.Release, len(releases))
	copy(cp, releases)
	s.releaseBatches = append(s.releaseBatches, cp)
	return res, nil
}

func (s *mockStore) InsertScrobbles(ctx context.Context, scrobbles []models.Scrobble) (*database.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	res := &database.BatchResult{}
	for _, sc := range scrobbles {
		if err, ok := s.rejectKeys[sc.NaturalKey]; ok {
			res.Failed = append(res.Failed, database.RecordError{Key: sc.NaturalKey, Err: err})
			continue
		}
		s.scrobbles[sc.NaturalKey] = sc
		res.Inserted++
	}
	cp := make([]models.Scrobble, len(scrobbles))
	copy(cp, scrobbles)
	s.scrobbleBatches = append(s.scrobbleBatches, cp)
	return res, nil
}

func (s *mockStore) releaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}

func (s *mockStore) scrobbleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scrobbles)
}

// mockCollectionSource serves canned collection pages and release
// details, with injectable per-page and per-release failures. A
// non-nil gate blocks every page fetch until it is closed, letting
// tests hold a run mid-flight.
type mockCollectionSource struct {
	mu          sync.Mutex
	pages       [][]discogs.CollectionItem
	total       int
	pageErrs    map[int]error   // persistent error per page number
	detailErrs  map[int64]error // persistent error per release id
	gate        chan struct{}   // set before Trigger, never after
	pageCalls   int
	detailCalls int
}

func newMockCollectionSource(pages [][]discogs.CollectionItem, total int) *mockCollectionSource {
	return &mockCollectionSource{
		pages:      pages,
		total:      total,
		pageErrs:   make(map[int]error),
		detailErrs: make(map[int64]error),
	}
}

func (m *mockCollectionSource) CollectionPage(ctx context.Context, page int) (*Page[discogs.CollectionItem], error) {
	if m.gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.gate:
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCalls++
	if err, ok := m.pageErrs[page]; ok {
		return nil, err
	}
	if page > len(m.pages) {
		return &Page[discogs.CollectionItem]{}, nil
	}
	return &Page[discogs.CollectionItem]{
		Records: m.pages[page-1],
		HasMore: page < len(m.pages) || m.moreBeyondPages(),
		Total:   m.total,
	}, nil
}

// moreBeyondPages reports whether the fixture claims records past the
// last canned page, so an always-failing page 3 can sit behind two
// pages of real data.
func (m *mockCollectionSource) moreBeyondPages() bool {
	count := 0
	for _, p := range m.pages {
		count += len(p)
	}
	return count < m.total
}

func (m *mockCollectionSource) Release(ctx context.Context, id int64) (*discogs.Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detailCalls++
	if err, ok := m.detailErrs[id]; ok {
		return nil, err
	}
	return &discogs.Release{
		ID:       id,
		Title:    fmt.Sprintf("Album %d", id),
		Year:     1990 + int(id%30),
		Country:  "US",
		Released: fmt.Sprintf("%d-01-01", 1990+int(id%30)),
		Artists:  []discogs.Artist{{Name: fmt.Sprintf("Artist %d", id)}},
	}, nil
}

func (m *mockCollectionSource) detailCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detailCalls
}

// collectionItems builds sequential collection items with ids
// from..to inclusive.
func collectionItems(from, to int64) []discogs.CollectionItem {
	items := make([]discogs.CollectionItem, 0, to-from+1)
	for id := from; id <= to; id++ {
		items = append(items, discogs.CollectionItem{
			ID:         id,
			InstanceID: id * 10,
			DateAdded:  "2026-01-15T10:30:00-08:00",
			BasicInformation: discogs.BasicInformation{
				ID:      id,
				Title:   fmt.Sprintf("Album %d", id),
				Year:    1990 + int(id%30),
				Artists: []discogs.Artist{{Name: fmt.Sprintf("Artist %d", id)}},
			},
		})
	}
	return items
}

// mockScrobbleSource serves canned recent-tracks pages and records the
// cursor each page call carried.
type mockScrobbleSource struct {
	mu        sync.Mutex
	pages     [][]lastfm.Track
	total     int
	pageErrs  map[int]error
	gate      chan struct{}
	pageCalls int
	fromSeen  []int64
}

func newMockScrobbleSource(pages [][]lastfm.Track, total int) *mockScrobbleSource {
	return &mockScrobbleSource{
		pages:    pages,
		total:    total,
		pageErrs: make(map[int]error),
	}
}

func (m *mockScrobbleSource) RecentPage(ctx context.Context, page int, from int64) (*Page[lastfm.Track], error) {
	if m.gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.gate:
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCalls++
	m.fromSeen = append(m.fromSeen, from)
	if err, ok := m.pageErrs[page]; ok {
		return nil, err
	}
	if page > len(m.pages) {
		return &Page[lastfm.Track]{}, nil
	}
	return &Page[lastfm.Track]{
		Records: m.pages[page-1],
		HasMore: page < len(m.pages),
		Total:   m.total,
	}, nil
}

// lastfmTrack builds a played track with the given unix timestamp.
func lastfmTrack(artist, track string, uts int64) lastfm.Track {
	return lastfm.Track{
		Artist: lastfm.Entity{Text: artist},
		Album:  lastfm.Entity{Text: "Some Album"},
		Name:   track,
		Date:   &lastfm.TrackDate{UTS: lastfm.IntString(uts)},
	}
}

// recordingHub captures broadcast message types for assertions.
type recordingHub struct {
	mu       sync.Mutex
	messages []string
}

func (h *recordingHub) BroadcastJSON(messageType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, messageType)
}

func (h *recordingHub) count(messageType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, m := range h.messages {
		if m == messageType {
			n++
		}
	}
	return n
}
