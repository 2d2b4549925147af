// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nilskh/discolog/internal/config"
	"github.com/nilskh/discolog/internal/database"
	"github.com/nilskh/discolog/internal/logging"
	"github.com/nilskh/discolog/internal/metrics"
	"github.com/nilskh/discolog/internal/models"
	"github.com/nilskh/discolog/internal/models/discogs"
	"github.com/nilskh/discolog/internal/models/lastfm"
	"github.com/nilskh/discolog/internal/resilience"
)

var (
	// ErrSyncRunning is returned when a sync of the same kind is
	// already active. Different kinds run concurrently.
	ErrSyncRunning = errors.New("sync already running")

	// ErrSourceDisabled is returned when the provider for the
	// requested kind is not configured.
	ErrSourceDisabled = errors.New("sync source disabled")
)

// Store is the slice of the database layer the sync engine uses.
type Store interface {
	ReleaseIDs(ctx context.Context) (map[string]struct{}, error)
	ScrobbleKeys(ctx context.Context) (map[string]struct{}, error)
	HasRelease(ctx context.Context, discogsID int64) (bool, error)
	HasScrobble(ctx context.Context, naturalKey string) (bool, error)
	HasScrobbleWithinWindow(ctx context.Context, trackKey string, playedAt time.Time, window time.Duration) (bool, error)
	InsertReleases(ctx context.Context, releases []models.Release) (*database.BatchResult, error)
	InsertScrobbles(ctx context.Context, scrobbles []models.Scrobble) (*database.BatchResult, error)
}

// CollectionSource is the slice of the Discogs API the collection sync
// consumes. Implemented by DiscogsClient.
type CollectionSource interface {
	CollectionPage(ctx context.Context, page int) (*Page[discogs.CollectionItem], error)
	Release(ctx context.Context, id int64) (*discogs.Release, error)
}

// ScrobbleSource is the slice of the Last.fm API the history sync
// consumes. Implemented by LastfmClient.
type ScrobbleSource interface {
	RecentPage(ctx context.Context, page int, from int64) (*Page[lastfm.Track], error)
}

// Hub broadcasts messages to frontend websocket clients.
// Implemented by internal/websocket/Hub.
type Hub interface {
	BroadcastJSON(messageType string, data interface{})
}

// progressUpdate is the payload broadcast while a run advances.
type progressUpdate struct {
	Kind     string   `json:"kind"`
	Progress Progress `json:"progress"`
}

// runOutcome is what a finished run hands back to the manager: whether
// the walk was cut short and where the incremental cursor should point
// next.
type runOutcome struct {
	partial bool
	cursor  int64
}

// KindStatus is one kind's slice of the sync status report.
type KindStatus struct {
	Kind     Kind      `json:"kind"`
	Enabled  bool      `json:"enabled"`
	Running  bool      `json:"running"`
	Breaker  string    `json:"breaker_state"`
	Progress Progress  `json:"progress"`
	LastRun  *RunState `json:"last_run,omitempty"`
}

// Manager owns the sync jobs: one potential runner per kind, shared
// progress, persisted run state, and the per-provider resilience
// stack. Each provider gets exactly one circuit breaker for the life
// of the process, so failure history survives across runs.
type Manager struct {
	cfg      *config.Config
	store    Store
	state    *RunStateStore
	progress *ProgressStore
	hub      Hub

	discogs CollectionSource
	lastfm  ScrobbleSource

	discogsBreaker *resilience.Breaker
	lastfmBreaker  *resilience.Breaker
	discogsRetry   *resilience.Policy
	lastfmRetry    *resilience.Policy

	mu       sync.Mutex
	running  map[Kind]bool
	cancels  map[Kind]context.CancelFunc
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a sync manager. hub may be nil; sources for
// disabled providers may be nil.
func NewManager(store Store, state *RunStateStore, discogsSrc CollectionSource, lastfmSrc ScrobbleSource, cfg *config.Config, hub Hub) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    store,
		state:    state,
		progress: NewProgressStore(),
		hub:      hub,
		discogs:  discogsSrc,
		lastfm:   lastfmSrc,
		running:  make(map[Kind]bool),
		cancels:  make(map[Kind]context.CancelFunc),
		stopChan: make(chan struct{}),
	}

	m.discogsBreaker = resilience.NewBreaker(resilience.BreakerConfig{
		Name:             "discogs",
		FailureThreshold: uint32(cfg.Sync.BreakerFailureThreshold),
		SuccessThreshold: uint32(cfg.Sync.BreakerSuccessThreshold),
		RecoveryTimeout:  cfg.Sync.BreakerRecoveryTimeout,
	})
	m.lastfmBreaker = resilience.NewBreaker(resilience.BreakerConfig{
		Name:             "lastfm",
		FailureThreshold: uint32(cfg.Sync.BreakerFailureThreshold),
		SuccessThreshold: uint32(cfg.Sync.BreakerSuccessThreshold),
		RecoveryTimeout:  cfg.Sync.BreakerRecoveryTimeout,
	})
	m.discogsRetry = m.newRetryPolicy(m.discogsBreaker)
	m.lastfmRetry = m.newRetryPolicy(m.lastfmBreaker)

	logging.Info().
		Int("checkpoint_size", cfg.Sync.CheckpointSize).
		Int("retry_attempts", cfg.Sync.RetryAttempts).
		Dur("dedup_window", cfg.Sync.DedupWindow).
		Bool("discogs", cfg.Discogs.Enabled).
		Bool("lastfm", cfg.Lastfm.Enabled).
		Msg("Sync manager config loaded")

	return m
}

func (m *Manager) newRetryPolicy(breaker *resilience.Breaker) *resilience.Policy {
	return &resilience.Policy{
		MaxAttempts:  m.cfg.Sync.RetryAttempts,
		InitialDelay: m.cfg.Sync.RetryInitialDelay,
		MaxDelay:     m.cfg.Sync.RetryMaxDelay,
		Multiplier:   m.cfg.Sync.RetryMultiplier,
		Breaker:      breaker,
	}
}

// Progress exposes the shared progress store for the API layer.
func (m *Manager) Progress() *ProgressStore {
	return m.progress
}

// Start launches the periodic sync loops for every enabled source.
// Manual triggers work whether or not Start was called.
func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Sync.ScheduleEnabled {
		logging.Info().Msg("Scheduled sync disabled, manual triggers only")
		return nil
	}

	if m.sourceEnabled(KindCollection) {
		m.wg.Add(1)
		go m.scheduleLoop(ctx, KindCollection, m.cfg.Sync.CollectionInterval)
	}
	if m.sourceEnabled(KindScrobbles) {
		m.wg.Add(1)
		go m.scheduleLoop(ctx, KindScrobbles, m.cfg.Sync.ScrobblesInterval)
	}
	return nil
}

func (m *Manager) scheduleLoop(ctx context.Context, kind Kind, interval time.Duration) {
	defer m.wg.Done()

	if interval <= 0 {
		interval = time.Hour
	}
	logging.Info().Str("kind", kind.String()).Dur("interval", interval).Msg("Scheduled sync started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-ticker.C:
			if err := m.Trigger(kind, 0); err != nil {
				logging.Debug().Err(err).Str("kind", kind.String()).Msg("Scheduled sync skipped")
			}
		}
	}
}

// Trigger starts a sync run for the kind in the background. limit caps
// the number of records processed; zero means no cap. Returns
// ErrSyncRunning when the same kind is already active and
// ErrSourceDisabled when the provider is not configured.
func (m *Manager) Trigger(kind Kind, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return fmt.Errorf("%w: manager stopped", ErrSourceDisabled)
	}
	if !m.sourceEnabled(kind) {
		return fmt.Errorf("%w: %s", ErrSourceDisabled, kind)
	}
	if m.running[kind] {
		metrics.SyncConflicts.WithLabelValues(kind.String()).Inc()
		return fmt.Errorf("%w: %s", ErrSyncRunning, kind)
	}

	// Runs detach from the caller's context so an HTTP trigger does
	// not die with its request. Stop cancels via the stored func.
	ctx, cancel := context.WithCancel(context.Background())
	m.running[kind] = true
	m.cancels[kind] = cancel
	m.progress.Begin(kind)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.runSync(ctx, kind, limit)

		m.mu.Lock()
		m.running[kind] = false
		delete(m.cancels, kind)
		m.mu.Unlock()
	}()

	return nil
}

// IsRunning reports whether a run of the kind is active.
func (m *Manager) IsRunning(kind Kind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[kind]
}

// Stop cancels active runs and waits for them to wind down. Runs
// commit their staged checkpoint on the way out, so stopping loses at
// most the uncommitted tail.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopChan)
	cancels := make([]context.CancelFunc, 0, len(m.cancels))
	for _, cancel := range m.cancels {
		cancels = append(cancels, cancel)
	}
	m.mu.Unlock()

	logging.Info().Msg("Stopping sync manager...")
	for _, cancel := range cancels {
		cancel()
	}
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
}

// Status reports every kind's current run, last persisted run, and
// breaker state.
func (m *Manager) Status(ctx context.Context) []KindStatus {
	statuses := make([]KindStatus, 0, len(Kinds()))
	for _, kind := range Kinds() {
		st := KindStatus{
			Kind:     kind,
			Enabled:  m.sourceEnabled(kind),
			Running:  m.IsRunning(kind),
			Breaker:  m.breakerFor(kind).State(),
			Progress: m.progress.Get(kind),
		}
		if last, err := m.state.Load(ctx, kind); err == nil {
			st.LastRun = last
		} else {
			logging.Warn().Err(err).Str("kind", kind.String()).Msg("Could not load last run state")
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func (m *Manager) sourceEnabled(kind Kind) bool {
	switch kind {
	case KindCollection:
		return m.cfg.Discogs.Enabled && m.discogs != nil
	case KindScrobbles:
		return m.cfg.Lastfm.Enabled && m.lastfm != nil
	default:
		return false
	}
}

func (m *Manager) breakerFor(kind Kind) *resilience.Breaker {
	if kind == KindCollection {
		return m.discogsBreaker
	}
	return m.lastfmBreaker
}

func (m *Manager) checkpointSize() int {
	if m.cfg.Sync.CheckpointSize > 0 {
		return m.cfg.Sync.CheckpointSize
	}
	return 50
}

// runSync executes one run end to end and settles the final status.
func (m *Manager) runSync(ctx context.Context, kind Kind, limit int) {
	start := time.Now()
	logging.Info().Str("kind", kind.String()).Int("limit", limit).Msg("Sync run starting")

	var outcome *runOutcome
	var err error
	switch kind {
	case KindCollection:
		outcome, err = m.runCollectionSync(ctx, limit)
	case KindScrobbles:
		outcome, err = m.runScrobblesSync(ctx, limit)
	default:
		err = fmt.Errorf("unknown sync kind %q", kind)
	}
	duration := time.Since(start)

	if err != nil {
		m.finishWithError(kind, err, duration)
		return
	}
	m.finishCompleted(ctx, kind, outcome, duration)
}

// finishCompleted settles a run that ended in order, fully or cut
// short by a rate limit or record cap. The persisted run state only
// moves the cursor forward on a full walk.
func (m *Manager) finishCompleted(ctx context.Context, kind Kind, outcome *runOutcome, duration time.Duration) {
	m.progress.Complete(kind)
	p := m.progress.Get(kind)

	state := &RunState{
		Kind:        kind,
		CompletedAt: time.Now().UTC(),
		Succeeded:   p.Succeeded,
		Skipped:     p.Skipped,
		Errored:     p.Errored,
		Partial:     outcome.partial,
		Cursor:      outcome.cursor,
	}
	if err := m.state.Save(ctx, state); err != nil {
		logging.Warn().Err(err).Str("kind", kind.String()).Msg("Could not persist run state")
	}

	result := "completed"
	if outcome.partial {
		result = "completed_partial"
	}
	metrics.RecordSyncRun(kind.String(), result, duration)

	logging.Info().
		Str("kind", kind.String()).
		Str("result", result).
		Int("succeeded", p.Succeeded).
		Int("skipped", p.Skipped).
		Int("errored", p.Errored).
		Dur("duration", duration).
		Msg("Sync run completed")

	if m.hub != nil {
		m.hub.BroadcastJSON("sync_completed", state)
	}
}

// finishWithError settles a run that could not continue. Checkpoints
// committed before the failure stay committed.
func (m *Manager) finishWithError(kind Kind, err error, duration time.Duration) {
	m.progress.Error(kind, err.Error())
	metrics.RecordSyncRun(kind.String(), "error", duration)

	logging.Error().
		Err(err).
		Str("kind", kind.String()).
		Dur("duration", duration).
		Msg("Sync run failed")

	if m.hub != nil {
		m.hub.BroadcastJSON("sync_error", map[string]string{
			"kind":  kind.String(),
			"error": err.Error(),
		})
	}
}

func (m *Manager) broadcastProgress(kind Kind) {
	if m.hub == nil {
		return
	}
	m.hub.BroadcastJSON("sync_progress", progressUpdate{
		Kind:     kind.String(),
		Progress: m.progress.Get(kind),
	})
}

// recordSkip counts one walked record that is already known.
func (m *Manager) recordSkip(kind Kind, label string) {
	m.progress.Step(kind, label)
	m.progress.Skip(kind)
	metrics.SyncRecordsProcessed.WithLabelValues(kind.String(), "skipped").Inc()
}

// recordFailure counts one walked record that could not be processed.
// The run continues; the failure stays visible in counters and logs.
func (m *Manager) recordFailure(kind Kind, key, label string, err error) {
	m.progress.Step(kind, label)
	m.progress.Fail(kind)
	metrics.SyncRecordsProcessed.WithLabelValues(kind.String(), "errored").Inc()
	logging.Warn().
		Err(err).
		Str("kind", kind.String()).
		Str("key", key).
		Msg("Record failed, continuing")
}

// creditCheckpoint moves a committed checkpoint's records into the
// succeeded and errored counters. Records rejected by storage count as
// errored, the rest as succeeded; nothing here is ever rolled back.
func (m *Manager) creditCheckpoint(kind Kind, res *database.BatchResult) {
	m.progress.AddSucceeded(kind, res.Inserted)
	metrics.SyncRecordsProcessed.WithLabelValues(kind.String(), "succeeded").Add(float64(res.Inserted))

	if len(res.Failed) > 0 {
		m.progress.AddFailed(kind, len(res.Failed))
		for _, f := range res.Failed {
			metrics.SyncRecordsProcessed.WithLabelValues(kind.String(), "errored").Inc()
			logging.Warn().
				Err(f.Err).
				Str("kind", kind.String()).
				Str("key", f.Key).
				Msg("Record rejected by storage")
		}
	}

	metrics.SyncCheckpoints.WithLabelValues(kind.String()).Inc()
	logging.Debug().
		Str("kind", kind.String()).
		Int("inserted", res.Inserted).
		Int("rejected", len(res.Failed)).
		Msg("Checkpoint committed")
	m.broadcastProgress(kind)
}
