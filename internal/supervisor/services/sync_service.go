// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package services

import (
	"context"
	"fmt"
)

// SyncManager is the slice of *sync.Manager the wrapper needs. Start
// spawns the schedule loops and returns; Stop blocks until every
// running job has wound down.
type SyncManager interface {
	Start(ctx context.Context) error
	Stop()
}

// SyncManagerService supervises the sync manager's schedule loops.
type SyncManagerService struct {
	manager SyncManager
	name    string
}

// NewSyncManagerService wraps a sync manager.
func NewSyncManagerService(manager SyncManager) *SyncManagerService {
	return &SyncManagerService{
		manager: manager,
		name:    "sync-manager",
	}
}

// Serve implements suture.Service. A Start failure propagates so the
// supervisor applies its restart policy.
func (s *SyncManagerService) Serve(ctx context.Context) error {
	if err := s.manager.Start(ctx); err != nil {
		return fmt.Errorf("sync manager start failed: %w", err)
	}

	<-ctx.Done()

	s.manager.Stop()
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *SyncManagerService) String() string {
	return s.name
}
