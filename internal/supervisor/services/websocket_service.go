// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package services

import (
	"context"
)

// HubRunner is the slice of *websocket.Hub the wrapper needs. Run
// already follows the serve-until-canceled pattern.
type HubRunner interface {
	Run(ctx context.Context) error
}

// WebsocketHubService supervises the hub's broadcast loop.
type WebsocketHubService struct {
	hub  HubRunner
	name string
}

// NewWebsocketHubService wraps a hub.
func NewWebsocketHubService(hub HubRunner) *WebsocketHubService {
	return &WebsocketHubService{
		hub:  hub,
		name: "websocket-hub",
	}
}

// Serve implements suture.Service by delegating to the hub, which
// closes every client connection on its way out.
func (w *WebsocketHubService) Serve(ctx context.Context) error {
	return w.hub.Run(ctx)
}

// String names the service in supervisor logs.
func (w *WebsocketHubService) String() string {
	return w.name
}
