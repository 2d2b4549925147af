// Discolog - Personal Music Library and Listening History Backend
// Copyright 2026 Nils K. (nilskh)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nilskh/discolog

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// startHub runs the hub until the test ends.
func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// fakeClient builds a client without a network connection; broadcast
// tests read straight from its send channel.
func fakeClient(hub *Hub, buffer int) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		send: make(chan Message, buffer),
	}
}

// waitForClientCount polls until the hub reports the wanted count.
func waitForClientCount(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if hub.GetClientCount() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", hub.GetClientCount(), want)
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub.clients == nil {
		t.Error("clients map not initialized")
	}
	if hub.broadcast == nil {
		t.Error("broadcast channel not initialized")
	}
	if hub.Register == nil || hub.Unregister == nil {
		t.Error("lifecycle channels not initialized")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("fresh hub has %d clients", hub.GetClientCount())
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := startHub(t)

	a := fakeClient(hub, 8)
	b := fakeClient(hub, 8)
	hub.Register <- a
	hub.Register <- b
	waitForClientCount(t, hub, 2)

	hub.Unregister <- a
	waitForClientCount(t, hub, 1)

	// The unregistered client's channel is closed.
	select {
	case _, ok := <-a.send:
		if ok {
			t.Error("unregistered client received a message instead of close")
		}
	case <-time.After(time.Second):
		t.Error("unregistered client channel not closed")
	}
}

func TestHubBroadcastDeliversToAllClients(t *testing.T) {
	hub := startHub(t)

	a := fakeClient(hub, 8)
	b := fakeClient(hub, 8)
	hub.Register <- a
	hub.Register <- b
	waitForClientCount(t, hub, 2)

	hub.BroadcastJSON(MessageTypeSyncProgress, map[string]int{"current": 10})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeSyncProgress {
				t.Errorf("message type = %q, want sync_progress", msg.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := startHub(t)

	slow := fakeClient(hub, 1)
	slow.send <- Message{Type: "filler"}
	healthy := fakeClient(hub, 8)
	hub.Register <- slow
	hub.Register <- healthy
	waitForClientCount(t, hub, 2)

	// The slow client's buffer is full; the broadcast must drop it and
	// still reach the healthy one.
	hub.BroadcastJSON(MessageTypeSyncCompleted, nil)
	waitForClientCount(t, hub, 1)

	select {
	case msg := <-healthy.send:
		if msg.Type != MessageTypeSyncCompleted {
			t.Errorf("message type = %q, want sync_completed", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("healthy client did not receive broadcast")
	}
}

func TestHubBroadcastNeverBlocks(t *testing.T) {
	// No hub goroutine drains the queue; overflow is dropped.
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.BroadcastJSON(MessageTypeSyncProgress, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("BroadcastJSON blocked on a full queue")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.Run(ctx) }()

	client := fakeClient(hub, 8)
	hub.Register <- client
	waitForClientCount(t, hub, 1)

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if hub.GetClientCount() != 0 {
		t.Errorf("clients after shutdown = %d, want 0", hub.GetClientCount())
	}
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("client channel delivered a message instead of close")
		}
	default:
		t.Error("client channel not closed after shutdown")
	}
}

func TestMarshalMessage(t *testing.T) {
	msg := Message{Type: MessageTypeSyncProgress, Data: map[string]int{"current": 3}}
	raw, err := MarshalMessage(msg)
	if err != nil {
		t.Fatalf("MarshalMessage failed: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Type != MessageTypeSyncProgress {
		t.Errorf("Type = %q, want sync_progress", decoded.Type)
	}
}
