// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the in-process event bus used to report terminal
// session lifecycle changes to the UI.
package events

import (
	"context"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID        string                 `json:"id"`
	Version   string                 `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Session   string                 `json:"session,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types   []string  // Event type patterns to match
	Session string    // Filter by terminal session id
	Since   time.Time // Events at or after this time
	Until   time.Time // Events at or before this time
	Limit   int       // Maximum events to return (newest kept)
}

// Publisher is the publishing half of the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	Publisher

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Terminal session events.
const (
	EventTerminalConnected = "terminal.connected" // Listeners attached, startup pending
	EventTerminalRunning   = "terminal.running"   // Initial resize succeeded, input accepted
	EventTerminalFailed    = "terminal.failed"    // Connection failure
	EventTerminalExited    = "terminal.exited"    // Process exited on its own
	EventTerminalClosed    = "terminal.closed"    // Disconnected by the user or shutdown
	EventTerminalResumed   = "terminal.resumed"   // Startup resumed a prior agent session
)

// Agent session events.
const (
	EventAgentSessionDetected = "agent.session.detected"
	EventAgentSessionStale    = "agent.session.stale"
)
