// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// EventClient provides access to the session event log.
//
// Events track terminal lifecycle changes such as sessions connecting,
// running, exiting and resuming agent sessions.
//
// Access this client through [Client.Events]:
//
//	events, err := client.Events.List(ctx, &client.ListOptions{Limit: 50})
type EventClient struct {
	c *Client
}

// ListOptions configures event listing.
type ListOptions struct {
	// Limit is the maximum number of events to return (newest kept).
	Limit int

	// Types filters to event type patterns (e.g., "terminal.*").
	Types []string

	// Session filters to events about this session id.
	Session string

	// Since filters to events at or after this time.
	Since time.Time

	// Until filters to events at or before this time.
	Until time.Time
}

// List returns recent events in chronological order.
func (e *EventClient) List(ctx context.Context, opts *ListOptions) ([]Event, error) {
	path := "/api/v1/events"

	if opts != nil {
		params := url.Values{}
		if opts.Limit > 0 {
			params.Set("limit", fmt.Sprintf("%d", opts.Limit))
		}
		for _, t := range opts.Types {
			params.Add("type", t)
		}
		if opts.Session != "" {
			params.Set("session", opts.Session)
		}
		if !opts.Since.IsZero() {
			params.Set("since", opts.Since.Format(time.RFC3339))
		}
		if !opts.Until.IsZero() {
			params.Set("until", opts.Until.Format(time.RFC3339))
		}
		if len(params) > 0 {
			path += "?" + params.Encode()
		}
	}

	data, err := e.c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}

	return events, nil
}

// Stream subscribes to live events matching pattern ("" for all). With
// replay > 0 the last replay matching events are delivered first.
func (e *EventClient) Stream(ctx context.Context, pattern string, replay int) (*EventStream, error) {
	params := url.Values{}
	if pattern != "" {
		params.Set("pattern", pattern)
	}
	if replay > 0 {
		params.Set("replay", strconv.Itoa(replay))
	}
	path := "/api/v1/events/ws"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	conn, err := e.c.dial(ctx, path)
	if err != nil {
		return nil, err
	}
	return &EventStream{conn: conn}, nil
}

// EventStream is a live event subscription.
type EventStream struct {
	conn *websocket.Conn
}

// Next blocks until the next event arrives or the stream fails.
func (s *EventStream) Next() (Event, error) {
	var event Event
	if err := s.conn.ReadJSON(&event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// Close ends the subscription.
func (s *EventStream) Close() error {
	return s.conn.Close()
}
