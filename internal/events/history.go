// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"sync"
	"time"
)

const (
	defaultHistoryMaxEvents = 1000
	defaultHistoryMaxAge    = time.Hour
)

// EventHistoryConfig configures event history.
type EventHistoryConfig struct {
	MaxEvents int
	MaxAge    time.Duration
}

// EventHistory is a fixed-capacity ring of recent events in publish order.
type EventHistory struct {
	mu      sync.RWMutex
	ring    []Event
	start   int // index of the oldest event
	count   int
	maxAge  time.Duration
	matcher *PatternMatcher
	now     func() time.Time
}

// NewEventHistory creates a new event history.
func NewEventHistory(cfg EventHistoryConfig) *EventHistory {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaultHistoryMaxEvents
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaultHistoryMaxAge
	}
	return &EventHistory{
		ring:    make([]Event, cfg.MaxEvents),
		maxAge:  cfg.MaxAge,
		matcher: NewPatternMatcher(),
		now:     time.Now,
	}
}

// Add stores an event, overwriting the oldest one when full.
func (h *EventHistory) Add(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ring == nil {
		return
	}
	size := len(h.ring)
	if h.count < size {
		h.ring[(h.start+h.count)%size] = event
		h.count++
		return
	}
	h.ring[h.start] = event
	h.start = (h.start + 1) % size
}

// Len returns the number of retained events.
func (h *EventHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Query retrieves events matching filter, oldest first. With a limit, the
// newest matching events are kept.
func (h *EventHistory) Query(filter EventFilter) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Event, 0)
	size := len(h.ring)
	for i := 0; i < h.count; i++ {
		event := h.ring[(h.start+i)%size]
		if h.matchesFilter(event, filter) {
			result = append(result, event)
		}
	}

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[len(result)-filter.Limit:]
	}
	return result
}

func (h *EventHistory) matchesFilter(event Event, filter EventFilter) bool {
	if len(filter.Types) > 0 {
		matched := false
		for _, pattern := range filter.Types {
			if h.matcher.Match(event.Type, pattern) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if filter.Session != "" && event.Session != filter.Session {
		return false
	}
	if !filter.Since.IsZero() && event.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && event.Timestamp.After(filter.Until) {
		return false
	}
	return true
}

// Prune drops events older than the configured max age. Events are stored in
// publish order, so pruning stops at the first event that is young enough.
func (h *EventHistory) Prune() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-h.maxAge)
	size := len(h.ring)
	dropped := 0
	for h.count > 0 {
		oldest := h.ring[h.start]
		if !oldest.Timestamp.Before(cutoff) {
			break
		}
		h.ring[h.start] = Event{}
		h.start = (h.start + 1) % size
		h.count--
		dropped++
	}
	return dropped
}

// Close releases retained events.
func (h *EventHistory) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ring = nil
	h.start = 0
	h.count = 0
}
