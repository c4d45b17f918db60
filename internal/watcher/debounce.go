// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"sync"
	"time"
)

const defaultDebounceDuration = 100 * time.Millisecond

// Debouncer provides debounced function execution, one pending call per key.
type Debouncer struct {
	mu       sync.Mutex
	duration time.Duration
	pending  map[string]*pendingCall
}

type pendingCall struct {
	timer *time.Timer
}

// NewDebouncer creates a new debouncer with the given duration.
func NewDebouncer(duration time.Duration) *Debouncer {
	if duration <= 0 {
		duration = defaultDebounceDuration
	}
	return &Debouncer{
		duration: duration,
		pending:  make(map[string]*pendingCall),
	}
}

// Debounce schedules fn to run after the debounce duration. A call for a key
// that already has a pending function replaces it and restarts the window.
// Returns true if a pending call was replaced.
func (d *Debouncer) Debounce(key string, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	prev, replaced := d.pending[key]
	if replaced {
		prev.timer.Stop()
	}

	call := &pendingCall{}
	call.timer = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		// A newer call for the same key owns the slot now; only clear our own.
		if d.pending[key] != call {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()
		fn()
	})
	d.pending[key] = call
	return replaced
}

// Pending reports whether a call is scheduled for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Cancel cancels a pending debounced function for the given key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if call, exists := d.pending[key]; exists {
		call.timer.Stop()
		delete(d.pending, key)
	}
}

// Stop cancels all pending debounced functions.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, call := range d.pending {
		call.timer.Stop()
		delete(d.pending, key)
	}
}

// SetDuration changes the debounce duration for future debounces.
// Existing timers are not affected.
func (d *Debouncer) SetDuration(duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if duration <= 0 {
		duration = defaultDebounceDuration
	}
	d.duration = duration
}
