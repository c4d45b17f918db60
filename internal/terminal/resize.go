// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/wingedpig/agentdeck/internal/watcher"
)

const (
	defaultResizeDebounce = 100 * time.Millisecond
	defaultResizeMinDelta = 2
)

// errNotRunning is returned by a send func when the session no longer
// accepts resizes. It is not logged.
var errNotRunning = errors.New("session not running")

// ResizeConfig configures the resize coalescer.
type ResizeConfig struct {
	Debounce time.Duration
	MinDelta int
}

// Coalescer merges bursts of resize observations into one host resize per
// settled size. The last observation in a debounce window wins; a settled
// size is dropped when neither axis moved by at least MinDelta from the last
// size actually sent.
type Coalescer struct {
	mu        sync.Mutex
	debouncer *watcher.Debouncer
	minDelta  int
	latest    map[SessionID]ResizeRequest
	sent      map[SessionID]Size
	send      func(id SessionID, size Size) error
	now       func() time.Time
}

// NewCoalescer creates a coalescer that forwards settled sizes to send.
func NewCoalescer(cfg ResizeConfig, send func(id SessionID, size Size) error) *Coalescer {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultResizeDebounce
	}
	if cfg.MinDelta <= 0 {
		cfg.MinDelta = defaultResizeMinDelta
	}
	return &Coalescer{
		debouncer: watcher.NewDebouncer(cfg.Debounce),
		minDelta:  cfg.MinDelta,
		latest:    make(map[SessionID]ResizeRequest),
		sent:      make(map[SessionID]Size),
		send:      send,
		now:       time.Now,
	}
}

// Observe records a resize from the surface and restarts the window.
func (c *Coalescer) Observe(id SessionID, cols, rows int) {
	size := Size{Cols: cols, Rows: rows}
	if !size.Valid() {
		return
	}

	c.mu.Lock()
	c.latest[id] = ResizeRequest{Size: size, ObservedAt: c.now()}
	c.mu.Unlock()

	c.debouncer.Debounce(string(id), func() { c.flush(id) })
}

// Seed records size as already sent, without calling the host.
func (c *Coalescer) Seed(id SessionID, size Size) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[id] = size
}

// LastSent returns the last size forwarded for id.
func (c *Coalescer) LastSent(id SessionID) (Size, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	size, ok := c.sent[id]
	return size, ok
}

// Pending reports whether a resize is waiting for its window to close.
func (c *Coalescer) Pending(id SessionID) bool {
	return c.debouncer.Pending(string(id))
}

// Cancel drops a pending resize for id.
func (c *Coalescer) Cancel(id SessionID) {
	c.debouncer.Cancel(string(id))
	c.mu.Lock()
	delete(c.latest, id)
	c.mu.Unlock()
}

// Forget drops all state for id.
func (c *Coalescer) Forget(id SessionID) {
	c.Cancel(id)
	c.mu.Lock()
	delete(c.sent, id)
	c.mu.Unlock()
}

// Stop drops every pending resize.
func (c *Coalescer) Stop() {
	c.debouncer.Stop()
}

func (c *Coalescer) flush(id SessionID) {
	c.mu.Lock()
	req, ok := c.latest[id]
	delete(c.latest, id)
	last, seeded := c.sent[id]
	c.mu.Unlock()

	if !ok {
		return
	}
	if seeded && !c.significant(last, req.Size) {
		return
	}

	if err := c.send(id, req.Size); err != nil {
		if errors.Is(err, errNotRunning) {
			return
		}
		log.Printf("Warning: terminal: resize %s to %s failed: %v", id, req.Size, err)
		return
	}

	c.mu.Lock()
	c.sent[id] = req.Size
	c.mu.Unlock()
}

func (c *Coalescer) significant(from, to Size) bool {
	return abs(to.Cols-from.Cols) >= c.minDelta || abs(to.Rows-from.Rows) >= c.minDelta
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
