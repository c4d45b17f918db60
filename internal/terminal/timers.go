// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"sort"
	"sync"
	"time"
)

// Startup delivery timers.
const (
	timerCommand       = "command"
	timerResumeConfirm = "resume-confirm"
	timerPrompt        = "prompt"
	timerPromptSubmit  = "prompt-submit"
)

// timerSet is a small set of named, individually cancellable timers owned by
// one session. Once stopped it refuses new timers.
type timerSet struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func newTimerSet() *timerSet {
	return &timerSet{timers: make(map[string]*time.Timer)}
}

// schedule runs fn after d under name, replacing a pending timer of the same
// name. Returns false if the set has been stopped.
func (t *timerSet) schedule(name string, d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return false
	}
	if prev, ok := t.timers[name]; ok {
		prev.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.timers[name] != timer {
			t.mu.Unlock()
			return
		}
		delete(t.timers, name)
		t.mu.Unlock()
		fn()
	})
	t.timers[name] = timer
	return true
}

// cancel stops the named timer. Returns true if it was pending.
func (t *timerSet) cancel(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	timer, ok := t.timers[name]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, name)
	return true
}

// stopAll stops every pending timer and refuses new ones.
func (t *timerSet) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for name, timer := range t.timers {
		timer.Stop()
		delete(t.timers, name)
	}
}

// pending returns the names of scheduled timers, sorted.
func (t *timerSet) pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.timers) == 0 {
		return nil
	}
	names := make([]string, 0, len(t.timers))
	for name := range t.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
