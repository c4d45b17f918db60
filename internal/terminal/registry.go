// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"sort"
	"sync"
)

// One-shot startup delivery flags.
const (
	flagCommand = "command"
	flagPrompt  = "prompt"
)

// Registry is the process-wide table of open sessions, keyed by SessionID.
// It is created when the application starts and closed when it exits, and
// also remembers which one-shot startup inputs a session has been given.
type Registry struct {
	mu       sync.RWMutex
	sessions map[SessionID]*session
	flags    map[SessionID]map[string]bool
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[SessionID]*session),
		flags:    make(map[SessionID]map[string]bool),
	}
}

// claim returns the session registered for id, or registers the one built by
// create. The second result reports whether create was used.
func (r *Registry) claim(id SessionID, create func() *session) (*session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, ErrRegistryClosed
	}
	if s, ok := r.sessions[id]; ok {
		return s, false, nil
	}
	s := create()
	r.sessions[id] = s
	return s, true, nil
}

func (r *Registry) lookup(id SessionID) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// remove unregisters s if it is still the registered session for its id and
// clears its one-shot flags.
func (r *Registry) remove(s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.id] != s {
		return false
	}
	delete(r.sessions, s.id)
	delete(r.flags, s.id)
	return true
}

func (r *Registry) all() []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	return result
}

// Has reports whether a session is registered for id.
func (r *Registry) Has(id SessionID) bool {
	return r.lookup(id) != nil
}

// Lookup returns a snapshot of the session registered for id.
func (r *Registry) Lookup(id SessionID) (SessionInfo, bool) {
	s := r.lookup(id)
	if s == nil {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// List returns snapshots of every registered session, sorted by id.
func (r *Registry) List() []SessionInfo {
	sessions := r.all()
	result := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, s.info())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// TakeOnce sets flag for id and reports whether it was previously unset.
func (r *Registry) TakeOnce(id SessionID, flag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	flags := r.flags[id]
	if flags == nil {
		flags = make(map[string]bool)
		r.flags[id] = flags
	}
	if flags[flag] {
		return false
	}
	flags[flag] = true
	return true
}

// Close refuses further sessions. Sessions still registered are left to the
// manager's shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.flags = make(map[SessionID]map[string]bool)
}
