// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"context"
	"sync"
	"time"
)

// Phase is the lifecycle phase of a session.
type Phase int

const (
	PhaseIdle       Phase = iota
	PhaseConnecting       // awaiting the host
	PhaseStopped          // listeners attached, initial resize pending
	PhaseRunning          // input accepted
	PhaseExited           // process exited or connection failed
	PhaseCancelled        // disconnected
)

var phaseNames = [...]string{"idle", "connecting", "stopped", "running", "exited", "cancelled"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseExited || p == PhaseCancelled
}

type sessionEvent int

const (
	evConnect  sessionEvent = iota // connection attempt begins
	evAttached                     // host confirmed, listeners subscribed
	evResized                      // initial resize succeeded
	evFailed                       // connection failure
	evExit                         // process exited
	evCancel                       // disconnect
)

var transitions = map[Phase]map[sessionEvent]Phase{
	PhaseIdle: {
		evConnect: PhaseConnecting,
		evCancel:  PhaseCancelled,
	},
	PhaseConnecting: {
		evAttached: PhaseStopped,
		evFailed:   PhaseExited,
		evExit:     PhaseExited,
		evCancel:   PhaseCancelled,
	},
	PhaseStopped: {
		evResized: PhaseRunning,
		evFailed:  PhaseExited,
		evExit:    PhaseExited,
		evCancel:  PhaseCancelled,
	},
	PhaseRunning: {
		evExit:   PhaseExited,
		evCancel: PhaseCancelled,
	},
}

// session is the manager's state for one SessionID. Every field below mu is
// guarded by it.
type session struct {
	id         SessionID
	ctx        Context
	createdAt  time.Time
	ready      chan struct{} // closed when the connection attempt settles
	done       chan struct{} // closed when the session has been torn down
	finishOnce sync.Once

	// Lock order: outMu or inMu, then mu. Host and surface I/O never runs
	// under mu.
	outMu sync.Mutex // orders surface output
	inMu  sync.Mutex // orders host writes and resizes

	mu           sync.Mutex
	phase        Phase
	cancelled    bool
	keepHost     bool // cancelled by shutdown; the host session is left running
	establishing bool
	spawned      bool
	resumeID     string
	size         Size
	parkedSize   Size // resize observed before the session was running
	surface      Surface
	inputDispose func()
	outputUnsub  func()
	exitUnsub    func()
	timers       *timerSet
	trackCancel  context.CancelFunc
	failure      error
	exitCode     *int
}

func newSession(id SessionID, c Context, surface Surface, size Size) *session {
	return &session{
		id:           id,
		ctx:          c,
		createdAt:    time.Now(),
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
		phase:        PhaseIdle,
		establishing: true,
		size:         size,
		surface:      surface,
		timers:       newTimerSet(),
	}
}

// apply performs the transition for ev. Events not permitted in the current
// phase are ignored and reported as rejected. Callers hold s.mu.
func (s *session) apply(ev sessionEvent) (Phase, bool) {
	next, ok := transitions[s.phase][ev]
	if !ok {
		return s.phase, false
	}
	s.phase = next
	return next, true
}

// acceptsOutput reports whether host output may reach the surface.
func (s *session) acceptsOutput() bool {
	return !s.cancelled && !s.phase.Terminal()
}

// acceptsInput reports whether writes to the host are allowed.
func (s *session) acceptsInput() bool {
	return !s.cancelled && s.phase == PhaseRunning
}

func (s *session) outputOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptsOutput()
}

func (s *session) inputOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acceptsInput()
}

// detach takes the listener handles out of the session so each is released
// exactly once. Callers hold s.mu.
func (s *session) detach() []func() {
	fns := []func(){s.outputUnsub, s.exitUnsub, s.inputDispose}
	s.outputUnsub, s.exitUnsub, s.inputDispose = nil, nil, nil
	return fns
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		ID:        s.id,
		Context:   s.ctx,
		Phase:     s.phase.String(),
		Spawned:   s.spawned,
		Resumed:   s.resumeID != "",
		ResumeID:  s.resumeID,
		Size:      s.size,
		CreatedAt: s.createdAt,
		Pending:   s.timers.pending(),
	}
	if s.exitCode != nil {
		code := *s.exitCode
		info.ExitCode = &code
	}
	if s.failure != nil {
		info.Error = s.failure.Error()
	}
	return info
}

// Handle is the caller's view of a session.
type Handle struct {
	s *session
	m *Manager
}

// ID returns the session id.
func (h *Handle) ID() SessionID { return h.s.id }

// Context returns the context the session was created for.
func (h *Handle) Context() Context { return h.s.ctx }

// Phase returns the current phase.
func (h *Handle) Phase() Phase {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.phase
}

// Err returns the connection failure, if the connection attempt failed.
func (h *Handle) Err() error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.failure
}

// Surface returns the surface the session renders to.
func (h *Handle) Surface() Surface {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.surface
}

// Info returns a snapshot of the session.
func (h *Handle) Info() SessionInfo { return h.s.info() }

// Done is closed once the session has been torn down.
func (h *Handle) Done() <-chan struct{} { return h.s.done }

// Close disconnects the session.
func (h *Handle) Close() { h.m.cancel(h.s) }
