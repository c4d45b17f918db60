// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/agentdeck/internal/events"
)

const hostCallTimeout = 10 * time.Second

// ManagerOptions configures a Manager. Every collaborator is optional.
type ManagerOptions struct {
	Registry *Registry
	Store    SessionStore
	Detector SessionDetector
	Tracker  SessionTracker
	Events   events.Publisher
	Startup  StartupConfig
	Resize   ResizeConfig
	Debug    bool
}

// Manager owns the lifecycle of terminal sessions: it connects surfaces to
// Process Host sessions, sends startup input to new sessions, coalesces
// resizes, and tears sessions down.
type Manager struct {
	host      ProcessHost
	registry  *Registry
	sequencer *Sequencer
	resizer   *Coalescer
	tracker   SessionTracker
	events    events.Publisher
}

// NewManager creates a session manager on top of host.
func NewManager(host ProcessHost, opts ManagerOptions) *Manager {
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	m := &Manager{
		host:     host,
		registry: registry,
		tracker:  opts.Tracker,
		events:   opts.Events,
	}
	m.sequencer = NewSequencer(opts.Startup, registry, opts.Store, opts.Detector, opts.Debug)
	m.resizer = NewCoalescer(opts.Resize, m.sendResize)
	return m
}

// Registry returns the session registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Connect attaches surface to the session for c, creating it if needed.
// Connecting to a context whose session is already live returns the existing
// handle without spawning or subscribing again.
//
// A connection failure is written to the surface and reported by the
// handle's Err; the returned error is only set for invalid arguments or a
// ctx that expires while waiting on another connection attempt.
func (m *Manager) Connect(ctx context.Context, c Context, surface Surface, size Size) (*Handle, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if surface == nil {
		return nil, ErrNoSurface
	}
	if !size.Valid() {
		size = DefaultSize
	}
	id := c.SessionID()

	for {
		s, created, err := m.registry.claim(id, func() *session {
			return newSession(id, c, surface, size)
		})
		if err != nil {
			return nil, err
		}
		if created {
			m.establish(ctx, s)
			return &Handle{s: s, m: m}, nil
		}

		select {
		case <-s.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		live := s.acceptsOutput()
		s.mu.Unlock()
		if live {
			return &Handle{s: s, m: m}, nil
		}

		// A previous session for this id is being torn down.
		select {
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// establish runs a connection attempt for a newly registered session.
func (m *Manager) establish(ctx context.Context, s *session) {
	defer close(s.ready)
	id := s.id

	s.mu.Lock()
	s.apply(evConnect)
	size := s.size
	s.mu.Unlock()
	if m.abandoned(s) {
		return
	}

	exists, err := m.host.HasSession(ctx, id)
	if err != nil {
		m.fail(s, StageExists, err)
		return
	}
	if m.abandoned(s) {
		return
	}

	var plan *StartupPlan
	if exists {
		if a, ok := m.host.(Attacher); ok {
			if err := a.Attach(ctx, id); err != nil {
				m.fail(s, StageAttach, err)
				return
			}
		}
	} else {
		p := m.sequencer.Plan(s.ctx, id)
		plan = &p
		opts := SpawnOptions{
			WorkingDirectory: s.ctx.WorkingDirectory,
			Env:              p.Environment,
			Size:             size,
		}
		if err := m.host.Spawn(ctx, id, opts); err != nil {
			m.fail(s, StageSpawn, err)
			return
		}
		s.mu.Lock()
		s.spawned = true
		s.mu.Unlock()
		if p.StaleID != "" {
			m.publish(events.EventAgentSessionStale, s, map[string]interface{}{"agent_session_id": p.StaleID})
		}
	}
	if m.abandoned(s) {
		return
	}

	outputUnsub := m.host.OnOutput(func(sid SessionID, data []byte) {
		if sid == id {
			m.handleOutput(s, data)
		}
	})
	exitUnsub := m.host.OnExit(func(sid SessionID, code int) {
		if sid == id {
			m.handleExit(s, code)
		}
	})
	inputDispose := s.surface.OnInput(func(data []byte) {
		m.handleInput(s, data)
	})

	s.mu.Lock()
	s.outputUnsub, s.exitUnsub, s.inputDispose = outputUnsub, exitUnsub, inputDispose
	_, attached := s.apply(evAttached)
	s.mu.Unlock()
	if !attached {
		m.settle(s)
		return
	}
	m.publish(events.EventTerminalConnected, s, map[string]interface{}{"spawned": plan != nil})
	if m.abandoned(s) {
		return
	}

	if err := m.host.Resize(ctx, id, size.Cols, size.Rows); err != nil {
		m.fail(s, StageResize, err)
		return
	}

	s.mu.Lock()
	_, running := s.apply(evResized)
	parked := s.parkedSize
	s.parkedSize = Size{}
	if running {
		s.establishing = false
		m.resizer.Seed(id, size)
		if plan != nil {
			if plan.Resuming {
				s.resumeID = plan.ResumeID
			}
			m.startup(s, *plan)
		}
	}
	s.mu.Unlock()
	if !running {
		m.settle(s)
		return
	}
	if parked.Valid() {
		m.resizer.Observe(id, parked.Cols, parked.Rows)
	}

	m.publish(events.EventTerminalRunning, s, map[string]interface{}{"cols": size.Cols, "rows": size.Rows})
	if plan != nil && plan.Resuming {
		m.publish(events.EventTerminalResumed, s, map[string]interface{}{"agent_session_id": plan.ResumeID})
	}
}

// startup arms the plan's deliveries. Callers hold s.mu.
func (m *Manager) startup(s *session, plan StartupPlan) {
	deliver := func(data string) bool {
		return m.deliver(s, data)
	}

	var onCommand func(time.Time)
	if plan.TrackAgent && m.tracker != nil {
		onCommand = func(sentAt time.Time) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if !s.acceptsInput() || s.trackCancel != nil {
				return
			}
			trackCtx, cancel := context.WithCancel(context.Background())
			s.trackCancel = cancel
			m.tracker.Track(trackCtx, s.ctx.WorkingDirectory, s.ctx.Key(), sentAt)
		}
	}

	m.sequencer.Schedule(plan, s.timers, deliver, onCommand)
}

// abandoned settles s if it was cancelled while the host was busy.
func (m *Manager) abandoned(s *session) bool {
	s.mu.Lock()
	cancelled := s.cancelled
	s.mu.Unlock()
	if cancelled {
		m.settle(s)
	}
	return cancelled
}

// settle ends a connection attempt overtaken by a disconnect or an exit.
func (m *Manager) settle(s *session) {
	s.mu.Lock()
	s.establishing = false
	cancelled, spawned, keepHost := s.cancelled, s.spawned, s.keepHost
	s.mu.Unlock()

	m.release(s)
	if cancelled && spawned && !keepHost {
		// The disconnect may have closed the host before the spawn finished.
		m.closeHost(s.id)
	}
	m.finish(s)
}

// fail records a connection failure and shows it on the surface.
func (m *Manager) fail(s *session, stage string, err error) {
	cerr := &ConnectionError{SessionID: s.id, Stage: stage, Err: err}

	s.mu.Lock()
	if s.cancelled || s.phase.Terminal() {
		s.mu.Unlock()
		m.settle(s)
		return
	}
	s.failure = cerr
	s.apply(evFailed)
	s.establishing = false
	s.timers.stopAll()
	spawned := s.spawned
	s.mu.Unlock()

	m.notice(s, fmt.Sprintf("Failed to connect terminal: %v", err))

	log.Printf("terminal: %v", cerr)
	m.release(s)
	if spawned {
		m.closeHost(s.id)
	}
	m.finish(s)
	m.publish(events.EventTerminalFailed, s, map[string]interface{}{"stage": stage, "error": err.Error()})
}

// Disconnect tears down the session for id. It is safe to call at any time,
// more than once, and while a Connect for id is still in progress.
func (m *Manager) Disconnect(id SessionID) {
	if s := m.registry.lookup(id); s != nil {
		m.cancel(s)
	}
}

func (m *Manager) cancel(s *session) {
	m.teardown(s, false)
}

// teardown cancels s. With keepHost the host session is detached instead of
// closed, so a later daemon can attach to it again.
func (m *Manager) teardown(s *session, keepHost bool) {
	s.mu.Lock()
	if s.cancelled || s.phase.Terminal() {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.keepHost = keepHost
	s.apply(evCancel)
	s.timers.stopAll()
	m.resizer.Cancel(s.id)
	if s.trackCancel != nil {
		s.trackCancel()
		s.trackCancel = nil
	}
	establishing := s.establishing
	s.mu.Unlock()

	// Wait out an output write that passed its check before the cancel.
	s.outMu.Lock()
	s.outMu.Unlock()

	m.release(s)
	if !keepHost {
		m.closeHost(s.id)
	}
	if !establishing {
		m.finish(s)
	}
	m.publish(events.EventTerminalClosed, s, map[string]interface{}{"detached": keepHost})
}

// Resize feeds a surface resize into the coalescer.
func (m *Manager) Resize(id SessionID, cols, rows int) {
	if !m.registry.Has(id) {
		return
	}
	m.resizer.Observe(id, cols, rows)
}

// Sessions returns snapshots of every live session.
func (m *Manager) Sessions() []SessionInfo {
	return m.registry.List()
}

// Session returns a snapshot of the session for id.
func (m *Manager) Session(id SessionID) (SessionInfo, bool) {
	return m.registry.Lookup(id)
}

// Shutdown disconnects every session and waits until all are torn down or
// ctx expires. Sessions on a host that supports Attach are detached and left
// running; any other host's sessions are closed.
func (m *Manager) Shutdown(ctx context.Context) error {
	_, detach := m.host.(Attacher)
	var g errgroup.Group
	for _, s := range m.registry.all() {
		g.Go(func() error {
			m.teardown(s, detach)
			select {
			case <-s.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	err := g.Wait()
	m.resizer.Stop()
	return err
}

func (m *Manager) handleOutput(s *session, data []byte) {
	defer m.recoverCallback(s.id, "output")

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if !s.outputOpen() {
		return
	}
	if err := s.surface.WriteOutput(data); err != nil {
		log.Printf("Warning: terminal: output to %s failed: %v", s.id, err)
	}
}

func (m *Manager) handleExit(s *session, code int) {
	defer m.recoverCallback(s.id, "exit")

	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	if _, ok := s.apply(evExit); !ok {
		s.mu.Unlock()
		return
	}
	s.exitCode = &code
	s.timers.stopAll()
	m.resizer.Cancel(s.id)
	if s.trackCancel != nil {
		s.trackCancel()
		s.trackCancel = nil
	}
	establishing := s.establishing
	s.mu.Unlock()

	m.notice(s, fmt.Sprintf("Process exited with code %d", code))

	m.release(s)
	if !establishing {
		m.finish(s)
	}
	m.publish(events.EventTerminalExited, s, map[string]interface{}{"code": code})
}

func (m *Manager) handleInput(s *session, data []byte) {
	defer m.recoverCallback(s.id, "input")

	clean := SanitizeInput(data)
	if len(clean) == 0 {
		return
	}
	s.inMu.Lock()
	defer s.inMu.Unlock()
	if !s.inputOpen() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hostCallTimeout)
	defer cancel()
	if err := m.host.Write(ctx, s.id, clean); err != nil {
		log.Printf("Warning: terminal: write to %s failed: %v", s.id, err)
	}
}

// notice writes msg to the surface after any output already in flight.
func (m *Manager) notice(s *session, msg string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	if err := s.surface.WriteNotice(msg); err != nil {
		log.Printf("Warning: terminal: notice to %s failed: %v", s.id, err)
	}
}

// deliver writes startup input. Returns false if nothing was written.
func (m *Manager) deliver(s *session, data string) bool {
	defer m.recoverCallback(s.id, "startup")

	s.inMu.Lock()
	defer s.inMu.Unlock()
	if !s.inputOpen() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), hostCallTimeout)
	defer cancel()
	if err := m.host.Write(ctx, s.id, []byte(data)); err != nil {
		log.Printf("Warning: terminal: startup input to %s failed: %v", s.id, err)
		return false
	}
	return true
}

// sendResize is the coalescer's path to the host.
func (m *Manager) sendResize(id SessionID, size Size) error {
	s := m.registry.lookup(id)
	if s == nil {
		return errNotRunning
	}

	s.inMu.Lock()
	defer s.inMu.Unlock()

	s.mu.Lock()
	if s.establishing && !s.cancelled && !s.phase.Terminal() {
		// establish hands this size back to the coalescer once running.
		s.parkedSize = size
		s.mu.Unlock()
		return errNotRunning
	}
	open := s.acceptsInput()
	s.mu.Unlock()
	if !open {
		return errNotRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), hostCallTimeout)
	defer cancel()
	if err := m.host.Resize(ctx, id, size.Cols, size.Rows); err != nil {
		return err
	}
	s.mu.Lock()
	s.size = size
	s.mu.Unlock()
	return nil
}

// release calls each listener handle of s at most once.
func (m *Manager) release(s *session) {
	s.mu.Lock()
	fns := s.detach()
	s.mu.Unlock()

	for _, fn := range fns {
		if fn == nil {
			continue
		}
		func() {
			defer m.recoverCallback(s.id, "release")
			fn()
		}()
	}
}

// finish unregisters s once it is fully torn down.
func (m *Manager) finish(s *session) {
	s.finishOnce.Do(func() {
		m.resizer.Forget(s.id)
		m.registry.remove(s)
		close(s.done)
	})
}

func (m *Manager) closeHost(id SessionID) {
	ctx, cancel := context.WithTimeout(context.Background(), hostCallTimeout)
	defer cancel()
	if err := m.host.Close(ctx, id); err != nil {
		log.Printf("Warning: terminal: close %s failed: %v", id, err)
	}
}

func (m *Manager) publish(eventType string, s *session, payload map[string]interface{}) {
	if m.events == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["context_type"] = string(s.ctx.Type)
	payload["context_id"] = s.ctx.ID

	err := m.events.Publish(context.Background(), events.Event{
		Type:    eventType,
		Session: string(s.id),
		Payload: payload,
	})
	if err != nil && !errors.Is(err, events.ErrBusClosed) {
		log.Printf("Warning: terminal: publish %s failed: %v", eventType, err)
	}
}

func (m *Manager) recoverCallback(id SessionID, what string) {
	if r := recover(); r != nil {
		log.Printf("terminal: %s callback for %s panicked: %v", what, id, r)
	}
}
