// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"context"
	"strings"
	"sync"
	"time"
)

type hostCall struct {
	op   string
	id   SessionID
	data string
	size Size
}

// fakeHost is an in-memory ProcessHost that records every call.
type fakeHost struct {
	mu        sync.Mutex
	sessions  map[SessionID]bool
	calls     []hostCall
	lastSpawn SpawnOptions

	hasErr    error
	spawnErr  error
	resizeErr error
	writeErr  error

	hasGate   chan struct{} // HasSession blocks until closed
	spawnGate chan struct{} // Spawn blocks until closed

	output listenerSet[func(SessionID, []byte)]
	exit   listenerSet[func(SessionID, int)]

	// every callback ever registered, to simulate events already in flight
	// when a listener is removed
	outputFns []func(SessionID, []byte)
	exitFns   []func(SessionID, int)
}

func newFakeHost() *fakeHost {
	return &fakeHost{sessions: make(map[SessionID]bool)}
}

func (h *fakeHost) record(c hostCall) {
	h.mu.Lock()
	h.calls = append(h.calls, c)
	h.mu.Unlock()
}

func (h *fakeHost) HasSession(ctx context.Context, id SessionID) (bool, error) {
	if h.hasGate != nil {
		<-h.hasGate
	}
	h.record(hostCall{op: "has", id: id})
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[id], h.hasErr
}

func (h *fakeHost) Spawn(ctx context.Context, id SessionID, opts SpawnOptions) error {
	if h.spawnGate != nil {
		<-h.spawnGate
	}
	h.record(hostCall{op: "spawn", id: id})
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.spawnErr != nil {
		return h.spawnErr
	}
	h.sessions[id] = true
	h.lastSpawn = opts
	return nil
}

func (h *fakeHost) Write(ctx context.Context, id SessionID, data []byte) error {
	h.record(hostCall{op: "write", id: id, data: string(data)})
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writeErr
}

func (h *fakeHost) Resize(ctx context.Context, id SessionID, cols, rows int) error {
	h.record(hostCall{op: "resize", id: id, size: Size{Cols: cols, Rows: rows}})
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resizeErr
}

func (h *fakeHost) Close(ctx context.Context, id SessionID) error {
	h.record(hostCall{op: "close", id: id})
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
	return nil
}

func (h *fakeHost) OnOutput(fn func(id SessionID, data []byte)) func() {
	h.mu.Lock()
	h.outputFns = append(h.outputFns, fn)
	h.mu.Unlock()
	return h.output.add(fn)
}

func (h *fakeHost) OnExit(fn func(id SessionID, code int)) func() {
	h.mu.Lock()
	h.exitFns = append(h.exitFns, fn)
	h.mu.Unlock()
	return h.exit.add(fn)
}

func (h *fakeHost) emitOutput(id SessionID, data string) {
	for _, fn := range h.output.snapshot() {
		fn(id, []byte(data))
	}
}

func (h *fakeHost) emitExit(id SessionID, code int) {
	for _, fn := range h.exit.snapshot() {
		fn(id, code)
	}
}

// emitLate calls every callback ever registered, including removed ones.
func (h *fakeHost) emitLate(id SessionID, data string, code int) {
	h.mu.Lock()
	outs := append([]func(SessionID, []byte){}, h.outputFns...)
	exits := append([]func(SessionID, int){}, h.exitFns...)
	h.mu.Unlock()
	for _, fn := range outs {
		fn(id, []byte(data))
	}
	for _, fn := range exits {
		fn(id, code)
	}
}

func (h *fakeHost) snapshot() []hostCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hostCall(nil), h.calls...)
}

func (h *fakeHost) count(op string) int {
	n := 0
	for _, c := range h.snapshot() {
		if c.op == op {
			n++
		}
	}
	return n
}

func (h *fakeHost) writes() []string {
	var result []string
	for _, c := range h.snapshot() {
		if c.op == "write" {
			result = append(result, c.data)
		}
	}
	return result
}

func (h *fakeHost) resizes() []Size {
	var result []Size
	for _, c := range h.snapshot() {
		if c.op == "resize" {
			result = append(result, c.size)
		}
	}
	return result
}

// opsAfter returns the operations recorded after the first n calls.
func (h *fakeHost) opsAfter(n int) []string {
	calls := h.snapshot()
	var ops []string
	for _, c := range calls[n:] {
		ops = append(ops, c.op)
	}
	return ops
}

// fakeSurface records what the manager renders and lets tests type.
type fakeSurface struct {
	mu          sync.Mutex
	output      strings.Builder
	notices     []string
	input       listenerSet[func([]byte)]
	panicOnData bool
}

func (s *fakeSurface) WriteOutput(data []byte) error {
	if s.panicOnData {
		panic("surface exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.output.Write(data)
	return nil
}

func (s *fakeSurface) WriteNotice(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, msg)
	return nil
}

func (s *fakeSurface) OnInput(fn func(data []byte)) func() {
	return s.input.add(fn)
}

func (s *fakeSurface) typeText(data string) {
	for _, fn := range s.input.snapshot() {
		fn([]byte(data))
	}
}

func (s *fakeSurface) rendered() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output.String()
}

func (s *fakeSurface) noticeList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notices...)
}

// fakeStore is an in-memory SessionStore.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]string // workDir + "|" + contextKey
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]string)}
}

func (s *fakeStore) put(workDir, key, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[workDir+"|"+key] = id
}

func (s *fakeStore) Get(workDir, contextKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.entries[workDir+"|"+contextKey], nil
}

// fakeDetector reports the agent sessions listed in live.
type fakeDetector struct {
	mu   sync.Mutex
	live map[string]bool
}

func (d *fakeDetector) Exists(workDir, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[id]
}

type trackCall struct {
	ctx        context.Context
	workDir    string
	contextKey string
	since      time.Time
}

// fakeTracker records Track calls.
type fakeTracker struct {
	mu    sync.Mutex
	calls []trackCall
}

func (t *fakeTracker) Track(ctx context.Context, workDir, contextKey string, since time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, trackCall{ctx: ctx, workDir: workDir, contextKey: contextKey, since: since})
}

func (t *fakeTracker) list() []trackCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]trackCall(nil), t.calls...)
}

// attachHost is a fakeHost whose sessions outlive the manager.
type attachHost struct {
	*fakeHost
}

func (h attachHost) Attach(ctx context.Context, id SessionID) error {
	h.record(hostCall{op: "attach", id: id})
	return nil
}
