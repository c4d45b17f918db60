// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_HappyPath(t *testing.T) {
	s := newSession("task-1", Context{Type: ContextTask, ID: "1"}, &fakeSurface{}, DefaultSize)
	assert.Equal(t, PhaseIdle, s.phase)
	assert.True(t, s.establishing)

	for _, step := range []struct {
		ev   sessionEvent
		want Phase
	}{
		{evConnect, PhaseConnecting},
		{evAttached, PhaseStopped},
		{evResized, PhaseRunning},
		{evExit, PhaseExited},
	} {
		got, ok := s.apply(step.ev)
		require.True(t, ok)
		assert.Equal(t, step.want, got)
	}
}

func TestSession_CancelFromEveryLivePhase(t *testing.T) {
	for _, phase := range []Phase{PhaseIdle, PhaseConnecting, PhaseStopped, PhaseRunning} {
		t.Run(phase.String(), func(t *testing.T) {
			s := newSession("task-1", Context{Type: ContextTask, ID: "1"}, &fakeSurface{}, DefaultSize)
			s.phase = phase
			got, ok := s.apply(evCancel)
			assert.True(t, ok)
			assert.Equal(t, PhaseCancelled, got)
		})
	}
}

func TestSession_TerminalPhasesRejectEverything(t *testing.T) {
	events := []sessionEvent{evConnect, evAttached, evResized, evFailed, evExit, evCancel}
	for _, phase := range []Phase{PhaseExited, PhaseCancelled} {
		for _, ev := range events {
			s := newSession("task-1", Context{Type: ContextTask, ID: "1"}, &fakeSurface{}, DefaultSize)
			s.phase = phase
			got, ok := s.apply(ev)
			assert.False(t, ok)
			assert.Equal(t, phase, got)
		}
	}
}

func TestSession_OutOfOrderEventsRejected(t *testing.T) {
	s := newSession("task-1", Context{Type: ContextTask, ID: "1"}, &fakeSurface{}, DefaultSize)

	_, ok := s.apply(evResized)
	assert.False(t, ok)
	_, ok = s.apply(evAttached)
	assert.False(t, ok)

	s.apply(evConnect)
	_, ok = s.apply(evResized)
	assert.False(t, ok)
	assert.Equal(t, PhaseConnecting, s.phase)
}

func TestSession_Gates(t *testing.T) {
	s := newSession("task-1", Context{Type: ContextTask, ID: "1"}, &fakeSurface{}, DefaultSize)
	s.apply(evConnect)
	s.apply(evAttached)
	assert.True(t, s.acceptsOutput())
	assert.False(t, s.acceptsInput())

	s.apply(evResized)
	assert.True(t, s.acceptsInput())

	s.cancelled = true
	assert.False(t, s.acceptsOutput())
	assert.False(t, s.acceptsInput())
}

func TestSession_DetachReleasesOnce(t *testing.T) {
	s := newSession("task-1", Context{Type: ContextTask, ID: "1"}, &fakeSurface{}, DefaultSize)
	var calls atomic.Int32
	inc := func() { calls.Add(1) }
	s.outputUnsub, s.exitUnsub, s.inputDispose = inc, inc, inc

	for _, fn := range s.detach() {
		fn()
	}
	for _, fn := range s.detach() {
		assert.Nil(t, fn)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestSession_Info(t *testing.T) {
	c := Context{Type: ContextProject, ID: "p1", Title: "Platform"}
	s := newSession("project-p1", c, &fakeSurface{}, Size{Cols: 120, Rows: 40})
	s.resumeID = "abc"
	s.failure = &ConnectionError{SessionID: "project-p1", Stage: StageSpawn, Err: errors.New("no shell")}
	code := 2
	s.exitCode = &code

	info := s.info()
	assert.Equal(t, SessionID("project-p1"), info.ID)
	assert.Equal(t, c, info.Context)
	assert.Equal(t, "idle", info.Phase)
	assert.True(t, info.Resumed)
	assert.Equal(t, "abc", info.ResumeID)
	assert.Equal(t, Size{Cols: 120, Rows: 40}, info.Size)
	assert.Equal(t, "terminal project-p1: spawn failed: no shell", info.Error)
	require.NotNil(t, info.ExitCode)
	assert.Equal(t, 2, *info.ExitCode)

	code = 9
	assert.Equal(t, 2, *info.ExitCode)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "running", PhaseRunning.String())
	assert.Equal(t, "cancelled", PhaseCancelled.String())
	assert.Equal(t, "unknown", Phase(42).String())
	assert.True(t, PhaseExited.Terminal())
	assert.False(t, PhaseStopped.Terminal())
}

func TestTimerSet_Schedule(t *testing.T) {
	ts := newTimerSet()
	fired := make(chan string, 4)

	require.True(t, ts.schedule("a", 10*time.Millisecond, func() { fired <- "a" }))
	require.True(t, ts.schedule("b", 20*time.Millisecond, func() { fired <- "b" }))
	assert.Equal(t, []string{"a", "b"}, ts.pending())

	assert.Equal(t, "a", <-fired)
	assert.Equal(t, "b", <-fired)
	assert.Nil(t, ts.pending())
}

func TestTimerSet_ReplaceKeepsLatest(t *testing.T) {
	ts := newTimerSet()
	var first, second atomic.Int32

	ts.schedule("x", 10*time.Millisecond, func() { first.Add(1) })
	ts.schedule("x", 10*time.Millisecond, func() { second.Add(1) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestTimerSet_CancelAndStopAll(t *testing.T) {
	ts := newTimerSet()
	var fired atomic.Int32
	inc := func() { fired.Add(1) }

	ts.schedule("a", 10*time.Millisecond, inc)
	ts.schedule("b", 10*time.Millisecond, inc)
	assert.True(t, ts.cancel("a"))
	assert.False(t, ts.cancel("a"))

	ts.stopAll()
	assert.False(t, ts.schedule("c", time.Millisecond, inc))
	assert.Nil(t, ts.pending())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestListenerSet(t *testing.T) {
	var l listenerSet[func() int]
	unsubA := l.add(func() int { return 1 })
	l.add(func() int { return 2 })
	assert.Equal(t, 2, l.len())

	var got []int
	for _, fn := range l.snapshot() {
		got = append(got, fn())
	}
	assert.Equal(t, []int{1, 2}, got)

	unsubA()
	unsubA()
	assert.Equal(t, 1, l.len())
	assert.Equal(t, 2, l.snapshot()[0]())
}
