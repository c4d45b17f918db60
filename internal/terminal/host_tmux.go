// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	defaultTmuxPrefix       = "agentdeck"
	defaultTmuxPollInterval = 200 * time.Millisecond
)

// TmuxHostConfig configures a TmuxHost.
type TmuxHostConfig struct {
	Prefix       string        // tmux session name prefix
	Shell        string        // empty runs the tmux default shell
	HistoryLimit int           // scrollback lines, 0 keeps the tmux default
	PipeDir      string        // where output FIFOs are created
	PollInterval time.Duration // how often an idle pipe rechecks the session
}

// TmuxHost runs each session in a detached tmux session. Sessions outlive
// the daemon, so a restarted daemon finds them with HasSession and re-attaches
// instead of spawning.
type TmuxHost struct {
	tmux   TmuxExecutor
	cfg    TmuxHostConfig
	mu     sync.Mutex
	pipes  map[SessionID]*pipeReader
	output listenerSet[func(SessionID, []byte)]
	exit   listenerSet[func(SessionID, int)]
}

// pipeReader manages a named pipe fed by tmux pipe-pane.
type pipeReader struct {
	path   string
	file   *os.File
	closed atomic.Bool
	mu     sync.Mutex // protects file field only
	done   chan struct{}
}

// NewTmuxHost creates a tmux-backed Process Host.
func NewTmuxHost(tmux TmuxExecutor, cfg TmuxHostConfig) *TmuxHost {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultTmuxPrefix
	}
	if cfg.PipeDir == "" {
		cfg.PipeDir = os.TempDir()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultTmuxPollInterval
	}
	return &TmuxHost{
		tmux:  tmux,
		cfg:   cfg,
		pipes: make(map[SessionID]*pipeReader),
	}
}

// sessionName maps a session id to its tmux session name.
func (h *TmuxHost) sessionName(id SessionID) string {
	return ToTmuxSessionName(h.cfg.Prefix + "-" + string(id))
}

// HasSession reports whether the tmux session for id exists.
func (h *TmuxHost) HasSession(ctx context.Context, id SessionID) (bool, error) {
	return h.tmux.HasSession(ctx, h.sessionName(id)), nil
}

// Spawn creates the tmux session for id and starts streaming its output.
func (h *TmuxHost) Spawn(ctx context.Context, id SessionID, opts SpawnOptions) error {
	name := h.sessionName(id)
	if h.tmux.HasSession(ctx, name) {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	err := h.tmux.NewSession(ctx, name, TmuxSessionOptions{
		Workdir: opts.WorkingDirectory,
		Env:     opts.Env,
		Shell:   h.cfg.Shell,
		Cols:    opts.Size.Cols,
		Rows:    opts.Size.Rows,
	})
	if err != nil {
		return err
	}

	// Ignore errors - options may not exist on older tmux versions
	if h.cfg.HistoryLimit > 0 {
		h.tmux.SetOption(ctx, name, "history-limit", strconv.Itoa(h.cfg.HistoryLimit))
	}
	h.tmux.SetOption(ctx, name, "status", "off")

	if err := h.Attach(ctx, id); err != nil {
		h.tmux.KillSession(ctx, name)
		return err
	}
	return nil
}

// Attach starts streaming output of an existing tmux session. Attaching an
// already attached session is a no-op.
func (h *TmuxHost) Attach(ctx context.Context, id SessionID) error {
	h.mu.Lock()
	if _, ok := h.pipes[id]; ok {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	name := h.sessionName(id)
	pipePath := filepath.Join(h.cfg.PipeDir, fmt.Sprintf("agentdeck-pipe-%s.fifo", sanitizeForPath(name)))

	// Remove existing pipe
	os.Remove(pipePath)
	h.tmux.StopPipePane(ctx, name)

	if err := syscall.Mkfifo(pipePath, 0600); err != nil {
		return fmt.Errorf("failed to create FIFO: %w", err)
	}

	// Open before pipe-pane so the writer's open does not block tmux. The
	// descriptor stays non-blocking so Close interrupts a pending read.
	fd, err := syscall.Open(pipePath, syscall.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		os.Remove(pipePath)
		return fmt.Errorf("failed to open FIFO: %w", err)
	}
	pipe := &pipeReader{
		path: pipePath,
		file: os.NewFile(uintptr(fd), pipePath),
		done: make(chan struct{}),
	}

	if err := h.tmux.StartPipePane(ctx, name, pipePath); err != nil {
		pipe.Close()
		return fmt.Errorf("failed to start pipe-pane: %w", err)
	}

	h.mu.Lock()
	if _, ok := h.pipes[id]; ok {
		h.mu.Unlock()
		pipe.Close()
		return nil
	}
	h.pipes[id] = pipe
	h.mu.Unlock()

	go h.pump(id, pipe)
	return nil
}

// pump forwards pipe output until the pipe is closed or the tmux session is
// gone. An empty pipe with no writer reads as EOF, so EOF alone does not end
// the session.
func (h *TmuxHost) pump(id SessionID, pipe *pipeReader) {
	defer close(pipe.done)

	buf := make([]byte, ptyReadBufferSize)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			for _, fn := range h.output.snapshot() {
				fn(id, data)
			}
		}
		if pipe.closed.Load() {
			break
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			log.Printf("Warning: terminal: reading pipe for %s: %v", id, err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), hostCallTimeout)
		alive := h.tmux.HasSession(ctx, h.sessionName(id))
		cancel()
		if !alive {
			break
		}
		time.Sleep(h.cfg.PollInterval)
	}

	h.mu.Lock()
	if h.pipes[id] == pipe {
		delete(h.pipes, id)
	}
	h.mu.Unlock()
	pipe.Close()

	// tmux does not report the shell's exit status.
	for _, fn := range h.exit.snapshot() {
		fn(id, 0)
	}
}

// Write sends input to the session. A lone carriage return is sent as the
// Enter key; other input is pasted, falling back to literal keys.
func (h *TmuxHost) Write(ctx context.Context, id SessionID, data []byte) error {
	target := h.sessionName(id)
	text := string(data)

	if text == "\r" {
		return h.tmux.SendKeys(ctx, target, "Enter", false)
	}
	if err := h.tmux.SendText(ctx, target, text); err != nil {
		return h.tmux.SendKeys(ctx, target, text, true)
	}
	return nil
}

// Resize resizes the session's window.
func (h *TmuxHost) Resize(ctx context.Context, id SessionID, cols, rows int) error {
	return h.tmux.ResizeWindow(ctx, h.sessionName(id), cols, rows)
}

// Close kills the tmux session and stops streaming. Closing a session that
// no longer exists is not an error.
func (h *TmuxHost) Close(ctx context.Context, id SessionID) error {
	name := h.sessionName(id)

	h.mu.Lock()
	pipe := h.pipes[id]
	h.mu.Unlock()

	if !h.tmux.HasSession(ctx, name) {
		if pipe != nil {
			pipe.Close()
		}
		return nil
	}

	h.tmux.StopPipePane(ctx, name)
	if err := h.tmux.KillSession(ctx, name); err != nil {
		return fmt.Errorf("tmux kill-session %s: %w", name, err)
	}
	if pipe != nil {
		pipe.Close()
	}
	return nil
}

// OnOutput registers an output callback.
func (h *TmuxHost) OnOutput(fn func(id SessionID, data []byte)) func() {
	return h.output.add(fn)
}

// OnExit registers an exit callback.
func (h *TmuxHost) OnExit(fn func(id SessionID, code int)) func() {
	return h.exit.add(fn)
}

// Sessions returns the ids of tmux sessions owned by this host, including
// ones left over from a previous daemon.
func (h *TmuxHost) Sessions(ctx context.Context) ([]SessionID, error) {
	names, err := h.tmux.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	prefix := ToTmuxSessionName(h.cfg.Prefix) + "-"
	var ids []SessionID
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			ids = append(ids, SessionID(strings.TrimPrefix(name, prefix)))
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Read implements io.Reader for pipeReader.
func (p *pipeReader) Read(buf []byte) (int, error) {
	// Check closed atomically without holding the mutex
	if p.closed.Load() {
		return 0, io.EOF
	}

	// Get file reference under lock, but don't hold lock during read
	p.mu.Lock()
	f := p.file
	p.mu.Unlock()

	if f == nil {
		return 0, io.EOF
	}

	n, err := f.Read(buf)
	// If closed while reading, return EOF
	if p.closed.Load() && err != nil {
		return n, io.EOF
	}
	return n, err
}

// Close implements io.Closer for pipeReader.
func (p *pipeReader) Close() error {
	// Use atomic swap to ensure only one Close succeeds
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.Lock()
	f := p.file
	p.file = nil
	p.mu.Unlock()

	if f != nil {
		f.Close() // This will unblock any blocked Read
	}
	os.Remove(p.path)
	return nil
}

// sanitizeForPath replaces characters that are unsafe for filesystem paths.
func sanitizeForPath(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', ' ', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
