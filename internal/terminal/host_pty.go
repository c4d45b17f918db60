// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	ps "github.com/mitchellh/go-ps"
)

const (
	defaultShell      = "/bin/bash"
	defaultCloseGrace = 2 * time.Second
	ptyReadBufferSize = 32 * 1024
)

// PTYHostConfig configures a PTYHost.
type PTYHostConfig struct {
	Shell      string
	Args       []string      // defaults to a login shell
	CloseGrace time.Duration // between SIGHUP and SIGKILL
}

// PTYHost runs each session as a shell in its own pseudo-terminal. Sessions
// end with the daemon.
type PTYHost struct {
	cfg    PTYHostConfig
	mu     sync.Mutex
	procs  map[SessionID]*ptyProcess
	output listenerSet[func(SessionID, []byte)]
	exit   listenerSet[func(SessionID, int)]
}

type ptyProcess struct {
	cmd  *exec.Cmd
	pty  *os.File
	wmu  sync.Mutex // serializes writes
	done chan struct{}
}

// NewPTYHost creates a pty-backed Process Host.
func NewPTYHost(cfg PTYHostConfig) *PTYHost {
	if cfg.Shell == "" {
		cfg.Shell = os.Getenv("SHELL")
	}
	if cfg.Shell == "" {
		cfg.Shell = defaultShell
	}
	if cfg.Args == nil {
		cfg.Args = []string{"-l"}
	}
	if cfg.CloseGrace <= 0 {
		cfg.CloseGrace = defaultCloseGrace
	}
	return &PTYHost{
		cfg:   cfg,
		procs: make(map[SessionID]*ptyProcess),
	}
}

func (h *PTYHost) lookup(id SessionID) *ptyProcess {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.procs[id]
}

// HasSession reports whether id has a running shell.
func (h *PTYHost) HasSession(ctx context.Context, id SessionID) (bool, error) {
	p := h.lookup(id)
	if p == nil {
		return false, nil
	}
	proc, err := ps.FindProcess(p.cmd.Process.Pid)
	if err != nil {
		return false, fmt.Errorf("find process %d: %w", p.cmd.Process.Pid, err)
	}
	return proc != nil, nil
}

// Spawn starts the shell for id.
func (h *PTYHost) Spawn(ctx context.Context, id SessionID, opts SpawnOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.procs[id]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	cmd := exec.Command(h.cfg.Shell, h.cfg.Args...)
	cmd.Dir = opts.WorkingDirectory
	cmd.Env = mergeEnv(os.Environ(), opts.Env)

	var size *pty.Winsize
	if opts.Size.Valid() {
		size = &pty.Winsize{Cols: uint16(opts.Size.Cols), Rows: uint16(opts.Size.Rows)}
	}
	f, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return fmt.Errorf("start %s: %w", h.cfg.Shell, err)
	}

	p := &ptyProcess{
		cmd:  cmd,
		pty:  f,
		done: make(chan struct{}),
	}
	h.procs[id] = p
	go h.pump(id, p)
	return nil
}

// pump forwards output in order until the pty closes, then reaps the shell
// and reports its exit.
func (h *PTYHost) pump(id SessionID, p *ptyProcess) {
	buf := make([]byte, ptyReadBufferSize)
	for {
		n, err := p.pty.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			for _, fn := range h.output.snapshot() {
				fn(id, data)
			}
		}
		if err != nil {
			break
		}
	}

	code := exitCode(p.cmd.Wait())
	p.pty.Close()

	h.mu.Lock()
	if h.procs[id] == p {
		delete(h.procs, id)
	}
	h.mu.Unlock()
	close(p.done)

	for _, fn := range h.exit.snapshot() {
		fn(id, code)
	}
}

// Write sends data to the shell.
func (h *PTYHost) Write(ctx context.Context, id SessionID, data []byte) error {
	p := h.lookup(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_, err := p.pty.Write(data)
	return err
}

// Resize sets the pty window size.
func (h *PTYHost) Resize(ctx context.Context, id SessionID, cols, rows int) error {
	p := h.lookup(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return pty.Setsize(p.pty, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Close hangs up the shell's process group, escalating to SIGKILL after the
// grace period, and waits for it to be reaped.
func (h *PTYHost) Close(ctx context.Context, id SessionID) error {
	p := h.lookup(id)
	if p == nil {
		return nil
	}

	p.signal(syscall.SIGHUP)
	select {
	case <-p.done:
		return nil
	case <-time.After(h.cfg.CloseGrace):
	case <-ctx.Done():
	}

	p.signal(syscall.SIGKILL)
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnOutput registers an output callback.
func (h *PTYHost) OnOutput(fn func(id SessionID, data []byte)) func() {
	return h.output.add(fn)
}

// OnExit registers an exit callback.
func (h *PTYHost) OnExit(fn func(id SessionID, code int)) func() {
	return h.exit.add(fn)
}

// Sessions returns the ids of running shells.
func (h *PTYHost) Sessions() []SessionID {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]SessionID, 0, len(h.procs))
	for id := range h.procs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *ptyProcess) signal(sig syscall.Signal) {
	pid := p.cmd.Process.Pid
	// The shell leads its own session, so its pid is the process group id.
	if err := syscall.Kill(-pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		log.Printf("Warning: terminal: signal %v to process group %d: %v", sig, pid, err)
	}
}

// mergeEnv overlays extra on base, replacing existing keys.
func mergeEnv(base []string, extra map[string]string) []string {
	result := make([]string, 0, len(base)+len(extra))
	for _, kv := range base {
		key := kv
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key = kv[:i]
				break
			}
		}
		if _, overridden := extra[key]; overridden {
			continue
		}
		result = append(result, kv)
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		result = append(result, k+"="+extra[k])
	}
	return result
}

// exitCode converts a Wait error into a shell-style exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return -1
}
