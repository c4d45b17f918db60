// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// TmuxExecutor executes tmux commands.
type TmuxExecutor interface {
	// HasSession checks if a session exists.
	HasSession(ctx context.Context, session string) bool
	// ListSessions lists all tmux sessions.
	ListSessions(ctx context.Context) ([]string, error)
	// NewSession creates a detached session running shell.
	NewSession(ctx context.Context, session string, opts TmuxSessionOptions) error
	// KillSession kills a tmux session.
	KillSession(ctx context.Context, session string) error
	// SendKeys sends keys to a pane.
	SendKeys(ctx context.Context, target string, keys string, literal bool) error
	// SendText sends text via paste-buffer (handles special chars).
	SendText(ctx context.Context, target string, text string) error
	// StartPipePane starts pipe-pane for output streaming.
	StartPipePane(ctx context.Context, target, pipePath string) error
	// StopPipePane stops pipe-pane.
	StopPipePane(ctx context.Context, target string) error
	// ResizeWindow resizes a window.
	ResizeWindow(ctx context.Context, target string, cols, rows int) error
	// SetOption sets a tmux option for a session.
	SetOption(ctx context.Context, session, name, value string) error
}

// TmuxSessionOptions configures tmux new-session.
type TmuxSessionOptions struct {
	Workdir string
	Env     map[string]string
	Shell   string
	Cols    int
	Rows    int
}

// RealTmuxExecutor executes real tmux commands.
type RealTmuxExecutor struct{}

// NewRealTmuxExecutor creates a new tmux executor.
func NewRealTmuxExecutor() *RealTmuxExecutor {
	return &RealTmuxExecutor{}
}

// HasSession checks if a session exists.
func (e *RealTmuxExecutor) HasSession(ctx context.Context, session string) bool {
	cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", "="+session)
	return cmd.Run() == nil
}

// ListSessions lists all tmux sessions.
func (e *RealTmuxExecutor) ListSessions(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "tmux", "list-sessions", "-F", "#{session_name}")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		// No server means no sessions
		if strings.Contains(stderr.String(), "no server running") {
			return nil, nil
		}
		return nil, fmt.Errorf("tmux list-sessions failed: %s: %w", stderr.String(), err)
	}
	return parseSessionList(string(output)), nil
}

// NewSession creates a detached session.
func (e *RealTmuxExecutor) NewSession(ctx context.Context, session string, opts TmuxSessionOptions) error {
	cmd := exec.CommandContext(ctx, "tmux", newSessionArgs(session, opts)...)
	// Ensure we're not inside another tmux session
	cmd.Env = filterTMUXEnv(os.Environ())

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux new-session failed: %s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

// KillSession kills a tmux session.
func (e *RealTmuxExecutor) KillSession(ctx context.Context, session string) error {
	cmd := exec.CommandContext(ctx, "tmux", "kill-session", "-t", "="+session)
	return cmd.Run()
}

// SendKeys sends keys to a pane.
func (e *RealTmuxExecutor) SendKeys(ctx context.Context, target string, keys string, literal bool) error {
	args := []string{"send-keys", "-t", target}
	if literal {
		args = append(args, "-l")
	}
	args = append(args, keys)

	cmd := exec.CommandContext(ctx, "tmux", args...)
	return cmd.Run()
}

// SendText sends text via paste-buffer (handles special characters).
func (e *RealTmuxExecutor) SendText(ctx context.Context, target string, text string) error {
	loadCmd := exec.CommandContext(ctx, "tmux", "load-buffer", "-")
	loadCmd.Stdin = strings.NewReader(text)
	if err := loadCmd.Run(); err != nil {
		return err
	}

	pasteCmd := exec.CommandContext(ctx, "tmux", "paste-buffer", "-d", "-t", target)
	return pasteCmd.Run()
}

// StartPipePane starts pipe-pane for output streaming.
func (e *RealTmuxExecutor) StartPipePane(ctx context.Context, target, pipePath string) error {
	pipeCmd := fmt.Sprintf("cat >> %s", strconv.Quote(pipePath))
	cmd := exec.CommandContext(ctx, "tmux", "pipe-pane", "-t", target, "-o", pipeCmd)
	return cmd.Run()
}

// StopPipePane stops pipe-pane.
func (e *RealTmuxExecutor) StopPipePane(ctx context.Context, target string) error {
	cmd := exec.CommandContext(ctx, "tmux", "pipe-pane", "-t", target)
	return cmd.Run()
}

// ResizeWindow resizes a window.
func (e *RealTmuxExecutor) ResizeWindow(ctx context.Context, target string, cols, rows int) error {
	cmd := exec.CommandContext(ctx, "tmux", "resize-window", "-t", target,
		"-x", strconv.Itoa(cols), "-y", strconv.Itoa(rows))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux resize-window %s to %dx%d: %s: %w", target, cols, rows, strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

// SetOption sets a tmux option for a session.
func (e *RealTmuxExecutor) SetOption(ctx context.Context, session, name, value string) error {
	cmd := exec.CommandContext(ctx, "tmux", "set-option", "-t", session, name, value)
	return cmd.Run()
}

// newSessionArgs builds the tmux new-session argument list. Environment
// entries are sorted so the command line is stable.
func newSessionArgs(session string, opts TmuxSessionOptions) []string {
	args := []string{"new-session", "-d", "-s", session}
	if opts.Workdir != "" {
		args = append(args, "-c", opts.Workdir)
	}
	if opts.Cols > 0 && opts.Rows > 0 {
		args = append(args, "-x", strconv.Itoa(opts.Cols), "-y", strconv.Itoa(opts.Rows))
	}
	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	if opts.Shell != "" {
		args = append(args, opts.Shell)
	}
	return args
}

// filterTMUXEnv filters out TMUX environment variable.
func filterTMUXEnv(env []string) []string {
	result := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "TMUX=") {
			result = append(result, e)
		}
	}
	return result
}

// parseSessionList parses tmux list-sessions output, one name per line.
func parseSessionList(output string) []string {
	var sessions []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			sessions = append(sessions, line)
		}
	}
	return sessions
}

// ToTmuxSessionName converts a session id to a valid tmux session name.
// tmux treats dots and colons in targets as window and pane separators.
func ToTmuxSessionName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' || r == ':' {
			return '_'
		}
		return r
	}, name)
}
