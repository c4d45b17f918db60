// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wingedpig/agentdeck/internal/config"
	"github.com/wingedpig/agentdeck/internal/terminal"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentdeck.hjson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestNew_Overrides(t *testing.T) {
	path := writeConfig(t, `{
		state_dir: "{{.ConfigDir}}/state"
		terminal: { backend: "pty" }
	}`)

	app, err := New(Options{
		ConfigPath: path,
		Host:       "0.0.0.0",
		Port:       9100,
		Backend:    "tmux",
		Debug:      true,
	})
	require.NoError(t, err)
	defer app.eventBus.Close()

	cfg := app.Config()
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "tmux", cfg.Terminal.Backend)
	assert.True(t, cfg.Logging.Debug())
	assert.Equal(t, filepath.Join(filepath.Dir(path), "state"), cfg.StateDir)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Options{ConfigPath: filepath.Join(t.TempDir(), "missing.hjson")})
	assert.ErrorContains(t, err, "failed to load config")

	_, err = New(Options{ConfigPath: writeConfig(t, `{ terminal: { backend: "screen" } }`)})
	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "terminal.backend")

	_, err = New(Options{Backend: "screen"})
	assert.ErrorContains(t, err, "terminal.backend")
}

func TestCleanupStalePipes(t *testing.T) {
	dir := t.TempDir()
	stale := []string{"agentdeck-pipe-agentdeck-task-1.fifo", "agentdeck-pipe-x.fifo"}
	keep := []string{"agentdeck-pipe-.fifo", "other.fifo", "agentdeck-pipe-x.txt"}
	for _, name := range append(append([]string{}, stale...), keep...) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0600))
	}
	require.NoError(t, syscall.Mkfifo(filepath.Join(dir, "agentdeck-pipe-live.fifo"), 0600))

	assert.Equal(t, 3, cleanupStalePipes(dir))
	for _, name := range keep {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	for _, name := range stale {
		assert.NoFileExists(t, filepath.Join(dir, name))
	}

	assert.Equal(t, 0, cleanupStalePipes(filepath.Join(dir, "missing")))
}

func TestAPIBaseURL(t *testing.T) {
	tests := []struct {
		cfg      config.ServerConfig
		expected string
	}{
		{config.ServerConfig{Host: "127.0.0.1", Port: 7777}, "http://127.0.0.1:7777"},
		{config.ServerConfig{Host: "0.0.0.0", Port: 80}, "http://127.0.0.1:80"},
		{config.ServerConfig{Host: "::", Port: 80}, "http://127.0.0.1:80"},
		{config.ServerConfig{Host: "deck.example.ts.net", Port: 443, TLSTailscale: true}, "https://deck.example.ts.net:443"},
		{config.ServerConfig{Host: "::1", Port: 8443, TLSCert: "c", TLSKey: "k"}, "https://[::1]:8443"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, apiBaseURL(tt.cfg))
	}
}

func TestNewHost(t *testing.T) {
	_, ok := newHost(config.TerminalConfig{Backend: "pty"}).(*terminal.PTYHost)
	assert.True(t, ok)

	host := newHost(config.TerminalConfig{Backend: "tmux", HistoryLimit: 1000})
	_, ok = host.(*terminal.TmuxHost)
	assert.True(t, ok)
	_, ok = host.(terminal.Attacher)
	assert.True(t, ok)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	path := writeConfig(t, fmt.Sprintf(`{
		server: { host: "127.0.0.1", port: %d }
		state_dir: "{{.ConfigDir}}/state"
		resume: { projects_dir: "{{.ConfigDir}}/projects" }
	}`, port))

	app, err := New(Options{ConfigPath: path})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/terminal/sessions", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ReturnsServerError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	path := writeConfig(t, fmt.Sprintf(`{
		server: { host: "127.0.0.1", port: %d }
		state_dir: "{{.ConfigDir}}/state"
	}`, port))
	app, err := New(Options{ConfigPath: path})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(context.Background()) }()

	select {
	case err := <-errCh:
		assert.ErrorContains(t, err, "listen")
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after listen failure")
	}
}

func TestShutdown_ClosesRegistry(t *testing.T) {
	path := writeConfig(t, `{
		state_dir: "{{.ConfigDir}}/state"
		resume: { projects_dir: "{{.ConfigDir}}/projects" }
	}`)
	app, err := New(Options{ConfigPath: path})
	require.NoError(t, err)
	require.NoError(t, app.Initialize(context.Background()))

	require.NotNil(t, app.registry)
	assert.Same(t, app.registry, app.terminalManager.Registry())

	require.NoError(t, app.Shutdown(context.Background()))

	_, err = app.terminalManager.Connect(context.Background(),
		terminal.Context{Type: terminal.ContextTask, ID: "1"}, nopSurface{}, terminal.DefaultSize)
	assert.ErrorIs(t, err, terminal.ErrRegistryClosed)
}

type nopSurface struct{}

func (nopSurface) WriteOutput([]byte) error              { return nil }
func (nopSurface) WriteNotice(string) error              { return nil }
func (nopSurface) OnInput(func([]byte)) (dispose func()) { return func() {} }
