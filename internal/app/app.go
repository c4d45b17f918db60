// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app wires the agentdeck components together and runs the daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/wingedpig/agentdeck/internal/api"
	"github.com/wingedpig/agentdeck/internal/claude"
	"github.com/wingedpig/agentdeck/internal/config"
	"github.com/wingedpig/agentdeck/internal/events"
	"github.com/wingedpig/agentdeck/internal/terminal"
	"github.com/wingedpig/agentdeck/internal/watcher"
)

// App is the main application container.
type App struct {
	mu sync.Mutex

	config          *config.Config
	eventBus        events.EventBus
	host            terminal.ProcessHost
	dirWatcher      *watcher.DirWatcher
	sessionWatcher  *claude.SessionWatcher
	registry        *terminal.Registry
	terminalManager *terminal.Manager
	apiServer       *api.Server

	serverErr error
	done      chan struct{}
	stopOnce  sync.Once
}

// Options holds configuration options for the app.
type Options struct {
	ConfigPath string
	Host       string
	Port       int
	Backend    string // "pty" or "tmux"; overrides config
	Debug      bool
}

// New loads and validates the configuration and creates the event bus.
func New(opts Options) (*App, error) {
	app := &App{
		done: make(chan struct{}),
	}

	loader := config.NewLoader()
	cfg, err := loader.LoadWithDefaults(context.Background(), opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override from command line
	if opts.Host != "" {
		cfg.Server.Host = opts.Host
	}
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Backend != "" {
		cfg.Terminal.Backend = opts.Backend
	}
	if opts.Debug {
		cfg.Logging.Level = "debug"
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}
	app.config = cfg

	app.eventBus = events.NewMemoryEventBus(events.MemoryBusConfig{
		HistoryMaxEvents: cfg.Events.History.MaxEvents,
		HistoryMaxAge:    config.ParseDuration(cfg.Events.History.MaxAge, time.Hour),
	})

	return app, nil
}

// Config returns the effective configuration.
func (app *App) Config() *config.Config {
	return app.config
}

// pipePattern matches output FIFOs left by a killed tmux host.
var pipePattern = regexp.MustCompile(`^agentdeck-pipe-.+\.fifo$`)

// cleanupStalePipes removes leftover terminal pipe files from previous runs.
// Attaching to a surviving tmux session creates a fresh pipe.
func cleanupStalePipes(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}

	var removed int
	for _, entry := range entries {
		if entry.IsDir() || !pipePattern.MatchString(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}

	if removed > 0 {
		log.Printf("Cleaned up %d stale terminal pipe files", removed)
	}
	return removed
}

// newHost creates the Process Host for the configured backend.
func newHost(cfg config.TerminalConfig) terminal.ProcessHost {
	if cfg.Backend == "tmux" {
		pipeDir := os.TempDir()
		cleanupStalePipes(pipeDir)
		return terminal.NewTmuxHost(terminal.NewRealTmuxExecutor(), terminal.TmuxHostConfig{
			Shell:        cfg.Shell,
			HistoryLimit: cfg.HistoryLimit,
			PipeDir:      pipeDir,
		})
	}
	return terminal.NewPTYHost(terminal.PTYHostConfig{Shell: cfg.Shell})
}

// apiBaseURL is the address sessions use to reach this daemon.
func apiBaseURL(cfg config.ServerConfig) string {
	scheme := "http"
	if cfg.IsTLS() {
		scheme = "https"
	}
	host := cfg.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// Initialize sets up all components.
func (app *App) Initialize(ctx context.Context) error {
	cfg := app.config
	debug := cfg.Logging.Debug()

	app.host = newHost(cfg.Terminal)
	log.Printf("Terminal backend: %s", cfg.Terminal.Backend)

	store := claude.NewFileStore(cfg.StateDir)
	detector := claude.NewDetector(cfg.Resume.ProjectsDir)

	dirWatcher, err := watcher.NewDirWatcher()
	if err != nil {
		// Polling alone still finds new agent sessions
		log.Printf("Warning: directory watcher unavailable: %v", err)
	} else {
		app.dirWatcher = dirWatcher
	}
	app.sessionWatcher = claude.NewSessionWatcher(claude.WatcherConfig{
		PollInterval: config.ParseDuration(cfg.Resume.PollInterval, 2*time.Second),
		PollAttempts: cfg.Resume.PollAttempts,
	}, detector, store, app.dirWatcher, app.eventBus)

	startup := cfg.Terminal.Startup
	app.registry = terminal.NewRegistry()
	app.terminalManager = terminal.NewManager(app.host, terminal.ManagerOptions{
		Registry: app.registry,
		Store:    store,
		Detector: detector,
		Tracker:  app.sessionWatcher,
		Events:   app.eventBus,
		Startup: terminal.StartupConfig{
			CommandDelay:           config.ParseDuration(startup.CommandDelay, 0),
			ResumeConfirmDelay:     config.ParseDuration(startup.ResumeConfirmDelay, 0),
			PromptDelay:            config.ParseDuration(startup.PromptDelay, 0),
			PromptDelayWithCommand: config.ParseDuration(startup.PromptDelayWithCommand, 0),
			SubmitDelay:            config.ParseDuration(startup.SubmitDelay, 0),
			AgentBinary:            cfg.Terminal.Agent.Binary,
			ResumeFlag:             cfg.Terminal.Agent.ResumeFlag,
			APIBaseURL:             apiBaseURL(cfg.Server),
		},
		Resize: terminal.ResizeConfig{
			Debounce: config.ParseDuration(cfg.Terminal.Resize.Debounce, 0),
			MinDelta: cfg.Terminal.Resize.MinDelta,
		},
		Debug: debug,
	})

	app.apiServer = api.NewServer(api.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		TLSCert:      cfg.Server.TLSCert,
		TLSKey:       cfg.Server.TLSKey,
		TLSTailscale: cfg.Server.TLSTailscale,
	}, api.Dependencies{
		TerminalManager: app.terminalManager,
		EventBus:        app.eventBus,
	})

	return nil
}

// Start starts the API server in the background.
func (app *App) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting API server on %s:%d", app.config.Server.Host, app.config.Server.Port)
		if err := app.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("API server error: %v", err)
			app.mu.Lock()
			app.serverErr = err
			app.mu.Unlock()
			app.Stop()
		}
	}()
	return nil
}

// Run starts the app and blocks until shutdown. It returns the server's
// error if the server stopped on its own.
func (app *App) Run(ctx context.Context) error {
	if err := app.Initialize(ctx); err != nil {
		return err
	}

	if err := app.Start(ctx); err != nil {
		return err
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-ctx.Done():
		log.Printf("Context cancelled, shutting down...")
	case <-app.done:
		log.Printf("Shutdown requested...")
	}

	if err := app.Shutdown(context.Background()); err != nil {
		return err
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	return app.serverErr
}

// Shutdown gracefully shuts down all components.
func (app *App) Shutdown(ctx context.Context) error {
	log.Println("Shutting down...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop API server first to stop accepting new connections
	if app.apiServer != nil {
		if err := app.apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down API server: %v", err)
		}
	}

	// Refuse new sessions, then disconnect the open ones
	if app.registry != nil {
		app.registry.Close()
	}
	if app.terminalManager != nil {
		if err := app.terminalManager.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down terminal sessions: %v", err)
		}
	}

	// Stop agent session tracking
	if app.sessionWatcher != nil {
		app.sessionWatcher.Close()
	}
	if app.dirWatcher != nil {
		app.dirWatcher.Close()
	}

	// Close event bus
	if app.eventBus != nil {
		app.eventBus.Close()
	}

	log.Println("Shutdown complete")
	return nil
}

// Stop signals the app to shut down. Safe to call multiple times.
func (app *App) Stop() {
	app.stopOnce.Do(func() {
		close(app.done)
	})
}
