// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/tailscale/tscert"
	"github.com/wingedpig/agentdeck/internal/api/handlers"
	"github.com/wingedpig/agentdeck/internal/api/middleware"
	"github.com/wingedpig/agentdeck/internal/api/version"
	"github.com/wingedpig/agentdeck/internal/events"
	"github.com/wingedpig/agentdeck/internal/terminal"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Host         string
	Port         int
	TLSCert      string // Path to TLS certificate file
	TLSKey       string // Path to TLS private key file
	TLSTailscale bool   // Serve certificates from the local tailscaled
}

// Dependencies holds all dependencies for API handlers.
type Dependencies struct {
	TerminalManager *terminal.Manager
	EventBus        events.EventBus
}

// NewRouter creates a new API router.
func NewRouter(deps Dependencies) *mux.Router {
	return newRouter(deps, handlers.NewTerminalHandler(deps.TerminalManager))
}

func newRouter(deps Dependencies, terminalHandler *handlers.TerminalHandler) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS)
	r.Use(version.Middleware)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Terminal handlers
	api.HandleFunc("/terminal/ws", terminalHandler.WebSocket).Methods("GET")
	api.HandleFunc("/terminal/sessions", terminalHandler.ListSessions).Methods("GET")
	api.HandleFunc("/terminal/sessions/{id}", terminalHandler.GetSession).Methods("GET")
	api.HandleFunc("/terminal/sessions/{id}", terminalHandler.DeleteSession).Methods("DELETE")
	api.HandleFunc("/terminal/sessions/{id}/resize", terminalHandler.ResizeSession).Methods("POST")

	// Event handlers
	if deps.EventBus != nil {
		eventHandler := handlers.NewEventHandler(deps.EventBus)
		api.HandleFunc("/events", eventHandler.History).Methods("GET")
		api.HandleFunc("/events/ws", eventHandler.WebSocket).Methods("GET")
	}

	return r
}

// Server represents the API server.
type Server struct {
	router          *mux.Router
	cfg             ServerConfig
	terminalHandler *handlers.TerminalHandler

	mu     sync.Mutex
	server *http.Server
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, deps Dependencies) *Server {
	terminalHandler := handlers.NewTerminalHandler(deps.TerminalManager)
	return &Server{
		router:          newRouter(deps, terminalHandler),
		cfg:             cfg,
		terminalHandler: terminalHandler,
	}
}

// Router returns the underlying router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ListenAndServe listens on the configured address and serves until
// Shutdown. It returns http.ErrServerClosed after a graceful shutdown.
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. TLS is enabled when certificate files
// or tailscale certificates are configured.
func (s *Server) Serve(ln net.Listener) error {
	tlsConfig, err := s.tlsConfig()
	if err != nil {
		ln.Close()
		return fmt.Errorf("TLS configuration error: %w", err)
	}

	srv := &http.Server{
		Handler:           s.router,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	if tlsConfig != nil {
		log.Printf("API server listening on https://%s (TLS enabled)", ln.Addr())
		return srv.ServeTLS(ln, "", "")
	}

	log.Printf("API server listening on http://%s", ln.Addr())
	return srv.Serve(ln)
}

// tlsConfig returns nil when TLS is off.
func (s *Server) tlsConfig() (*tls.Config, error) {
	if s.cfg.TLSTailscale {
		if s.cfg.TLSCert != "" || s.cfg.TLSKey != "" {
			return nil, fmt.Errorf("tls_tailscale cannot be combined with tls_cert/tls_key")
		}
		return &tls.Config{GetCertificate: tscert.GetCertificate}, nil
	}

	enabled, err := CheckTLSConfig(s.cfg.TLSCert, s.cfg.TLSKey)
	if err != nil || !enabled {
		return nil, err
	}
	cert, err := tls.LoadX509KeyPair(expandPath(s.cfg.TLSCert), expandPath(s.cfg.TLSKey))
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	// Close terminal sockets first; hijacked connections are not tracked by http.Server
	if s.terminalHandler != nil {
		s.terminalHandler.Shutdown()
	}

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	log.Println("Shutting down API server...")

	// Create a timeout context if none provided
	shutdownCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return srv.Shutdown(shutdownCtx)
}
