// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/wingedpig/agentdeck/internal/api/version"
	"github.com/wingedpig/agentdeck/internal/terminal"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	writeTimeout = 10 * time.Second
)

// terminalMessage represents a message from the terminal frontend.
type terminalMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}

// TerminalHandler handles terminal-related API requests.
type TerminalHandler struct {
	mgr   *terminal.Manager
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{} // Active WebSocket connections
}

// NewTerminalHandler creates a new terminal handler.
func NewTerminalHandler(mgr *terminal.Manager) *TerminalHandler {
	return &TerminalHandler{
		mgr:   mgr,
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// trackConn registers a WebSocket connection for shutdown tracking.
func (h *TerminalHandler) trackConn(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

// untrackConn removes a WebSocket connection from shutdown tracking.
func (h *TerminalHandler) untrackConn(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
}

// Shutdown closes all active WebSocket connections to allow graceful server shutdown.
func (h *TerminalHandler) Shutdown() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	if len(conns) > 0 {
		log.Printf("Terminal handler: closing %d active WebSocket connections", len(conns))
	}

	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// ListSessions returns all terminal sessions.
func (h *TerminalHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"sessions": h.mgr.Sessions(),
	}
	WriteJSON(w, http.StatusOK, version.Transform(version.FromContext(r.Context()), version.EndpointSessionsList, data))
}

// GetSession returns one terminal session.
func (h *TerminalHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := terminal.SessionID(mux.Vars(r)["id"])
	info, ok := h.mgr.Session(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, fmt.Sprintf("session %s not found", id))
		return
	}
	WriteJSON(w, http.StatusOK, version.Transform(version.FromContext(r.Context()), version.EndpointSessionsGet, info))
}

// DeleteSession disconnects a terminal session and closes its process.
func (h *TerminalHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := terminal.SessionID(mux.Vars(r)["id"])
	info, ok := h.mgr.Session(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, fmt.Sprintf("session %s not found", id))
		return
	}
	h.mgr.Disconnect(id)
	WriteJSON(w, http.StatusOK, info)
}

// ResizeSession queues a resize for a terminal session. The resize is
// coalesced with others observed for the same session.
func (h *TerminalHandler) ResizeSession(w http.ResponseWriter, r *http.Request) {
	id := terminal.SessionID(mux.Vars(r)["id"])

	var size terminal.Size
	if err := decodeJSON(r, &size); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, err.Error())
		return
	}
	if !size.Valid() {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "cols and rows must be positive")
		return
	}
	info, ok := h.mgr.Session(id)
	if !ok {
		WriteError(w, http.StatusNotFound, ErrNotFound, fmt.Sprintf("session %s not found", id))
		return
	}
	if info.Phase != terminal.PhaseRunning.String() {
		WriteErrorWithDetails(w, http.StatusConflict, ErrTerminalError,
			fmt.Sprintf("session %s is not running", id),
			map[string]interface{}{"phase": info.Phase})
		return
	}

	h.mgr.Resize(id, size.Cols, size.Rows)
	WriteJSON(w, http.StatusAccepted, size)
}

// contextFromQuery builds a terminal context and initial size from the
// WebSocket query string.
func contextFromQuery(q url.Values) (terminal.Context, terminal.Size, error) {
	c := terminal.Context{
		Type:             terminal.ContextType(q.Get("type")),
		ID:               q.Get("id"),
		DisplayKey:       q.Get("display_key"),
		Title:            q.Get("title"),
		ProjectRef:       q.Get("project"),
		WorkingDirectory: q.Get("cwd"),
		InitialCommand:   q.Get("command"),
		InitialPrompt:    q.Get("prompt"),
	}
	if err := c.Validate(); err != nil {
		return c, terminal.Size{}, err
	}

	var size terminal.Size
	for _, dim := range []struct {
		name string
		dst  *int
	}{{"cols", &size.Cols}, {"rows", &size.Rows}} {
		v := q.Get(dim.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return c, terminal.Size{}, fmt.Errorf("%s must be a positive integer", dim.name)
		}
		*dim.dst = n
	}
	return c, size, nil
}

// WebSocket handles the WebSocket connection for terminal I/O. The socket is
// the session's emulation surface; closing it disconnects the session.
func (h *TerminalHandler) WebSocket(w http.ResponseWriter, r *http.Request) {
	c, size, err := contextFromQuery(r.URL.Query())
	if err != nil {
		code := ErrBadRequest
		if errors.Is(err, terminal.ErrInvalidContext) {
			code = ErrInvalidContext
		}
		WriteError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Terminal WebSocket: upgrade failed: %v", err)
		return
	}
	h.trackConn(conn)
	defer func() {
		h.untrackConn(conn)
		conn.Close()
	}()

	// Configure keepalive with ping/pong
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	surface := newSocketSurface(conn)
	stop := make(chan struct{})
	defer close(stop)
	go surface.keepalive(stop)

	handle, err := h.mgr.Connect(r.Context(), c, surface, size)
	if err != nil {
		log.Printf("Terminal WebSocket: connect %s: %v", c.SessionID(), err)
		surface.WriteNotice(fmt.Sprintf("Failed to connect terminal: %v", err))
		return
	}
	if handle.Surface() != terminal.Surface(surface) {
		// The session keeps rendering to the surface that created it.
		surface.WriteNotice(fmt.Sprintf("Terminal %s is already open in another window", handle.ID()))
		surface.close("already open")
		return
	}
	defer handle.Close()

	go func() {
		select {
		case <-handle.Done():
			surface.close("session ended")
		case <-stop:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Terminal WebSocket: read error for %s: %v", handle.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg terminalMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Terminal WebSocket: failed to parse JSON: %v", err)
			continue
		}

		switch msg.Type {
		case "input":
			surface.emitInput([]byte(msg.Data))
		case "resize":
			h.mgr.Resize(handle.ID(), msg.Cols, msg.Rows)
		}
	}
}

// socketSurface adapts a WebSocket connection to terminal.Surface.
type socketSurface struct {
	conn *websocket.Conn

	// gorilla/websocket allows a single concurrent writer
	writeMu sync.Mutex
	partial []byte // incomplete UTF-8 sequence held for the next write

	inputMu sync.Mutex
	inputs  map[int]func([]byte)
	nextID  int
}

func newSocketSurface(conn *websocket.Conn) *socketSurface {
	return &socketSurface{
		conn:   conn,
		inputs: make(map[int]func([]byte)),
	}
}

// WriteOutput sends terminal bytes as a text frame. Invalid UTF-8 is
// dropped; a multi-byte character split across writes is kept whole.
func (s *socketSurface) WriteOutput(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	buf := append(s.partial, data...)
	complete, rest := splitUTF8(buf)
	s.partial = append([]byte(nil), rest...)
	if len(complete) == 0 {
		return nil
	}
	return s.writeLocked(strings.ToValidUTF8(string(complete), ""))
}

// WriteNotice renders a highlighted message on its own line.
func (s *socketSurface) WriteNotice(msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked("\r\n\x1b[33m" + msg + "\x1b[0m\r\n")
}

func (s *socketSurface) writeLocked(text string) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// OnInput registers a keystroke callback.
func (s *socketSurface) OnInput(fn func(data []byte)) func() {
	s.inputMu.Lock()
	id := s.nextID
	s.nextID++
	s.inputs[id] = fn
	s.inputMu.Unlock()

	return func() {
		s.inputMu.Lock()
		delete(s.inputs, id)
		s.inputMu.Unlock()
	}
}

func (s *socketSurface) emitInput(data []byte) {
	s.inputMu.Lock()
	fns := make([]func([]byte), 0, len(s.inputs))
	for _, fn := range s.inputs {
		fns = append(fns, fn)
	}
	s.inputMu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

// keepalive pings the client until stop is closed.
func (s *socketSurface) keepalive(stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				log.Printf("Terminal WebSocket: ping failed: %v", err)
				return
			}
		case <-stop:
			return
		}
	}
}

// close sends a close frame, which ends the client's read loop and ours.
func (s *socketSurface) close(reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeTimeout))
}

// splitUTF8 splits buf before a trailing incomplete UTF-8 sequence.
func splitUTF8(buf []byte) (complete, rest []byte) {
	for i := len(buf) - 1; i >= 0 && i >= len(buf)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(buf[i]) {
			continue
		}
		if !utf8.FullRune(buf[i:]) {
			return buf[:i], buf[i:]
		}
		break
	}
	return buf, nil
}
