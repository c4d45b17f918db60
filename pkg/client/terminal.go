// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// TerminalClient provides access to terminal sessions.
//
// Access this client through [Client.Terminal]:
//
//	sessions, err := client.Terminal.List(ctx)
type TerminalClient struct {
	c *Client
}

// List returns every live session, ordered by id.
func (t *TerminalClient) List(ctx context.Context) ([]Session, error) {
	data, err := t.c.get(ctx, "/api/v1/terminal/sessions")
	if err != nil {
		return nil, err
	}

	// Version 2026-03-01 returns a bare array.
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var sessions []Session
		if err := json.Unmarshal(trimmed, &sessions); err != nil {
			return nil, fmt.Errorf("failed to parse sessions: %w", err)
		}
		return sessions, nil
	}

	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse sessions: %w", err)
	}
	return resp.Sessions, nil
}

// Get returns one session.
func (t *TerminalClient) Get(ctx context.Context, id string) (*Session, error) {
	data, err := t.c.get(ctx, "/api/v1/terminal/sessions/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &session, nil
}

// Close disconnects a session and terminates its process. It returns the
// session as it was before closing.
func (t *TerminalClient) Close(ctx context.Context, id string) (*Session, error) {
	data, err := t.c.delete(ctx, "/api/v1/terminal/sessions/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &session, nil
}

// Resize queues a resize. The daemon coalesces it with other resizes for
// the same session, so it may be applied later or not at all.
func (t *TerminalClient) Resize(ctx context.Context, id string, cols, rows int) error {
	_, err := t.c.postJSON(ctx, "/api/v1/terminal/sessions/"+url.PathEscape(id)+"/resize", Size{Cols: cols, Rows: rows})
	return err
}

// Open connects to the session for tc, creating it if needed, and returns
// the terminal stream. A zero size leaves the size to the daemon.
func (t *TerminalClient) Open(ctx context.Context, tc Context, size Size) (*TerminalConn, error) {
	params := url.Values{}
	params.Set("type", tc.Type)
	params.Set("id", tc.ID)
	for key, value := range map[string]string{
		"display_key": tc.DisplayKey,
		"title":       tc.Title,
		"project":     tc.ProjectRef,
		"cwd":         tc.WorkingDirectory,
		"command":     tc.InitialCommand,
		"prompt":      tc.InitialPrompt,
	} {
		if value != "" {
			params.Set(key, value)
		}
	}
	if size.Cols > 0 {
		params.Set("cols", strconv.Itoa(size.Cols))
	}
	if size.Rows > 0 {
		params.Set("rows", strconv.Itoa(size.Rows))
	}

	conn, err := t.c.dial(ctx, "/api/v1/terminal/ws?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return &TerminalConn{conn: conn, id: tc.SessionID()}, nil
}

// TerminalConn is an open terminal stream. Read and the write methods may
// be used from different goroutines.
type TerminalConn struct {
	conn    *websocket.Conn
	id      string
	writeMu sync.Mutex
}

type terminalMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// SessionID returns the id of the connected session.
func (tc *TerminalConn) SessionID() string {
	return tc.id
}

// Read returns the next chunk of terminal output. It returns an error
// once the daemon closes the stream, e.g. after the process exits.
func (tc *TerminalConn) Read() (string, error) {
	for {
		messageType, data, err := tc.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType == websocket.TextMessage {
			return string(data), nil
		}
	}
}

// Input sends keystrokes to the session.
func (tc *TerminalConn) Input(data string) error {
	return tc.write(terminalMessage{Type: "input", Data: data})
}

// Resize reports a new surface size.
func (tc *TerminalConn) Resize(cols, rows int) error {
	return tc.write(terminalMessage{Type: "resize", Cols: cols, Rows: rows})
}

func (tc *TerminalConn) write(msg terminalMessage) error {
	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()
	return tc.conn.WriteJSON(msg)
}

// Close ends the stream. The daemon tears the session down.
func (tc *TerminalConn) Close() error {
	tc.writeMu.Lock()
	tc.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	tc.writeMu.Unlock()
	return tc.conn.Close()
}

// IsClosed reports whether err marks a normally closed stream.
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
