// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// echoTerminal accepts a terminal socket, writes a banner, echoes input and
// acknowledges resizes.
func echoTerminal(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("type") == "bogus" {
			apiErrorHandler("INVALID_CONTEXT", `invalid terminal context: unknown type "bogus"`, http.StatusBadRequest)(w, r)
			return
		}

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		banner := fmt.Sprintf("%s-%s %sx%s cwd=%s", q.Get("type"), q.Get("id"), q.Get("cols"), q.Get("rows"), q.Get("cwd"))
		conn.WriteMessage(websocket.TextMessage, []byte(banner))

		for {
			var msg terminalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case "input":
				conn.WriteMessage(websocket.TextMessage, []byte(msg.Data))
			case "resize":
				conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("resized %dx%d", msg.Cols, msg.Rows)))
			}
		}
	}
}

func readWithin(t *testing.T, tc *TerminalConn) string {
	t.Helper()
	tc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	out, err := tc.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	return out
}

func TestTerminalClient_Open(t *testing.T) {
	server := mockServer(t, echoTerminal(t))
	defer server.Close()

	c := New(server.URL)
	tc, err := c.Terminal.Open(context.Background(),
		Context{Type: ContextTask, ID: "42", WorkingDirectory: "/src/app"},
		Size{Cols: 100, Rows: 30})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer tc.Close()

	if tc.SessionID() != "task-42" {
		t.Errorf("SessionID() = %q, want task-42", tc.SessionID())
	}
	if got := readWithin(t, tc); got != "task-42 100x30 cwd=/src/app" {
		t.Errorf("banner = %q", got)
	}

	if err := tc.Input("ls\r"); err != nil {
		t.Fatalf("Input() error = %v", err)
	}
	if got := readWithin(t, tc); got != "ls\r" {
		t.Errorf("echo = %q, want %q", got, "ls\r")
	}

	if err := tc.Resize(120, 40); err != nil {
		t.Fatalf("Resize() error = %v", err)
	}
	if got := readWithin(t, tc); got != "resized 120x40" {
		t.Errorf("resize ack = %q", got)
	}
}

func TestTerminalClient_OpenRejected(t *testing.T) {
	server := mockServer(t, echoTerminal(t))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Terminal.Open(context.Background(), Context{Type: "bogus", ID: "1"}, Size{})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "INVALID_CONTEXT" {
		t.Errorf("Code = %q, want INVALID_CONTEXT", apiErr.Code)
	}
}

func TestTerminalConn_ReadAfterServerClose(t *testing.T) {
	server := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("\r\nProcess exited with code 0\r\n"))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
		conn.ReadMessage()
	})
	defer server.Close()

	c := New(server.URL)
	tc, err := c.Terminal.Open(context.Background(), Context{Type: ContextProject, ID: "7"}, Size{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer tc.Close()

	readWithin(t, tc)
	tc.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = tc.Read()
	if !IsClosed(err) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestEventClient_Stream(t *testing.T) {
	requests := make(chan *http.Request, 1)
	server := mockServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests <- r

		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(Event{ID: "evt-1", Type: "terminal.running", Session: "task-1"})
		conn.WriteJSON(Event{ID: "evt-2", Type: "terminal.exited", Session: "task-1",
			Payload: map[string]interface{}{"exit_code": 0}})
		conn.ReadMessage()
	})
	defer server.Close()

	c := New(server.URL)
	stream, err := c.Events.Stream(context.Background(), "terminal.*", 5)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	for _, want := range []string{"evt-1", "evt-2"} {
		stream.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		event, err := stream.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if event.ID != want {
			t.Errorf("event ID = %q, want %q", event.ID, want)
		}
	}

	r := <-requests
	if q := r.URL.Query(); q.Get("pattern") != "terminal.*" || q.Get("replay") != "5" {
		t.Errorf("query = %q", r.URL.RawQuery)
	}
	if v := r.Header.Get(VersionHeader); v != LatestVersion {
		t.Errorf("%s = %q, want %q", VersionHeader, v, LatestVersion)
	}
}
