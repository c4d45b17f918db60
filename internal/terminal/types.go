// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidContext is returned when a Context cannot identify a session.
	ErrInvalidContext = errors.New("invalid terminal context")
	// ErrNoSurface is returned when Connect is called without a surface.
	ErrNoSurface = errors.New("terminal surface is required")
	// ErrSessionNotFound is returned for operations on unknown sessions.
	ErrSessionNotFound = errors.New("terminal session not found")
	// ErrSessionExists is returned by a Process Host asked to spawn twice.
	ErrSessionExists = errors.New("terminal session already exists")
	// ErrRegistryClosed is returned by Connect after the registry was closed.
	ErrRegistryClosed = errors.New("terminal registry is closed")
)

// ContextType is the kind of application entity a session is opened for.
type ContextType string

const (
	ContextTask          ContextType = "task"
	ContextEpic          ContextType = "epic"
	ContextProject       ContextType = "project"
	ContextSpecification ContextType = "specification"
	ContextRelease       ContextType = "release"
)

// Valid reports whether t is a known context type.
func (t ContextType) Valid() bool {
	switch t {
	case ContextTask, ContextEpic, ContextProject, ContextSpecification, ContextRelease:
		return true
	}
	return false
}

// Context identifies why a session exists. It is copied into the session
// when the session is created and never changes afterwards.
type Context struct {
	Type             ContextType `json:"type"`
	ID               string      `json:"id"`
	DisplayKey       string      `json:"display_key,omitempty"`
	Title            string      `json:"title,omitempty"`
	ProjectRef       string      `json:"project,omitempty"`
	WorkingDirectory string      `json:"cwd,omitempty"`
	InitialCommand   string      `json:"command,omitempty"`
	InitialPrompt    string      `json:"prompt,omitempty"`
}

// Validate checks that the context can derive a session id.
func (c Context) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidContext, c.Type)
	}
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidContext)
	}
	return nil
}

// SessionID derives the session id, "<type>-<id>".
func (c Context) SessionID() SessionID {
	return SessionID(string(c.Type) + "-" + c.ID)
}

// Key derives the context key used by the agent session store, "<type>:<id>".
func (c Context) Key() string {
	return string(c.Type) + ":" + c.ID
}

// SessionID is the deterministic identifier of a terminal session.
type SessionID string

func (id SessionID) String() string { return string(id) }

// Size is a terminal size in character cells.
type Size struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// DefaultSize is used when a surface does not report its size.
var DefaultSize = Size{Cols: 80, Rows: 24}

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Cols > 0 && s.Rows > 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Cols, s.Rows)
}

// ResizeRequest is a single observed resize from the surface.
type ResizeRequest struct {
	Size
	ObservedAt time.Time
}

// SpawnOptions configures a new Process Host session.
type SpawnOptions struct {
	WorkingDirectory string
	Env              map[string]string
	Size             Size
}

// ProcessHost runs the out-of-process shell. Output for one session is
// delivered in order and each session reports at most one exit.
type ProcessHost interface {
	// HasSession reports whether a live session exists for id.
	HasSession(ctx context.Context, id SessionID) (bool, error)
	// Spawn starts a new session.
	Spawn(ctx context.Context, id SessionID, opts SpawnOptions) error
	// Write sends bytes to the session's input.
	Write(ctx context.Context, id SessionID, data []byte) error
	// Resize changes the session's terminal size.
	Resize(ctx context.Context, id SessionID, cols, rows int) error
	// Close terminates the session. Closing an unknown session is not an error.
	Close(ctx context.Context, id SessionID) error
	// OnOutput registers an output callback for all sessions.
	OnOutput(fn func(id SessionID, data []byte)) (unsubscribe func())
	// OnExit registers an exit callback for all sessions.
	OnExit(fn func(id SessionID, code int)) (unsubscribe func())
}

// Attacher is implemented by hosts whose sessions outlive the daemon. An
// existing session must be attached before it streams output.
type Attacher interface {
	Attach(ctx context.Context, id SessionID) error
}

// Surface is the terminal-emulation surface a session renders to.
type Surface interface {
	// WriteOutput renders process output.
	WriteOutput(data []byte) error
	// WriteNotice renders a synthetic message, used for connection failures.
	WriteNotice(msg string) error
	// OnInput registers the keystroke callback.
	OnInput(fn func(data []byte)) (dispose func())
}

// SessionStore maps a context key to a previously started agent session.
type SessionStore interface {
	Get(workDir, contextKey string) (string, error)
}

// SessionDetector reports whether an agent session still exists.
type SessionDetector interface {
	Exists(workDir, agentSessionID string) bool
}

// SessionTracker watches for a newly created agent session in the background
// and records it for future resumes. Track must not block.
type SessionTracker interface {
	Track(ctx context.Context, workDir, contextKey string, since time.Time)
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	ID        SessionID `json:"id"`
	Context   Context   `json:"context"`
	Phase     string    `json:"phase"`
	Spawned   bool      `json:"spawned"`
	Resumed   bool      `json:"resumed"`
	ResumeID  string    `json:"resume_id,omitempty"`
	Size      Size      `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Error     string    `json:"error,omitempty"`
	Pending   []string  `json:"pending,omitempty"`
}

// Connection stages reported by ConnectionError.
const (
	StageExists = "exists"
	StageAttach = "attach"
	StageSpawn  = "spawn"
	StageResize = "resize"
)

// ConnectionError describes a failed connection attempt.
type ConnectionError struct {
	SessionID SessionID
	Stage     string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("terminal %s: %s failed: %v", e.SessionID, e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
