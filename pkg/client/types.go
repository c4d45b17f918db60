// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import "time"

// Context types.
const (
	ContextTask          = "task"
	ContextEpic          = "epic"
	ContextProject       = "project"
	ContextSpecification = "specification"
	ContextRelease       = "release"
)

// Context identifies the task or project a terminal session belongs to.
type Context struct {
	// Type is one of the Context* constants.
	Type string `json:"type"`

	// ID identifies the task or project. Together with Type it determines
	// the session id, "<type>-<id>".
	ID string `json:"id"`

	// DisplayKey is a short human label such as "PROJ-42".
	DisplayKey string `json:"display_key,omitempty"`

	// Title is the task or project title.
	Title string `json:"title,omitempty"`

	// ProjectRef names the owning project for task contexts.
	ProjectRef string `json:"project,omitempty"`

	// WorkingDirectory is where the shell starts. Agent sessions are only
	// resumed for contexts with a working directory.
	WorkingDirectory string `json:"cwd,omitempty"`

	// InitialCommand is typed into a newly spawned shell.
	InitialCommand string `json:"command,omitempty"`

	// InitialPrompt is typed into the agent after it starts.
	InitialPrompt string `json:"prompt,omitempty"`
}

// SessionID returns the id of the session for c.
func (c Context) SessionID() string {
	return c.Type + "-" + c.ID
}

// Size is a terminal size in character cells.
type Size struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// Session is a snapshot of a terminal session.
type Session struct {
	// ID is the session id, "<type>-<id>".
	ID string `json:"id"`

	// Context is the context the session was created for.
	Context Context `json:"context"`

	// Phase is one of idle, connecting, stopped, running, exited, cancelled.
	Phase string `json:"phase"`

	// Spawned is true when this daemon started the process, false when it
	// attached to one that was already running.
	Spawned bool `json:"spawned"`

	// Resumed is true when startup resumed a prior agent session.
	Resumed bool `json:"resumed"`

	// ResumeID is the agent session id that was resumed.
	ResumeID string `json:"resume_id,omitempty"`

	// Size is the last size sent to the process.
	Size Size `json:"size"`

	// CreatedAt is when the session was registered.
	CreatedAt time.Time `json:"created_at"`

	// ExitCode is set once the process has exited.
	ExitCode *int `json:"exit_code,omitempty"`

	// Error describes a connection failure.
	Error string `json:"error,omitempty"`

	// Pending lists startup steps not yet delivered.
	Pending []string `json:"pending,omitempty"`
}

// Event is an entry in the session event log.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Version is the event schema version.
	Version string `json:"version"`

	// Type identifies the kind of event (e.g., "terminal.running").
	Type string `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Session is the terminal session the event is about.
	Session string `json:"session,omitempty"`

	// Payload contains event-specific data.
	Payload map[string]interface{} `json:"payload,omitempty"`
}
