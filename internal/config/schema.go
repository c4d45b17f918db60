// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading and validation for agentdeck.
package config

import (
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	StateDir string         `json:"state_dir"` // where agent-sessions.json lives
	Terminal TerminalConfig `json:"terminal"`
	Resume   ResumeConfig   `json:"resume"`
	Events   EventsConfig   `json:"events"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port         int    `json:"port"`
	Host         string `json:"host"`
	TLSCert      string `json:"tls_cert"`      // Path to TLS certificate file (enables HTTPS if both cert and key set)
	TLSKey       string `json:"tls_key"`       // Path to TLS private key file
	TLSTailscale bool   `json:"tls_tailscale"` // Fetch certificates from the local tailscaled
}

// TerminalConfig configures the terminal system.
type TerminalConfig struct {
	Backend      string        `json:"backend"` // "pty" or "tmux"
	Shell        string        `json:"shell"`
	HistoryLimit int           `json:"history_limit"` // tmux scrollback lines
	Agent        AgentConfig   `json:"agent"`
	Startup      StartupConfig `json:"startup"`
	Resize       ResizeConfig  `json:"resize"`
}

// AgentConfig names the agent CLI whose sessions can be resumed.
type AgentConfig struct {
	Binary     string `json:"binary"`
	ResumeFlag string `json:"resume_flag"`
}

// StartupConfig holds the delays of the startup input schedule.
type StartupConfig struct {
	CommandDelay           string `json:"command_delay"`
	ResumeConfirmDelay     string `json:"resume_confirm_delay"`
	PromptDelay            string `json:"prompt_delay"`
	PromptDelayWithCommand string `json:"prompt_delay_with_command"`
	SubmitDelay            string `json:"submit_delay"`
}

// ResizeConfig configures resize coalescing.
type ResizeConfig struct {
	Debounce string `json:"debounce"`
	MinDelta int    `json:"min_delta"`
}

// ResumeConfig configures detection of new agent sessions.
type ResumeConfig struct {
	PollInterval string `json:"poll_interval"`
	PollAttempts int    `json:"poll_attempts"`
	ProjectsDir  string `json:"projects_dir"` // defaults to ~/.claude/projects
}

// EventsConfig configures the event system.
type EventsConfig struct {
	History EventHistoryConfig `json:"history"`
}

// EventHistoryConfig configures event history retention.
type EventHistoryConfig struct {
	MaxEvents int    `json:"max_events"`
	MaxAge    string `json:"max_age"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `json:"level"` // "debug", "info", "warn", "error"
}

// Debug reports whether debug logging is enabled.
func (c LoggingConfig) Debug() bool {
	return c.Level == "debug"
}

// IsTLS reports whether the server should serve HTTPS.
func (c ServerConfig) IsTLS() bool {
	return c.TLSTailscale || (c.TLSCert != "" && c.TLSKey != "")
}

// ParseDuration parses a duration string, returning a default if empty.
func ParseDuration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}
