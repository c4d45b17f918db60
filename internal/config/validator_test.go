// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Validate_ValidConfig(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Terminal: TerminalConfig{
			Backend: "tmux",
			Agent:   AgentConfig{Binary: "claude", ResumeFlag: "--resume"},
			Resize:  ResizeConfig{Debounce: "100ms", MinDelta: 2},
		},
	}

	validator := NewValidator()
	err := validator.Validate(cfg)
	assert.NoError(t, err)

	// The zero config is valid; defaults fill it in.
	assert.NoError(t, validator.Validate(&Config{}))
}

func TestValidator_Validate_ServerConfig(t *testing.T) {
	tests := []struct {
		name        string
		server      ServerConfig
		errContains string
	}{
		{
			name:        "port out of range (negative)",
			server:      ServerConfig{Port: -1},
			errContains: "server.port",
		},
		{
			name:        "port out of range (too high)",
			server:      ServerConfig{Port: 70000},
			errContains: "server.port",
		},
		{
			name:        "cert without key",
			server:      ServerConfig{TLSCert: "/tls/cert.pem"},
			errContains: "server.tls_cert",
		},
		{
			name:        "key without cert",
			server:      ServerConfig{TLSKey: "/tls/key.pem"},
			errContains: "server.tls_cert",
		},
		{
			name:        "tailscale with files",
			server:      ServerConfig{TLSCert: "/c", TLSKey: "/k", TLSTailscale: true},
			errContains: "server.tls_tailscale",
		},
	}

	validator := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(&Config{Server: tt.server})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidator_Validate_TerminalConfig(t *testing.T) {
	tests := []struct {
		name        string
		terminal    TerminalConfig
		errContains string
	}{
		{
			name:        "unknown backend",
			terminal:    TerminalConfig{Backend: "screen"},
			errContains: "terminal.backend",
		},
		{
			name:        "negative history",
			terminal:    TerminalConfig{HistoryLimit: -5},
			errContains: "terminal.history_limit",
		},
		{
			name:        "negative min delta",
			terminal:    TerminalConfig{Resize: ResizeConfig{MinDelta: -1}},
			errContains: "terminal.resize.min_delta",
		},
		{
			name:        "binary with arguments",
			terminal:    TerminalConfig{Agent: AgentConfig{Binary: "claude --verbose"}},
			errContains: "terminal.agent.binary",
		},
		{
			name:        "resume flag without dash",
			terminal:    TerminalConfig{Agent: AgentConfig{ResumeFlag: "resume"}},
			errContains: "terminal.agent.resume_flag",
		},
	}

	validator := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(&Config{Terminal: tt.terminal})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}

	for _, backend := range []string{"pty", "tmux"} {
		assert.NoError(t, validator.Validate(&Config{Terminal: TerminalConfig{Backend: backend}}))
	}
}

func TestValidator_Validate_LoggingConfig(t *testing.T) {
	validator := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, validator.Validate(&Config{Logging: LoggingConfig{Level: level}}), level)
	}

	err := validator.Validate(&Config{Logging: LoggingConfig{Level: "verbose"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidator_Validate_Counts(t *testing.T) {
	validator := NewValidator()

	err := validator.Validate(&Config{Resume: ResumeConfig{PollAttempts: -1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume.poll_attempts")

	err = validator.Validate(&Config{Events: EventsConfig{History: EventHistoryConfig{MaxEvents: -1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.history.max_events")
}

func TestValidator_Validate_DurationFormats(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		errContains string
	}{
		{
			name:        "command delay",
			cfg:         Config{Terminal: TerminalConfig{Startup: StartupConfig{CommandDelay: "soon"}}},
			errContains: "terminal.startup.command_delay",
		},
		{
			name:        "resume confirm delay",
			cfg:         Config{Terminal: TerminalConfig{Startup: StartupConfig{ResumeConfirmDelay: "3"}}},
			errContains: "terminal.startup.resume_confirm_delay",
		},
		{
			name:        "negative submit delay",
			cfg:         Config{Terminal: TerminalConfig{Startup: StartupConfig{SubmitDelay: "-1s"}}},
			errContains: "terminal.startup.submit_delay",
		},
		{
			name:        "resize debounce",
			cfg:         Config{Terminal: TerminalConfig{Resize: ResizeConfig{Debounce: "fast"}}},
			errContains: "terminal.resize.debounce",
		},
		{
			name:        "poll interval",
			cfg:         Config{Resume: ResumeConfig{PollInterval: "2 seconds"}},
			errContains: "resume.poll_interval",
		},
		{
			name:        "history max age",
			cfg:         Config{Events: EventsConfig{History: EventHistoryConfig{MaxAge: "1 hour"}}},
			errContains: "events.history.max_age",
		},
	}

	validator := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate(&tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidator_Validate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: -1},
		Terminal: TerminalConfig{Backend: "screen"},
		Logging:  LoggingConfig{Level: "loud"},
	}

	err := NewValidator().Validate(cfg)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Errors, 3)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "server.port", Message: "must be between 0 and 65535"},
			{Field: "terminal.backend", Message: "invalid backend"},
		},
	}

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "terminal.backend")
}

func TestValidationError_IsEmpty(t *testing.T) {
	err := &ValidationError{}
	assert.True(t, err.IsEmpty())

	err.Add("test", "error")
	assert.False(t, err.IsEmpty())
}
