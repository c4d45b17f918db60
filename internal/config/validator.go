// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateServer(cfg, errs)
	v.validateTerminal(cfg, errs)
	v.validateResume(cfg, errs)
	v.validateEvents(cfg, errs)
	v.validateLogging(cfg, errs)
	v.validateDurations(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port != 0 {
		if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
			errs.Add("server.port", "must be between 0 and 65535")
		}
	}
	if (cfg.Server.TLSCert == "") != (cfg.Server.TLSKey == "") {
		errs.Add("server.tls_cert", "tls_cert and tls_key must be set together")
	}
	if cfg.Server.TLSTailscale && cfg.Server.TLSCert != "" {
		errs.Add("server.tls_tailscale", "cannot be combined with tls_cert/tls_key")
	}
}

func (v *Validator) validateTerminal(cfg *Config, errs *ValidationError) {
	switch cfg.Terminal.Backend {
	case "", "pty", "tmux":
	default:
		errs.Add("terminal.backend", fmt.Sprintf("invalid backend '%s', must be one of: pty, tmux", cfg.Terminal.Backend))
	}
	if cfg.Terminal.HistoryLimit < 0 {
		errs.Add("terminal.history_limit", "must not be negative")
	}
	if cfg.Terminal.Resize.MinDelta < 0 {
		errs.Add("terminal.resize.min_delta", "must not be negative")
	}
	if strings.ContainsAny(cfg.Terminal.Agent.Binary, " \t\r\n") {
		errs.Add("terminal.agent.binary", "must be a single command name")
	}
	if cfg.Terminal.Agent.ResumeFlag != "" && !strings.HasPrefix(cfg.Terminal.Agent.ResumeFlag, "-") {
		errs.Add("terminal.agent.resume_flag", "must start with '-'")
	}
}

func (v *Validator) validateResume(cfg *Config, errs *ValidationError) {
	if cfg.Resume.PollAttempts < 0 {
		errs.Add("resume.poll_attempts", "must not be negative")
	}
}

func (v *Validator) validateEvents(cfg *Config, errs *ValidationError) {
	if cfg.Events.History.MaxEvents < 0 {
		errs.Add("events.history.max_events", "must not be negative")
	}
}

func (v *Validator) validateLogging(cfg *Config, errs *ValidationError) {
	if cfg.Logging.Level != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[cfg.Logging.Level] {
			errs.Add("logging.level", fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", cfg.Logging.Level))
		}
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	durations := []struct {
		field string
		value string
	}{
		{"terminal.startup.command_delay", cfg.Terminal.Startup.CommandDelay},
		{"terminal.startup.resume_confirm_delay", cfg.Terminal.Startup.ResumeConfirmDelay},
		{"terminal.startup.prompt_delay", cfg.Terminal.Startup.PromptDelay},
		{"terminal.startup.prompt_delay_with_command", cfg.Terminal.Startup.PromptDelayWithCommand},
		{"terminal.startup.submit_delay", cfg.Terminal.Startup.SubmitDelay},
		{"terminal.resize.debounce", cfg.Terminal.Resize.Debounce},
		{"resume.poll_interval", cfg.Resume.PollInterval},
		{"events.history.max_age", cfg.Events.History.MaxAge},
	}

	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			errs.Add(d.field, fmt.Sprintf("invalid duration format: %s", err))
		} else if parsed < 0 {
			errs.Add(d.field, "must be positive")
		}
	}
}
