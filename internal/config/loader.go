// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// Config file names searched by FindConfig, in order.
var configNames = []string{
	"agentdeck.hjson",
	"agentdeck.json",
}

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return l.Parse(data)
}

// Parse parses HJSON (or plain JSON) configuration data.
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Parse HJSON to intermediate map
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	// Convert to JSON and unmarshal to struct (for type safety)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied and template
// variables expanded. An empty path yields the defaults alone.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		var err error
		cfg, err = l.Load(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	applyDefaults(cfg)

	expanded, err := NewTemplateExpander().ExpandConfig(cfg, NewTemplateContext(path))
	if err != nil {
		return nil, fmt.Errorf("expand config: %w", err)
	}
	return expanded, nil
}

// FindConfig searches for a config file in the current directory.
// It looks for agentdeck.hjson first, then agentdeck.json.
func (l *Loader) FindConfig() (string, error) {
	for _, name := range configNames {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("config file not found (looked for agentdeck.hjson, agentdeck.json)")
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7777
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}

	if cfg.StateDir == "" {
		cfg.StateDir = "{{.Home}}/.agentdeck"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	// Terminal defaults
	if cfg.Terminal.Backend == "" {
		cfg.Terminal.Backend = "pty"
	}
	if cfg.Terminal.HistoryLimit == 0 {
		cfg.Terminal.HistoryLimit = 50000
	}
	if cfg.Terminal.Agent.Binary == "" {
		cfg.Terminal.Agent.Binary = "claude"
	}
	if cfg.Terminal.Agent.ResumeFlag == "" {
		cfg.Terminal.Agent.ResumeFlag = "--resume"
	}

	startup := &cfg.Terminal.Startup
	if startup.CommandDelay == "" {
		startup.CommandDelay = "800ms"
	}
	if startup.ResumeConfirmDelay == "" {
		startup.ResumeConfirmDelay = "3s"
	}
	if startup.PromptDelay == "" {
		startup.PromptDelay = "1s"
	}
	if startup.PromptDelayWithCommand == "" {
		startup.PromptDelayWithCommand = "5s"
	}
	if startup.SubmitDelay == "" {
		startup.SubmitDelay = "300ms"
	}

	if cfg.Terminal.Resize.Debounce == "" {
		cfg.Terminal.Resize.Debounce = "100ms"
	}
	if cfg.Terminal.Resize.MinDelta == 0 {
		cfg.Terminal.Resize.MinDelta = 2
	}

	// Resume defaults
	if cfg.Resume.PollInterval == "" {
		cfg.Resume.PollInterval = "2s"
	}
	if cfg.Resume.PollAttempts == 0 {
		cfg.Resume.PollAttempts = 15
	}

	// Events defaults
	if cfg.Events.History.MaxEvents == 0 {
		cfg.Events.History.MaxEvents = 10000
	}
	if cfg.Events.History.MaxAge == "" {
		cfg.Events.History.MaxAge = "1h"
	}
}
