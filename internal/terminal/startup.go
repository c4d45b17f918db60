// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"log"
	"path/filepath"
	"strings"
	"time"
)

// Environment variables exported to new sessions.
const (
	EnvContextType = "AGENTDECK_CONTEXT_TYPE"
	EnvContextID   = "AGENTDECK_CONTEXT_ID"
	EnvDisplayKey  = "AGENTDECK_DISPLAY_KEY"
	EnvTitle       = "AGENTDECK_TITLE"
	EnvProject     = "AGENTDECK_PROJECT"
	EnvSessionID   = "AGENTDECK_SESSION_ID"
	EnvAPI         = "AGENTDECK_API"
)

const (
	defaultCommandDelay           = 800 * time.Millisecond
	defaultResumeConfirmDelay     = 3 * time.Second
	defaultPromptDelay            = time.Second
	defaultPromptDelayWithCommand = 5 * time.Second
	defaultSubmitDelay            = 300 * time.Millisecond
	defaultAgentBinary            = "claude"
	defaultResumeFlag             = "--resume"
)

// StartupConfig configures what new sessions are sent and when.
type StartupConfig struct {
	CommandDelay           time.Duration
	ResumeConfirmDelay     time.Duration
	PromptDelay            time.Duration
	PromptDelayWithCommand time.Duration
	SubmitDelay            time.Duration

	AgentBinary string // command name that starts the agent
	ResumeFlag  string // flag that resumes an agent session
	APIBaseURL  string // exported as AGENTDECK_API when set
}

func (c *StartupConfig) applyDefaults() {
	if c.CommandDelay <= 0 {
		c.CommandDelay = defaultCommandDelay
	}
	if c.ResumeConfirmDelay <= 0 {
		c.ResumeConfirmDelay = defaultResumeConfirmDelay
	}
	if c.PromptDelay <= 0 {
		c.PromptDelay = defaultPromptDelay
	}
	if c.PromptDelayWithCommand <= 0 {
		c.PromptDelayWithCommand = defaultPromptDelayWithCommand
	}
	if c.SubmitDelay <= 0 {
		c.SubmitDelay = defaultSubmitDelay
	}
	if c.AgentBinary == "" {
		c.AgentBinary = defaultAgentBinary
	}
	if c.ResumeFlag == "" {
		c.ResumeFlag = defaultResumeFlag
	}
}

// StartupPlan is what a new session is sent after spawning.
type StartupPlan struct {
	Environment map[string]string
	Command     string // possibly rewritten to resume
	Resuming    bool
	ResumeID    string
	StaleID     string // stored agent session that no longer exists
	Prompt      string
	TrackAgent  bool // watch for a new agent session after the command is sent
}

// Sequencer builds and schedules startup plans for new sessions.
type Sequencer struct {
	cfg      StartupConfig
	registry *Registry
	store    SessionStore
	detector SessionDetector
	debug    bool
}

// NewSequencer creates a sequencer. store and detector may be nil, in which
// case every session starts fresh.
func NewSequencer(cfg StartupConfig, registry *Registry, store SessionStore, detector SessionDetector, debug bool) *Sequencer {
	cfg.applyDefaults()
	return &Sequencer{
		cfg:      cfg,
		registry: registry,
		store:    store,
		detector: detector,
		debug:    debug,
	}
}

// BuildEnvironment returns the environment for a new session. Absent
// fields are omitted.
func BuildEnvironment(c Context, id SessionID, apiBaseURL string) map[string]string {
	env := map[string]string{
		"TERM": "xterm-256color",
	}
	set := func(key, value string) {
		if value != "" {
			env[key] = value
		}
	}
	set(EnvContextType, string(c.Type))
	set(EnvContextID, c.ID)
	set(EnvDisplayKey, c.DisplayKey)
	set(EnvTitle, c.Title)
	set(EnvProject, c.ProjectRef)
	set(EnvSessionID, string(id))
	set(EnvAPI, apiBaseURL)
	return env
}

// Plan decides what a new session for c is sent. One-shot inputs already
// given to id are left out.
func (q *Sequencer) Plan(c Context, id SessionID) StartupPlan {
	plan := StartupPlan{
		Environment: BuildEnvironment(c, id, q.cfg.APIBaseURL),
	}

	if c.InitialCommand != "" && q.registry.TakeOnce(id, flagCommand) {
		plan.Command = c.InitialCommand
		agent := q.isAgentCommand(c.InitialCommand)
		if agent && c.WorkingDirectory != "" {
			resumeID, stale := q.resumeID(c)
			if resumeID != "" {
				plan.Command = c.InitialCommand + " " + q.cfg.ResumeFlag + " " + resumeID
				plan.Resuming = true
				plan.ResumeID = resumeID
			}
			plan.StaleID = stale
			plan.TrackAgent = true
		}
	}

	if c.InitialPrompt != "" && q.registry.TakeOnce(id, flagPrompt) {
		plan.Prompt = c.InitialPrompt
	}

	return plan
}

// isAgentCommand reports whether cmd starts the configured agent binary.
func (q *Sequencer) isAgentCommand(cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}
	return filepath.Base(fields[0]) == q.cfg.AgentBinary
}

// resumeID returns a stored agent session for c that still exists. A stored
// session that is gone is returned as stale instead.
func (q *Sequencer) resumeID(c Context) (id, stale string) {
	if q.store == nil || q.detector == nil {
		return "", ""
	}
	id, err := q.store.Get(c.WorkingDirectory, c.Key())
	if err != nil {
		log.Printf("Warning: terminal: agent session lookup for %s failed: %v", c.Key(), err)
		return "", ""
	}
	if id == "" {
		return "", ""
	}
	if !q.detector.Exists(c.WorkingDirectory, id) {
		if q.debug {
			log.Printf("terminal: stored agent session %s for %s no longer exists, starting fresh", id, c.Key())
		}
		return "", id
	}
	return id, ""
}

// Schedule arms the plan's deliveries on timers. deliver writes to the
// session and reports whether the write happened; onCommand runs after the
// command has been delivered, with the time it was sent.
func (q *Sequencer) Schedule(plan StartupPlan, timers *timerSet, deliver func(data string) bool, onCommand func(sentAt time.Time)) {
	if plan.Command != "" {
		command := plan.Command + "\r"
		timers.schedule(timerCommand, q.cfg.CommandDelay, func() {
			sentAt := time.Now()
			if deliver(command) && onCommand != nil {
				onCommand(sentAt)
			}
		})
		if plan.Resuming {
			timers.schedule(timerResumeConfirm, q.cfg.ResumeConfirmDelay, func() {
				deliver("\r")
			})
		}
	}

	if plan.Prompt != "" {
		delay := q.cfg.PromptDelay
		if plan.Command != "" {
			delay = q.cfg.PromptDelayWithCommand
		}
		prompt := plan.Prompt
		timers.schedule(timerPrompt, delay, func() {
			if !deliver(prompt) {
				return
			}
			timers.schedule(timerPromptSubmit, q.cfg.SubmitDelay, func() {
				deliver("\r")
			})
		})
	}
}
