// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// agentdeck-ctl is a command-line tool for controlling a running agentdeck daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/wingedpig/agentdeck/pkg/client"
)

var (
	version    = "0.1"
	apiURL     = "http://localhost:7777"
	jsonOutput = false

	// API client instance
	apiClient *client.Client

	stdout io.Writer = os.Stdout
)

func main() {
	// Terminals started by agentdeck export AGENTDECK_API
	if env := os.Getenv("AGENTDECK_API"); env != "" {
		apiURL = strings.TrimSuffix(env, "/")
	}

	// Parse global flags and filter them out
	var filteredArgs []string
	for _, arg := range os.Args[1:] {
		if arg == "-json" {
			jsonOutput = true
		} else {
			filteredArgs = append(filteredArgs, arg)
		}
	}

	apiClient = client.New(apiURL)

	if len(filteredArgs) < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, filteredArgs[0], filteredArgs[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "sessions", "ls":
		return cmdSessions(ctx)
	case "session", "show":
		return cmdSession(ctx, args)
	case "close":
		return cmdClose(ctx, args)
	case "resize":
		return cmdResize(ctx, args)
	case "events":
		return cmdEvents(ctx, args)
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "agentdeck-ctl %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

func printUsage() {
	fmt.Fprintln(stdout, `agentdeck-ctl - Control a running agentdeck daemon

Usage:
  agentdeck-ctl [-json] <command> [arguments]

Global Flags:
  -json          Output in JSON format

Environment:
  AGENTDECK_API  Base URL of the agentdeck API (default: http://localhost:7777)

Commands:
  sessions                 List live terminal sessions
  session <id>             Show one session
  close <id>               Close a session and terminate its process
  resize <id> <cols> <rows>  Resize a session

  events [options]         Show recent events
    -n N                   Number of events (default: 50)
    -session <id>          Only events about this session
    -type <pattern>        Only these event types (can repeat)
    -f                     Follow live events

  version                  Show version
  help                     Show this help`)
}

// printJSON outputs any value as formatted JSON
func printJSON(v interface{}) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(stdout, string(out))
}

func cmdSessions(ctx context.Context) error {
	sessions, err := apiClient.Terminal.List(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(sessions)
		return nil
	}

	fmt.Fprintf(stdout, "%-24s %-10s %-9s %-8s %s\n", "SESSION", "PHASE", "SIZE", "RESUMED", "DIRECTORY")
	fmt.Fprintln(stdout, strings.Repeat("-", 80))
	for _, s := range sessions {
		printSessionRow(s)
	}
	return nil
}

func printSessionRow(s client.Session) {
	size := "-"
	if s.Size.Cols > 0 {
		size = fmt.Sprintf("%dx%d", s.Size.Cols, s.Size.Rows)
	}
	resumed := "-"
	if s.Resumed {
		resumed = "yes"
	}
	dir := s.Context.WorkingDirectory
	if dir == "" {
		dir = "-"
	}
	fmt.Fprintf(stdout, "%-24s %-10s %-9s %-8s %s\n", s.ID, s.Phase, size, resumed, dir)
}

func cmdSession(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentdeck-ctl session <id>")
	}

	s, err := apiClient.Terminal.Get(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(s)
		return nil
	}
	printSessionDetail(s)
	return nil
}

func printSessionDetail(s *client.Session) {
	fmt.Fprintf(stdout, "Session:   %s\n", s.ID)
	fmt.Fprintf(stdout, "Phase:     %s\n", s.Phase)
	if s.Context.DisplayKey != "" || s.Context.Title != "" {
		fmt.Fprintf(stdout, "Title:     %s\n", strings.TrimSpace(s.Context.DisplayKey+" "+s.Context.Title))
	}
	if s.Context.WorkingDirectory != "" {
		fmt.Fprintf(stdout, "Directory: %s\n", s.Context.WorkingDirectory)
	}
	fmt.Fprintf(stdout, "Size:      %dx%d\n", s.Size.Cols, s.Size.Rows)
	fmt.Fprintf(stdout, "Spawned:   %v\n", s.Spawned)
	if s.Resumed {
		fmt.Fprintf(stdout, "Resumed:   %s\n", s.ResumeID)
	}
	if s.ExitCode != nil {
		fmt.Fprintf(stdout, "Exit code: %d\n", *s.ExitCode)
	}
	if s.Error != "" {
		fmt.Fprintf(stdout, "Error:     %s\n", s.Error)
	}
	if len(s.Pending) > 0 {
		fmt.Fprintf(stdout, "Pending:   %s\n", strings.Join(s.Pending, ", "))
	}
	fmt.Fprintf(stdout, "Created:   %s\n", s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
}

func cmdClose(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: agentdeck-ctl close <id>")
	}

	s, err := apiClient.Terminal.Close(ctx, args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(s)
		return nil
	}
	fmt.Fprintf(stdout, "Closed %s\n", s.ID)
	return nil
}

func cmdResize(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: agentdeck-ctl resize <id> <cols> <rows>")
	}
	cols, err := strconv.Atoi(args[1])
	if err != nil || cols <= 0 {
		return fmt.Errorf("cols must be a positive integer")
	}
	rows, err := strconv.Atoi(args[2])
	if err != nil || rows <= 0 {
		return fmt.Errorf("rows must be a positive integer")
	}

	if err := apiClient.Terminal.Resize(ctx, args[0], cols, rows); err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Fprintf(stdout, "Resize to %dx%d queued for %s\n", cols, rows, args[0])
	}
	return nil
}

// eventsConfig holds parsed command-line options for the events command
type eventsConfig struct {
	limit   int
	session string
	types   []string
	follow  bool
}

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func parseEventsArgs(args []string) (*eventsConfig, error) {
	cfg := &eventsConfig{}
	var types stringList

	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&cfg.limit, "n", 50, "")
	fs.StringVar(&cfg.session, "session", "", "")
	fs.Var(&types, "type", "")
	fs.BoolVar(&cfg.follow, "f", false, "")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.limit <= 0 {
		return nil, fmt.Errorf("-n must be positive")
	}
	if cfg.follow && len(types) > 1 {
		return nil, fmt.Errorf("-f accepts a single -type pattern")
	}
	cfg.types = types
	return cfg, nil
}

func cmdEvents(ctx context.Context, args []string) error {
	cfg, err := parseEventsArgs(args)
	if err != nil {
		return err
	}

	if cfg.follow {
		return followEvents(ctx, cfg)
	}

	events, err := apiClient.Events.List(ctx, &client.ListOptions{
		Limit:   cfg.limit,
		Session: cfg.session,
		Types:   cfg.types,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(events)
		return nil
	}

	printEventHeader()
	for _, evt := range events {
		printEventRow(evt)
	}
	return nil
}

// followEvents prints the last events and then live ones until ctx ends.
func followEvents(ctx context.Context, cfg *eventsConfig) error {
	pattern := ""
	if len(cfg.types) == 1 {
		pattern = cfg.types[0]
	}

	stream, err := apiClient.Events.Stream(ctx, pattern, cfg.limit)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		stream.Close()
	}()

	if !jsonOutput {
		printEventHeader()
	}
	enc := json.NewEncoder(stdout)
	for {
		evt, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil || client.IsClosed(err) {
				return nil
			}
			return err
		}
		if cfg.session != "" && evt.Session != cfg.session {
			continue
		}
		if jsonOutput {
			enc.Encode(evt)
			continue
		}
		printEventRow(evt)
	}
}

func printEventHeader() {
	fmt.Fprintf(stdout, "%-20s %-24s %-24s %s\n", "TIME", "TYPE", "SESSION", "DETAILS")
	fmt.Fprintln(stdout, strings.Repeat("-", 100))
}

func printEventRow(evt client.Event) {
	keys := make([]string, 0, len(evt.Payload))
	for k := range evt.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, evt.Payload[k]))
	}
	fmt.Fprintf(stdout, "%-20s %-24s %-24s %s\n",
		evt.Timestamp.Local().Format("2006-01-02 15:04:05"),
		evt.Type,
		evt.Session,
		strings.Join(parts, " "),
	)
}
