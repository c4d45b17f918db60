// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/wingedpig/agentdeck/internal/app"
	"github.com/wingedpig/agentdeck/internal/config"
)

var (
	version = "0.1"
)

func main() {
	// Check for subcommands before flag parsing
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(os.Args[2:], os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Parse flags
	var (
		configPath  string
		host        string
		port        int
		backend     string
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "HTTP server host (overrides config)")
	flag.IntVar(&port, "port", 0, "HTTP server port (overrides config)")
	flag.StringVar(&backend, "backend", "", "Terminal backend, pty or tmux (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug mode")
	flag.Parse()

	if showVersion {
		fmt.Printf("agentdeck %s\n", version)
		os.Exit(0)
	}

	// Find config file if not specified; run on defaults when there is none
	if configPath == "" {
		found, err := config.NewLoader().FindConfig()
		if err != nil {
			log.Printf("No config file found, using defaults")
		}
		configPath = found
	}
	if configPath != "" {
		log.Printf("Using config: %s", configPath)
	}

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Host:       host,
		Port:       port,
		Backend:    backend,
		Debug:      debug,
	})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("App error: %v", err)
	}
}

// runInit handles the "agentdeck init" command.
func runInit(args []string, in io.Reader, out io.Writer) error {
	initFlags := flag.NewFlagSet("init", flag.ContinueOnError)
	initFlags.SetOutput(out)
	showHelp := initFlags.Bool("help", false, "Show help for init command")
	initFlags.BoolVar(showHelp, "h", false, "Show help for init command")
	configFile := initFlags.String("o", "agentdeck.hjson", "File to write")
	if err := initFlags.Parse(args); err != nil {
		return err
	}

	if *showHelp {
		fmt.Fprintln(out, `Usage: agentdeck init [options]

Create a new agentdeck.hjson configuration file in the current directory.

Options:
  -o FILE      File to write (default agentdeck.hjson)
  -h, -help    Show this help message

The command will ask about:
  - Server port (defaults to 7777)
  - Terminal backend (pty or tmux)
  - Agent command (defaults to claude)`)
		return nil
	}

	if _, err := os.Stat(*configFile); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use a different directory", *configFile)
	}

	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Agentdeck Configuration Setup")
	fmt.Fprintln(out, "Press Enter to accept defaults shown in [brackets].")
	fmt.Fprintln(out)

	port, err := strconv.Atoi(prompt(reader, out, "Server port", "7777"))
	if err != nil {
		port = 7777
	}
	backend := strings.ToLower(prompt(reader, out, "Terminal backend (pty/tmux)", "pty"))
	if backend != "tmux" {
		backend = "pty"
	}
	agent := prompt(reader, out, "Agent command", "claude")

	content := generateConfig(port, backend, agent)

	// Refuse to write a file the daemon would reject
	cfg, err := config.NewLoader().Parse([]byte(content))
	if err != nil {
		return fmt.Errorf("generated config does not parse: %w", err)
	}
	if err := config.NewValidator().Validate(cfg); err != nil {
		return err
	}

	if err := os.WriteFile(*configFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Created %s\n", *configFile)
	fmt.Fprintln(out, "Run: ./agentdeck")
	return nil
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

// escapeHJSONValue escapes a string for safe inclusion in an HJSON double-quoted value.
func escapeHJSONValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func generateConfig(port int, backend, agent string) string {
	var sb strings.Builder

	sb.WriteString(`{
  // Agentdeck configuration (HJSON: JSON with comments and relaxed syntax).
  //
  // Path fields accept ~ and template variables:
  //   {{.Home}}       - home directory
  //   {{.ConfigDir}}  - directory of this file

  server: {
`)
	fmt.Fprintf(&sb, "    port: %d\n", port)
	sb.WriteString(`    host: "127.0.0.1"
    // tls_cert: "~/certs/agentdeck.pem"
    // tls_key: "~/certs/agentdeck-key.pem"
    // tls_tailscale: true
  }

  // Where resume records are kept
  state_dir: "{{.Home}}/.agentdeck"

  terminal: {
`)
	fmt.Fprintf(&sb, "    backend: \"%s\"\n", escapeHJSONValue(backend))
	sb.WriteString(`    agent: {
`)
	fmt.Fprintf(&sb, "      binary: \"%s\"\n", escapeHJSONValue(agent))
	sb.WriteString(`      resume_flag: "--resume"
    }
    startup: {
      command_delay: "800ms"
      resume_confirm_delay: "3s"
      prompt_delay: "1s"
      prompt_delay_with_command: "5s"
      submit_delay: "300ms"
    }
    resize: {
      debounce: "100ms"
      min_delta: 2
    }
  }

  resume: {
    poll_interval: "2s"
    poll_attempts: 15
  }

  logging: {
    level: "info"
  }
}
`)
	return sb.String()
}
