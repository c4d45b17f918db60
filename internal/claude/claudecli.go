// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package claude

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// CLIJSONLLine is the part of a line in a Claude CLI session JSONL file that
// identifies the session.
type CLIJSONLLine struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	CWD       string `json:"cwd"`
	Timestamp string `json:"timestamp"`
}

// CLIProjectsRoot returns the directory under which Claude CLI keeps one
// directory per project, ~/.claude/projects.
func CLIProjectsRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".claude", "projects"), nil
}

// EncodeProjectPath encodes a project path the way Claude CLI names its
// project directories: / and . are replaced with -.
//
//	/Users/alice/src/myapp     -> -Users-alice-src-myapp
//	/Users/alice/src/groups.io -> -Users-alice-src-groups-io
func EncodeProjectPath(projectPath string) string {
	return strings.NewReplacer("/", "-", ".", "-").Replace(projectPath)
}

// CLIProjectDir returns the path to Claude CLI's project-specific storage
// directory for the given project path.
func CLIProjectDir(projectPath string) (string, error) {
	root, err := CLIProjectsRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, EncodeProjectPath(projectPath)), nil
}

// ValidSessionID reports whether id looks like a Claude CLI session id.
func ValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// sessionIDFromFile returns the session id encoded in a JSONL file name.
func sessionIDFromFile(name string) (string, bool) {
	id, ok := strings.CutSuffix(name, ".jsonl")
	if !ok || !ValidSessionID(id) {
		return "", false
	}
	return id, true
}

// readSessionHeader returns the first line of a session file that carries a
// session id. ok is false when the file has no such line yet.
func readSessionHeader(path string) (line CLIJSONLLine, ok bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return CLIJSONLLine{}, false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024) // Up to 10MB per line
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var l CLIJSONLLine
		if err := json.Unmarshal(raw, &l); err != nil {
			// Tolerate a partial line still being written
			break
		}
		if l.SessionID != "" {
			return l, true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return CLIJSONLLine{}, false, fmt.Errorf("scan session file: %w", err)
	}
	return CLIJSONLLine{}, false, nil
}
