// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package claude

import (
	"log"
	"os"
	"path/filepath"
)

// Detector finds Claude CLI sessions on disk.
type Detector struct {
	projectsRoot string
}

// NewDetector creates a detector rooted at projectsRoot. An empty root uses
// ~/.claude/projects.
func NewDetector(projectsRoot string) *Detector {
	if projectsRoot == "" {
		root, err := CLIProjectsRoot()
		if err != nil {
			log.Printf("Warning: claude: %v; agent sessions will not be resumed", err)
		}
		projectsRoot = root
	}
	return &Detector{projectsRoot: projectsRoot}
}

// ProjectDir returns the CLI project directory for workDir, or "" when the
// projects root is unknown.
func (d *Detector) ProjectDir(workDir string) string {
	if d.projectsRoot == "" || workDir == "" {
		return ""
	}
	return filepath.Join(d.projectsRoot, EncodeProjectPath(workDir))
}

// Exists reports whether the agent session id still exists for workDir.
func (d *Detector) Exists(workDir, id string) bool {
	if !ValidSessionID(id) {
		return false
	}
	dir := d.ProjectDir(workDir)
	if dir == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, id+".jsonl"))
	return err == nil && info.Mode().IsRegular()
}
