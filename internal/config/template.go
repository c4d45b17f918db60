// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

// TemplateContext provides the variables available to config values.
type TemplateContext struct {
	Home      string // user home directory
	ConfigDir string // directory holding the config file
	Hostname  string
}

// NewTemplateContext builds a context for the config file at configPath.
// An empty configPath uses the working directory.
func NewTemplateContext(configPath string) *TemplateContext {
	ctx := &TemplateContext{}
	ctx.Home, _ = os.UserHomeDir()
	ctx.Hostname, _ = os.Hostname()
	if configPath != "" {
		ctx.ConfigDir = filepath.Dir(configPath)
	} else {
		ctx.ConfigDir, _ = os.Getwd()
	}
	return ctx
}

// TemplateExpander handles Go text/template variable expansion in config values.
type TemplateExpander struct {
	funcMap template.FuncMap
}

// NewTemplateExpander creates a new template expander with built-in functions.
func NewTemplateExpander() *TemplateExpander {
	return &TemplateExpander{
		funcMap: template.FuncMap{
			"slugify": Slugify,
			"upper":   strings.ToUpper,
			"lower":   strings.ToLower,
			"default": Default,
			"env":     os.Getenv,
		},
	}
}

// Expand expands template variables in a string value. A leading ~/ is
// treated as {{.Home}}/.
func (e *TemplateExpander) Expand(value string, ctx *TemplateContext) (string, error) {
	if value == "~" || strings.HasPrefix(value, "~/") {
		value = ctx.Home + value[1:]
	}
	if !strings.Contains(value, "{{") {
		return value, nil
	}

	tmpl, err := template.New("").Funcs(e.funcMap).Option("missingkey=error").Parse(value)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ExpandConfig expands all template variables in the config.
// The input config is left unchanged.
func (e *TemplateExpander) ExpandConfig(cfg *Config, ctx *TemplateContext) (*Config, error) {
	expanded := *cfg

	fields := []struct {
		name  string
		value *string
	}{
		{"state_dir", &expanded.StateDir},
		{"server.tls_cert", &expanded.Server.TLSCert},
		{"server.tls_key", &expanded.Server.TLSKey},
		{"terminal.shell", &expanded.Terminal.Shell},
		{"resume.projects_dir", &expanded.Resume.ProjectsDir},
	}
	for _, f := range fields {
		if *f.value == "" {
			continue
		}
		v, err := e.Expand(*f.value, ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = v
	}

	return &expanded, nil
}

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	slugDashes  = regexp.MustCompile(`-+`)
)

// Slugify converts a string to a URL-friendly slug.
func Slugify(s string) string {
	s = strings.ToLower(s)

	// Replace common separators with hyphens
	s = strings.NewReplacer("/", "-", "_", "-", ".", "-", " ", "-").Replace(s)

	s = slugInvalid.ReplaceAllString(s, "")
	s = slugDashes.ReplaceAllString(s, "-")

	return strings.Trim(s, "-")
}

// Default returns the value if non-empty, otherwise the default.
func Default(defaultVal, value string) string {
	if value == "" {
		return defaultVal
	}
	return value
}
