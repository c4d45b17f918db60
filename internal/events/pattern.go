// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"errors"
	"strings"
)

// PatternMatcher handles event pattern matching.
//
// Patterns are dot-separated. A "*" segment matches exactly one segment of the
// event type, except in last position where it matches one or more:
//
//	"*"                 everything
//	"terminal.*"        terminal.connected, terminal.failed
//	"agent.*"           agent.session.detected
//	"*.failed"          terminal.failed
//	"agent.*.detected"  agent.session.detected
type PatternMatcher struct{}

// NewPatternMatcher creates a new pattern matcher.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Match checks if an event type matches a pattern.
func (pm *PatternMatcher) Match(eventType, pattern string) bool {
	if pattern == "" || eventType == "" {
		return false
	}
	if pattern == "*" || pattern == eventType {
		return true
	}
	return matchSegments(strings.Split(eventType, "."), strings.Split(pattern, "."))
}

func matchSegments(typ, pat []string) bool {
	for i, p := range pat {
		last := i == len(pat)-1
		if i >= len(typ) {
			return false
		}
		if p == "*" {
			if last {
				return true
			}
			continue
		}
		if p != typ[i] {
			return false
		}
	}
	return len(typ) == len(pat)
}

// Compile validates a pattern for repeated matching.
func (pm *PatternMatcher) Compile(pattern string) (CompiledPattern, error) {
	if pattern == "" {
		return nil, errors.New("empty pattern")
	}
	for _, seg := range strings.Split(pattern, ".") {
		if seg == "" {
			return nil, errors.New("empty segment in pattern " + pattern)
		}
		if seg != "*" && strings.Contains(seg, "*") {
			return nil, errors.New("partial wildcard in pattern " + pattern)
		}
	}
	return &compiledPattern{pattern: pattern, matcher: pm}, nil
}

// CompiledPattern is a validated pattern.
type CompiledPattern interface {
	Match(eventType string) bool
}

type compiledPattern struct {
	pattern string
	matcher *PatternMatcher
}

func (cp *compiledPattern) Match(eventType string) bool {
	return cp.matcher.Match(eventType, cp.pattern)
}
