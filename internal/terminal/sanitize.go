// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import "regexp"

// Mouse reporting sequences emitted by the emulation surface.
var mouseSequences = []*regexp.Regexp{
	// SGR (1006): ESC [ < button ; x ; y M|m
	regexp.MustCompile(`\x1b\[<\d+;\d+;\d+[Mm]`),
	// URXVT (1015): ESC [ button ; x ; y M
	regexp.MustCompile(`\x1b\[\d+;\d+;\d+M`),
	// X10 / normal (1000): ESC [ M followed by button, x and y. Surfaces send
	// them UTF-8 encoded, so each is one rune rather than one byte.
	regexp.MustCompile(`(?s)\x1b\[M.{3}`),
}

// SanitizeInput strips mouse reporting sequences from keystroke input. The
// result is empty when the input held nothing else.
func SanitizeInput(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	out := data
	for _, re := range mouseSequences {
		if re.Match(out) {
			out = re.ReplaceAll(out, nil)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
