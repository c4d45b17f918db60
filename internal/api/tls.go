// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"os"
	"strings"
)

// CheckTLSConfig reports whether certificate-file TLS is configured.
// Setting only one of the paths, or naming a missing file, is an error.
func CheckTLSConfig(certPath, keyPath string) (bool, error) {
	if certPath == "" && keyPath == "" {
		return false, nil
	}
	if certPath == "" || keyPath == "" {
		return false, fmt.Errorf("both tls_cert and tls_key must be specified (got cert=%q, key=%q)", certPath, keyPath)
	}

	for _, f := range []struct{ name, path string }{
		{"tls_cert", expandPath(certPath)},
		{"tls_key", expandPath(keyPath)},
	} {
		if _, err := os.Stat(f.path); err != nil {
			return false, fmt.Errorf("%s file not found: %s", f.name, f.path)
		}
	}
	return true, nil
}

// expandPath resolves a leading "~/" against the home directory. Config
// loading already expands paths; this covers ServerConfig built in code.
func expandPath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
