// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package version implements date-based versioning for the agentdeck API.
//
// Clients pin a version with the Agentdeck-Version header. Requests without
// the header get LatestVersion. A breaking response change adds a new
// version constant, moves LatestVersion, and registers a Transformer that
// rewrites new responses into the shape older clients expect.
package version

import "context"

// Version constants. Add new versions here when making breaking changes.
const (
	// Version20260301 is the initial API version.
	Version20260301 = "2026-03-01"

	// Version20260901 wraps the session list in an object.
	Version20260901 = "2026-09-01"
)

// LatestVersion is the current default API version.
var LatestVersion = Version20260901

// Header is the HTTP header used to specify the API version.
const Header = "Agentdeck-Version"

type contextKey string

const versionKey contextKey = "api-version"

// FromContext returns the API version from the context.
// Returns LatestVersion if not set.
func FromContext(ctx context.Context) string {
	v, ok := ctx.Value(versionKey).(string)
	if !ok || v == "" {
		return LatestVersion
	}
	return v
}

// WithContext returns a new context with the API version set.
func WithContext(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, versionKey, version)
}
