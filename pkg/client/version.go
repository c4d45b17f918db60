// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

// API version constants.
//
// Each version is the API as it existed on that date. If no version is
// specified, the latest version is used.
const (
	// LatestVersion is the current API version.
	LatestVersion = Version20260901

	// Version20260301 is the initial API version.
	Version20260301 = "2026-03-01"

	// Version20260901 wraps the session list in an object.
	Version20260901 = "2026-09-01"
)

// VersionHeader is the HTTP header used to specify the API version.
const VersionHeader = "Agentdeck-Version"
