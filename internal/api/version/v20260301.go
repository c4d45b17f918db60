// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package version

// Clients on 2026-03-01 read the session list as a bare array.
func init() {
	RegisterTransformer(Version20260301, EndpointSessionsList, unwrapSessions)
}

func unwrapSessions(data interface{}) interface{} {
	m, ok := data.(map[string]interface{})
	if !ok {
		return data
	}
	if sessions, ok := m["sessions"]; ok {
		return sessions
	}
	return data
}
