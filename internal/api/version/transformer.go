// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package version

import "sync"

// Transformer rewrites response data for an older API version.
type Transformer func(data interface{}) interface{}

// Endpoint identifiers passed to Transform.
const (
	EndpointSessionsList = "terminal.sessions.list"
	EndpointSessionsGet  = "terminal.sessions.get"
)

var (
	mu           sync.RWMutex
	transformers = map[string]map[string]Transformer{}
)

// Transform applies the transformer registered for version and endpoint.
// Data for the latest version, unknown versions, and endpoints without a
// transformer is returned unchanged.
func Transform(version, endpoint string, data interface{}) interface{} {
	if version == LatestVersion {
		return data
	}

	mu.RLock()
	transformer, ok := transformers[version][endpoint]
	mu.RUnlock()
	if !ok {
		return data
	}
	return transformer(data)
}

// RegisterTransformer adds a transformer for a version and endpoint.
// It returns a function that removes it again.
func RegisterTransformer(version, endpoint string, t Transformer) (unregister func()) {
	mu.Lock()
	defer mu.Unlock()
	if transformers[version] == nil {
		transformers[version] = make(map[string]Transformer)
	}
	transformers[version][endpoint] = t

	return func() {
		mu.Lock()
		defer mu.Unlock()
		delete(transformers[version], endpoint)
		if len(transformers[version]) == 0 {
			delete(transformers, version)
		}
	}
}
