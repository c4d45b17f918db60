// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package terminal

import (
	"sort"
	"sync"
)

// listenerSet holds callbacks registered with a host. Callbacks are invoked
// from a snapshot so they may unsubscribe while being called.
type listenerSet[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]T
}

// add registers fn and returns its unsubscribe func, which is idempotent.
func (l *listenerSet[T]) add(fn T) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[int]T)
	}
	key := l.next
	l.next++
	l.fns[key] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, key)
			l.mu.Unlock()
		})
	}
}

// snapshot returns the registered callbacks in registration order.
func (l *listenerSet[T]) snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]int, 0, len(l.fns))
	for k := range l.fns {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	result := make([]T, 0, len(keys))
	for _, k := range keys {
		result = append(result, l.fns[k])
	}
	return result
}

func (l *listenerSet[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}
