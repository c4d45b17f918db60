// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher notifies subscribers when files are created or written inside a
// watched directory. Notifications carry no payload; subscribers rescan.
type DirWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	subs    map[string]map[chan struct{}]struct{} // dir -> subscriber channels
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewDirWatcher creates a directory watcher backed by fsnotify.
func NewDirWatcher() (*DirWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &DirWatcher{
		watcher: fsWatcher,
		subs:    make(map[string]map[chan struct{}]struct{}),
		closeCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Subscribe starts watching dir. The returned channel receives a value
// (coalesced, never blocking the watcher) after each create or write. The
// cancel func removes the subscription and is safe to call more than once.
func (w *DirWatcher) Subscribe(dir string) (<-chan struct{}, func(), error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, nil, fmt.Errorf("watcher is closed")
	}

	subs, watched := w.subs[absDir]
	if !watched {
		if err := w.watcher.Add(absDir); err != nil {
			return nil, nil, fmt.Errorf("watch %s: %w", absDir, err)
		}
		subs = make(map[chan struct{}]struct{})
		w.subs[absDir] = subs
	}

	ch := make(chan struct{}, 1)
	subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() { w.unsubscribe(absDir, ch) })
	}
	return ch, cancel, nil
}

func (w *DirWatcher) unsubscribe(dir string, ch chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	subs, ok := w.subs[dir]
	if !ok {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(w.subs, dir)
		if !w.closed {
			w.watcher.Remove(dir)
		}
	}
}

// Watching returns the directories currently watched.
func (w *DirWatcher) Watching() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := make([]string, 0, len(w.subs))
	for dir := range w.subs {
		result = append(result, dir)
	}
	return result
}

// Close stops the watcher and releases resources.
func (w *DirWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.subs = make(map[string]map[chan struct{}]struct{})
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *DirWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Warning: directory watcher error: %v", err)
		}
	}
}

func (w *DirWatcher) handleEvent(event fsnotify.Event) {
	// Chmod and removals never introduce new files.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	dir := filepath.Dir(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	for ch := range w.subs[dir] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
