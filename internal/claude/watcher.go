// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package claude

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wingedpig/agentdeck/internal/events"
	"github.com/wingedpig/agentdeck/internal/watcher"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 15

	// mtimeSlack absorbs coarse file system timestamps.
	mtimeSlack = time.Second
)

// WatcherConfig bounds how long a new agent session is looked for.
type WatcherConfig struct {
	PollInterval time.Duration
	PollAttempts int
}

// SessionWatcher looks for the agent session created after a fresh agent
// command was typed into a terminal, and records it so the next session for
// the same context resumes it.
type SessionWatcher struct {
	cfg      WatcherConfig
	detector *Detector
	store    *FileStore
	dirs     *watcher.DirWatcher
	events   events.Publisher

	mu     sync.Mutex
	active map[string]*track
	closed bool
	wg     sync.WaitGroup
}

type track struct {
	cancel context.CancelFunc
}

// NewSessionWatcher creates a watcher. dirs and bus may be nil; without dirs
// the watcher only polls.
func NewSessionWatcher(cfg WatcherConfig, detector *Detector, store *FileStore, dirs *watcher.DirWatcher, bus events.Publisher) *SessionWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = defaultPollAttempts
	}
	return &SessionWatcher{
		cfg:      cfg,
		detector: detector,
		store:    store,
		dirs:     dirs,
		events:   bus,
		active:   make(map[string]*track),
	}
}

// Track starts looking for a session created in workDir at or after since.
// It returns immediately. A newer Track for the same context replaces an
// older one; cancelling ctx stops the search.
func (w *SessionWatcher) Track(ctx context.Context, workDir, contextKey string, since time.Time) {
	dir := w.detector.ProjectDir(workDir)
	if dir == "" {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &track{cancel: cancel}
	key := workDir + "\x00" + contextKey

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		cancel()
		return
	}
	if prev, ok := w.active[key]; ok {
		prev.cancel()
	}
	w.active[key] = t
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer func() {
			cancel()
			w.mu.Lock()
			if w.active[key] == t {
				delete(w.active, key)
			}
			w.mu.Unlock()
		}()
		w.run(ctx, dir, workDir, contextKey, since)
	}()
}

// Active returns the number of searches in progress.
func (w *SessionWatcher) Active() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}

// Close stops every search and waits for them to finish.
func (w *SessionWatcher) Close() {
	w.mu.Lock()
	w.closed = true
	for _, t := range w.active {
		t.cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *SessionWatcher) run(ctx context.Context, dir, workDir, contextKey string, since time.Time) {
	var wake <-chan struct{}
	subscribe := func() {
		if w.dirs == nil || wake != nil {
			return
		}
		ch, unsubscribe, err := w.dirs.Subscribe(dir)
		if err != nil {
			// The CLI creates the directory on its first run.
			return
		}
		wake = ch
		go func() {
			<-ctx.Done()
			unsubscribe()
		}()
	}
	subscribe()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < w.cfg.PollAttempts; {
		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
			attempt++
		}

		id := w.scan(dir, workDir, contextKey, since)
		if id != "" {
			w.record(ctx, workDir, contextKey, id)
			return
		}
		subscribe()
	}

	log.Printf("claude: no new agent session for %s in %s after %d attempts", contextKey, workDir, w.cfg.PollAttempts)
}

// scan returns the newest session in dir modified at or after since that no
// other context has claimed.
func (w *SessionWatcher) scan(dir, workDir, contextKey string, since time.Time) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Warning: claude: scan %s: %v", dir, err)
		}
		return ""
	}

	claimed, err := w.store.Claimed(workDir)
	if err != nil {
		log.Printf("Warning: claude: %v", err)
		return ""
	}

	threshold := since.Add(-mtimeSlack)
	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		id, ok := sessionIDFromFile(entry.Name())
		if !ok {
			continue
		}
		if owner, taken := claimed[id]; taken && owner != contextKey {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(threshold) {
			continue
		}
		if !w.belongsTo(filepath.Join(dir, entry.Name()), workDir) {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = id, info.ModTime()
		}
	}
	return newest
}

// belongsTo rejects sessions whose recorded cwd is another directory that
// encodes to the same project dir. Sessions with no header yet are accepted.
func (w *SessionWatcher) belongsTo(path, workDir string) bool {
	header, ok, err := readSessionHeader(path)
	if err != nil || !ok || header.CWD == "" {
		return true
	}
	return filepath.Clean(header.CWD) == filepath.Clean(workDir)
}

func (w *SessionWatcher) record(ctx context.Context, workDir, contextKey, id string) {
	if err := w.store.Set(workDir, contextKey, id); err != nil {
		log.Printf("Warning: claude: saving agent session for %s: %v", contextKey, err)
		return
	}
	log.Printf("claude: recorded agent session %s for %s", id, contextKey)

	if w.events == nil {
		return
	}
	err := w.events.Publish(ctx, events.Event{
		Type: events.EventAgentSessionDetected,
		Payload: map[string]interface{}{
			"context_key":      contextKey,
			"work_dir":         workDir,
			"agent_session_id": id,
		},
	})
	if err != nil && !errors.Is(err, events.ErrBusClosed) {
		log.Printf("Warning: claude: publish %s failed: %v", events.EventAgentSessionDetected, err)
	}
}
