// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package claude

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StoreFileName is the name of the agent session file under the state dir.
const StoreFileName = "agent-sessions.json"

// AgentRecord is a persisted agent session reference.
type AgentRecord struct {
	SessionID string    `json:"session_id"` // Claude CLI session id for --resume
	UpdatedAt time.Time `json:"updated_at"`
}

// storeFile is the on-disk layout: working directory, then context key.
type storeFile map[string]map[string]AgentRecord

// FileStore remembers which agent session was last started for each context
// in each working directory. It is loaded on first use and written
// atomically on every change. An empty path keeps records in memory only.
type FileStore struct {
	mu      sync.Mutex
	path    string
	records storeFile
	loaded  bool
	now     func() time.Time
}

// NewFileStore creates a store backed by <stateDir>/agent-sessions.json.
func NewFileStore(stateDir string) *FileStore {
	s := &FileStore{
		records: make(storeFile),
		now:     time.Now,
	}
	if stateDir != "" {
		s.path = filepath.Join(stateDir, StoreFileName)
	}
	return s
}

// Path returns the backing file, or "" for an in-memory store.
func (s *FileStore) Path() string {
	return s.path
}

// ensureLoaded reads the backing file once. A failed load is retried on the
// next call so a corrupted file is never overwritten. Callers hold s.mu.
func (s *FileStore) ensureLoaded() error {
	if s.loaded || s.path == "" {
		s.loaded = true
		return nil
	}
	records, err := loadStoreFile(s.path)
	if err != nil {
		return err
	}
	if records != nil {
		s.records = records
	}
	s.loaded = true
	return nil
}

// Get returns the agent session id stored for contextKey in workDir, or ""
// if there is none.
func (s *FileStore) Get(workDir, contextKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return "", err
	}
	return s.records[workDir][contextKey].SessionID, nil
}

// Set records agentSessionID for contextKey in workDir.
func (s *FileStore) Set(workDir, contextKey, agentSessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return err
	}
	byKey := s.records[workDir]
	if byKey == nil {
		byKey = make(map[string]AgentRecord)
		s.records[workDir] = byKey
	}
	byKey[contextKey] = AgentRecord{SessionID: agentSessionID, UpdatedAt: s.now().UTC()}
	return s.save()
}

// Delete forgets the record for contextKey in workDir.
func (s *FileStore) Delete(workDir, contextKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return err
	}
	byKey, ok := s.records[workDir]
	if !ok {
		return nil
	}
	if _, ok := byKey[contextKey]; !ok {
		return nil
	}
	delete(byKey, contextKey)
	if len(byKey) == 0 {
		delete(s.records, workDir)
	}
	return s.save()
}

// Claimed returns the agent session ids recorded in workDir, mapped to the
// context key that owns each.
func (s *FileStore) Claimed(workDir string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	result := make(map[string]string, len(s.records[workDir]))
	for key, rec := range s.records[workDir] {
		result[rec.SessionID] = key
	}
	return result, nil
}

// save writes the records. Callers hold s.mu.
func (s *FileStore) save() error {
	if s.path == "" {
		return nil
	}
	return saveStoreFile(s.path, s.records)
}

// loadStoreFile reads agent session records from disk.
func loadStoreFile(filePath string) (storeFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read agent sessions file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records storeFile
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse agent sessions file: %w", err)
	}
	return records, nil
}

// saveStoreFile writes agent session records to disk atomically.
func saveStoreFile(filePath string, records storeFile) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal agent sessions: %w", err)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	// Atomic write: temp file + rename
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp agent sessions file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename agent sessions file: %w", err)
	}
	return nil
}
