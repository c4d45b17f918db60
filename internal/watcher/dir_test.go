// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitNotify(t *testing.T, ch <-chan struct{}) bool {
	t.Helper()
	select {
	case <-ch:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func TestDirWatcher_NotifiesOnCreate(t *testing.T) {
	dir := t.TempDir()

	w, err := NewDirWatcher()
	require.NoError(t, err)
	defer w.Close()

	ch, cancel, err := w.Subscribe(dir)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jsonl"), []byte("{}\n"), 0644))

	assert.True(t, waitNotify(t, ch), "expected a notification after file creation")
}

func TestDirWatcher_MultipleSubscribers(t *testing.T) {
	dir := t.TempDir()

	w, err := NewDirWatcher()
	require.NoError(t, err)
	defer w.Close()

	ch1, cancel1, err := w.Subscribe(dir)
	require.NoError(t, err)
	ch2, cancel2, err := w.Subscribe(dir)
	require.NoError(t, err)
	defer cancel2()

	assert.Len(t, w.Watching(), 1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.jsonl"), []byte("{}\n"), 0644))
	assert.True(t, waitNotify(t, ch1))
	assert.True(t, waitNotify(t, ch2))

	cancel1()
	cancel1()
	assert.Len(t, w.Watching(), 1)
}

func TestDirWatcher_UnsubscribeLastRemovesWatch(t *testing.T) {
	dir := t.TempDir()

	w, err := NewDirWatcher()
	require.NoError(t, err)
	defer w.Close()

	_, cancel, err := w.Subscribe(dir)
	require.NoError(t, err)
	cancel()

	assert.Empty(t, w.Watching())
}

func TestDirWatcher_MissingDirectory(t *testing.T) {
	w, err := NewDirWatcher()
	require.NoError(t, err)
	defer w.Close()

	_, _, err = w.Subscribe(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}

func TestDirWatcher_SubscribeAfterClose(t *testing.T) {
	w, err := NewDirWatcher()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, _, err = w.Subscribe(t.TempDir())
	assert.Error(t, err)
}
