// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends opens one store of every kind in a fresh temp dir.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	file, err := Open(BackendFile, filepath.Join(dir, "session.json"))
	require.NoError(t, err)
	db, err := Open(BackendSQLite, filepath.Join(dir, "session.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"file":   file,
		"sqlite": db,
		"memory": NewMemoryStore(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

// =============================================================================
// CONTRACT TESTS
// =============================================================================

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "token")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "token", "abc"))
			require.NoError(t, s.Set(ctx, "user", "alice"))
			require.NoError(t, s.Set(ctx, "token", "def"))

			v, err := s.Get(ctx, "token")
			require.NoError(t, err)
			assert.Equal(t, "def", v)

			require.NoError(t, s.Delete(ctx, "token"))
			require.NoError(t, s.Delete(ctx, "token"), "deleting a missing key is fine")

			_, err = s.Get(ctx, "token")
			assert.ErrorIs(t, err, ErrNotFound)

			v, err = s.Get(ctx, "user")
			require.NoError(t, err)
			assert.Equal(t, "alice", v)
		})
	}
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, backend := range []Backend{BackendFile, BackendSQLite} {
		t.Run(string(backend), func(t *testing.T) {
			path := DefaultPath(backend, dir)

			s, err := Open(backend, path)
			require.NoError(t, err)
			require.NoError(t, s.Set(ctx, "token", "persisted"))
			require.NoError(t, s.Close())

			s, err = Open(backend, path)
			require.NoError(t, err)
			defer s.Close()

			v, err := s.Get(ctx, "token")
			require.NoError(t, err)
			assert.Equal(t, "persisted", v)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open("redis", "x")
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), "k", "v"), ErrClosed)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.agentdesk/session.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".agentdesk", "session.json"), got)

	got, err = ExpandHome("/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", got)
}

// =============================================================================
// FILE STORE TESTS
// =============================================================================

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFileStore_WatchSeesOtherWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	watched, err := NewFileStore(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes, err := watched.Watch(ctx)
	require.NoError(t, err)

	// A second store on the same file stands in for another process.
	other, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, other.Set(context.Background(), "token", "from-elsewhere"))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}

	v, err := watched.Get(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "from-elsewhere", v)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
