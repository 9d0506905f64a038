// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the small persistent key/value stores that hold
// session state between agentdesk runs.
//
// # Key Types
//
//   - Store: Get/Set/Delete over string keys
//   - Watcher: optional change notification for stores shared by processes
//   - FileStore: one JSON file written atomically with 0600 permissions
//   - SQLiteStore: a kv table in a SQLite database
//   - MemoryStore: process-local, for tests and throwaway sessions
//
// # Usage
//
//	store, err := storage.Open(storage.BackendFile, "~/.agentdesk/session.json")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.Set(ctx, "token", tok)
//	tok, err := store.Get(ctx, "token") // storage.ErrNotFound when absent
//
// # Storage Location
//
// The default file lives at ~/.agentdesk/session.json; the SQLite backend
// defaults to ~/.agentdesk/session.db.
package storage
