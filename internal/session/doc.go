// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the signed-in state of the console: the bearer
// token, the cached user profile and the chat session id.
//
// State lives in a storage.Store so it survives restarts and is visible to
// every agentdesk process using the same store. A Session keeps an
// in-memory copy that Init loads, Update/Clear write through, and Watch
// refreshes when another process changes the store.
//
// # Key Types
//
//   - Session: the state plus its lifecycle (Init, Update, Clear)
//   - User: the cached profile
//
// # Usage
//
//	sess := session.New(store)
//	if err := sess.Init(ctx); err != nil {
//	    return err
//	}
//	client := transport.New(baseURL, transport.WithTokenSource(sess))
//
// # Token Validity
//
// Tokens are opaque to the client with one exception: a token that parses
// as a JWT with an exp claim in the past counts as absent. The signature is
// never checked here; the backend does that.
package session
