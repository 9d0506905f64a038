// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport is the HTTP layer shared by the chat stream and the
// REST endpoints of the tool-agent backend.
//
// It knows nothing about payload semantics. It POSTs JSON, attaches the
// bearer token when asked to, and reports failures as *TransportError:
// a non-2xx status (StatusCode set) or a request that never got a response
// (StatusCode == 0, Cause set).
//
// # Key Types
//
//   - Client: configured base URL, HTTP client, token source, rate limit, diagnostics
//   - StreamHandle: lazily read response body, one chunk per Next call
//   - TransportError: the single error kind for transport failures
//
// # Usage
//
// Open a stream and pull raw chunks:
//
//	client := transport.New("http://localhost:8082")
//	h, err := client.OpenStream(ctx, "/tool-agent/database/chat", payload, transport.StreamOptions{})
//	if err != nil {
//	    return err // *TransportError, nothing was read
//	}
//	defer h.Close()
//	for {
//	    chunk, err := h.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
//
// Non-streaming calls go through Client.Do, which is bounded by the
// client's request timeout. Streams are only bounded by their own optional
// StreamOptions.Timeout and by the caller's context.
package transport
