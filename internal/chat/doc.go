// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat streams answers from the tool-agent chat endpoint and
// submits answer feedback.
//
// A chat request is one POST whose response body arrives incrementally.
// The body is split into events by a Decoder chosen by framing (plain
// text, newline-delimited JSON or server-sent events), and the events are
// handed to the caller through a Stream.
//
// # Key Types
//
//   - Service: builds requests and opens streams against a transport.Client
//   - ChatRequest, FeedbackRequest: request payloads
//   - Event: a content fragment or a terminal (done / error) marker
//   - Decoder: stateful chunk-to-event splitter, one per stream
//   - Stream: pull-based event sequence with push and channel adapters
//
// # Usage
//
//	svc := chat.NewService(client, chat.ServiceConfig{Framing: chat.FramingText})
//	stream, err := svc.Chat(ctx, chat.ChatRequest{Question: "How many orders today?", UserID: "u1", SessionID: sid})
//	if err != nil {
//	    // *transport.TransportError: the request never started
//	    return err
//	}
//	defer stream.Close()
//	for ev := range stream.Events() {
//	    switch ev.Kind {
//	    case chat.EventContent:
//	        fmt.Print(ev.Content)
//	    case chat.EventError:
//	        return ev.Err // failed after it started
//	    }
//	}
//
// # Guarantees
//
// Events arrive in the order the bytes did. Every stream ends with exactly
// one terminal event unless the caller cancels it first (Close or context
// cancellation); after cancellation no event at all is delivered and Err
// reports why.
package chat
