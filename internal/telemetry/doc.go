// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides the request diagnostics hook for agentdesk.
//
// Every outbound call made by the transport layer reports three phases:
// start, success and error. The hook is an interface so that production
// code logs through log/slog while tests assert on recorded entries
// instead of scraping stderr.
//
// # Key Types
//
//   - Diagnostics: the injectable hook
//   - Entry: one diagnostic record (phase, operation, path, status, payload summary)
//   - Slog: Diagnostics backed by a *slog.Logger
//   - Recorder: Diagnostics that keeps entries in memory
//
// # Usage
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
//	diag := telemetry.NewSlog(logger)
//	client := transport.New(baseURL, transport.WithDiagnostics(diag))
//
// Diagnostics are best effort. Implementations must not block and must
// not fail the request they describe.
package telemetry
