// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the agentdesk packages.
//
//   - AtomicWriteFile: crash-safe file replacement used by the session file store
//   - TruncateRunes: UTF-8 safe truncation for log lines
//   - SummarizePayload: compact JSON rendering of request bodies for diagnostics
package util
