// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a development backend for agentdesk.
//
// It implements every endpoint the client talks to, so the CLI can be
// exercised without the real tool-agent and user service:
//
//   - POST /tool-agent/database/chat     - streamed answer (text, ndjson or sse)
//   - POST /tool-agent/database/feedback - feedback batches
//   - POST /business/user/captcha        - login captcha
//   - POST /business/user/login          - issues an HS256 JWT
//   - POST /business/user/register       - creates an account
//   - POST /business/user/logout         - revokes the bearer token
//   - GET  /business/user/info           - the signed-in user
//   - GET  /health                       - status and counters
//
// The stream framing is chosen from ?framing=, then the Accept header, then
// the server default. REST endpoints answer with the {code,message,data}
// envelope; application failures use HTTP 200 with a non-success code, the
// way the production backend does.
//
// Accounts, captchas and feedback live in memory only.
package server
