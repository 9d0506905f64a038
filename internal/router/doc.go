// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package router guards navigation between console routes.
//
// A Guard decides, for a target path, whether navigation proceeds or is
// redirected, based only on whether a usable session token exists:
//
//   - signed in, target is the login page: redirect to the home path
//   - signed in, any other target: allow
//   - signed out, target is whitelisted (login, register): allow
//   - signed out, any other target: redirect to the login page with the
//     original path in the redirect query parameter
//
// The route Table adds the console's own redirects (/ to /dashboard,
// /system to /system/user); Navigate applies both until the path settles.
//
// # Key Types
//
//   - Guard: the navigation check
//   - Decision: allow, or redirect to Target
//   - Table, Route: the console route tree
package router
