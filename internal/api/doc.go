// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api wraps the /business/user REST endpoints: captcha, login,
// registration, logout and the current user's profile.
//
// Every response is a JSON envelope {code, message, data}. A 2xx response
// whose code is present and is neither 0 nor 200 is an *ApplicationError.
// All failures are also passed to the configured Notifier, which is how
// the CLI surfaces them to the user.
//
// Login and Logout keep the session in step: a successful login stores the
// token, logout clears it even if the backend call fails.
package api
