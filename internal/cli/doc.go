// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the agentdesk command line.
//
// # Commands
//
//	chat [question]   stream an answer, or start an interactive session
//	feedback          rate an answer
//	captcha <account> request a login captcha
//	login             sign in and store the token
//	register          create an account
//	logout            sign out
//	whoami            show the signed-in user
//	route <path>      resolve a console path for the current session
//	config            show, get, init or locate the configuration
//	serve             run the development backend
//
// # Exit Codes
//
//	0  success
//	1  general error
//	2  usage error
//	3  configuration error
//	4  authentication required or rejected
//	5  backend unreachable or failing
//	8  timeout
//
// All commands share one session store, so a login in one terminal is seen
// by a chat session running in another.
package cli
