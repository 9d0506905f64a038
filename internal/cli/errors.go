// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types and exit code mapping for agentdesk commands.
//
// Commands always return errors; Run prints them once and turns them into
// an exit code.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jeranaias/agentdesk/internal/api"
	"github.com/jeranaias/agentdesk/internal/config"
	"github.com/jeranaias/agentdesk/internal/transport"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates authentication or authorization failure
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports bad arguments or flags.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// usagef builds a UsageError from a format string.
func usagef(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// ConfigError reports a configuration file that could not be used.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// AuthRequiredError is returned when a command needs a signed-in session.
type AuthRequiredError struct {
	Route string // page the command stands for
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("sign-in required for %s: run 'agentdesk login' first", e.Route)
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode determines the exit code for err.
//
//   - ExitUsageError (2): UsageError
//   - ExitConfigError (3): ConfigError, config.ValidateErrors
//   - ExitTimeoutError (8): deadline exceeded
//   - ExitAuthError (4): sign-in required, rejected credentials, 401/403
//   - ExitNetworkError (5): no response from the backend, 5xx
//   - ExitGeneralError (1): all other errors
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ue *UsageError
	if errors.As(err, &ue) {
		return ExitUsageError
	}

	var ce *ConfigError
	var ve config.ValidateErrors
	if errors.As(err, &ce) || errors.As(err, &ve) {
		return ExitConfigError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeoutError
	}

	var are *AuthRequiredError
	if errors.As(err, &are) || errors.Is(err, api.ErrNoToken) {
		return ExitAuthError
	}
	var ae *api.ApplicationError
	if errors.As(err, &ae) && (ae.Code == http.StatusUnauthorized || ae.Code == http.StatusForbidden) {
		return ExitAuthError
	}

	var te *transport.TransportError
	if errors.As(err, &te) {
		switch {
		case te.StatusCode == http.StatusUnauthorized || te.StatusCode == http.StatusForbidden:
			return ExitAuthError
		case !te.HasStatus() || te.StatusCode >= 500:
			return ExitNetworkError
		}
	}

	return ExitGeneralError
}

// isUsageMessage recognises cobra's own argument and command errors,
// which are plain errors.
func isUsageMessage(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"unknown command", "unknown flag", "unknown shorthand flag", "accepts ", "requires at least", "requires at most", "invalid argument"} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err in the standard format.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}
