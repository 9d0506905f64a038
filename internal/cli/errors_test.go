// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/agentdesk/internal/api"
	"github.com/jeranaias/agentdesk/internal/config"
	"github.com/jeranaias/agentdesk/internal/transport"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitGeneralError},
		{"usage", usagef("bad flag %s", "--x"), ExitUsageError},
		{"wrapped config", fmt.Errorf("load: %w", &ConfigError{Path: "c.toml", Err: errors.New("parse")}), ExitConfigError},
		{"validation", config.ValidateErrors{{Field: "chat.framing", Message: "unknown"}}, ExitConfigError},
		{"deadline", fmt.Errorf("chat: %w", context.DeadlineExceeded), ExitTimeoutError},
		{"deadline in transport", &transport.TransportError{Cause: context.DeadlineExceeded}, ExitTimeoutError},
		{"sign-in required", &AuthRequiredError{Route: "/dashboard"}, ExitAuthError},
		{"no token", api.ErrNoToken, ExitAuthError},
		{"app 401", &api.ApplicationError{Path: api.PathLogin, Code: 401}, ExitAuthError},
		{"app 403", &api.ApplicationError{Path: api.PathUserInfo, Code: 403}, ExitAuthError},
		{"app 409", &api.ApplicationError{Path: api.PathRegister, Code: 409}, ExitGeneralError},
		{"http 401", &transport.TransportError{StatusCode: 401}, ExitAuthError},
		{"http 502", &transport.TransportError{StatusCode: 502}, ExitNetworkError},
		{"http 404", &transport.TransportError{StatusCode: 404}, ExitGeneralError},
		{"no response", &transport.TransportError{Cause: errors.New("connection refused")}, ExitNetworkError},
		{"joined", errors.Join(errors.New("clear"), &transport.TransportError{StatusCode: 401}), ExitAuthError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestIsUsageMessage(t *testing.T) {
	assert.True(t, isUsageMessage(errors.New(`unknown command "x" for "agentdesk"`)))
	assert.True(t, isUsageMessage(errors.New("accepts 1 arg(s), received 0")))
	assert.False(t, isUsageMessage(errors.New("api: rejected")))
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, nil)
	assert.Empty(t, buf.String())

	DisplayError(&buf, errors.New("kaput"))
	assert.Contains(t, buf.String(), "[ERROR]")
	assert.Contains(t, buf.String(), "kaput")
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "config: parse", (&ConfigError{Err: errors.New("parse")}).Error())
	assert.Equal(t, "config c.toml: parse", (&ConfigError{Path: "c.toml", Err: errors.New("parse")}).Error())
	assert.Contains(t, (&AuthRequiredError{Route: "/dashboard"}).Error(), "agentdesk login")
}
