// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope is the common response wrapper.
type Envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`

	// Raw is the whole response body.
	Raw json.RawMessage `json:"-"`
}

// OK reports whether the envelope signals success. A missing code counts
// as success since the HTTP status already did.
func (e *Envelope) OK() bool {
	return e.Code == nil || *e.Code == 0 || *e.Code == 200
}

// HasData reports whether data is present and not null.
func (e *Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// decodeEnvelope parses body. An empty body is an empty envelope.
func decodeEnvelope(body []byte) (*Envelope, error) {
	env := &Envelope{Raw: body}
	if len(bytes.TrimSpace(body)) == 0 {
		return env, nil
	}
	if err := json.Unmarshal(body, env); err != nil {
		return nil, fmt.Errorf("api: decode response envelope: %w", err)
	}
	return env, nil
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNoToken means a login response succeeded but carried no token in any
// of the places one is looked for.
var ErrNoToken = errors.New("api: login failed: no token in response")

// ApplicationError is a rejection reported inside a successful HTTP
// response.
type ApplicationError struct {
	Path    string
	Code    int
	Message string
}

func (e *ApplicationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Error"
	}
	return fmt.Sprintf("api: %s rejected (code %d): %s", e.Path, e.Code, msg)
}

// IsApplicationError reports whether err is or wraps an *ApplicationError.
func IsApplicationError(err error) bool {
	var ae *ApplicationError
	return errors.As(err, &ae)
}

// =============================================================================
// NOTIFIER
// =============================================================================

// Notifier is told about every failed REST call. Implementations must not
// block for long; they run on the caller's goroutine.
type Notifier interface {
	Notify(ctx context.Context, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, err error)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, err error) {
	f(ctx, err)
}
