// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is returned when a request is rejected by the server
// (non-2xx status) or could not be completed at all. StatusCode is 0 in the
// second case and Cause carries the network error.
type TransportError struct {
	StatusCode int
	StatusText string
	Method     string
	Path       string
	Body       string // first MaxErrorBody bytes of the error response
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s %s: HTTP error! status: %d %s", e.Method, e.Path, e.StatusCode, e.StatusText)
	}
	if e.Cause != nil {
		return fmt.Sprintf("transport: %s %s: request failed: %v", e.Method, e.Path, e.Cause)
	}
	return fmt.Sprintf("transport: %s %s: request failed", e.Method, e.Path)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// HasStatus reports whether the server answered. False means the
// connection failed before any response arrived.
func (e *TransportError) HasStatus() bool {
	return e.StatusCode != 0
}

func newStatusError(method, path string, status int, body []byte) *TransportError {
	return &TransportError{
		StatusCode: status,
		StatusText: http.StatusText(status),
		Method:     method,
		Path:       path,
		Body:       string(body),
	}
}

func newConnError(method, path string, cause error) *TransportError {
	return &TransportError{Method: method, Path: path, Cause: cause}
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a
// *TransportError or no response was received.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}
