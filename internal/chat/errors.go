// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
)

// Validation and lifecycle sentinels.
var (
	ErrEmptyQuestion = errors.New("chat: question must not be empty")
	ErrNoFeedback    = errors.New("chat: at least one feedback record is required")
	ErrCanceled      = errors.New("chat: stream canceled")
)

// DecodeError reports body bytes that do not form a valid event under the
// stream's framing. Offset is the position in the body where the bad frame
// starts.
type DecodeError struct {
	Framing  Framing
	Offset   int64
	Buffered int
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("chat: decode %s stream at byte %d: %s (%d bytes buffered)", e.Framing, e.Offset, e.Reason, e.Buffered)
}

// StreamError reports a transport failure after the stream had started.
// Received is the number of content bytes delivered before the failure.
type StreamError struct {
	Received int
	Err      error
}

func (e *StreamError) Error() string {
	if e.Received > 0 {
		return fmt.Sprintf("chat: stream interrupted after %d bytes of content: %v", e.Received, e.Err)
	}
	return fmt.Sprintf("chat: stream interrupted: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// RemoteError is an error the backend reported inside the stream body.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "chat: backend error: " + e.Message
}
