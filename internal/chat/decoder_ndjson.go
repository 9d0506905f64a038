// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ndjsonFrame is the superset of line shapes accepted: the plain
// {"content","done","error"} form and the Ollama chat form.
type ndjsonFrame struct {
	Content *string `json:"content"`
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done       bool            `json:"done"`
	DoneReason string          `json:"done_reason"`
	Error      json.RawMessage `json:"error"`
}

func (f *ndjsonFrame) content() string {
	if f.Content != nil {
		return *f.Content
	}
	if f.Message != nil {
		return f.Message.Content
	}
	return ""
}

type ndjsonDecoder struct {
	lines lineBuffer
	done  bool
}

func (d *ndjsonDecoder) Decode(chunk []byte) []Event {
	if d.done {
		return nil
	}

	lines, tooLong := d.lines.feed(chunk)
	var events []Event
	for _, ln := range lines {
		events = d.appendLine(events, ln)
		if d.done {
			return events
		}
	}
	if tooLong {
		d.done = true
		events = append(events, errorEvent(&DecodeError{
			Framing:  FramingNDJSON,
			Offset:   d.lines.offset,
			Buffered: len(d.lines.buf),
			Reason:   fmt.Sprintf("line exceeds %d bytes", MaxLineSize),
		}))
	}
	return events
}

func (d *ndjsonDecoder) Flush() []Event {
	if d.done {
		return nil
	}
	ln, ok := d.lines.tail()
	if !ok {
		return nil
	}
	return d.appendLine(nil, ln)
}

// appendLine decodes one line, appending its events. Blank lines are
// keep-alives and produce nothing.
func (d *ndjsonDecoder) appendLine(events []Event, ln line) []Event {
	text := bytes.TrimSpace(ln.text)
	if len(text) == 0 {
		return events
	}

	var frame ndjsonFrame
	if err := json.Unmarshal(text, &frame); err != nil {
		d.done = true
		return append(events, errorEvent(&DecodeError{
			Framing:  FramingNDJSON,
			Offset:   ln.offset,
			Buffered: len(ln.text),
			Reason:   "malformed JSON line: " + err.Error(),
		}))
	}

	if c := frame.content(); c != "" {
		events = append(events, contentEvent(c))
	}
	if msg := remoteErrorMessage(frame.Error); msg != "" {
		d.done = true
		return append(events, errorEvent(&RemoteError{Message: msg}))
	}
	if frame.Done {
		d.done = true
		reason := frame.DoneReason
		if reason == "" {
			reason = "done"
		}
		return append(events, doneEvent(reason))
	}
	return events
}

// remoteErrorMessage extracts a message from an "error" member that is
// either a string or an object with a "message" field.
func remoteErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(raw)
}
