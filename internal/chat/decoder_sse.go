// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// sseDone is the data payload that ends an OpenAI-style event stream.
const sseDone = "[DONE]"

// ssePayload is the superset of JSON data payloads accepted.
type ssePayload struct {
	Content *string         `json:"content"`
	Delta   json.RawMessage `json:"delta"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Done  bool            `json:"done"`
	Error json.RawMessage `json:"error"`
}

type sseDecoder struct {
	lines lineBuffer

	// current event
	event   string
	data    []string
	started int64 // body offset of the event's first line
	open    bool

	done bool
}

func (d *sseDecoder) Decode(chunk []byte) []Event {
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
			Framing:  FramingSSE,
			Offset:   d.lines.offset,
			Buffered: len(d.lines.buf),
			Reason:   fmt.Sprintf("line exceeds %d bytes", MaxLineSize),
		}))
	}
	return events
}

// Flush treats end of body as the end of the last line and of the last
// event, so a final event without its blank line is still delivered.
func (d *sseDecoder) Flush() []Event {
	if d.done {
		return nil
	}
	var events []Event
	if ln, ok := d.lines.tail(); ok {
		if !validSSELine(ln.text) {
			d.done = true
			return []Event{errorEvent(&DecodeError{
				Framing:  FramingSSE,
				Offset:   ln.offset,
				Buffered: len(ln.text),
				Reason:   fmt.Sprintf("truncated line %q at end of body", string(ln.text)),
			})}
		}
		events = d.appendLine(events, ln)
		if d.done {
			return events
		}
	}
	return d.dispatch(events)
}

func (d *sseDecoder) appendLine(events []Event, ln line) []Event {
	if len(ln.text) == 0 {
		return d.dispatch(events)
	}
	if ln.text[0] == ':' {
		return events // comment
	}

	field, value := splitSSEField(ln.text)
	if !d.open {
		d.open = true
		d.started = ln.offset
	}
	switch field {
	case "data":
		d.data = append(d.data, value)
	case "event":
		d.event = value
	}
	// id and retry carry nothing a chat consumer needs.
	return events
}

// dispatch emits the accumulated event, if any, and resets.
func (d *sseDecoder) dispatch(events []Event) []Event {
	if !d.open {
		return events
	}
	name, payload, started := d.event, strings.Join(d.data, "\n"), d.started
	d.event, d.data, d.open = "", nil, false

	if name == "error" {
		d.done = true
		return append(events, errorEvent(&RemoteError{Message: payload}))
	}
	if strings.TrimSpace(payload) == sseDone {
		d.done = true
		return append(events, doneEvent(sseDone))
	}
	if payload == "" {
		return events
	}

	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "{") {
		return append(events, contentEvent(payload))
	}

	var p ssePayload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		d.done = true
		return append(events, errorEvent(&DecodeError{
			Framing:  FramingSSE,
			Offset:   started,
			Buffered: len(payload),
			Reason:   "malformed JSON data: " + err.Error(),
		}))
	}

	if c := p.content(); c != "" {
		events = append(events, contentEvent(c))
	}
	if msg := remoteErrorMessage(p.Error); msg != "" {
		d.done = true
		return append(events, errorEvent(&RemoteError{Message: msg}))
	}
	if p.Done {
		d.done = true
		return append(events, doneEvent("done"))
	}
	return events
}

func (p *ssePayload) content() string {
	if p.Content != nil {
		return *p.Content
	}
	if len(p.Delta) > 0 {
		var s string
		if err := json.Unmarshal(p.Delta, &s); err == nil {
			return s
		}
		var obj struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal(p.Delta, &obj); err == nil {
			return obj.Content
		}
	}
	var b strings.Builder
	for _, c := range p.Choices {
		b.WriteString(c.Delta.Content)
	}
	return b.String()
}

// splitSSEField splits "field: value", removing one leading space from
// the value. A line without a colon is a field with an empty value.
func splitSSEField(text []byte) (field, value string) {
	idx := bytes.IndexByte(text, ':')
	if idx < 0 {
		return string(text), ""
	}
	field = string(text[:idx])
	value = string(text[idx+1:])
	return field, strings.TrimPrefix(value, " ")
}

// validSSELine reports whether an unterminated final line is a whole
// line rather than a fragment of one.
func validSSELine(text []byte) bool {
	if len(text) == 0 || text[0] == ':' {
		return true
	}
	field, _ := splitSSEField(text)
	switch field {
	case "data", "event", "id", "retry":
		return bytes.IndexByte(text, ':') >= 0
	}
	return false
}
