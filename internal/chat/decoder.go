// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// FRAMING
// =============================================================================

// Framing names how a stream body is split into events.
type Framing string

const (
	// FramingText treats the whole body as answer text.
	FramingText Framing = "text"
	// FramingNDJSON expects one JSON object per line.
	FramingNDJSON Framing = "ndjson"
	// FramingSSE expects server-sent events.
	FramingSSE Framing = "sse"
)

// MaxLineSize caps one line of a line-oriented framing.
const MaxLineSize = 64 * 1024

// ParseFraming resolves a framing name. The empty string means text.
func ParseFraming(s string) (Framing, error) {
	switch f := Framing(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FramingText, nil
	case FramingText, FramingNDJSON, FramingSSE:
		return f, nil
	default:
		return "", fmt.Errorf("chat: unknown framing %q (want text, ndjson or sse)", s)
	}
}

// Accept returns the Accept header value a request in this framing sends.
func (f Framing) Accept() string {
	switch f {
	case FramingNDJSON:
		return "application/x-ndjson"
	case FramingSSE:
		return "text/event-stream"
	default:
		return "text/plain"
	}
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns body chunks into events. A Decoder holds the bytes of an
// incomplete frame between calls and belongs to exactly one stream.
//
// The events produced for a body do not depend on where the body was cut
// into chunks. After a decoder has produced a terminal event it produces
// nothing further.
type Decoder interface {
	// Decode consumes one chunk. The chunk may be reused by the caller once
	// Decode returns.
	Decode(chunk []byte) []Event

	// Flush is called once at end of body and reports whatever is still
	// buffered: a final frame, or an error if the buffer is not one.
	Flush() []Event
}

// NewDecoder returns a fresh decoder for framing. Unknown framings fall
// back to text.
func NewDecoder(f Framing) Decoder {
	switch f {
	case FramingNDJSON:
		return &ndjsonDecoder{}
	case FramingSSE:
		return &sseDecoder{}
	default:
		return &textDecoder{}
	}
}

// =============================================================================
// TEXT
// =============================================================================

// textDecoder passes bytes through as content, holding back a multi-byte
// UTF-8 sequence that a chunk boundary cut in half.
type textDecoder struct {
	pending []byte
	offset  int64 // body offset of pending[0]
}

func (d *textDecoder) Decode(chunk []byte) []Event {
	if len(chunk) == 0 {
		return nil
	}

	data := make([]byte, 0, len(d.pending)+len(chunk))
	data = append(data, d.pending...)
	data = append(data, chunk...)

	cut := completeUTF8Prefix(data)
	d.pending = append(d.pending[:0], data[cut:]...)
	d.offset += int64(cut)

	if cut == 0 {
		return nil
	}
	return []Event{contentEvent(string(data[:cut]))}
}

func (d *textDecoder) Flush() []Event {
	if len(d.pending) == 0 {
		return nil
	}
	err := &DecodeError{
		Framing:  FramingText,
		Offset:   d.offset,
		Buffered: len(d.pending),
		Reason:   "incomplete UTF-8 sequence at end of body",
	}
	d.pending = nil
	return []Event{errorEvent(err)}
}

// completeUTF8Prefix returns the length of the longest prefix of b that
// does not end inside a multi-byte sequence. Invalid bytes count as
// complete and pass through unchanged.
func completeUTF8Prefix(b []byte) int {
	n := len(b)
	// Find the start byte of the last sequence, at most UTFMax bytes back.
	i := n - 1
	for i >= 0 && n-i < utf8.UTFMax && !utf8.RuneStart(b[i]) {
		i--
	}
	if i < 0 || !utf8.RuneStart(b[i]) {
		return n
	}
	if utf8.FullRune(b[i:]) {
		return n
	}
	return i
}

// =============================================================================
// LINE BUFFER
// =============================================================================

// lineBuffer splits chunks into lines terminated by "\n" (optionally
// preceded by "\r"), carrying a partial line across calls.
type lineBuffer struct {
	buf    []byte
	offset int64 // body offset of buf[0]
}

// line is one complete line and the body offset at which it starts.
type line struct {
	text   []byte
	offset int64
}

// feed appends chunk and returns the complete lines it finished. A partial
// line longer than MaxLineSize is reported through tooLong.
func (l *lineBuffer) feed(chunk []byte) (lines []line, tooLong bool) {
	l.buf = append(l.buf, chunk...)

	start := 0
	for {
		idx := bytes.IndexByte(l.buf[start:], '\n')
		if idx < 0 {
			break
		}
		end := start + idx
		text := bytes.TrimSuffix(l.buf[start:end], []byte("\r"))
		lines = append(lines, line{text: text, offset: l.offset + int64(start)})
		start = end + 1
	}

	// Lines alias buf, so the remainder is copied rather than shifted.
	rest := l.buf[start:]
	l.offset += int64(start)
	if len(rest) > 0 {
		l.buf = append([]byte(nil), rest...)
	} else {
		l.buf = nil
	}
	return lines, len(l.buf) > MaxLineSize
}

// tail returns and clears the unterminated remainder.
func (l *lineBuffer) tail() (line, bool) {
	if len(l.buf) == 0 {
		return line{}, false
	}
	out := line{text: bytes.TrimSuffix(l.buf, []byte("\r")), offset: l.offset}
	l.offset += int64(len(l.buf))
	l.buf = nil
	return out, true
}
