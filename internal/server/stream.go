// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jeranaias/agentdesk/internal/chat"
)

// ============================================================================
// FRAMING NEGOTIATION
// ============================================================================

// negotiateFraming picks the body framing for a chat request. An explicit
// ?framing= query wins, then the Accept header, then fallback.
func negotiateFraming(r *http.Request, fallback chat.Framing) chat.Framing {
	if q := r.URL.Query().Get("framing"); q != "" {
		if f, err := chat.ParseFraming(q); err == nil {
			return f
		}
	}

	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "text/event-stream"):
		return chat.FramingSSE
	case strings.Contains(accept, "application/x-ndjson"):
		return chat.FramingNDJSON
	case strings.Contains(accept, "text/plain"):
		return chat.FramingText
	}
	return fallback
}

// ============================================================================
// STREAM WRITER
// ============================================================================

// streamWriter emits answer pieces in one framing and flushes after each.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	framing chat.Framing
}

func newStreamWriter(w http.ResponseWriter, flusher http.Flusher, framing chat.Framing) *streamWriter {
	h := w.Header()
	switch framing {
	case chat.FramingSSE:
		h.Set("Content-Type", "text/event-stream")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
	case chat.FramingNDJSON:
		h.Set("Content-Type", "application/x-ndjson")
	default:
		h.Set("Content-Type", "text/plain; charset=utf-8")
	}
	h.Set("X-Stream-Framing", string(framing))
	return &streamWriter{w: w, flusher: flusher, framing: framing}
}

type contentFrame struct {
	Content string `json:"content"`
}

type doneFrame struct {
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason,omitempty"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// content writes one piece of the answer.
func (s *streamWriter) content(piece string) error {
	var err error
	switch s.framing {
	case chat.FramingSSE:
		err = s.event(contentFrame{Content: piece})
	case chat.FramingNDJSON:
		err = s.line(contentFrame{Content: piece})
	default:
		_, err = s.w.Write([]byte(piece))
	}
	s.flusher.Flush()
	return err
}

// done marks the end of the answer. Plain text ends with the body.
func (s *streamWriter) done(reason string) error {
	var err error
	switch s.framing {
	case chat.FramingSSE:
		_, err = fmt.Fprint(s.w, "data: [DONE]\n\n")
	case chat.FramingNDJSON:
		err = s.line(doneFrame{Done: true, DoneReason: reason})
	}
	s.flusher.Flush()
	return err
}

// fail reports a mid-stream failure in-band. Plain text has no way to do
// that, so the body is simply cut short.
func (s *streamWriter) fail(message string) error {
	var err error
	switch s.framing {
	case chat.FramingSSE:
		message = strings.ReplaceAll(message, "\n", " ")
		_, err = fmt.Fprintf(s.w, "event: error\ndata: %s\n\n", message)
	case chat.FramingNDJSON:
		err = s.line(errorFrame{Error: message})
	}
	s.flusher.Flush()
	return err
}

func (s *streamWriter) line(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.w.Write(data)
	return err
}

func (s *streamWriter) event(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(s.w, "data: %s\n\n", data)
	return err
}
