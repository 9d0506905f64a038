// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// ENTRY
// =============================================================================

// Phase is the lifecycle point an Entry describes.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseSuccess
	PhaseError
)

// String returns the phase name used in log output.
func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is one diagnostic record.
type Entry struct {
	Phase     Phase
	Operation string // "stream" or "request"
	Method    string
	Path      string
	Payload   string // truncated JSON summary, never contains credentials
	Status    int    // HTTP status, 0 when no response was received
	Duration  time.Duration
	Err       error
}

// Diagnostics receives request lifecycle entries.
type Diagnostics interface {
	Record(ctx context.Context, e Entry)
}

// Nop discards every entry.
type Nop struct{}

// Record implements Diagnostics.
func (Nop) Record(context.Context, Entry) {}

// =============================================================================
// SLOG ADAPTER
// =============================================================================

// Slog writes entries to a structured logger. Start entries are logged at
// debug level, successes at info, errors at error.
type Slog struct {
	logger *slog.Logger
}

// NewSlog wraps logger. A nil logger falls back to slog.Default().
func NewSlog(logger *slog.Logger) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{logger: logger}
}

// Record implements Diagnostics.
func (s *Slog) Record(ctx context.Context, e Entry) {
	attrs := []slog.Attr{
		slog.String("op", e.Operation),
		slog.String("method", e.Method),
		slog.String("path", e.Path),
	}
	if e.Payload != "" {
		attrs = append(attrs, slog.String("payload", e.Payload))
	}
	if e.Status != 0 {
		attrs = append(attrs, slog.Int("status", e.Status))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", e.Duration))
	}

	switch e.Phase {
	case PhaseStart:
		s.logger.LogAttrs(ctx, slog.LevelDebug, "request start", attrs...)
	case PhaseSuccess:
		s.logger.LogAttrs(ctx, slog.LevelInfo, "request success", attrs...)
	default:
		if e.Err != nil {
			attrs = append(attrs, slog.String("error", e.Err.Error()))
		}
		s.logger.LogAttrs(ctx, slog.LevelError, "request error", attrs...)
	}
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder keeps every entry in memory. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record implements Diagnostics.
func (r *Recorder) Record(_ context.Context, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a copy of the recorded entries in arrival order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Phases returns the phase of every recorded entry, in order.
func (r *Recorder) Phases() []Phase {
	entries := r.Entries()
	out := make([]Phase, len(entries))
	for i, e := range entries {
		out[i] = e.Phase
	}
	return out
}

// Reset drops all recorded entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// =============================================================================
// FAN-OUT
// =============================================================================

// Multi forwards each entry to every non-nil sink in order.
func Multi(sinks ...Diagnostics) Diagnostics {
	var out multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Diagnostics

func (m multi) Record(ctx context.Context, e Entry) {
	for _, s := range m {
		s.Record(ctx, e)
	}
}
