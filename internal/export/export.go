// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/agentdesk/internal/util"
)

// ErrEmptyTranscript is returned for a transcript without turns.
var ErrEmptyTranscript = errors.New("export: transcript has no turns")

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Turn is one question and the answer streamed for it.
type Turn struct {
	MessageID string        `json:"messageId"`
	Question  string        `json:"question"`
	Answer    string        `json:"answer"`
	Rating    string        `json:"rating,omitempty"`
	AskedAt   time.Time     `json:"askedAt"`
	Elapsed   time.Duration `json:"elapsedNs"`
	Canceled  bool          `json:"canceled,omitempty"`
}

// Transcript is one chat conversation.
type Transcript struct {
	SessionID string    `json:"sessionId"`
	User      string    `json:"user,omitempty"`
	BaseURL   string    `json:"baseUrl,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Turns     []Turn    `json:"turns"`
}

// Title is the first question, shortened.
func (t *Transcript) Title() string {
	if len(t.Turns) == 0 {
		return "conversation"
	}
	return util.TruncateRunes(strings.TrimSpace(t.Turns[0].Question), 60)
}

func (t *Transcript) validate() error {
	if t == nil || len(t.Turns) == 0 {
		return ErrEmptyTranscript
	}
	return nil
}

// =============================================================================
// EXPORTERS
// =============================================================================

// Exporter renders a transcript in one format.
type Exporter interface {
	Export(t *Transcript) ([]byte, error)

	// FileExtension includes the dot, e.g. ".md".
	FileExtension() string
}

// ForFormat returns the exporter for "md"/"markdown" or "json".
func ForFormat(format string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", "markdown":
		return &MarkdownExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("export: unknown format %q (want md or json)", format)
	}
}

// ToFile writes t into dir under a name derived from its title and start
// time, and returns the path. The file is written atomically with
// owner-only permissions: transcripts may contain query results.
func ToFile(t *Transcript, exporter Exporter, dir string) (string, error) {
	content, err := exporter.Export(t)
	if err != nil {
		return "", err
	}
	if dir == "" {
		dir = "."
	}

	name := fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(t.Title()),
		t.StartedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(dir, name)
	if err := util.AtomicWriteFile(path, content, 0600, 0700); err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	return path, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// Windows or Unix. The result is at most 40 runes.
func sanitizeFilename(s string) string {
	const maxLen = 40
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r), r < 32, r == 127:
			out = append(out, '-')
		case r == ' ' || r == '\t':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "conversation"
	}
	return string(out)
}
