// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var started = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func sample() *Transcript {
	return &Transcript{
		SessionID: "sess-1",
		User:      "alice",
		BaseURL:   "http://localhost:8082",
		StartedAt: started,
		Turns: []Turn{
			{
				MessageID: "m1",
				Question:  "How many orders: today?",
				Answer:    "**42** orders.\n",
				Rating:    "up",
				AskedAt:   started,
				Elapsed:   1500 * time.Millisecond,
			},
			{
				MessageID: "m2",
				Question:  "and yesterday?",
				AskedAt:   started.Add(time.Minute),
				Canceled:  true,
			},
		},
	}
}

func TestMarkdownExporter(t *testing.T) {
	e := &MarkdownExporter{Now: func() time.Time { return started }}
	out, err := e.Export(sample())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\n"))
	assert.Contains(t, md, `title: "How many orders: today?"`)
	assert.Contains(t, md, "session: sess-1\n")
	assert.Contains(t, md, "turns: 2\n")
	assert.Contains(t, md, "# How many orders: today?\n")
	assert.Contains(t, md, "> How many orders: today?\n\n**42** orders.\n")
	assert.Contains(t, md, "<sub>1.5s | rated up</sub>")
	assert.Contains(t, md, "*(no answer)*")
	assert.Contains(t, md, "<sub>canceled</sub>")
	assert.Equal(t, ".md", e.FileExtension())
}

func TestJSONExporter(t *testing.T) {
	out, err := (&JSONExporter{}).Export(sample())
	require.NoError(t, err)

	var back Transcript
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "sess-1", back.SessionID)
	require.Len(t, back.Turns, 2)
	assert.Equal(t, 1500*time.Millisecond, back.Turns[0].Elapsed)
	assert.True(t, back.Turns[1].Canceled)
}

func TestExport_EmptyTranscript(t *testing.T) {
	for _, e := range []Exporter{&MarkdownExporter{}, &JSONExporter{}} {
		_, err := e.Export(&Transcript{})
		assert.ErrorIs(t, err, ErrEmptyTranscript)
		_, err = e.Export(nil)
		assert.ErrorIs(t, err, ErrEmptyTranscript)
	}
}

func TestForFormat(t *testing.T) {
	for format, ext := range map[string]string{"": ".md", "md": ".md", "Markdown": ".md", "json": ".json"} {
		e, err := ForFormat(format)
		require.NoError(t, err, format)
		assert.Equal(t, ext, e.FileExtension())
	}
	_, err := ForFormat("html")
	assert.Error(t, err)
}

func TestToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")

	path, err := ToFile(sample(), &JSONExporter{}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chat_How_many_orders-_today-_20250314_092653.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sessionId": "sess-1"`)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "conversation"},
		{"a/b\\c", "a-b-c"},
		{"two words\there", "two_words_here"},
		{"bell\x07", "bell-"},
		{strings.Repeat("x", 50), strings.Repeat("x", 40)},
		{"日本語の質問", "日本語の質問"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, sanitizeFilename(tc.in), tc.in)
	}
}

func TestEscapeYAML(t *testing.T) {
	assert.Equal(t, "plain", escapeYAML("plain"))
	assert.Equal(t, `"a: b"`, escapeYAML("a: b"))
	assert.Equal(t, `"line\nbreak"`, escapeYAML("line\nbreak"))
}
