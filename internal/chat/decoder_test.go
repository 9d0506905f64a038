// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeAll feeds chunks to a fresh decoder and flushes it.
func decodeAll(f Framing, chunks ...string) []Event {
	d := NewDecoder(f)
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Decode([]byte(c))...)
	}
	return append(events, d.Flush()...)
}

// outcome reduces events to the concatenated content and the kinds of
// the non-content events, which is what chunking must not change.
func outcome(events []Event) (string, []EventKind) {
	var b strings.Builder
	var kinds []EventKind
	for _, ev := range events {
		if ev.Kind == EventContent {
			b.WriteString(ev.Content)
			continue
		}
		kinds = append(kinds, ev.Kind)
	}
	return b.String(), kinds
}

// assertSplitIndependent checks every two-way split of body against the
// unsplit decode.
func assertSplitIndependent(t *testing.T, f Framing, body string) {
	t.Helper()
	wantText, wantKinds := outcome(decodeAll(f, body))
	for i := 1; i < len(body); i++ {
		gotText, gotKinds := outcome(decodeAll(f, body[:i], body[i:]))
		assert.Equal(t, wantText, gotText, "split at %d", i)
		assert.Equal(t, wantKinds, gotKinds, "split at %d", i)
	}
}

func TestParseFraming(t *testing.T) {
	tests := []struct {
		in      string
		want    Framing
		wantErr bool
	}{
		{"", FramingText, false},
		{"text", FramingText, false},
		{" NDJSON ", FramingNDJSON, false},
		{"sse", FramingSSE, false},
		{"xml", "", true},
	}
	for _, tc := range tests {
		got, err := ParseFraming(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
	assert.Equal(t, "text/event-stream", FramingSSE.Accept())
	assert.Equal(t, "application/x-ndjson", FramingNDJSON.Accept())
	assert.Equal(t, "text/plain", FramingText.Accept())
}

// =============================================================================
// TEXT
// =============================================================================

func TestTextDecoder_ChunkingDoesNotMatter(t *testing.T) {
	split := decodeAll(FramingText, "He", "llo wor", "ld")
	whole := decodeAll(FramingText, "Hello world")

	splitText, splitKinds := outcome(split)
	wholeText, wholeKinds := outcome(whole)
	assert.Equal(t, "Hello world", splitText)
	assert.Equal(t, wholeText, splitText)
	assert.Empty(t, splitKinds)
	assert.Empty(t, wholeKinds)
	assert.Len(t, split, 3)
}

func TestTextDecoder_MultiByteAcrossChunks(t *testing.T) {
	body := "答案: 你好🙂!"
	assertSplitIndependent(t, FramingText, body)

	for i := 1; i < len(body); i++ {
		for _, ev := range decodeAll(FramingText, body[:i], body[i:]) {
			require.Equal(t, EventContent, ev.Kind)
			assert.True(t, utf8.ValidString(ev.Content), "split at %d produced %q", i, ev.Content)
		}
	}
}

func TestTextDecoder_EmptyChunk(t *testing.T) {
	d := NewDecoder(FramingText)
	assert.Empty(t, d.Decode(nil))
	assert.Empty(t, d.Decode([]byte{}))
	assert.Empty(t, d.Flush())
}

func TestTextDecoder_IncompleteTail(t *testing.T) {
	body := "ok 你"
	events := decodeAll(FramingText, body[:len(body)-1])

	require.Len(t, events, 2)
	assert.Equal(t, "ok ", events[0].Content)
	require.Equal(t, EventError, events[1].Kind)

	var de *DecodeError
	require.True(t, errors.As(events[1].Err, &de))
	assert.Equal(t, FramingText, de.Framing)
	assert.Equal(t, int64(3), de.Offset)
	assert.Equal(t, 2, de.Buffered)
}

func TestTextDecoder_InvalidBytesPassThrough(t *testing.T) {
	text, kinds := outcome(decodeAll(FramingText, "a\xffb"))
	assert.Equal(t, "a\xffb", text)
	assert.Empty(t, kinds)
}

// =============================================================================
// NDJSON
// =============================================================================

func TestNDJSONDecoder_Basic(t *testing.T) {
	body := `{"content":"Hel"}` + "\n" +
		"\n" +
		`{"content":"lo"}` + "\r\n" +
		`{"content":"","done":true}` + "\n"

	events := decodeAll(FramingNDJSON, body)
	require.Len(t, events, 3)
	assert.Equal(t, "Hel", events[0].Content)
	assert.Equal(t, "lo", events[1].Content)
	assert.Equal(t, EventDone, events[2].Kind)
	assert.Equal(t, "done", events[2].Reason)

	assertSplitIndependent(t, FramingNDJSON, body)
}

func TestNDJSONDecoder_OllamaShape(t *testing.T) {
	body := `{"message":{"role":"assistant","content":"你好"},"done":false}` + "\n" +
		`{"message":{"content":""},"done":true,"done_reason":"stop"}` + "\n"

	events := decodeAll(FramingNDJSON, body)
	require.Len(t, events, 2)
	assert.Equal(t, "你好", events[0].Content)
	assert.Equal(t, "stop", events[1].Reason)
}

func TestNDJSONDecoder_NothingAfterDone(t *testing.T) {
	events := decodeAll(FramingNDJSON, `{"done":true}`+"\n", `{"content":"late"}`+"\n")
	require.Len(t, events, 1)
	assert.Equal(t, EventDone, events[0].Kind)
}

func TestNDJSONDecoder_ErrorField(t *testing.T) {
	for _, line := range []string{
		`{"content":"part","error":"database unavailable"}`,
		`{"content":"part","error":{"message":"database unavailable"}}`,
	} {
		events := decodeAll(FramingNDJSON, line+"\n")
		require.Len(t, events, 2, line)
		assert.Equal(t, "part", events[0].Content)

		var re *RemoteError
		require.True(t, errors.As(events[1].Err, &re))
		assert.Equal(t, "database unavailable", re.Message)
	}
}

func TestNDJSONDecoder_MalformedLine(t *testing.T) {
	events := decodeAll(FramingNDJSON, `{"content":"a"}`+"\n"+`{not json}`+"\n"+`{"content":"b"}`+"\n")
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Content)

	var de *DecodeError
	require.True(t, errors.As(events[1].Err, &de))
	assert.Equal(t, FramingNDJSON, de.Framing)
	assert.Equal(t, int64(16), de.Offset)
}

func TestNDJSONDecoder_TrailingLineWithoutNewline(t *testing.T) {
	events := decodeAll(FramingNDJSON, `{"content":"a"}`+"\n"+`{"content":"b"}`)
	text, kinds := outcome(events)
	assert.Equal(t, "ab", text)
	assert.Empty(t, kinds)

	events = decodeAll(FramingNDJSON, `{"content":"a"}`+"\n"+`{"conte`)
	text, kinds = outcome(events)
	assert.Equal(t, "a", text)
	assert.Equal(t, []EventKind{EventError}, kinds)
}

func TestNDJSONDecoder_LineTooLong(t *testing.T) {
	d := NewDecoder(FramingNDJSON)
	events := d.Decode([]byte(`{"content":"` + strings.Repeat("x", MaxLineSize)))
	require.Len(t, events, 1)

	var de *DecodeError
	require.True(t, errors.As(events[0].Err, &de))
	assert.Contains(t, de.Reason, "exceeds")
	assert.Empty(t, d.Flush())
}

// =============================================================================
// SSE
// =============================================================================

func TestSSEDecoder_Basic(t *testing.T) {
	body := ": keep-alive\n" +
		"data: {\"content\":\"Hel\"}\n\n" +
		"event: message\nid: 2\ndata: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		"data: {\"delta\":\" wor\"}\n\n" +
		"data: ld\n\n" +
		"data: [DONE]\n\n"

	events := decodeAll(FramingSSE, body)
	require.Len(t, events, 5)
	text, kinds := outcome(events)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, []EventKind{EventDone}, kinds)
	assert.Equal(t, "[DONE]", events[4].Reason)

	assertSplitIndependent(t, FramingSSE, body)
}

func TestSSEDecoder_MultiLineData(t *testing.T) {
	events := decodeAll(FramingSSE, "data: line one\r\ndata: line two\r\n\r\n")
	require.Len(t, events, 1)
	assert.Equal(t, "line one\nline two", events[0].Content)
}

func TestSSEDecoder_ErrorEvent(t *testing.T) {
	events := decodeAll(FramingSSE, "data: partial\n\nevent: error\ndata: quota exceeded\n\ndata: late\n\n")
	require.Len(t, events, 2)

	var re *RemoteError
	require.True(t, errors.As(events[1].Err, &re))
	assert.Equal(t, "quota exceeded", re.Message)
}

func TestSSEDecoder_TrailingEventWithoutBlankLine(t *testing.T) {
	text, kinds := outcome(decodeAll(FramingSSE, "data: a\n\ndata: b"))
	assert.Equal(t, "ab", text)
	assert.Empty(t, kinds)
}

func TestSSEDecoder_TruncatedAtEnd(t *testing.T) {
	events := decodeAll(FramingSSE, "data: a\n\nda")
	text, kinds := outcome(events)
	assert.Equal(t, "a", text)
	assert.Equal(t, []EventKind{EventError}, kinds)

	events = decodeAll(FramingSSE, "data: {\"content\":\"unfinished")
	_, kinds = outcome(events)
	assert.Equal(t, []EventKind{EventError}, kinds)
}

func TestSSEDecoder_DoneField(t *testing.T) {
	events := decodeAll(FramingSSE, "data: {\"content\":\"x\",\"done\":true}\n\n")
	require.Len(t, events, 2)
	assert.Equal(t, EventDone, events[1].Kind)
}
