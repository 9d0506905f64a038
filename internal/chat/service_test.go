// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentdesk/internal/transport"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// streamingServer writes chunks with a flush after each one and records
// the last request.
type streamingServer struct {
	*httptest.Server
	hits   atomic.Int32
	body   map[string]any
	accept string
	auth   string
	status int
	chunks []string
	hold   chan struct{}
}

func newStreamingServer(t *testing.T, chunks ...string) *streamingServer {
	s := &streamingServer{chunks: chunks, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.accept = r.Header.Get("Accept")
		s.auth = r.Header.Get("Authorization")
		s.body = nil
		_ = json.NewDecoder(r.Body).Decode(&s.body)

		w.WriteHeader(s.status)
		flusher := w.(http.Flusher)
		for _, c := range s.chunks {
			w.Write([]byte(c))
			flusher.Flush()
		}
		if s.hold != nil {
			select {
			case <-s.hold:
			case <-r.Context().Done():
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestService(srv *streamingServer, cfg ServiceConfig, opts ...transport.Option) *Service {
	return NewService(transport.New(srv.URL, opts...), cfg)
}

// =============================================================================
// CHAT
// =============================================================================

func TestService_ChatStreamsText(t *testing.T) {
	srv := newStreamingServer(t, "He", "llo wor", "ld")
	svc := newTestService(srv, ServiceConfig{}, transport.WithTokenSource(staticToken("secret")))

	stream, err := svc.Chat(context.Background(), ChatRequest{Question: "hello?", UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)
	defer stream.Close()

	text, err := stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)

	assert.Equal(t, map[string]any{"question": "hello?", "userId": "u1", "sessionId": "s1"}, srv.body)
	assert.Equal(t, "text/plain", srv.accept)
	assert.Empty(t, srv.auth, "stream is sent without credentials by default")
}

func TestService_ChatAttachesAuthWhenConfigured(t *testing.T) {
	srv := newStreamingServer(t, "ok")
	svc := newTestService(srv, ServiceConfig{AttachAuthToStream: true}, transport.WithTokenSource(staticToken("secret")))

	stream, err := svc.Chat(context.Background(), ChatRequest{Question: "q"})
	require.NoError(t, err)
	_, err = stream.Collect()
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", srv.auth)
}

func TestService_ChatEmptyQuestionSendsNothing(t *testing.T) {
	srv := newStreamingServer(t)
	svc := newTestService(srv, ServiceConfig{})

	for _, q := range []string{"", "   \n\t"} {
		stream, err := svc.Chat(context.Background(), ChatRequest{Question: q})
		assert.Nil(t, stream)
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	}
	assert.Equal(t, int32(0), srv.hits.Load())
}

func TestService_ChatStatusErrorBeforeStream(t *testing.T) {
	srv := newStreamingServer(t, "internal failure")
	srv.status = http.StatusInternalServerError
	svc := newTestService(srv, ServiceConfig{})

	stream, err := svc.Chat(context.Background(), ChatRequest{Question: "q"})
	assert.Nil(t, stream)

	var te *transport.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 500, te.StatusCode)
	assert.Contains(t, err.Error(), "HTTP error! status: 500")
}

func TestService_ChatNDJSON(t *testing.T) {
	srv := newStreamingServer(t, `{"content":"一"}`+"\n"+`{"cont`, `ent":"二"}`+"\n", `{"done":true}`+"\n")
	svc := newTestService(srv, ServiceConfig{Framing: FramingNDJSON})

	stream, err := svc.Chat(context.Background(), ChatRequest{Question: "q"})
	require.NoError(t, err)

	var reason string
	err = stream.Consume(Handlers{OnComplete: func(r string) { reason = r }})
	require.NoError(t, err)
	assert.Equal(t, "一二", stream.Text())
	assert.Equal(t, "done", reason)
	assert.Equal(t, "application/x-ndjson", srv.accept)
}

func TestService_ChatStreamTimeout(t *testing.T) {
	srv := newStreamingServer(t, "thinking")
	srv.hold = make(chan struct{})
	defer close(srv.hold)
	svc := newTestService(srv, ServiceConfig{StreamTimeout: 50 * time.Millisecond})

	stream, err := svc.Chat(context.Background(), ChatRequest{Question: "q"})
	require.NoError(t, err)

	text, err := stream.Collect()
	assert.Equal(t, "thinking", text)

	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, len("thinking"), se.Received)
	assert.NoError(t, stream.Err())
}

func TestService_ChatCloseMidStream(t *testing.T) {
	srv := newStreamingServer(t, "partial")
	srv.hold = make(chan struct{})
	defer close(srv.hold)
	svc := newTestService(srv, ServiceConfig{})

	stream, err := svc.Chat(context.Background(), ChatRequest{Question: "q"})
	require.NoError(t, err)

	ev, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, "partial", ev.Content)

	go func() {
		time.Sleep(20 * time.Millisecond)
		stream.Close()
	}()

	_, ok = stream.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, stream.Err(), ErrCanceled)
}

// =============================================================================
// FEEDBACK
// =============================================================================

func TestService_SubmitFeedback(t *testing.T) {
	srv := newStreamingServer(t, `{"code":200}`)
	svc := newTestService(srv, ServiceConfig{})

	err := svc.SubmitFeedback(context.Background(), FeedbackRequest{
		Feedbacks: []Feedback{{
			MessageID: "m1",
			Rating:    RatingDown,
			Comment:   "wrong table",
			Extra:     map[string]any{"sql": "select 1"},
		}},
		UserID:    "u1",
		SessionID: "s1",
	})
	require.NoError(t, err)

	assert.Equal(t, "u1", srv.body["userId"])
	feedbacks := srv.body["feedbacks"].([]any)
	require.Len(t, feedbacks, 1)
	record := feedbacks[0].(map[string]any)
	assert.Equal(t, "m1", record["messageId"])
	assert.Equal(t, "down", record["rating"])
	assert.Equal(t, "select 1", record["sql"])
}

func TestService_SubmitFeedbackErrors(t *testing.T) {
	srv := newStreamingServer(t)
	svc := newTestService(srv, ServiceConfig{})

	err := svc.SubmitFeedback(context.Background(), FeedbackRequest{UserID: "u1"})
	assert.ErrorIs(t, err, ErrNoFeedback)
	assert.Equal(t, int32(0), srv.hits.Load())

	srv.status = http.StatusBadGateway
	err = svc.SubmitFeedback(context.Background(), FeedbackRequest{Feedbacks: []Feedback{{Rating: RatingUp}}})
	assert.Equal(t, http.StatusBadGateway, transport.StatusCode(err))
	assert.True(t, errors.As(err, new(*transport.TransportError)))
}

func TestNewService_Defaults(t *testing.T) {
	cfg := NewService(transport.New("http://localhost"), ServiceConfig{}).Config()
	assert.Equal(t, DefaultStreamPath, cfg.StreamPath)
	assert.Equal(t, DefaultFeedbackPath, cfg.FeedbackPath)
	assert.Equal(t, FramingText, cfg.Framing)
}
