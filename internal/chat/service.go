// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"net/http"
	"time"

	"github.com/jeranaias/agentdesk/internal/transport"
)

// Default endpoint paths relative to the API base URL.
const (
	DefaultStreamPath   = "/tool-agent/database/chat"
	DefaultFeedbackPath = "/tool-agent/database/feedback"
)

// ServiceConfig holds the chat settings. Zero values select defaults.
type ServiceConfig struct {
	StreamPath   string
	FeedbackPath string
	Framing      Framing

	// AttachAuthToStream sends the bearer token with chat streams and
	// feedback. The tool-agent endpoints do not require it.
	AttachAuthToStream bool

	// StreamTimeout bounds a whole stream. Zero means unbounded.
	StreamTimeout time.Duration
}

// Service sends chat and feedback requests. Safe for concurrent use; every
// Chat call gets its own Stream and Decoder.
type Service struct {
	client *transport.Client
	cfg    ServiceConfig
}

// NewService creates a Service on top of client.
func NewService(client *transport.Client, cfg ServiceConfig) *Service {
	if cfg.StreamPath == "" {
		cfg.StreamPath = DefaultStreamPath
	}
	if cfg.FeedbackPath == "" {
		cfg.FeedbackPath = DefaultFeedbackPath
	}
	if cfg.Framing == "" {
		cfg.Framing = FramingText
	}
	return &Service{client: client, cfg: cfg}
}

// Config returns the effective settings.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// Chat validates req, opens the stream and returns once response headers
// have arrived. Failures up to that point are returned here, typically as
// *transport.TransportError; failures after it arrive as an error event.
// The caller must drain or Close the returned Stream.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	handle, err := s.client.OpenStream(ctx, s.cfg.StreamPath, req, transport.StreamOptions{
		AttachAuth: s.cfg.AttachAuthToStream,
		Accept:     s.cfg.Framing.Accept(),
		Timeout:    s.cfg.StreamTimeout,
	})
	if err != nil {
		return nil, err
	}
	return NewStream(ctx, handle, NewDecoder(s.cfg.Framing)), nil
}

// SubmitFeedback posts req in a single round trip. The response body is
// not interpreted: any 2xx is success.
func (s *Service) SubmitFeedback(ctx context.Context, req FeedbackRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	_, err := s.client.Do(ctx, http.MethodPost, s.cfg.FeedbackPath, req, s.cfg.AttachAuthToStream)
	return err
}
