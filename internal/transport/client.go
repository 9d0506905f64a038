// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/agentdesk/internal/telemetry"
	"github.com/jeranaias/agentdesk/internal/util"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 10 * time.Second

	// ChunkSize is the read buffer used for streamed bodies. A chunk handed
	// to the caller is at most this long.
	ChunkSize = 4 * 1024

	// MaxErrorBody is how much of an error response body is kept.
	MaxErrorBody = 4 * 1024

	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 1 << 20

	// maxPayloadSummary caps the payload attribute in diagnostics.
	maxPayloadSummary = 256
)

// TokenSource supplies the bearer token. An empty token means none is
// attached.
type TokenSource interface {
	Token() string
}

// Summarizer lets a payload choose its own diagnostic summary, so that
// credentials never reach the logs.
type Summarizer interface {
	Summary() string
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues JSON requests against one backend. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	tokens     TokenSource
	limiter    *rate.Limiter
	diag       telemetry.Diagnostics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Its own Timeout
// should be zero, otherwise it also cuts streams short.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the budget for non-streaming requests. Zero keeps the
// default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithRateLimit throttles outgoing requests to perSecond with the given
// burst. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithDiagnostics sets the diagnostics sink.
func WithDiagnostics(d telemetry.Diagnostics) Option {
	return func(c *Client) {
		if d != nil {
			c.diag = d
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		diag:       telemetry.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path onto the base URL. Absolute URLs are returned unchanged.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// =============================================================================
// NON-STREAMING REQUESTS
// =============================================================================

// Response is a fully read non-streaming response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do performs one request/response round trip. payload is JSON-encoded when
// non-nil. attachAuth adds the bearer token if the token source has one.
// A non-2xx answer or a failed connection returns *TransportError.
func (c *Client) Do(ctx context.Context, method, path string, payload any, attachAuth bool) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	entry := c.entry("request", method, path, payload)

	req, err := c.newRequest(ctx, method, path, payload, attachAuth, "application/json")
	if err != nil {
		return nil, err
	}

	c.diag.Record(ctx, entry)

	resp, err := c.send(ctx, req, method, path)
	if err != nil {
		c.fail(ctx, entry, start, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
		terr := newStatusError(method, path, resp.StatusCode, body)
		c.fail(ctx, entry, start, terr)
		return nil, terr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		terr := newConnError(method, path, fmt.Errorf("read response body: %w", err))
		c.fail(ctx, entry, start, terr)
		return nil, terr
	}

	entry.Phase = telemetry.PhaseSuccess
	entry.Status = resp.StatusCode
	entry.Duration = time.Since(start)
	c.diag.Record(ctx, entry)

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, payload any, attachAuth bool, accept string) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("transport: marshal payload for %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("transport: create request for %s: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if attachAuth && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// send waits for the rate limiter and executes req. Every failure before a
// response arrives is a status-less *TransportError.
func (c *Client) send(ctx context.Context, req *http.Request, method, path string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, newConnError(method, path, fmt.Errorf("rate limit: %w", err))
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newConnError(method, path, err)
	}
	return resp, nil
}

func (c *Client) entry(op, method, path string, payload any) telemetry.Entry {
	e := telemetry.Entry{
		Phase:     telemetry.PhaseStart,
		Operation: op,
		Method:    method,
		Path:      path,
	}
	if s, ok := payload.(Summarizer); ok {
		e.Payload = s.Summary()
	} else {
		e.Payload = util.SummarizePayload(payload, maxPayloadSummary)
	}
	return e
}

func (c *Client) fail(ctx context.Context, e telemetry.Entry, start time.Time, err error) {
	e.Phase = telemetry.PhaseError
	e.Status = StatusCode(err)
	e.Duration = time.Since(start)
	e.Err = err
	c.diag.Record(ctx, e)
}
