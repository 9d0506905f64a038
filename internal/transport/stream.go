// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jeranaias/agentdesk/internal/telemetry"
)

// =============================================================================
// STREAM OPTIONS
// =============================================================================

// StreamOptions tunes a single OpenStream call.
type StreamOptions struct {
	// AttachAuth adds the bearer token. Off by default: the chat stream
	// endpoint has historically been called without credentials.
	AttachAuth bool

	// Accept is sent as the Accept header when non-empty.
	Accept string

	// Timeout bounds the whole stream, connection plus body. Zero means no
	// limit other than the caller's context.
	Timeout time.Duration
}

// =============================================================================
// STREAM HANDLE
// =============================================================================

// StreamHandle exposes a live response body as a sequence of byte chunks.
// Nothing is buffered ahead: each Next performs at most one Read on the
// connection.
//
// A StreamHandle is read by one goroutine. Close may be called from any
// goroutine and unblocks a pending Next.
type StreamHandle struct {
	resp   *http.Response
	cancel context.CancelFunc
	buf    []byte

	chunks int
	bytes  int64
	err    error // sticky error, returned once buffered data is consumed

	closeOnce sync.Once
}

// OpenStream POSTs payload to path and returns once response headers have
// arrived. A non-2xx status or a connection failure is reported as
// *TransportError before any chunk can be read.
func (c *Client) OpenStream(ctx context.Context, path string, payload any, opts StreamOptions) (*StreamHandle, error) {
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	start := time.Now()
	entry := c.entry("stream", http.MethodPost, path, payload)

	req, err := c.newRequest(ctx, http.MethodPost, path, payload, opts.AttachAuth, opts.Accept)
	if err != nil {
		cancel()
		return nil, err
	}

	c.diag.Record(ctx, entry)

	resp, err := c.send(ctx, req, http.MethodPost, path)
	if err != nil {
		c.fail(ctx, entry, start, err)
		cancel()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
		resp.Body.Close()
		terr := newStatusError(http.MethodPost, path, resp.StatusCode, body)
		c.fail(ctx, entry, start, terr)
		cancel()
		return nil, terr
	}

	entry.Phase = telemetry.PhaseSuccess
	entry.Status = resp.StatusCode
	entry.Duration = time.Since(start)
	c.diag.Record(ctx, entry)

	return &StreamHandle{
		resp:   resp,
		cancel: cancel,
		buf:    make([]byte, ChunkSize),
	}, nil
}

// Next returns the next chunk of the body, or io.EOF once the body is
// exhausted. The returned slice is only valid until the following call.
// Any other error is a transport failure mid-stream (or the context being
// cancelled) and is sticky.
func (h *StreamHandle) Next() ([]byte, error) {
	if h.err != nil {
		return nil, h.err
	}
	for {
		n, err := h.resp.Body.Read(h.buf)
		if err != nil {
			h.err = err
		}
		if n > 0 {
			h.chunks++
			h.bytes += int64(n)
			return h.buf[:n], nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// StatusCode returns the HTTP status of the response.
func (h *StreamHandle) StatusCode() int {
	return h.resp.StatusCode
}

// Header returns the response headers.
func (h *StreamHandle) Header() http.Header {
	return h.resp.Header
}

// Chunks returns how many non-empty chunks have been read.
func (h *StreamHandle) Chunks() int {
	return h.chunks
}

// Bytes returns how many body bytes have been read.
func (h *StreamHandle) Bytes() int64 {
	return h.bytes
}

// Close cancels the request and closes the body without draining it.
// Safe to call more than once and from any goroutine.
func (h *StreamHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.cancel()
		err = h.resp.Body.Close()
	})
	return err
}
