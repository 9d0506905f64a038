// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"iter"
	"strings"
	"sync"
	"time"
)

// ChunkSource yields the raw body of a stream. *transport.StreamHandle
// implements it.
type ChunkSource interface {
	// Next returns the next chunk or io.EOF. The chunk is only valid until
	// the following call.
	Next() ([]byte, error)
	// Close abandons the body. It must unblock a pending Next.
	Close() error
}

// Stats describes a stream so far.
type Stats struct {
	Started    time.Time
	FirstChunk time.Duration // time to first body bytes
	Elapsed    time.Duration // time to the terminal event
	Chunks     int
	Bytes      int64
	Fragments  int // content events delivered
}

// Handlers receives events from Consume. Nil handlers are skipped.
type Handlers struct {
	OnContent  func(content string)
	OnError    func(err error)
	OnComplete func(reason string)
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is the event sequence of one chat request.
//
// Next, Events, Consume, Chan, Text and Stats belong to the reading
// goroutine; use one of them. Close and Err may be called from anywhere.
type Stream struct {
	ctx context.Context
	src ChunkSource
	dec Decoder

	pending        []Event
	queuedTerminal bool

	text  strings.Builder
	stats Stats

	mu       sync.Mutex
	canceled bool
	finished bool
	err      error

	cancelCh  chan struct{} // closed when the stream is cancelled
	closeOnce sync.Once
	closeErr  error
}

// NewStream reads src through dec. Cancelling ctx cancels the stream.
func NewStream(ctx context.Context, src ChunkSource, dec Decoder) *Stream {
	return &Stream{
		ctx:      ctx,
		src:      src,
		dec:      dec,
		stats:    Stats{Started: time.Now()},
		cancelCh: make(chan struct{}),
	}
}

// Next returns the next event. It returns false once the terminal event
// has been returned or the stream was cancelled.
func (s *Stream) Next() (Event, bool) {
	for {
		if s.stopped() {
			return Event{}, false
		}
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return s.deliver(ev)
		}
		s.read()
	}
}

// Events ranges over the remaining events. Breaking out of the loop closes
// the stream.
func (s *Stream) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, ok := s.Next()
			if !ok {
				return
			}
			if !yield(ev) {
				s.Close()
				return
			}
		}
	}
}

// Consume drives the stream to its end, calling the matching handler for
// every event. It returns the error of an error terminal, the cancellation
// reason, or nil after a normal completion.
func (s *Stream) Consume(h Handlers) error {
	for {
		ev, ok := s.Next()
		if !ok {
			return s.Err()
		}
		switch ev.Kind {
		case EventContent:
			if h.OnContent != nil {
				h.OnContent(ev.Content)
			}
		case EventError:
			if h.OnError != nil {
				h.OnError(ev.Err)
			}
			return ev.Err
		case EventDone:
			if h.OnComplete != nil {
				h.OnComplete(ev.Reason)
			}
			return nil
		}
	}
}

// Collect reads the whole answer.
func (s *Stream) Collect() (string, error) {
	err := s.Consume(Handlers{})
	return s.Text(), err
}

// Chan delivers events on a channel that is closed after the terminal
// event or on cancellation. A background goroutine does the reading, so
// the caller must drain the channel or Close the stream.
func (s *Stream) Chan() <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		for {
			ev, ok := s.Next()
			if !ok {
				return
			}
			select {
			case ch <- ev:
			case <-s.cancelCh:
				return
			case <-s.ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Close cancels the stream: the request is aborted, the body is closed
// without being drained, and no event is delivered afterwards. Closing a
// finished stream only releases it. Close is idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	if !s.finished && !s.canceled {
		s.markCanceled(ErrCanceled)
	}
	s.mu.Unlock()
	return s.release()
}

// Err reports why the stream was cancelled: ErrCanceled after Close, the
// context's error after context cancellation. It is nil otherwise, even
// for a stream that ended with an error event.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Text returns the content delivered so far.
func (s *Stream) Text() string {
	return s.text.String()
}

// Stats returns counters for the stream so far.
func (s *Stream) Stats() Stats {
	return s.stats
}

// =============================================================================
// INTERNALS
// =============================================================================

// stopped reports whether delivery is over, noticing context cancellation.
func (s *Stream) stopped() bool {
	s.mu.Lock()
	if s.canceled || s.finished {
		s.mu.Unlock()
		return true
	}
	err := s.ctx.Err()
	if err != nil {
		s.markCanceled(err)
	}
	s.mu.Unlock()

	if err != nil {
		s.release()
		return true
	}
	return false
}

// deliver is the last gate before an event reaches the caller.
func (s *Stream) deliver(ev Event) (Event, bool) {
	s.mu.Lock()
	if s.canceled || s.finished {
		s.mu.Unlock()
		return Event{}, false
	}
	if ev.Terminal() {
		s.finished = true
	}
	s.mu.Unlock()

	switch ev.Kind {
	case EventContent:
		s.text.WriteString(ev.Content)
		s.stats.Fragments++
	default:
		s.stats.Elapsed = time.Since(s.stats.Started)
		s.release()
	}
	return ev, true
}

// read pulls one chunk and queues what it decodes to.
func (s *Stream) read() {
	chunk, err := s.src.Next()
	if len(chunk) > 0 {
		if s.stats.Chunks == 0 {
			s.stats.FirstChunk = time.Since(s.stats.Started)
		}
		s.stats.Chunks++
		s.stats.Bytes += int64(len(chunk))
		s.queue(s.dec.Decode(chunk))
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.queue(s.dec.Flush())
		s.queue([]Event{doneEvent("eof")})
	case s.cancelRequested():
		// The read failed because the stream is being torn down.
	default:
		s.queue([]Event{errorEvent(&StreamError{Received: s.text.Len(), Err: err})})
	}
}

// queue appends events up to and including the first terminal one.
func (s *Stream) queue(events []Event) {
	for _, ev := range events {
		if s.queuedTerminal {
			return
		}
		s.pending = append(s.pending, ev)
		if ev.Terminal() {
			s.queuedTerminal = true
		}
	}
}

// markCanceled records the cancellation reason. Callers hold mu.
func (s *Stream) markCanceled(reason error) {
	s.canceled = true
	s.err = reason
	close(s.cancelCh)
}

func (s *Stream) cancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled || s.ctx.Err() != nil
}

// release closes the source exactly once.
func (s *Stream) release() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.src.Close()
	})
	return s.closeErr
}
