// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeranaias/agentdesk/internal/util"
)

// =============================================================================
// REQUESTS
// =============================================================================

// ChatRequest is the body of a chat stream request.
type ChatRequest struct {
	Question  string `json:"question"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// Validate rejects requests that must not be sent.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return ErrEmptyQuestion
	}
	return nil
}

// Summary implements transport.Summarizer. Long questions are shortened.
func (r ChatRequest) Summary() string {
	return fmt.Sprintf("question=%q userId=%s sessionId=%s", util.TruncateRunes(r.Question, 80), r.UserID, r.SessionID)
}

// Feedback ratings understood by the backend.
const (
	RatingUp   = "up"
	RatingDown = "down"
)

// Feedback is one rating of one answer. Fields the backend added that this
// client does not know about survive a decode/encode round trip in Extra.
type Feedback struct {
	MessageID string         `json:"messageId,omitempty"`
	Question  string         `json:"question,omitempty"`
	Answer    string         `json:"answer,omitempty"`
	Rating    string         `json:"rating,omitempty"`
	Comment   string         `json:"comment,omitempty"`
	Extra     map[string]any `json:"-"`
}

// feedbackFields lists the JSON keys owned by Feedback's typed fields.
var feedbackFields = map[string]bool{
	"messageId": true, "question": true, "answer": true, "rating": true, "comment": true,
}

// MarshalJSON merges Extra into the object. Typed fields win on conflict.
func (f Feedback) MarshalJSON() ([]byte, error) {
	type plain Feedback
	base, err := json.Marshal(plain(f))
	if err != nil || len(f.Extra) == 0 {
		return base, err
	}

	merged := make(map[string]any, len(f.Extra)+len(feedbackFields))
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range f.Extra {
		if _, taken := merged[k]; !taken && !feedbackFields[k] {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON fills the typed fields and keeps every other key in Extra.
func (f *Feedback) UnmarshalJSON(data []byte) error {
	type plain Feedback
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for k := range feedbackFields {
		delete(all, k)
	}
	if len(all) > 0 {
		p.Extra = all
	} else {
		p.Extra = nil
	}

	*f = Feedback(p)
	return nil
}

// FeedbackRequest is the body of a feedback submission.
type FeedbackRequest struct {
	Feedbacks []Feedback `json:"feedbacks"`
	UserID    string     `json:"userId"`
	SessionID string     `json:"sessionId"`
}

// Validate rejects empty submissions.
func (r FeedbackRequest) Validate() error {
	if len(r.Feedbacks) == 0 {
		return ErrNoFeedback
	}
	return nil
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind classifies an Event.
type EventKind int

const (
	// EventContent carries a fragment of the answer.
	EventContent EventKind = iota
	// EventDone ends a stream that completed normally.
	EventDone
	// EventError ends a stream that failed after it started.
	EventError
)

// String returns the kind name.
func (k EventKind) String() string {
	switch k {
	case EventContent:
		return "content"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one item of a stream: a content fragment or a terminal marker.
type Event struct {
	Kind    EventKind
	Content string // EventContent
	Reason  string // EventDone: "eof", "done", "[DONE]" or a backend reason
	Err     error  // EventError
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

func contentEvent(s string) Event { return Event{Kind: EventContent, Content: s} }

func doneEvent(reason string) Event { return Event{Kind: EventDone, Reason: reason} }

func errorEvent(err error) Event { return Event{Kind: EventError, Err: err} }
