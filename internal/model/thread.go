package model

import (
	"time"
)

// Thread is the slice of a conversation thread the engine reads and flags.
type Thread struct {
	ID              string    `json:"id"`
	AssignedAdminID string    `json:"assigned_admin_id,omitempty"`
	NeedsAttention  bool      `json:"needs_attention"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// FlowContinuation records that one session was followed by another on
// the same thread.
type FlowContinuation struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"thread_id"`
	FromSessionID string    `json:"from_session_id"`
	ToSessionID   string    `json:"to_session_id"`
	ContinuedAt   time.Time `json:"continued_at"`
}

// FlowSuggestion is an active flow proposed as a follow-on.
type FlowSuggestion struct {
	FlowID   string `json:"flow_id"`
	Version  int    `json:"version"`
	Category string `json:"category"`
	Name     string `json:"name"`
}

// RecordContinuationRequest is the body of a continuation audit call.
type RecordContinuationRequest struct {
	FromSessionID string `json:"from_session_id"`
	ToSessionID   string `json:"to_session_id"`
}
