package model

import (
	"time"
)

// EscalationStatus is the admin-facing state of an escalation.
type EscalationStatus string

const (
	EscalationPending       EscalationStatus = "pending"
	EscalationAcknowledged  EscalationStatus = "acknowledged"
	EscalationInvestigating EscalationStatus = "investigating"
	EscalationResolved      EscalationStatus = "resolved"
)

// Open reports whether the escalation still needs admin action.
func (s EscalationStatus) Open() bool {
	return s != EscalationResolved
}

// EscalationRecord is a recorded need for human action raised by a session.
type EscalationRecord struct {
	ID              string           `json:"id"`
	ThreadID        string           `json:"thread_id"`
	SessionID       string           `json:"session_id"`
	EscalationType  string           `json:"escalation_type"`
	TriggeredByNode string           `json:"triggered_by_node"`
	ContextData     map[string]any   `json:"context_data"`
	Status          EscalationStatus `json:"status"`
	AssignedAdminID string           `json:"assigned_admin_id,omitempty"`
	Queue           string           `json:"queue,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	AcknowledgedAt  *time.Time       `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
}

// EscalationNotification is the payload delivered to the assigned admin or
// the fallback queue.
type EscalationNotification struct {
	EscalationID    string         `json:"escalationId"`
	ThreadID        string         `json:"threadId"`
	EscalationType  string         `json:"escalationType"`
	ContextData     map[string]any `json:"contextData"`
	AssignedAdminID string         `json:"assignedAdminId,omitempty"`
	Queue           string         `json:"queue,omitempty"`
}

// ResolveEscalationRequest is the body of an escalation resolve call.
type ResolveEscalationRequest struct {
	Notes string `json:"notes"`
}
