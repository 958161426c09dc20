package model

import (
	"time"
)

// EventType represents the type of flow event.
type EventType string

const (
	EventSessionStarted     EventType = "session_started"
	EventNodeEntered        EventType = "node_entered"
	EventResponseSubmitted  EventType = "response_submitted"
	EventSessionPaused      EventType = "session_paused"
	EventSessionResumed     EventType = "session_resumed"
	EventSessionCompleted   EventType = "session_completed"
	EventSessionAbandoned   EventType = "session_abandoned"
	EventEscalationCreated  EventType = "escalation_created"
	EventEscalationResolved EventType = "escalation_resolved"
)

// FlowEvent represents a state change of a session or escalation.
type FlowEvent struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	SessionID string         `json:"session_id,omitempty"`
	Type      EventType      `json:"type"`
	NodeID    string         `json:"node_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// OutboxStatus is the delivery state of an outbox message.
type OutboxStatus string

const (
	OutboxQueued  OutboxStatus = "queued"
	OutboxSending OutboxStatus = "sending"
	OutboxSent    OutboxStatus = "sent"
)

// OutboxKind distinguishes admin notifications from flow events.
type OutboxKind string

const (
	OutboxNotification OutboxKind = "notification"
	OutboxEvent        OutboxKind = "event"
)

// OutboxMessage is a durable pending publication.
type OutboxMessage struct {
	ID            string       `json:"id"`
	Kind          OutboxKind   `json:"kind"`
	Subject       string       `json:"subject"`
	Payload       []byte       `json:"payload"`
	Status        OutboxStatus `json:"status"`
	Attempts      int          `json:"attempts"`
	NextAttemptAt time.Time    `json:"next_attempt_at"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}
