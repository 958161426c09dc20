package model

import (
	"time"
)

// SessionStatus is the lifecycle state of a flow session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Live reports whether the session still occupies its thread+category slot.
func (s SessionStatus) Live() bool {
	return s == SessionActive || s == SessionPaused
}

// Response is one submission recorded against a node.
type Response struct {
	NodeID      string    `json:"nodeId"`
	Value       any       `json:"value"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Responses is the ordered submission history of a session. A node id
// appears at most once; resubmitting moves the entry to the end.
type Responses []Response

// Latest returns the most recent value submitted for nodeID.
func (r Responses) Latest(nodeID string) (any, bool) {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i].NodeID == nodeID {
			return r[i].Value, true
		}
	}
	return nil, false
}

// Set records value for nodeID, replacing any earlier submission.
func (r Responses) Set(nodeID string, value any, at time.Time) Responses {
	out := make(Responses, 0, len(r)+1)
	for _, resp := range r {
		if resp.NodeID != nodeID {
			out = append(out, resp)
		}
	}
	return append(out, Response{NodeID: nodeID, Value: value, SubmittedAt: at})
}

// Map flattens the responses into a node id keyed map.
func (r Responses) Map() map[string]any {
	m := make(map[string]any, len(r))
	for _, resp := range r {
		m[resp.NodeID] = resp.Value
	}
	return m
}

// File is a reference to an uploaded file. The bytes live elsewhere.
type File struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	URL       string `json:"url,omitempty"`
}

// FlowSession is one traversal of a pinned flow version on a thread.
type FlowSession struct {
	ID            string            `json:"id"`
	ThreadID      string            `json:"thread_id"`
	FlowID        string            `json:"flow_id"`
	FlowVersion   int               `json:"flow_version"`
	Category      string            `json:"category"`
	CurrentNodeID string            `json:"current_node_id"`
	Responses     Responses         `json:"responses"`
	Attachments   map[string][]File `json:"attachments,omitempty"`
	Status        SessionStatus     `json:"status"`
	PauseReason   string            `json:"pause_reason,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// Clone returns a copy safe to mutate without touching s.
func (s *FlowSession) Clone() *FlowSession {
	c := *s
	c.Responses = append(Responses(nil), s.Responses...)
	if s.Attachments != nil {
		c.Attachments = make(map[string][]File, len(s.Attachments))
		for k, v := range s.Attachments {
			c.Attachments[k] = append([]File(nil), v...)
		}
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// NodeView is the rendered state of the node a session is waiting on.
type NodeView struct {
	NodeID              string            `json:"node_id"`
	Type                NodeType          `json:"type"`
	Content             string            `json:"content"`
	ResponseType        ResponseType      `json:"response_type,omitempty"`
	Options             []Option          `json:"options,omitempty"`
	Attachment          *AttachmentConfig `json:"attachment,omitempty"`
	TemplateSuggestions []string          `json:"template_suggestions,omitempty"`
	PauseReason         string            `json:"pause_reason,omitempty"`
}

// SessionView pairs a session with the rendered current node.
type SessionView struct {
	Session *FlowSession `json:"session"`
	Node    *NodeView    `json:"node,omitempty"`
}
