package model

// StartSessionRequest is the body of a session start call.
type StartSessionRequest struct {
	FlowID string `json:"flow_id"`
}

// SubmitResponseRequest is the body of a question answer.
type SubmitResponseRequest struct {
	NodeID string `json:"node_id"`
	Value  any    `json:"value"`
}

// SubmitAttachmentsRequest is the body of an attachment upload.
type SubmitAttachmentsRequest struct {
	NodeID string `json:"node_id"`
	Files  []File `json:"files"`
}

// AdvanceRequest is the body of an info node acknowledgement.
type AdvanceRequest struct {
	NodeID string `json:"node_id"`
}

// PauseSessionRequest is the body of a manual pause.
type PauseSessionRequest struct {
	Reason string `json:"reason"`
}

// DraftReplyRequest is the body of a reply draft call.
type DraftReplyRequest struct {
	Instruction string `json:"instruction,omitempty"`
}

// AssignThreadRequest is the body of a thread assignment.
type AssignThreadRequest struct {
	AdminID string `json:"admin_id"`
}
