package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxFlowDocumentBytes bounds flow definition uploads.
const MaxFlowDocumentBytes = 1 << 20

// ValidateUUID validates a session, flow or escalation ID.
func ValidateUUID(kind, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid " + kind + " ID format")
	}
	return nil
}

// ValidateThreadID validates a thread ID. Thread IDs come from the
// conversation service and are opaque.
func ValidateThreadID(id string) error {
	if len(id) == 0 {
		return errors.New("thread ID cannot be empty")
	}
	if len(id) > 128 {
		return errors.New("thread ID exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New("thread ID must be valid UTF-8")
	}
	return nil
}

// ValidateNodeID validates a node ID named in a submission.
func ValidateNodeID(id string) error {
	if len(id) == 0 {
		return errors.New("node_id is required")
	}
	if len(id) > 128 {
		return errors.New("node_id exceeds maximum length")
	}
	return nil
}

// ValidateText validates free text such as notes and pause reasons.
func ValidateText(field, s string, maxLen int) error {
	if len(s) > maxLen {
		return errors.New(field + " exceeds maximum length")
	}
	if !utf8.ValidString(s) {
		return errors.New(field + " must be valid UTF-8")
	}
	return nil
}
