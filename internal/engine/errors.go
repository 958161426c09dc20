// Package engine holds the pure flow logic: graph validation, input
// evaluation, transition resolution, template rendering and continuation
// adjacency. Nothing here touches storage.
package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is classification by callers and handlers.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNodeMismatch = errors.New("node mismatch")
	ErrEvaluation   = errors.New("condition evaluation failed")
	ErrUnroutable   = errors.New("no transition matched")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)

// ValidationError reports malformed input: a bad graph, a rejected option or
// files that violate an attachment contract.
type ValidationError struct {
	NodeID string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.NodeID != "" && e.Field != "":
		return fmt.Sprintf("validation failed: node %q: %s: %s", e.NodeID, e.Field, e.Reason)
	case e.NodeID != "":
		return fmt.Sprintf("validation failed: node %q: %s", e.NodeID, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
	default:
		return "validation failed: " + e.Reason
	}
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NodeMismatchError reports a submission aimed at a node the session is not on.
type NodeMismatchError struct {
	SessionID string
	Expected  string
	Got       string
}

func (e *NodeMismatchError) Error() string {
	return fmt.Sprintf("session %s is at node %q, not %q", e.SessionID, e.Expected, e.Got)
}

// Is matches ErrNodeMismatch.
func (e *NodeMismatchError) Is(target error) bool { return target == ErrNodeMismatch }

// EvaluationError reports a condition that cannot be evaluated, such as a
// numeric comparison against a non-numeric operand.
type EvaluationError struct {
	NodeID   string
	Field    string
	Operator string
	Reason   string
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("cannot evaluate %s on %q at node %q: %s", e.Operator, e.Field, e.NodeID, e.Reason)
}

// Is matches ErrEvaluation.
func (e *EvaluationError) Is(target error) bool { return target == ErrEvaluation }

// UnroutableStateError reports a node with no matching outgoing edge.
type UnroutableStateError struct {
	NodeID string
}

func (e *UnroutableStateError) Error() string {
	return fmt.Sprintf("no transition matched from node %q", e.NodeID)
}

// Is matches ErrUnroutable.
func (e *UnroutableStateError) Is(target error) bool { return target == ErrUnroutable }

// ConflictError reports that a live session already holds the thread+category slot.
type ConflictError struct {
	ThreadID          string
	Category          string
	ExistingSessionID string
}

func (e *ConflictError) Error() string {
	if e.ExistingSessionID == "" {
		return fmt.Sprintf("thread %s already has a live %s session", e.ThreadID, e.Category)
	}
	return fmt.Sprintf("thread %s already has a live %s session (%s)", e.ThreadID, e.Category, e.ExistingSessionID)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidStateError reports an operation not allowed in the session's status.
type InvalidStateError struct {
	SessionID string
	Status    string
	Op        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s session %s in status %s", e.Op, e.SessionID, e.Status)
}

// Is matches ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// NotFoundError reports a missing session, flow or escalation.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
