// Package service provides the guided resolution operations: flow
// registration, session traversal, escalations and continuations.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/model"
	natsclient "github.com/capitalize-ai/guided-resolution/internal/nats"
	"github.com/capitalize-ai/guided-resolution/internal/store"
)

// Clock returns the current time. Tests replace it to pin timestamps.
type Clock func() time.Time

// utcNow matches the microsecond precision timestamps are stored with.
func utcNow() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// notFound converts a store miss into the engine's NotFoundError and
// passes every other error through.
func notFound(err error, kind, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &engine.NotFoundError{Kind: kind, ID: id}
	}
	return err
}

// emit queues a flow event for publication with the surrounding transaction.
func emit(ctx context.Context, q *store.Queries, ev model.FlowEvent) error {
	if ev.ID == "" {
		ev.ID = newID()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	_, err = q.EnqueueOutbox(ctx, model.OutboxEvent, natsclient.FlowEventSubject(ev.Type, ev.ThreadID), payload, ev.CreatedAt)
	return err
}

func sessionEvent(sess *model.FlowSession, typ model.EventType, at time.Time) model.FlowEvent {
	return model.FlowEvent{
		ThreadID:  sess.ThreadID,
		SessionID: sess.ID,
		Type:      typ,
		NodeID:    sess.CurrentNodeID,
		Reason:    sess.PauseReason,
		CreatedAt: at,
	}
}
