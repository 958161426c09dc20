package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/guided-resolution/internal/model"
	natsclient "github.com/capitalize-ai/guided-resolution/internal/nats"
	"github.com/capitalize-ai/guided-resolution/internal/routing"
	"github.com/capitalize-ai/guided-resolution/internal/store"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
	"github.com/capitalize-ai/guided-resolution/pkg/metrics"
	"github.com/capitalize-ai/guided-resolution/pkg/tracing"
)

// EscalationService raises escalations from sessions and lets admins work
// through them.
type EscalationService struct {
	store  *store.Store
	router *routing.Engine
	logger *logger.Logger
	now    Clock
}

// NewEscalationService creates an escalation service. router may be nil,
// in which case unassigned threads go to routing.DefaultQueue.
func NewEscalationService(st *store.Store, router *routing.Engine, log *logger.Logger) *EscalationService {
	if log == nil {
		log = logger.NewNop()
	}
	return &EscalationService{store: st, router: router, logger: log.Named("escalations"), now: utcNow}
}

// trigger records a pending escalation for node, flags the thread and
// queues the admin notification, all through q so it commits or rolls back
// with the transition that reached node.
func (s *EscalationService) trigger(ctx context.Context, q *store.Queries, sess *model.FlowSession, node model.Node, at time.Time) (*model.EscalationRecord, error) {
	meta := node.Base().Metadata

	var adminID string
	thread, err := q.GetThread(ctx, sess.ThreadID)
	switch {
	case err == nil:
		adminID = thread.AssignedAdminID
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	rec := &model.EscalationRecord{
		ID:              newID(),
		ThreadID:        sess.ThreadID,
		SessionID:       sess.ID,
		EscalationType:  meta.EscalationType,
		TriggeredByNode: node.NodeID(),
		ContextData:     escalationContext(sess),
		Status:          model.EscalationPending,
		AssignedAdminID: adminID,
		CreatedAt:       at,
	}

	var subject, target string
	if adminID != "" {
		subject = natsclient.AdminSubject(adminID)
		target = "admin"
	} else {
		rec.Queue = s.queueFor(ctx, sess, node)
		subject = natsclient.QueueSubject(rec.Queue)
		target = rec.Queue
	}

	if err := q.InsertEscalation(ctx, rec); err != nil {
		return nil, err
	}
	if err := q.MarkThreadAttention(ctx, sess.ThreadID, at); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(model.EscalationNotification{
		EscalationID:    rec.ID,
		ThreadID:        rec.ThreadID,
		EscalationType:  rec.EscalationType,
		ContextData:     rec.ContextData,
		AssignedAdminID: rec.AssignedAdminID,
		Queue:           rec.Queue,
	})
	if err != nil {
		return nil, fmt.Errorf("encode escalation notification: %w", err)
	}
	if _, err := q.EnqueueOutbox(ctx, model.OutboxNotification, subject, payload, at); err != nil {
		return nil, err
	}
	if err := emit(ctx, q, model.FlowEvent{
		ThreadID:  sess.ThreadID,
		SessionID: sess.ID,
		Type:      model.EventEscalationCreated,
		NodeID:    node.NodeID(),
		Metadata:  map[string]any{"escalation_id": rec.ID, "escalation_type": rec.EscalationType},
		CreatedAt: at,
	}); err != nil {
		return nil, err
	}

	metrics.EscalationsTotal.WithLabelValues(rec.EscalationType, target).Inc()
	s.logger.WithSession(sess.ThreadID, sess.ID).Info("Escalation raised",
		zap.String("escalation_id", rec.ID),
		zap.String("escalation_type", rec.EscalationType),
		zap.String("node_id", rec.TriggeredByNode),
		zap.String("assigned_admin_id", adminID),
		zap.String("queue", rec.Queue),
	)
	return rec, nil
}

func (s *EscalationService) queueFor(ctx context.Context, sess *model.FlowSession, node model.Node) string {
	if s.router == nil {
		return routing.DefaultQueue
	}
	queue, err := s.router.Queue(ctx, routing.Input{
		EscalationType: node.Base().Metadata.EscalationType,
		Category:       sess.Category,
		NodeID:         node.NodeID(),
		ThreadID:       sess.ThreadID,
	})
	if err != nil {
		s.logger.Warn("Escalation routing failed, using default queue",
			zap.String("thread_id", sess.ThreadID),
			zap.Error(err),
		)
		return routing.DefaultQueue
	}
	return queue
}

// escalationContext is the snapshot handed to the admin with the escalation.
func escalationContext(sess *model.FlowSession) map[string]any {
	data := map[string]any{
		"session_id":   sess.ID,
		"flow_id":      sess.FlowID,
		"flow_version": sess.FlowVersion,
		"category":     sess.Category,
		"node_id":      sess.CurrentNodeID,
		"responses":    sess.Responses.Map(),
	}
	if len(sess.Attachments) > 0 {
		data["attachments"] = sess.Attachments
	}
	return data
}

// Acknowledge marks the thread's most recent open escalation as seen by
// adminID. Acknowledging twice, or after investigation started, changes
// nothing.
func (s *EscalationService) Acknowledge(ctx context.Context, threadID, adminID string) (*model.EscalationRecord, error) {
	return s.transition(ctx, threadID, "acknowledge", func(_ *store.Queries, rec *model.EscalationRecord, now time.Time) (bool, error) {
		if rec.Status != model.EscalationPending {
			return false, nil
		}
		rec.Status = model.EscalationAcknowledged
		rec.AcknowledgedAt = &now
		if rec.AssignedAdminID == "" {
			rec.AssignedAdminID = adminID
		}
		return true, nil
	})
}

// Investigate marks the thread's most recent open escalation as under
// investigation.
func (s *EscalationService) Investigate(ctx context.Context, threadID, adminID string) (*model.EscalationRecord, error) {
	return s.transition(ctx, threadID, "investigate", func(_ *store.Queries, rec *model.EscalationRecord, now time.Time) (bool, error) {
		if rec.Status == model.EscalationInvestigating {
			return false, nil
		}
		rec.Status = model.EscalationInvestigating
		if rec.AcknowledgedAt == nil {
			rec.AcknowledgedAt = &now
		}
		if rec.AssignedAdminID == "" {
			rec.AssignedAdminID = adminID
		}
		return true, nil
	})
}

// Resolve closes the thread's most recent open escalation. The thread's
// attention flag is cleared once no open escalation remains. Sessions are
// not touched.
func (s *EscalationService) Resolve(ctx context.Context, threadID, adminID, notes string) (*model.EscalationRecord, error) {
	return s.transition(ctx, threadID, "resolve", func(q *store.Queries, rec *model.EscalationRecord, now time.Time) (bool, error) {
		rec.Status = model.EscalationResolved
		rec.ResolvedAt = &now
		rec.Notes = notes
		if rec.AssignedAdminID == "" {
			rec.AssignedAdminID = adminID
		}
		if err := q.UpdateEscalation(ctx, rec); err != nil {
			return false, err
		}

		open, err := q.CountOpenEscalations(ctx, threadID)
		if err != nil {
			return false, err
		}
		if open == 0 {
			if err := q.ClearThreadAttention(ctx, threadID, now); err != nil {
				return false, err
			}
		}
		return false, emit(ctx, q, model.FlowEvent{
			ThreadID:  threadID,
			SessionID: rec.SessionID,
			Type:      model.EventEscalationResolved,
			NodeID:    rec.TriggeredByNode,
			Metadata:  map[string]any{"escalation_id": rec.ID, "resolved_by": adminID},
			CreatedAt: now,
		})
	})
}

// transition loads the latest open escalation of a thread and applies fn.
// fn reports whether rec still needs to be written.
func (s *EscalationService) transition(ctx context.Context, threadID, op string, fn func(q *store.Queries, rec *model.EscalationRecord, now time.Time) (bool, error)) (*model.EscalationRecord, error) {
	ctx, span := tracing.Tracer().Start(ctx, "escalation."+op)
	defer span.End()
	span.SetAttributes(attribute.String("thread_id", threadID))

	now := s.now()
	var rec *model.EscalationRecord
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		var err error
		rec, err = q.LatestOpenEscalation(ctx, threadID)
		if err != nil {
			return notFound(err, "open escalation", threadID)
		}
		before := rec.Status
		dirty, err := fn(q, rec, now)
		if err != nil {
			return err
		}
		if dirty {
			if err := q.UpdateEscalation(ctx, rec); err != nil {
				return err
			}
		}
		if rec.Status != before {
			metrics.EscalationsResolved.WithLabelValues(string(rec.Status)).Inc()
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("Escalation updated",
		zap.String("thread_id", threadID),
		zap.String("escalation_id", rec.ID),
		zap.String("op", op),
		zap.String("status", string(rec.Status)),
	)
	return rec, nil
}

// ListByThread returns a thread's escalations, newest first.
func (s *EscalationService) ListByThread(ctx context.Context, threadID string) ([]*model.EscalationRecord, error) {
	return s.store.Queries().ListEscalations(ctx, threadID)
}

// Thread returns the engine's view of a thread.
func (s *EscalationService) Thread(ctx context.Context, threadID string) (*model.Thread, error) {
	t, err := s.store.Queries().GetThread(ctx, threadID)
	if err != nil {
		return nil, notFound(err, "thread", threadID)
	}
	return t, nil
}

// AssignThread records the admin owning a thread. Escalations raised
// afterwards are delivered to that admin directly.
func (s *EscalationService) AssignThread(ctx context.Context, threadID, adminID string) error {
	return s.store.Queries().UpsertThread(ctx, &model.Thread{ID: threadID, AssignedAdminID: adminID, LastActivityAt: s.now()})
}
