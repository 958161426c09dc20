package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/internal/store"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

// ContinuationService suggests follow-on flows once a flow completes and
// records which suggestion was taken.
type ContinuationService struct {
	store     *store.Store
	flows     *FlowService
	adjacency engine.AdjacencyTable
	logger    *logger.Logger
	now       Clock
}

// NewContinuationService creates a continuation service. A nil adjacency
// table selects engine.DefaultAdjacency.
func NewContinuationService(st *store.Store, flows *FlowService, adjacency engine.AdjacencyTable, log *logger.Logger) *ContinuationService {
	if adjacency == nil {
		adjacency = engine.DefaultAdjacency
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ContinuationService{store: st, flows: flows, adjacency: adjacency, logger: log.Named("continuations"), now: utcNow}
}

// SuggestNext returns up to engine.MaxSuggestions active flows from the
// categories adjacent to completedFlowID's category. Categories the thread
// has already completed are skipped, as are categories with no active flow.
func (s *ContinuationService) SuggestNext(ctx context.Context, threadID, completedFlowID string) ([]model.FlowSuggestion, error) {
	category, err := s.store.Queries().FlowCategory(ctx, completedFlowID)
	if err != nil {
		return nil, notFound(err, "flow", completedFlowID)
	}
	sessions, err := s.store.Queries().ListSessionsByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	active, err := s.flows.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[string]model.FlowSummary, len(active))
	for _, f := range active {
		byCategory[f.Category] = f
	}

	out := []model.FlowSuggestion{}
	for _, c := range s.adjacency.Candidates(category, engine.CompletedCategories(sessions)) {
		f, ok := byCategory[c]
		if !ok {
			continue
		}
		out = append(out, model.FlowSuggestion{FlowID: f.ID, Version: f.Version, Category: f.Category, Name: f.Name})
		if len(out) == engine.MaxSuggestions {
			break
		}
	}
	return out, nil
}

// RecordContinuation writes the audit row linking a finished session to the
// session started from a suggestion. Both sessions must belong to threadID.
func (s *ContinuationService) RecordContinuation(ctx context.Context, threadID, fromSessionID, toSessionID string) (*model.FlowContinuation, error) {
	if fromSessionID == "" || toSessionID == "" {
		return nil, &engine.ValidationError{Field: "session_id", Reason: "from and to sessions are required"}
	}
	if fromSessionID == toSessionID {
		return nil, &engine.ValidationError{Field: "to_session_id", Reason: "a session cannot continue itself"}
	}

	c := &model.FlowContinuation{
		ThreadID:      threadID,
		FromSessionID: fromSessionID,
		ToSessionID:   toSessionID,
		ContinuedAt:   s.now(),
	}
	err := s.store.InTx(ctx, func(q *store.Queries) error {
		for _, id := range []string{fromSessionID, toSessionID} {
			sess, err := q.GetSession(ctx, id)
			if err != nil {
				return notFound(err, "session", id)
			}
			if sess.ThreadID != threadID {
				return &engine.ValidationError{Field: "session_id", Reason: fmt.Sprintf("session %s belongs to another thread", id)}
			}
		}
		return q.InsertContinuation(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Continuation recorded",
		zap.String("thread_id", threadID),
		zap.String("from_session_id", fromSessionID),
		zap.String("to_session_id", toSessionID),
	)
	return c, nil
}

// ListByThread returns a thread's continuations, oldest first.
func (s *ContinuationService) ListByThread(ctx context.Context, threadID string) ([]*model.FlowContinuation, error) {
	return s.store.Queries().ListContinuations(ctx, threadID)
}
