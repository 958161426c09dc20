package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/llm"
	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/internal/store"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
	"github.com/capitalize-ai/guided-resolution/pkg/metrics"
	"github.com/capitalize-ai/guided-resolution/pkg/tracing"
)

// SessionService moves sessions through their pinned flow version.
//
// Every mutation re-reads the session inside a transaction and rejects it
// unless the caller names the node the session is on. Reaching a node runs
// its entry effects in that same transaction: escalation, then completion
// or pause.
type SessionService struct {
	store       *store.Store
	flows       *FlowService
	escalations *EscalationService
	vars        engine.ContextProvider
	drafter     *llm.Drafter
	logger      *logger.Logger
	now         Clock
}

// NewSessionService creates a session service. vars may be nil, in which
// case placeholders render empty. drafter may be nil, in which case drafts
// come from template suggestions.
func NewSessionService(st *store.Store, flows *FlowService, escalations *EscalationService, vars engine.ContextProvider, drafter *llm.Drafter, log *logger.Logger) *SessionService {
	if log == nil {
		log = logger.NewNop()
	}
	if vars == nil {
		vars = engine.StaticContext{}
	}
	if drafter == nil {
		drafter = llm.NewDrafter(nil, "", log)
	}
	return &SessionService{
		store:       st,
		flows:       flows,
		escalations: escalations,
		vars:        vars,
		drafter:     drafter,
		logger:      log.Named("sessions"),
		now:         utcNow,
	}
}

// Start opens a session on the active version of flowID. Only one active
// or paused session may exist per thread and category; every other
// concurrent caller gets a ConflictError.
func (s *SessionService) Start(ctx context.Context, threadID, flowID string) (*model.SessionView, error) {
	ctx, span := tracing.Tracer().Start(ctx, "session.start")
	defer span.End()
	span.SetAttributes(attribute.String("thread_id", threadID), attribute.String("flow_id", flowID))
	started := time.Now()

	if threadID == "" {
		return nil, &engine.ValidationError{Field: "thread_id", Reason: "required"}
	}
	version, err := s.flows.ActiveVersion(ctx, flowID)
	if err != nil {
		return nil, err
	}
	def, err := s.flows.GetByVersion(ctx, flowID, version)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &model.FlowSession{
		ID:            newID(),
		ThreadID:      threadID,
		FlowID:        def.ID,
		FlowVersion:   def.Version,
		Category:      def.Category,
		CurrentNodeID: def.StartNodeID,
		Status:        model.SessionActive,
		StartedAt:     now,
		UpdatedAt:     now,
	}

	err = s.store.InTx(ctx, func(q *store.Queries) error {
		if err := q.InsertSession(ctx, sess); err != nil {
			return err
		}
		if err := emit(ctx, q, sessionEvent(sess, model.EventSessionStarted, now)); err != nil {
			return err
		}
		if err := s.enter(ctx, q, sess, def, def.StartNodeID, now); err != nil {
			return err
		}
		return q.UpdateSession(ctx, sess)
	})
	if errors.Is(err, store.ErrDuplicate) {
		metrics.StartConflicts.WithLabelValues(def.Category).Inc()
		metrics.RecordTransition(def.Category, "start", "conflict", time.Since(started).Seconds())
		conflict := &engine.ConflictError{ThreadID: threadID, Category: def.Category}
		if live, lerr := s.store.Queries().FindLiveSession(ctx, threadID, def.Category); lerr == nil {
			conflict.ExistingSessionID = live.ID
		}
		return nil, conflict
	}
	metrics.RecordTransition(def.Category, "start", outcome(err), time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("start session: %w", err)
	}

	metrics.SessionsStarted.WithLabelValues(def.Category).Inc()
	s.logger.WithSession(threadID, sess.ID).Info("Session started",
		zap.String("flow_id", def.ID),
		zap.Int("flow_version", def.Version),
		zap.String("category", def.Category),
		zap.String("node_id", sess.CurrentNodeID),
		zap.String("status", string(sess.Status)),
	)
	return s.view(ctx, sess, def), nil
}

// SubmitResponse records value for the question node the session is on and
// advances. A value for any other node fails with NodeMismatchError and
// leaves the session untouched.
func (s *SessionService) SubmitResponse(ctx context.Context, sessionID, nodeID string, value any) (*model.SessionView, error) {
	return s.mutate(ctx, sessionID, "submit_response", func(q *store.Queries, sess *model.FlowSession, def *model.FlowDefinition, now time.Time) error {
		node, err := expectNode(sess, def, nodeID, "submit a response to")
		if err != nil {
			return err
		}
		accepted, err := engine.ValidateResponse(node, value)
		if err != nil {
			return err
		}
		return s.record(ctx, q, sess, def, node, accepted, now)
	})
}

// SubmitAttachments records files for the attachment node the session is on
// and advances. The node's response is recorded as true.
func (s *SessionService) SubmitAttachments(ctx context.Context, sessionID, nodeID string, files []model.File) (*model.SessionView, error) {
	return s.mutate(ctx, sessionID, "submit_attachments", func(q *store.Queries, sess *model.FlowSession, def *model.FlowDefinition, now time.Time) error {
		node, err := expectNode(sess, def, nodeID, "attach files to")
		if err != nil {
			return err
		}
		if err := engine.ValidateAttachments(node, files); err != nil {
			return err
		}
		if sess.Attachments == nil {
			sess.Attachments = make(map[string][]model.File)
		}
		sess.Attachments[nodeID] = append([]model.File(nil), files...)
		return s.record(ctx, q, sess, def, node, true, now)
	})
}

// Advance moves past the info node the session is on.
func (s *SessionService) Advance(ctx context.Context, sessionID, nodeID string) (*model.SessionView, error) {
	return s.mutate(ctx, sessionID, "advance", func(q *store.Queries, sess *model.FlowSession, def *model.FlowDefinition, now time.Time) error {
		node, err := expectNode(sess, def, nodeID, "advance")
		if err != nil {
			return err
		}
		if node.Type() != model.NodeTypeInfo {
			return &engine.ValidationError{NodeID: nodeID, Reason: fmt.Sprintf("%s nodes cannot be advanced without input", node.Type())}
		}
		next, err := engine.Resolve(node, sess.Responses.Map())
		if err != nil {
			return err
		}
		return s.enter(ctx, q, sess, def, next, now)
	})
}

// Pause parks a live session. The current node and responses are kept.
func (s *SessionService) Pause(ctx context.Context, sessionID, reason string) (*model.SessionView, error) {
	return s.mutate(ctx, sessionID, "pause", func(q *store.Queries, sess *model.FlowSession, _ *model.FlowDefinition, now time.Time) error {
		if !sess.Status.Live() {
			return &engine.InvalidStateError{SessionID: sess.ID, Status: string(sess.Status), Op: "pause"}
		}
		sess.Status = model.SessionPaused
		sess.PauseReason = reason
		metrics.SessionsFinished.WithLabelValues(sess.Category, string(model.SessionPaused)).Inc()
		return emit(ctx, q, sessionEvent(sess, model.EventSessionPaused, now))
	})
}

// Resume reactivates a paused session on the node it paused at. Entry
// effects of that node are not run again.
func (s *SessionService) Resume(ctx context.Context, sessionID string) (*model.SessionView, error) {
	return s.mutate(ctx, sessionID, "resume", func(q *store.Queries, sess *model.FlowSession, _ *model.FlowDefinition, now time.Time) error {
		if !sess.Status.Live() {
			return &engine.InvalidStateError{SessionID: sess.ID, Status: string(sess.Status), Op: "resume"}
		}
		if sess.Status == model.SessionActive {
			return nil
		}
		sess.Status = model.SessionActive
		sess.PauseReason = ""
		return emit(ctx, q, sessionEvent(sess, model.EventSessionResumed, now))
	})
}

// Abandon ends a live session without completing it, freeing its thread
// and category for a new session.
func (s *SessionService) Abandon(ctx context.Context, sessionID string) (*model.SessionView, error) {
	return s.mutate(ctx, sessionID, "abandon", func(q *store.Queries, sess *model.FlowSession, _ *model.FlowDefinition, now time.Time) error {
		if !sess.Status.Live() {
			return &engine.InvalidStateError{SessionID: sess.ID, Status: string(sess.Status), Op: "abandon"}
		}
		sess.Status = model.SessionAbandoned
		sess.PauseReason = ""
		metrics.SessionsFinished.WithLabelValues(sess.Category, string(model.SessionAbandoned)).Inc()
		return emit(ctx, q, sessionEvent(sess, model.EventSessionAbandoned, now))
	})
}

// Get returns a session.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*model.FlowSession, error) {
	sess, err := s.store.Queries().GetSession(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, "session", sessionID)
	}
	return sess, nil
}

// Render returns a session with its current node rendered for display.
func (s *SessionService) Render(ctx context.Context, sessionID string) (*model.SessionView, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	def, err := s.flows.GetByVersion(ctx, sess.FlowID, sess.FlowVersion)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sess, def), nil
}

// ListByThread returns a thread's sessions, oldest first.
func (s *SessionService) ListByThread(ctx context.Context, threadID string) ([]*model.FlowSession, error) {
	return s.store.Queries().ListSessionsByThread(ctx, threadID)
}

// Draft proposes a customer reply for the node the session is on.
func (s *SessionService) Draft(ctx context.Context, sessionID, instruction string) (*llm.Draft, error) {
	v, err := s.Render(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	req := llm.DraftRequest{
		Category:    v.Session.Category,
		Responses:   v.Session.Responses.Map(),
		Instruction: instruction,
	}
	if v.Node != nil {
		req.NodeContent = v.Node.Content
		req.Suggestions = v.Node.TemplateSuggestions
	}
	return s.drafter.Draft(ctx, req)
}

type mutation func(q *store.Queries, sess *model.FlowSession, def *model.FlowDefinition, now time.Time) error

// mutate applies fn to a freshly locked copy of the session and persists
// the result. Any error rolls the whole transition back.
func (s *SessionService) mutate(ctx context.Context, sessionID, op string, fn mutation) (*model.SessionView, error) {
	ctx, span := tracing.Tracer().Start(ctx, "session."+op)
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))
	started := time.Now()

	// The pinned definition is loaded before the transaction so the cache
	// miss path never competes with it for a connection.
	pinned, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	def, err := s.flows.GetByVersion(ctx, pinned.FlowID, pinned.FlowVersion)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var sess *model.FlowSession
	err = s.store.InTx(ctx, func(q *store.Queries) error {
		var err error
		sess, err = q.GetSession(ctx, sessionID)
		if err != nil {
			return notFound(err, "session", sessionID)
		}
		if err := fn(q, sess, def, now); err != nil {
			return err
		}
		sess.UpdatedAt = now
		return q.UpdateSession(ctx, sess)
	})
	metrics.RecordTransition(def.Category, op, outcome(err), time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		s.logger.WithSession(pinned.ThreadID, sessionID).Debug("Transition rejected",
			zap.String("op", op),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.WithSession(sess.ThreadID, sess.ID).Info("Session updated",
		zap.String("op", op),
		zap.String("node_id", sess.CurrentNodeID),
		zap.String("status", string(sess.Status)),
	)
	return s.view(ctx, sess, def), nil
}

// record stores an accepted value for node and follows the matching edge.
func (s *SessionService) record(ctx context.Context, q *store.Queries, sess *model.FlowSession, def *model.FlowDefinition, node model.Node, value any, now time.Time) error {
	responses := sess.Responses.Set(node.NodeID(), value, now)
	next, err := engine.Resolve(node, responses.Map())
	if err != nil {
		return err
	}
	sess.Responses = responses

	ev := sessionEvent(sess, model.EventResponseSubmitted, now)
	ev.Metadata = map[string]any{"value": value}
	if err := emit(ctx, q, ev); err != nil {
		return err
	}
	return s.enter(ctx, q, sess, def, next, now)
}

// enter moves sess onto nodeID and applies the node's entry effects.
func (s *SessionService) enter(ctx context.Context, q *store.Queries, sess *model.FlowSession, def *model.FlowDefinition, nodeID string, now time.Time) error {
	node, ok := def.Node(nodeID)
	if !ok {
		return &engine.UnroutableStateError{NodeID: sess.CurrentNodeID}
	}
	sess.CurrentNodeID = nodeID
	if err := emit(ctx, q, sessionEvent(sess, model.EventNodeEntered, now)); err != nil {
		return err
	}

	meta := node.Base().Metadata
	if meta.RequiresAgentAction {
		if _, err := s.escalations.trigger(ctx, q, sess, node, now); err != nil {
			return err
		}
	}

	switch {
	case node.Type() == model.NodeTypeCompletion:
		sess.Status = model.SessionCompleted
		sess.PauseReason = ""
		sess.CompletedAt = &now
		metrics.SessionsFinished.WithLabelValues(sess.Category, string(model.SessionCompleted)).Inc()
		return emit(ctx, q, sessionEvent(sess, model.EventSessionCompleted, now))
	case meta.PauseReason != "":
		sess.Status = model.SessionPaused
		sess.PauseReason = meta.PauseReason
		metrics.SessionsFinished.WithLabelValues(sess.Category, string(model.SessionPaused)).Inc()
		return emit(ctx, q, sessionEvent(sess, model.EventSessionPaused, now))
	}
	return nil
}

// view renders the session's current node. Context lookup failures are
// logged and render placeholders empty.
func (s *SessionService) view(ctx context.Context, sess *model.FlowSession, def *model.FlowDefinition) *model.SessionView {
	v := &model.SessionView{Session: sess}
	node, ok := def.Node(sess.CurrentNodeID)
	if !ok {
		return v
	}
	vars, err := s.vars.Lookup(ctx, sess.ThreadID)
	if err != nil {
		s.logger.Warn("Context lookup failed",
			zap.String("thread_id", sess.ThreadID),
			zap.Error(err),
		)
		vars = nil
	}
	v.Node = engine.RenderNode(node, vars)
	return v
}

// expectNode checks that the session is active and on nodeID.
func expectNode(sess *model.FlowSession, def *model.FlowDefinition, nodeID, op string) (model.Node, error) {
	if sess.CurrentNodeID != nodeID {
		return nil, &engine.NodeMismatchError{SessionID: sess.ID, Expected: sess.CurrentNodeID, Got: nodeID}
	}
	if sess.Status != model.SessionActive {
		return nil, &engine.InvalidStateError{SessionID: sess.ID, Status: string(sess.Status), Op: op}
	}
	node, ok := def.Node(nodeID)
	if !ok {
		return nil, &engine.NotFoundError{Kind: "node", ID: nodeID}
	}
	return node, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, engine.ErrNodeMismatch):
		return "mismatch"
	case errors.Is(err, engine.ErrValidation):
		return "invalid"
	case errors.Is(err, engine.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, engine.ErrEvaluation):
		return "evaluation"
	case errors.Is(err, engine.ErrUnroutable):
		return "unroutable"
	case errors.Is(err, engine.ErrConflict), errors.Is(err, store.ErrDuplicate):
		return "conflict"
	default:
		return "error"
	}
}
