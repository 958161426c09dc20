package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/llm"
	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/internal/store"
)

func TestDamageFlowNotCoveredCompletesWithoutEscalation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	sess := h.toAssessment(t, "thread-1", def.ID)
	// Option ids are stored as the option value.
	v, err := h.sessions.SubmitResponse(ctx, sess.ID, "damage_assessment", "customer")
	require.NoError(t, err)

	assert.Equal(t, "damage_not_covered", v.Session.CurrentNodeID)
	cause, _ := v.Session.Responses.Latest("damage_assessment")
	assert.Equal(t, "customer_caused", cause)
	assert.Equal(t, model.SessionCompleted, v.Session.Status)
	require.NotNil(t, v.Session.CompletedAt)

	latest, ok := v.Session.Responses.Latest("damage_upload_photos")
	require.True(t, ok)
	assert.Equal(t, true, latest)
	assert.Len(t, v.Session.Attachments["damage_upload_photos"], 2)

	escalations, err := h.escalations.ListByThread(ctx, "thread-1")
	require.NoError(t, err)
	assert.Empty(t, escalations)

	_, err = h.escalations.Thread(ctx, "thread-1")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestDamageFlowFactoryReviewPausesAndResumes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	sess := h.toAssessment(t, "thread-1", def.ID)
	v, err := h.sessions.SubmitResponse(ctx, sess.ID, "damage_assessment", "unclear")
	require.NoError(t, err)
	assert.Equal(t, "damage_factory_review", v.Session.CurrentNodeID)
	assert.Equal(t, model.SessionPaused, v.Session.Status)
	assert.Equal(t, "awaiting_factory_review", v.Session.PauseReason)
	assert.Equal(t, "awaiting_factory_review", v.Node.PauseReason)

	_, err = h.sessions.Advance(ctx, sess.ID, "damage_factory_review")
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	v, err = h.sessions.Resume(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionActive, v.Session.Status)
	assert.Equal(t, "damage_factory_review", v.Session.CurrentNodeID)
	assert.Empty(t, v.Session.PauseReason)

	_, err = h.sessions.Advance(ctx, sess.ID, "damage_factory_review")
	require.NoError(t, err)
	v, err = h.sessions.SubmitResponse(ctx, sess.ID, "damage_factory_outcome", "approved")
	require.NoError(t, err)
	assert.Equal(t, "damage_replacement", v.Session.CurrentNodeID)
	assert.Equal(t, model.SessionCompleted, v.Session.Status)

	escalations, err := h.escalations.ListByThread(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, escalations, 1)
	assert.Equal(t, "replacement_order", escalations[0].EscalationType)
	assert.Equal(t, model.EscalationPending, escalations[0].Status)
	assert.Equal(t, "fulfillment", escalations[0].Queue)
	assert.Equal(t, "damage_replacement", escalations[0].TriggeredByNode)
}

func TestConcurrentStartAllowsOneLiveSession(t *testing.T) {
	h := newHarness(t)
	def := h.activeDamageFlow(t)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  []string
		failures []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := h.sessions.Start(context.Background(), "thread-1", def.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			winners = append(winners, v.Session.ID)
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	require.Len(t, failures, n-1)
	for _, err := range failures {
		var conflict *engine.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, winners[0], conflict.ExistingSessionID)
		assert.Equal(t, "damage", conflict.Category)
	}
}

func TestStartAfterAbandonFreesSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	v, err := h.sessions.Start(ctx, "thread-1", def.ID)
	require.NoError(t, err)

	_, err = h.sessions.Start(ctx, "thread-1", def.ID)
	require.ErrorIs(t, err, engine.ErrConflict)

	v, err = h.sessions.Abandon(ctx, v.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionAbandoned, v.Session.Status)

	_, err = h.sessions.Abandon(ctx, v.Session.ID)
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	_, err = h.sessions.Start(ctx, "thread-1", def.ID)
	require.NoError(t, err)
}

func TestStartRequiresActiveFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	def, err := h.flows.RegisterDocument(ctx, simpleFlow("refund"), "refund.json")
	require.NoError(t, err)

	_, err = h.sessions.Start(ctx, "thread-1", def.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = h.sessions.Start(ctx, "", def.ID)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestStaleSubmitIsRejectedAndStateUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	v, err := h.sessions.Start(ctx, "thread-1", def.ID)
	require.NoError(t, err)
	id := v.Session.ID
	_, err = h.sessions.Advance(ctx, id, "damage_intro")
	require.NoError(t, err)
	before, err := h.sessions.Get(ctx, id)
	require.NoError(t, err)

	_, err = h.sessions.Advance(ctx, id, "damage_intro")
	var mismatch *engine.NodeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "damage_check_photos", mismatch.Expected)
	assert.Equal(t, "damage_intro", mismatch.Got)

	_, err = h.sessions.SubmitResponse(ctx, id, "damage_assessment", "unclear")
	assert.ErrorIs(t, err, engine.ErrNodeMismatch)

	after, err := h.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.CurrentNodeID, after.CurrentNodeID)
	assert.Equal(t, before.Responses, after.Responses)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestSubmitResponseRejectsUnknownOption(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	v, err := h.sessions.Start(ctx, "thread-1", def.ID)
	require.NoError(t, err)
	_, err = h.sessions.Advance(ctx, v.Session.ID, "damage_intro")
	require.NoError(t, err)

	_, err = h.sessions.SubmitResponse(ctx, v.Session.ID, "damage_check_photos", "maybe")
	assert.ErrorIs(t, err, engine.ErrValidation)

	v, err = h.sessions.SubmitResponse(ctx, v.Session.ID, "damage_check_photos", "no")
	require.NoError(t, err)
	assert.Equal(t, "damage_request_photos", v.Session.CurrentNodeID)
	got, _ := v.Session.Responses.Latest("damage_check_photos")
	assert.Equal(t, "no", got)
}

func TestAttachmentContract(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	v, err := h.sessions.Start(ctx, "thread-1", def.ID)
	require.NoError(t, err)
	id := v.Session.ID
	_, err = h.sessions.Advance(ctx, id, "damage_intro")
	require.NoError(t, err)
	_, err = h.sessions.SubmitResponse(ctx, id, "damage_check_photos", "yes")
	require.NoError(t, err)

	tests := []struct {
		name  string
		files []model.File
	}{
		{"too few", photos("image/jpeg")},
		{"too many", photos("image/jpeg", "image/jpeg", "image/jpeg", "image/jpeg", "image/jpeg", "image/jpeg")},
		{"wrong type within count", photos("image/jpeg", "image/gif", "image/png")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.sessions.SubmitAttachments(ctx, id, "damage_upload_photos", tt.files)
			assert.ErrorIs(t, err, engine.ErrValidation)
		})
	}

	_, err = h.sessions.SubmitResponse(ctx, id, "damage_upload_photos", "here you go")
	assert.ErrorIs(t, err, engine.ErrValidation)

	sess, err := h.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "damage_upload_photos", sess.CurrentNodeID)
	assert.Empty(t, sess.Attachments)

	v, err = h.sessions.SubmitAttachments(ctx, id, "damage_upload_photos", photos("image/png", "image/jpeg", "image/jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "damage_assessment", v.Session.CurrentNodeID)
}

func TestPauseKeepsPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	v, err := h.sessions.Start(ctx, "thread-1", def.ID)
	require.NoError(t, err)
	v, err = h.sessions.Pause(ctx, v.Session.ID, "customer_unreachable")
	require.NoError(t, err)
	assert.Equal(t, model.SessionPaused, v.Session.Status)
	assert.Equal(t, "damage_intro", v.Session.CurrentNodeID)
	assert.Equal(t, "customer_unreachable", v.Session.PauseReason)

	// A paused session still blocks a second start.
	_, err = h.sessions.Start(ctx, "thread-1", def.ID)
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestRenderInterpolatesThreadContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	q := h.store.Queries()
	require.NoError(t, q.SetThreadContext(ctx, "thread-1", "order_number", "1042", def.CreatedAt))
	require.NoError(t, q.SetThreadContext(ctx, "thread-1", "customer_name", "Ana", def.CreatedAt))

	v, err := h.sessions.Start(ctx, "thread-1", def.ID)
	require.NoError(t, err)
	assert.Equal(t, "Order 1042 was reported as damaged. Let's document what happened.", v.Node.Content)

	_, err = h.sessions.Advance(ctx, v.Session.ID, "damage_intro")
	require.NoError(t, err)
	v, err = h.sessions.SubmitResponse(ctx, v.Session.ID, "damage_check_photos", "no")
	require.NoError(t, err)
	require.Len(t, v.Node.TemplateSuggestions, 1)
	assert.Contains(t, v.Node.TemplateSuggestions[0], "Hi Ana")
	assert.Contains(t, v.Node.TemplateSuggestions[0], "order 1042")

	rendered, err := h.sessions.Render(ctx, v.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Node, rendered.Node)

	draft, err := h.sessions.Draft(ctx, v.Session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, llm.SourceTemplate, draft.Source)
	assert.Equal(t, v.Node.TemplateSuggestions[0], draft.Text)
}

func TestSessionEventsAreQueued(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	v, err := h.sessions.Start(ctx, "thread-1", def.ID)
	require.NoError(t, err)
	_, err = h.sessions.Advance(ctx, v.Session.ID, "damage_intro")
	require.NoError(t, err)

	msgs, err := h.store.Queries().ListOutbox(ctx, model.OutboxQueued)
	require.NoError(t, err)
	var subjects []string
	for _, m := range msgs {
		assert.Equal(t, model.OutboxEvent, m.Kind)
		subjects = append(subjects, m.Subject)
	}
	assert.Equal(t, []string{
		"flow.session_started.thread-1",
		"flow.node_entered.thread-1",
		"flow.node_entered.thread-1",
	}, subjects)
}

func TestGetUnknownSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.sessions.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	assert.False(t, errors.Is(err, store.ErrDuplicate))

	_, err = h.sessions.Resume(context.Background(), "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
