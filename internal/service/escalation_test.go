package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/model"
)

// carrierClaim drives a new damage session to the carrier claim node.
func (h *harness) carrierClaim(t *testing.T, threadID, flowID string) *model.FlowSession {
	t.Helper()
	sess := h.toAssessment(t, threadID, flowID)
	v, err := h.sessions.SubmitResponse(context.Background(), sess.ID, "damage_assessment", "carrier_damage")
	require.NoError(t, err)
	require.Equal(t, model.SessionCompleted, v.Session.Status)
	return v.Session
}

func notifications(t *testing.T, h *harness) []model.OutboxMessage {
	t.Helper()
	msgs, err := h.store.Queries().ListOutbox(context.Background(), model.OutboxQueued)
	require.NoError(t, err)
	var out []model.OutboxMessage
	for _, m := range msgs {
		if m.Kind == model.OutboxNotification {
			out = append(out, m)
		}
	}
	return out
}

func TestEscalationOnEveryTriggeringSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	first := h.carrierClaim(t, "thread-1", def.ID)
	second := h.carrierClaim(t, "thread-1", def.ID)
	require.NotEqual(t, first.ID, second.ID)

	escalations, err := h.escalations.ListByThread(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, escalations, 2)
	assert.Equal(t, second.ID, escalations[0].SessionID)
	assert.Equal(t, first.ID, escalations[1].SessionID)
	for _, e := range escalations {
		assert.Equal(t, model.EscalationPending, e.Status)
		assert.Equal(t, "carrier_claim", e.EscalationType)
		assert.Equal(t, "claims", e.Queue)
		assert.Empty(t, e.AssignedAdminID)
		assert.Equal(t, "damage", e.ContextData["category"])
	}

	thread, err := h.escalations.Thread(ctx, "thread-1")
	require.NoError(t, err)
	assert.True(t, thread.NeedsAttention)

	notes := notifications(t, h)
	require.Len(t, notes, 2)
	assert.Equal(t, "notify.queue.claims", notes[0].Subject)

	var payload model.EscalationNotification
	require.NoError(t, json.Unmarshal(notes[0].Payload, &payload))
	assert.Equal(t, "thread-1", payload.ThreadID)
	assert.Equal(t, "carrier_claim", payload.EscalationType)
	assert.Equal(t, "claims", payload.Queue)
	assert.Equal(t, escalations[1].ID, payload.EscalationID)
	responses, ok := payload.ContextData["responses"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "carrier_damage", responses["damage_assessment"])
}

func TestEscalationGoesToAssignedAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	require.NoError(t, h.escalations.AssignThread(ctx, "thread-1", "admin-7"))
	h.carrierClaim(t, "thread-1", def.ID)

	escalations, err := h.escalations.ListByThread(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, escalations, 1)
	assert.Equal(t, "admin-7", escalations[0].AssignedAdminID)
	assert.Empty(t, escalations[0].Queue)

	notes := notifications(t, h)
	require.Len(t, notes, 1)
	assert.Equal(t, "notify.admin.admin-7", notes[0].Subject)

	thread, err := h.escalations.Thread(ctx, "thread-1")
	require.NoError(t, err)
	assert.True(t, thread.NeedsAttention)
	assert.Equal(t, "admin-7", thread.AssignedAdminID)
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)
	h.carrierClaim(t, "thread-1", def.ID)

	rec, err := h.escalations.Acknowledge(ctx, "thread-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, model.EscalationAcknowledged, rec.Status)
	assert.Equal(t, "admin-1", rec.AssignedAdminID)
	require.NotNil(t, rec.AcknowledgedAt)
	ackedAt := *rec.AcknowledgedAt

	again, err := h.escalations.Acknowledge(ctx, "thread-1", "admin-2")
	require.NoError(t, err)
	assert.Equal(t, model.EscalationAcknowledged, again.Status)
	assert.Equal(t, "admin-1", again.AssignedAdminID)
	assert.True(t, ackedAt.Equal(*again.AcknowledgedAt))

	rec, err = h.escalations.Investigate(ctx, "thread-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, model.EscalationInvestigating, rec.Status)

	rec, err = h.escalations.Acknowledge(ctx, "thread-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, model.EscalationInvestigating, rec.Status)
}

func TestResolveClearsAttentionOnceNothingIsOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	def := h.activeDamageFlow(t)

	first := h.carrierClaim(t, "thread-1", def.ID)
	second := h.carrierClaim(t, "thread-1", def.ID)

	rec, err := h.escalations.Resolve(ctx, "thread-1", "admin-1", "claim filed")
	require.NoError(t, err)
	assert.Equal(t, second.ID, rec.SessionID)
	assert.Equal(t, model.EscalationResolved, rec.Status)
	assert.Equal(t, "claim filed", rec.Notes)
	require.NotNil(t, rec.ResolvedAt)

	thread, err := h.escalations.Thread(ctx, "thread-1")
	require.NoError(t, err)
	assert.True(t, thread.NeedsAttention)

	rec, err = h.escalations.Resolve(ctx, "thread-1", "admin-1", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, rec.SessionID)

	thread, err = h.escalations.Thread(ctx, "thread-1")
	require.NoError(t, err)
	assert.False(t, thread.NeedsAttention)

	_, err = h.escalations.Resolve(ctx, "thread-1", "admin-1", "")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	// Sessions are left as they were.
	sess, err := h.sessions.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess.Status)
}

func TestEscalationAdminOpsWithoutOpenRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.escalations.Acknowledge(ctx, "thread-1", "admin-1")
	assert.ErrorIs(t, err, engine.ErrNotFound)
	_, err = h.escalations.Investigate(ctx, "thread-1", "admin-1")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
