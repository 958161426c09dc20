package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/model"
)

func categories(s []model.FlowSuggestion) []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Category
	}
	return out
}

// completeSimple runs a simpleFlow session to completion.
func (h *harness) completeSimple(t *testing.T, threadID, flowID string) *model.FlowSession {
	t.Helper()
	ctx := context.Background()
	v, err := h.sessions.Start(ctx, threadID, flowID)
	require.NoError(t, err)
	v, err = h.sessions.Advance(ctx, v.Session.ID, "intro")
	require.NoError(t, err)
	require.Equal(t, model.SessionCompleted, v.Session.Status)
	return v.Session
}

func TestSuggestNextAfterDamage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	damage := h.activeDamageFlow(t)
	refund := h.activate(t, simpleFlow("refund"), "refund.json")
	h.activate(t, simpleFlow("returns"), "returns.json")
	h.activate(t, simpleFlow("replacement"), "replacement.json")
	h.activate(t, simpleFlow("shipping"), "shipping.json")

	sess := h.toAssessment(t, "thread-1", damage.ID)
	_, err := h.sessions.SubmitResponse(ctx, sess.ID, "damage_assessment", "customer_caused")
	require.NoError(t, err)

	got, err := h.continuations.SuggestNext(ctx, "thread-1", damage.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"refund", "replacement", "returns"}, categories(got))
	assert.Equal(t, refund.ID, got[0].FlowID)
	assert.Equal(t, "refund flow", got[0].Name)

	h.completeSimple(t, "thread-1", refund.ID)
	got, err = h.continuations.SuggestNext(ctx, "thread-1", damage.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"replacement", "returns"}, categories(got))

	// Completion on another thread does not affect this one.
	got, err = h.continuations.SuggestNext(ctx, "thread-2", damage.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"refund", "replacement", "returns"}, categories(got))
}

func TestSuggestNextSkipsCategoriesWithoutActiveFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	shipping := h.activate(t, simpleFlow("shipping"), "shipping.json")
	h.activate(t, simpleFlow("missing_items"), "missing.json")

	got, err := h.continuations.SuggestNext(ctx, "thread-1", shipping.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"missing_items"}, categories(got))

	_, err = h.continuations.SuggestNext(ctx, "thread-1", "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestRecordContinuation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	shipping := h.activate(t, simpleFlow("shipping"), "shipping.json")
	refund := h.activate(t, simpleFlow("refund"), "refund.json")

	from := h.completeSimple(t, "thread-1", shipping.ID)
	to, err := h.sessions.Start(ctx, "thread-1", refund.ID)
	require.NoError(t, err)
	elsewhere, err := h.sessions.Start(ctx, "thread-2", refund.ID)
	require.NoError(t, err)

	_, err = h.continuations.RecordContinuation(ctx, "thread-1", from.ID, elsewhere.Session.ID)
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, err = h.continuations.RecordContinuation(ctx, "thread-1", from.ID, from.ID)
	assert.ErrorIs(t, err, engine.ErrValidation)
	_, err = h.continuations.RecordContinuation(ctx, "thread-1", from.ID, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	c, err := h.continuations.RecordContinuation(ctx, "thread-1", from.ID, to.Session.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	list, err := h.continuations.ListByThread(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, from.ID, list[0].FromSessionID)
	assert.Equal(t, to.Session.ID, list[0].ToSessionID)
}
