package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/model"
)

func TestRegisterAssignsVersions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1, err := h.flows.RegisterDocument(ctx, simpleFlow("refund"), "refund.json")
	require.NoError(t, err)
	assert.NotEmpty(t, v1.ID)
	assert.Equal(t, 1, v1.Version)
	assert.False(t, v1.IsActive)

	next, err := engine.ParseDefinition(simpleFlow("refund"), "refund.json")
	require.NoError(t, err)
	next.ID = v1.ID
	v2, err := h.flows.Register(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, v1.ID, v2.ID)
	assert.Equal(t, 2, v2.Version)

	got, err := h.flows.GetByVersion(ctx, v1.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, "intro", got.StartNodeID)
	assert.Len(t, got.Nodes, 2)

	list, err := h.flows.List(ctx, "refund")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRegisterRejectsCategoryChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1, err := h.flows.RegisterDocument(ctx, simpleFlow("refund"), "refund.json")
	require.NoError(t, err)

	other, err := engine.ParseDefinition(simpleFlow("returns"), "returns.json")
	require.NoError(t, err)
	other.ID = v1.ID
	_, err = h.flows.Register(ctx, other)
	assert.ErrorIs(t, err, engine.ErrValidation)
}

func TestRegisterRejectsDanglingEdgeAndWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	doc := []byte(`{
		"category": "refund",
		"startNodeId": "intro",
		"nodes": [
			{"id": "intro", "type": "info", "content": "hi", "nextNodeId": "nowhere"}
		]
	}`)
	_, err := h.flows.RegisterDocument(ctx, doc, "refund.json")
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "intro", ve.NodeID)

	list, err := h.flows.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestActivateSwapsActiveVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1 := h.activate(t, simpleFlow("refund"), "refund.json")
	active, err := h.flows.GetActive(ctx, "refund")
	require.NoError(t, err)
	assert.Equal(t, 1, active.Version)

	next, err := engine.ParseDefinition(simpleFlow("refund"), "refund.json")
	require.NoError(t, err)
	next.ID = v1.ID
	v2, err := h.flows.Register(ctx, next)
	require.NoError(t, err)

	// Warm the cache with the inactive snapshot, then activate it.
	_, err = h.flows.GetByVersion(ctx, v1.ID, v2.Version)
	require.NoError(t, err)
	_, err = h.flows.Activate(ctx, v1.ID, v2.Version)
	require.NoError(t, err)

	active, err = h.flows.GetActive(ctx, "refund")
	require.NoError(t, err)
	assert.Equal(t, 2, active.Version)

	snap, err := h.flows.GetByVersion(ctx, v1.ID, v2.Version)
	require.NoError(t, err)
	assert.True(t, snap.IsActive)

	summaries, err := h.flows.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, model.FlowSummary{
		ID:        v1.ID,
		Category:  "refund",
		Name:      "refund flow",
		Version:   2,
		IsActive:  true,
		NodeCount: 2,
		CreatedAt: summaries[0].CreatedAt,
	}, summaries[0])
}

func TestActivateUnknownVersion(t *testing.T) {
	h := newHarness(t)

	_, err := h.flows.Activate(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	_, err = h.flows.GetActive(context.Background(), "refund")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestSessionsStayPinnedToTheirVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v1 := h.activate(t, simpleFlow("refund"), "refund.json")
	v, err := h.sessions.Start(ctx, "thread-1", v1.ID)
	require.NoError(t, err)

	next, err := engine.ParseDefinition([]byte(`{
		"category": "refund",
		"name": "refund flow",
		"startNodeId": "welcome",
		"nodes": [
			{"id": "welcome", "type": "info", "content": "v2", "nextNodeId": "done"},
			{"id": "done", "type": "completion", "content": "All set."}
		]
	}`), "refund.json")
	require.NoError(t, err)
	next.ID = v1.ID
	v2, err := h.flows.Register(ctx, next)
	require.NoError(t, err)
	_, err = h.flows.Activate(ctx, v1.ID, v2.Version)
	require.NoError(t, err)

	v, err = h.sessions.Advance(ctx, v.Session.ID, "intro")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Session.FlowVersion)
	assert.Equal(t, "done", v.Session.CurrentNodeID)
	assert.Equal(t, model.SessionCompleted, v.Session.Status)
}
