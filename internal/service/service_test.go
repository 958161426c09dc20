package service

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/internal/routing"
	"github.com/capitalize-ai/guided-resolution/internal/store"
)

type harness struct {
	store         *store.Store
	flows         *FlowService
	sessions      *SessionService
	escalations   *EscalationService
	continuations *ContinuationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.WithDriver(store.DriverSQLite), store.WithDSN(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	router, err := routing.NewEngine(ctx, routing.DefaultPolicy, routing.DefaultQueue)
	require.NoError(t, err)

	flows, err := NewFlowService(st, 16, nil)
	require.NoError(t, err)
	escalations := NewEscalationService(st, router, nil)

	return &harness{
		store:         st,
		flows:         flows,
		sessions:      NewSessionService(st, flows, escalations, st, nil, nil),
		escalations:   escalations,
		continuations: NewContinuationService(st, flows, nil, nil),
	}
}

// activeDamageFlow registers and activates flows/damage.yaml.
func (h *harness) activeDamageFlow(t *testing.T) *model.FlowDefinition {
	t.Helper()
	data, err := os.ReadFile("../../flows/damage.yaml")
	require.NoError(t, err)
	return h.activate(t, data, "damage.yaml")
}

func (h *harness) activate(t *testing.T, data []byte, filename string) *model.FlowDefinition {
	t.Helper()
	ctx := context.Background()
	def, err := h.flows.RegisterDocument(ctx, data, filename)
	require.NoError(t, err)
	def, err = h.flows.Activate(ctx, def.ID, def.Version)
	require.NoError(t, err)
	return def
}

// simpleFlow is a two node flow for category.
func simpleFlow(category string) []byte {
	return []byte(`{
		"category": "` + category + `",
		"name": "` + category + ` flow",
		"startNodeId": "intro",
		"nodes": [
			{"id": "intro", "type": "info", "content": "Let's sort out your ` + category + `.", "nextNodeId": "done"},
			{"id": "done", "type": "completion", "content": "All set."}
		]
	}`)
}

func photos(mimeTypes ...string) []model.File {
	files := make([]model.File, len(mimeTypes))
	for i, mt := range mimeTypes {
		files[i] = model.File{ID: "f" + string(rune('a'+i)), Name: "photo", MimeType: mt}
	}
	return files
}

// toAssessment drives a new damage session up to the assessment question.
func (h *harness) toAssessment(t *testing.T, threadID, flowID string) *model.FlowSession {
	t.Helper()
	ctx := context.Background()

	v, err := h.sessions.Start(ctx, threadID, flowID)
	require.NoError(t, err)
	id := v.Session.ID

	_, err = h.sessions.Advance(ctx, id, "damage_intro")
	require.NoError(t, err)
	_, err = h.sessions.SubmitResponse(ctx, id, "damage_check_photos", "yes")
	require.NoError(t, err)
	v, err = h.sessions.SubmitAttachments(ctx, id, "damage_upload_photos", photos("image/jpeg", "image/png"))
	require.NoError(t, err)
	require.Equal(t, "damage_assessment", v.Session.CurrentNodeID)
	return v.Session
}

var _ engine.ContextProvider = (*store.Store)(nil)
