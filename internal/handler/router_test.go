package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/internal/middleware"
	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/internal/service"
	"github.com/capitalize-ai/guided-resolution/internal/store"
)

const testSecret = "test-secret"

type apiClient struct {
	t      *testing.T
	server *httptest.Server
	token  string
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.WithDSN(":memory:"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	flows, err := service.NewFlowService(st, 16, nil)
	require.NoError(t, err)
	escalations := service.NewEscalationService(st, nil, nil)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Flows:         flows,
		Sessions:      service.NewSessionService(st, flows, escalations, st, nil, nil),
		Escalations:   escalations,
		Continuations: service.NewContinuationService(st, flows, nil, nil),
		DB:            st,
		JWTSecret:     testSecret,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func client(t *testing.T, srv *httptest.Server, subject string, scopes ...string) *apiClient {
	t.Helper()
	token, err := middleware.NewToken(testSecret, subject, "tenant-1", scopes...)
	require.NoError(t, err)
	return &apiClient{t: t, server: srv, token: token}
}

func (c *apiClient) do(method, path, contentType string, body []byte) (int, map[string]any) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.server.URL+path, bytes.NewReader(body))
	require.NoError(c.t, err)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func (c *apiClient) post(path string, v any) (int, map[string]any) {
	c.t.Helper()
	body, err := json.Marshal(v)
	require.NoError(c.t, err)
	return c.do(http.MethodPost, path, "application/json", body)
}

func (c *apiClient) get(path string) (int, map[string]any) {
	c.t.Helper()
	return c.do(http.MethodGet, path, "", nil)
}

// registerDamage uploads flows/damage.yaml as an active flow and returns its ID.
func registerDamage(t *testing.T, admin *apiClient) string {
	t.Helper()
	doc, err := os.ReadFile("../../flows/damage.yaml")
	require.NoError(t, err)
	status, body := admin.do(http.MethodPost, "/api/v1/flows?activate=true", "application/yaml", doc)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, float64(1), body["version"])
	return body["id"].(string)
}

func sessionOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	sess, ok := body["session"].(map[string]any)
	require.True(t, ok, body)
	return sess
}

func TestHealthEndpoints(t *testing.T) {
	srv := newAPI(t)
	anon := &apiClient{t: t, server: srv}

	status, body := anon.get("/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	status, body = anon.get("/ready")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "disabled", body["nats"])
}

func TestAuthRequired(t *testing.T) {
	srv := newAPI(t)

	status, _ := (&apiClient{t: t, server: srv}).get("/api/v1/flows")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = (&apiClient{t: t, server: srv, token: "garbage"}).get("/api/v1/flows")
	assert.Equal(t, http.StatusUnauthorized, status)

	operator := client(t, srv, "op-1")
	status, body := operator.get("/api/v1/flows")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "flows")

	doc, err := os.ReadFile("../../flows/damage.yaml")
	require.NoError(t, err)
	status, _ = operator.do(http.MethodPost, "/api/v1/flows", "application/yaml", doc)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestRegisterInvalidFlow(t *testing.T) {
	srv := newAPI(t)
	admin := client(t, srv, "admin-1", middleware.ScopeFlowsAdmin)

	status, body := admin.do(http.MethodPost, "/api/v1/flows", "application/json", []byte(`{
		"category": "refund",
		"startNodeId": "intro",
		"nodes": [{"id": "intro", "type": "info", "content": "hi", "nextNodeId": "gone"}]
	}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["kind"])
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	srv := newAPI(t)
	admin := client(t, srv, "admin-1", middleware.ScopeFlowsAdmin, middleware.ScopeEscalationsAdmin)
	operator := client(t, srv, "op-1")
	flowID := registerDamage(t, admin)

	status, body := operator.get("/api/v1/categories/damage/active")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "damage_intro", body["startNodeId"])

	status, body = operator.post("/api/v1/threads/thread-1/sessions", model.StartSessionRequest{FlowID: flowID})
	require.Equal(t, http.StatusCreated, status, body)
	sessionID := sessionOf(t, body)["id"].(string)
	node := body["node"].(map[string]any)
	assert.Equal(t, "damage_intro", node["node_id"])

	status, body = operator.post("/api/v1/threads/thread-1/sessions", model.StartSessionRequest{FlowID: flowID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", body["kind"])

	base := "/api/v1/sessions/" + sessionID
	status, _ = operator.post(base+"/advance", model.AdvanceRequest{NodeID: "damage_intro"})
	require.Equal(t, http.StatusOK, status)

	status, body = operator.post(base+"/advance", model.AdvanceRequest{NodeID: "damage_intro"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "node_mismatch", body["kind"])

	status, body = operator.post(base+"/responses", model.SubmitResponseRequest{NodeID: "damage_check_photos", Value: "maybe"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation", body["kind"])

	status, _ = operator.post(base+"/responses", model.SubmitResponseRequest{NodeID: "damage_check_photos", Value: "yes"})
	require.Equal(t, http.StatusOK, status)

	status, body = operator.post(base+"/attachments", model.SubmitAttachmentsRequest{
		NodeID: "damage_upload_photos",
		Files:  []model.File{{ID: "f1", Name: "a.jpg", MimeType: "image/jpeg"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = operator.post(base+"/attachments", model.SubmitAttachmentsRequest{
		NodeID: "damage_upload_photos",
		Files: []model.File{
			{ID: "f1", Name: "a.jpg", MimeType: "image/jpeg"},
			{ID: "f2", Name: "b.png", MimeType: "image/png"},
		},
	})
	require.Equal(t, http.StatusOK, status)

	status, body = operator.post(base+"/responses", model.SubmitResponseRequest{NodeID: "damage_assessment", Value: "carrier_damage"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", sessionOf(t, body)["status"])

	status, body = operator.get(base)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "damage_carrier_claim", sessionOf(t, body)["current_node_id"])

	status, body = operator.get("/api/v1/threads/thread-1/escalations")
	require.Equal(t, http.StatusOK, status)
	escalations := body["escalations"].([]any)
	require.Len(t, escalations, 1)
	assert.Equal(t, "pending", escalations[0].(map[string]any)["status"])

	status, body = operator.get("/api/v1/threads/thread-1")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["needs_attention"])

	status, _ = operator.post("/api/v1/threads/thread-1/escalations/resolve", model.ResolveEscalationRequest{Notes: "done"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = admin.post("/api/v1/threads/thread-1/escalations/resolve", model.ResolveEscalationRequest{Notes: "claim filed"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "resolved", body["status"])
	assert.Equal(t, "admin-1", body["assigned_admin_id"])

	status, body = admin.post("/api/v1/threads/thread-1/escalations/resolve", model.ResolveEscalationRequest{})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["kind"])

	status, body = operator.get("/api/v1/threads/thread-1/suggestions?completed_flow_id=" + flowID)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["suggestions"])
}

func TestSessionPathValidation(t *testing.T) {
	srv := newAPI(t)
	operator := client(t, srv, "op-1")

	status, _ := operator.get("/api/v1/sessions/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := operator.get("/api/v1/sessions/0190a3c5-7b2e-7000-8000-000000000000")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["kind"])

	status, _ = operator.get("/api/v1/threads/thread-1/suggestions")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = operator.do(http.MethodPost, "/api/v1/threads/thread-1/sessions", "application/json", []byte(`{"flow":"x"}`))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   string
	}{
		{&engine.ValidationError{Reason: "bad"}, http.StatusBadRequest, "validation"},
		{&engine.NotFoundError{Kind: "session", ID: "x"}, http.StatusNotFound, "not_found"},
		{&engine.ConflictError{ThreadID: "t", Category: "c"}, http.StatusConflict, "conflict"},
		{&engine.NodeMismatchError{}, http.StatusConflict, "node_mismatch"},
		{&engine.InvalidStateError{}, http.StatusConflict, "invalid_state"},
		{&engine.EvaluationError{}, http.StatusUnprocessableEntity, "evaluation"},
		{&engine.UnroutableStateError{}, http.StatusUnprocessableEntity, "unroutable"},
		{fmt.Errorf("wrapped: %w", &engine.UnroutableStateError{}), http.StatusUnprocessableEntity, "unroutable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, kind := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.kind, kind, tt.err.Error())
	}
}
