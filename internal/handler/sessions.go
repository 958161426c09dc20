package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/guided-resolution/internal/middleware"
	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/internal/service"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

// SessionHandler handles flow session endpoints.
type SessionHandler struct {
	service *service.SessionService
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(svc *service.SessionService, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		service: svc,
		logger:  log,
	}
}

// Start handles POST /api/v1/threads/{threadID}/sessions
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.StartSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FlowID == "" {
		writeError(w, http.StatusBadRequest, "flow_id is required")
		return
	}

	view, err := h.service.Start(r.Context(), threadID, req.FlowID)
	if err != nil {
		writeServiceError(w, h.logger, "start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListByThread handles GET /api/v1/threads/{threadID}/sessions
func (h *SessionHandler) ListByThread(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.ListByThread(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		writeServiceError(w, h.logger, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []*model.FlowSession{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// Get handles GET /api/v1/sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.Render(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.logger, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SubmitResponse handles POST /api/v1/sessions/{sessionID}/responses
func (h *SessionHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	var req model.SubmitResponseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateNodeID(req.NodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.service.SubmitResponse(r.Context(), sessionID, req.NodeID, req.Value)
	if err != nil {
		writeServiceError(w, h.logger, "submit response", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SubmitAttachments handles POST /api/v1/sessions/{sessionID}/attachments
func (h *SessionHandler) SubmitAttachments(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	var req model.SubmitAttachmentsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateNodeID(req.NodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.service.SubmitAttachments(r.Context(), sessionID, req.NodeID, req.Files)
	if err != nil {
		writeServiceError(w, h.logger, "submit attachments", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Advance handles POST /api/v1/sessions/{sessionID}/advance
func (h *SessionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	var req model.AdvanceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateNodeID(req.NodeID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.service.Advance(r.Context(), sessionID, req.NodeID)
	if err != nil {
		writeServiceError(w, h.logger, "advance session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Pause handles POST /api/v1/sessions/{sessionID}/pause
func (h *SessionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	var req model.PauseSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateText("reason", req.Reason, 256); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.service.Pause(r.Context(), sessionID, req.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "pause session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Resume handles POST /api/v1/sessions/{sessionID}/resume
func (h *SessionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.Resume(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.logger, "resume session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Abandon handles POST /api/v1/sessions/{sessionID}/abandon
func (h *SessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	view, err := h.service.Abandon(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, h.logger, "abandon session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Draft handles POST /api/v1/sessions/{sessionID}/draft
func (h *SessionHandler) Draft(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionParam(w, r)
	if !ok {
		return
	}
	var req model.DraftReplyRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := middleware.ValidateText("instruction", req.Instruction, 2000); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	draft, err := h.service.Draft(r.Context(), sessionID, req.Instruction)
	if err != nil {
		writeServiceError(w, h.logger, "draft reply", err)
		return
	}
	writeJSON(w, http.StatusOK, draft)
}

func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "sessionID")
	if err := middleware.ValidateUUID("session", id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}
