package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/guided-resolution/internal/middleware"
	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/internal/service"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

// EscalationHandler handles escalation and thread assignment endpoints.
type EscalationHandler struct {
	service *service.EscalationService
	logger  *logger.Logger
}

// NewEscalationHandler creates a new escalation handler.
func NewEscalationHandler(svc *service.EscalationService, log *logger.Logger) *EscalationHandler {
	return &EscalationHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/threads/{threadID}/escalations
func (h *EscalationHandler) List(w http.ResponseWriter, r *http.Request) {
	escalations, err := h.service.ListByThread(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		writeServiceError(w, h.logger, "list escalations", err)
		return
	}
	if escalations == nil {
		escalations = []*model.EscalationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": escalations})
}

// Acknowledge handles POST /api/v1/threads/{threadID}/escalations/acknowledge
func (h *EscalationHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.service.Acknowledge(ctx, chi.URLParam(r, "threadID"), middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, h.logger, "acknowledge escalation", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Investigate handles POST /api/v1/threads/{threadID}/escalations/investigate
func (h *EscalationHandler) Investigate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := h.service.Investigate(ctx, chi.URLParam(r, "threadID"), middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, h.logger, "investigate escalation", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Resolve handles POST /api/v1/threads/{threadID}/escalations/resolve
func (h *EscalationHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ResolveEscalationRequest
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := middleware.ValidateText("notes", req.Notes, 10000); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.service.Resolve(ctx, chi.URLParam(r, "threadID"), middleware.GetUserID(ctx), req.Notes)
	if err != nil {
		writeServiceError(w, h.logger, "resolve escalation", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetThread handles GET /api/v1/threads/{threadID}
func (h *EscalationHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	thread, err := h.service.Thread(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		writeServiceError(w, h.logger, "get thread", err)
		return
	}
	writeJSON(w, http.StatusOK, thread)
}

// AssignThread handles PUT /api/v1/threads/{threadID}/assignment
func (h *EscalationHandler) AssignThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if err := middleware.ValidateThreadID(threadID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req model.AssignThreadRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.AssignThread(r.Context(), threadID, req.AdminID); err != nil {
		writeServiceError(w, h.logger, "assign thread", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
