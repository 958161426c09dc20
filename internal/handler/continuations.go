package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/guided-resolution/internal/model"
	"github.com/capitalize-ai/guided-resolution/internal/service"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

// ContinuationHandler handles follow-on flow endpoints.
type ContinuationHandler struct {
	service *service.ContinuationService
	logger  *logger.Logger
}

// NewContinuationHandler creates a new continuation handler.
func NewContinuationHandler(svc *service.ContinuationService, log *logger.Logger) *ContinuationHandler {
	return &ContinuationHandler{
		service: svc,
		logger:  log,
	}
}

// Suggestions handles GET /api/v1/threads/{threadID}/suggestions?completed_flow_id=
func (h *ContinuationHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	flowID := r.URL.Query().Get("completed_flow_id")
	if flowID == "" {
		writeError(w, http.StatusBadRequest, "completed_flow_id is required")
		return
	}

	suggestions, err := h.service.SuggestNext(r.Context(), chi.URLParam(r, "threadID"), flowID)
	if err != nil {
		writeServiceError(w, h.logger, "suggest flows", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// Record handles POST /api/v1/threads/{threadID}/continuations
func (h *ContinuationHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req model.RecordContinuationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.RecordContinuation(r.Context(), chi.URLParam(r, "threadID"), req.FromSessionID, req.ToSessionID)
	if err != nil {
		writeServiceError(w, h.logger, "record continuation", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// List handles GET /api/v1/threads/{threadID}/continuations
func (h *ContinuationHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListByThread(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		writeServiceError(w, h.logger, "list continuations", err)
		return
	}
	if list == nil {
		list = []*model.FlowContinuation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"continuations": list})
}
