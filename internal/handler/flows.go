// Package handler provides HTTP handlers for the API.
package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/guided-resolution/internal/middleware"
	"github.com/capitalize-ai/guided-resolution/internal/service"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

// FlowHandler handles flow definition endpoints.
type FlowHandler struct {
	service *service.FlowService
	logger  *logger.Logger
}

// NewFlowHandler creates a new flow handler.
func NewFlowHandler(svc *service.FlowService, log *logger.Logger) *FlowHandler {
	return &FlowHandler{
		service: svc,
		logger:  log,
	}
}

// Register handles POST /api/v1/flows
//
// The body is a flow document in JSON, or YAML when the content type says
// so. ?activate=true activates the new version in the same call.
func (h *FlowHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, middleware.MaxFlowDocumentBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body) > middleware.MaxFlowDocumentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "flow document too large")
		return
	}

	def, err := h.service.RegisterDocument(ctx, body, documentName(r))
	if err != nil {
		writeServiceError(w, h.logger, "register flow", err)
		return
	}

	if activate, _ := strconv.ParseBool(r.URL.Query().Get("activate")); activate {
		def, err = h.service.Activate(ctx, def.ID, def.Version)
		if err != nil {
			writeServiceError(w, h.logger, "activate flow", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, def.Summary())
}

// List handles GET /api/v1/flows
func (h *FlowHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if active, _ := strconv.ParseBool(r.URL.Query().Get("active")); active {
		flows, err := h.service.ListActive(ctx)
		if err != nil {
			writeServiceError(w, h.logger, "list active flows", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"flows": flows})
		return
	}

	flows, err := h.service.List(ctx, r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, h.logger, "list flows", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": flows})
}

// Get handles GET /api/v1/flows/{flowID}/versions/{version}
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	version, ok := versionParam(w, r)
	if !ok {
		return
	}

	def, err := h.service.GetByVersion(r.Context(), flowID, version)
	if err != nil {
		writeServiceError(w, h.logger, "get flow", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// Activate handles POST /api/v1/flows/{flowID}/versions/{version}/activate
func (h *FlowHandler) Activate(w http.ResponseWriter, r *http.Request) {
	flowID := chi.URLParam(r, "flowID")
	version, ok := versionParam(w, r)
	if !ok {
		return
	}

	def, err := h.service.Activate(r.Context(), flowID, version)
	if err != nil {
		writeServiceError(w, h.logger, "activate flow", err)
		return
	}
	writeJSON(w, http.StatusOK, def.Summary())
}

// GetActive handles GET /api/v1/categories/{category}/active
func (h *FlowHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	def, err := h.service.GetActive(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		writeServiceError(w, h.logger, "get active flow", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func versionParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "invalid version")
		return 0, false
	}
	return version, true
}

// documentName maps the request content type onto a file name the flow
// decoder understands.
func documentName(r *http.Request) string {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return "flow.yaml"
	default:
		return "flow.json"
	}
}
