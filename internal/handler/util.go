package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/guided-resolution/internal/engine"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// errorBody carries the machine readable kind of a service error.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeServiceError maps service errors onto HTTP statuses. Anything
// unclassified is logged and reported as a 500 without detail.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	status, kind := classify(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.String("op", op), zap.Error(err))
		writeError(w, status, "internal error")
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, engine.ErrNodeMismatch):
		return http.StatusConflict, "node_mismatch"
	case errors.Is(err, engine.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, engine.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, engine.ErrEvaluation):
		return http.StatusUnprocessableEntity, "evaluation"
	case errors.Is(err, engine.ErrUnroutable):
		return http.StatusUnprocessableEntity, "unroutable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
