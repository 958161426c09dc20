package handler

import (
	"context"
	"net/http"
	"time"

	natsclient "github.com/capitalize-ai/guided-resolution/internal/nats"
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db         Pinger
	natsClient *natsclient.Client
}

// NewHealthHandler creates a new health handler. natsClient is nil when
// notification delivery is disabled.
func NewHealthHandler(db Pinger, natsClient *natsclient.Client) *HealthHandler {
	return &HealthHandler{
		db:         db,
		natsClient: natsClient,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unreachable",
		})
		return
	}

	// Notifications queue in the outbox while NATS is down, so a lost
	// connection degrades delivery but not readiness.
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"nats":   h.natsClient.Status(),
	})
}
