package handler

import (
	"net/http"

	"github.com/lumichat/agent-queue/internal/natsbus"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *natsbus.Client
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(natsClient *natsbus.Client) *HealthHandler {
	return &HealthHandler{
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
	// The queue view degrades to polling without the feed, but a pod that
	// cannot see the event bus should not take traffic.
	if h.natsClient == nil || !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
