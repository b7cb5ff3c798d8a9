package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumichat/agent-queue/internal/model"
	"github.com/lumichat/agent-queue/internal/queue"
	"github.com/lumichat/agent-queue/internal/service"
	"github.com/lumichat/agent-queue/pkg/logger"
)

// QueueHandler serves the classified queue views and badge counts.
type QueueHandler struct {
	service *service.QueueService
	logger  *logger.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(svc *service.QueueService, log *logger.Logger) *QueueHandler {
	return &QueueHandler{
		service: svc,
		logger:  log,
	}
}

// QueueResponse is the payload for a filtered queue view.
type QueueResponse struct {
	Filter        queue.Filter         `json:"filter"`
	Conversations []model.Conversation `json:"conversations"`
	Likes         []model.Like         `json:"likes,omitempty"`
	Counts        queue.Counts         `json:"counts"`
}

// List handles GET /api/v1/queue?filter=
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := queue.ParseFilter(r.URL.Query().Get("filter"))

	resp := QueueResponse{
		Filter: filter,
		Counts: h.service.Counts(),
	}
	if filter == queue.FilterLikes {
		resp.Likes = h.service.Likes()
		resp.Conversations = []model.Conversation{}
	} else {
		resp.Conversations = h.service.View(filter)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Counts handles GET /api/v1/queue/counts
func (h *QueueHandler) Counts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Counts())
}

// Likes handles GET /api/v1/likes
func (h *QueueHandler) Likes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"likes": h.service.Likes(),
	})
}

// Notifications handles GET /api/v1/notifications
func (h *QueueHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": h.service.Notifications(),
	})
}

// Refresh handles POST /api/v1/queue/refresh, an explicit authoritative
// refetch, used by the console's refresh button.
func (h *QueueHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Refresh(r.Context()); err != nil {
		h.logger.Error("explicit refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, "snapshot fetch failed")
		return
	}
	writeJSON(w, http.StatusOK, h.service.Counts())
}

// Presence handles GET /api/v1/presence/{customerID}
func (h *QueueHandler) Presence(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if customerID == "" {
		writeError(w, http.StatusBadRequest, "customer ID cannot be empty")
		return
	}

	p, ok := h.service.Presence(customerID)
	if !ok {
		writeError(w, http.StatusNotFound, "no presence record")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
