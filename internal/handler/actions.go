package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumichat/agent-queue/internal/middleware"
	"github.com/lumichat/agent-queue/internal/service"
	"github.com/lumichat/agent-queue/pkg/logger"
)

// ActionHandler serves the per-conversation actions an agent triggers
// from the console. Every successful action is followed by a reconciling
// snapshot refetch inside the service.
type ActionHandler struct {
	service *service.QueueService
	logger  *logger.Logger
}

// NewActionHandler creates a new action handler.
func NewActionHandler(svc *service.QueueService, log *logger.Logger) *ActionHandler {
	return &ActionHandler{
		service: svc,
		logger:  log,
	}
}

func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// MarkRead handles POST /api/v1/conversations/{id}/read
func (h *ActionHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), id); err != nil {
		h.logger.Error("mark read failed", "conversation_id", id, "error", err)
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AssignRequest is the body for the assign action.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// Assign handles POST /api/v1/conversations/{id}/assign
func (h *ActionHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		req.AgentID = middleware.GetAgentID(r.Context())
	}
	if err := middleware.ValidateAgentID(req.AgentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Assign(r.Context(), id, req.AgentID); err != nil {
		h.logger.Error("assign failed", "conversation_id", id, "agent_id", req.AgentID, "error", err)
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// PanicRoomRequest is the body for the panic-room toggle.
type PanicRoomRequest struct {
	Enabled bool `json:"enabled"`
}

// PanicRoom handles POST /api/v1/conversations/{id}/panic-room
func (h *ActionHandler) PanicRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req PanicRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.SetPanicRoom(r.Context(), id, req.Enabled); err != nil {
		h.logger.Error("panic room toggle failed", "conversation_id", id, "error", err)
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// PushBack handles POST /api/v1/conversations/{id}/push-back
func (h *ActionHandler) PushBack(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.service.PushBack(r.Context(), id); err != nil {
		h.logger.Error("push back failed", "conversation_id", id, "error", err)
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Outgoing handles POST /api/v1/conversations/{id}/outgoing, the
// console's optimistic-hide hook, called the moment an agent sends a
// message, before server confirmation.
func (h *ActionHandler) Outgoing(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.service.NotifyOutgoing(r.Context(), id); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"ok": true})
}

// Remove handles DELETE /api/v1/conversations/{id}, hiding the
// conversation from the dashboard. Suppression only; nothing is deleted.
func (h *ActionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(id); err != nil {
		writeActionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
