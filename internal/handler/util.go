// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lumichat/agent-queue/internal/model"
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

// writeActionError maps service errors from user-triggered actions to
// status codes: unknown conversation is the caller's mistake, anything
// else is an upstream failure.
func writeActionError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrConversationNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
