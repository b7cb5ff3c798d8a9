package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lumichat/agent-queue/internal/queue"
	"github.com/lumichat/agent-queue/internal/service"
	"github.com/lumichat/agent-queue/pkg/logger"
	"github.com/lumichat/agent-queue/pkg/metrics"
)

// StreamHandler serves the live queue view over SSE.
type StreamHandler struct {
	service *service.QueueService
	logger  *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(svc *service.QueueService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		service: svc,
		logger:  log,
	}
}

// HeartbeatEvent keeps idle SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stream handles GET /api/v1/queue/stream?filter=
//
// The client receives the full classified view immediately, then a fresh
// view every time the table changes (change notifications are coalesced
// by the service), plus periodic heartbeats.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := queue.ParseFilter(r.URL.Query().Get("filter"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	updates, cancel := h.service.Subscribe()
	defer cancel()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"filter": string(filter),
	})
	h.sendView(w, flusher, filter)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected", "filter", string(filter))
			return

		case <-updates:
			h.sendView(w, flusher, filter)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func (h *StreamHandler) sendView(w http.ResponseWriter, flusher http.Flusher, filter queue.Filter) {
	resp := QueueResponse{
		Filter: filter,
		Counts: h.service.Counts(),
	}
	if filter == queue.FilterLikes {
		resp.Likes = h.service.Likes()
	} else {
		resp.Conversations = h.service.View(filter)
	}
	sendSSEEvent(w, flusher, "queue", resp)
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
