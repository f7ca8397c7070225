package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ratewatch/ratewatch/internal/broadcast"
	"github.com/ratewatch/ratewatch/pkg/httputil"
)

// heartbeatInterval keeps intermediaries from closing idle event streams.
const heartbeatInterval = 30 * time.Second

// EventsHandler streams broadcast events to clients over Server-Sent Events.
type EventsHandler struct {
	hub    *broadcast.Hub
	logger *slog.Logger
}

// NewEventsHandler creates a new SSE events handler.
func NewEventsHandler(hub *broadcast.Hub, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{hub: hub, logger: logger}
}

// Stream handles GET /api/v1/events. Each connected client gets its own
// subscription; the stream closes when the client disconnects or the server
// shuts down.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteJSON(w, http.StatusInternalServerError, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "STREAMING_UNSUPPORTED", Message: "response writer does not support streaming"},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, cancel := h.hub.Subscribe()
	defer cancel()

	// Confirm the stream is open before the first event arrives.
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, event.Payload); err != nil {
				h.logger.DebugContext(r.Context(), "event stream write failed",
					slog.String("error", err.Error()),
				)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
