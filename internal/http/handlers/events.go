package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vidmorph/vidmorph/internal/service/convert"
	"github.com/vidmorph/vidmorph/internal/service/progress"
)

// EventsHandler streams job progress over SSE. Registered raw on chi because
// huma does not handle streaming responses.
type EventsHandler struct {
	service           *convert.Service
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewEventsHandler creates the SSE handler.
func NewEventsHandler(service *convert.Service, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		service:           service,
		heartbeatInterval: 30 * time.Second,
		logger:            logger.With("component", "events_handler"),
	}
}

// SetHeartbeatInterval overrides the heartbeat cadence (for testing).
func (h *EventsHandler) SetHeartbeatInterval(interval time.Duration) {
	h.heartbeatInterval = interval
}

// RegisterRoutes registers the SSE endpoint on a chi-style router.
func (h *EventsHandler) RegisterRoutes(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/events", h.HandleEvents)
}

// HandleEvents subscribes the client to the progress hub and streams events
// until disconnect. Subscribers see events from subscription forward; there
// is no replay. The optional job_id query parameter narrows the stream to a
// single job.
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	var filter *progress.Filter
	if jobID := r.URL.Query().Get("job_id"); jobID != "" {
		filter = &progress.Filter{JobID: &jobID}
	}

	sub := h.service.Subscribe(filter)
	defer h.service.Unsubscribe(sub.ID)

	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	// Initial comment establishes the stream and triggers onopen in
	// browsers.
	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		h.logger.Debug("initial SSE flush failed", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				h.logger.Debug("heartbeat flush failed, client likely disconnected", "error", err)
				return
			}
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := h.writeEvent(w, event); err != nil {
				h.logger.Debug("writing SSE event failed",
					"event_type", event.EventType,
					"job_id", event.JobID,
					"error", err,
				)
				return
			}
			if err := rc.Flush(); err != nil {
				h.logger.Debug("event flush failed, client likely disconnected", "error", err)
				return
			}
		}
	}
}

// writeEvent writes one event in SSE wire format as a single write.
func (h *EventsHandler) writeEvent(w http.ResponseWriter, event *progress.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	message := fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType, data)
	n, err := w.Write([]byte(message))
	if err != nil {
		return err
	}
	if n < len(message) {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, len(message))
	}
	return nil
}
