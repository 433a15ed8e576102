package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/models"
	"github.com/ternarybob/nuntio/internal/services/events"
)

const ssePingInterval = 15 * time.Second

// SSELogsHandler streams job log lines over Server-Sent Events. Each
// connection first replays the full backlog, then follows live lines
// until the client disconnects.
type SSELogsHandler struct {
	registry *events.Registry
	logger   arbor.ILogger
}

type ssePing struct {
	Timestamp time.Time `json:"timestamp"`
}

func NewSSELogsHandler(registry *events.Registry) *SSELogsHandler {
	return &SSELogsHandler{
		registry: registry,
		logger:   common.GetLogger(),
	}
}

// StreamLogs handles GET /api/send/logs?jobId={id}.
//
// Text lines are sent as default events carrying the rendered line.
// Image lines are sent as named events whose data is the bare base64
// payload, marker stripped, so an EventSource client can feed it
// straight into a data URL. The image subtype rides on the event name:
// "image" for PNG, "image-jpeg" for JPEG.
func (h *SSELogsHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		http.Error(w, "jobId is required", http.StatusBadRequest)
		return
	}
	if !common.IsJobID(jobID) {
		http.Error(w, "Invalid jobId", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Flush headers immediately to trigger the browser's EventSource.onopen
	flusher.Flush()

	backlog, lines, cancel := h.registry.Attach(jobID)
	defer cancel()

	h.logger.Debug().
		Str("job_id", jobID).
		Int("backlog", len(backlog)).
		Msg("SSE log subscriber attached")

	for _, line := range backlog {
		h.sendLine(w, flusher, line)
	}

	pingTicker := time.NewTicker(ssePingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug().Str("job_id", jobID).Msg("SSE log subscriber disconnected")
			return

		case line, open := <-lines:
			if !open {
				return
			}
			h.sendLine(w, flusher, line)
			pingTicker.Reset(ssePingInterval)

		case <-pingTicker.C:
			h.sendPing(w, flusher)
		}
	}
}

func (h *SSELogsHandler) sendLine(w http.ResponseWriter, flusher http.Flusher, line models.LogLine) {
	if line.Kind == models.LogKindImage {
		if imageType, data, ok := models.DetectImageLine(line.Payload); ok {
			event := "image"
			if imageType == "jpeg" {
				event = "image-jpeg"
			}
			fmt.Fprintf(w, "event: %s\n", event)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			return
		}
	}

	fmt.Fprintf(w, "data: %s\n\n", line.Render())
	flusher.Flush()
}

func (h *SSELogsHandler) sendPing(w http.ResponseWriter, flusher http.Flusher) {
	data, err := json.Marshal(ssePing{Timestamp: time.Now()})
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: ping\n")
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
