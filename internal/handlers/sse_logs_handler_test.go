package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/models"
	"github.com/ternarybob/nuntio/internal/services/events"
)

func newSSEFixture() (*SSELogsHandler, *events.Registry) {
	registry := events.NewRegistry(common.GetLogger())
	return NewSSELogsHandler(registry), registry
}

func TestStreamLogs_RequiresJobID(t *testing.T) {
	handler, _ := newSSEFixture()

	req := httptest.NewRequest("GET", "/api/send/logs", nil)
	rec := httptest.NewRecorder()
	handler.StreamLogs(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "jobId is required")
}

func TestStreamLogs_RejectsMalformedJobID(t *testing.T) {
	handler, _ := newSSEFixture()

	for _, bad := range []string{"not-a-job", "job_zzz", "job_", "12345"} {
		req := httptest.NewRequest("GET", "/api/send/logs?jobId="+bad, nil)
		rec := httptest.NewRecorder()
		handler.StreamLogs(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "jobId %q should be rejected", bad)
	}
}

func TestStreamLogs_RejectsNonGET(t *testing.T) {
	handler, _ := newSSEFixture()

	req := httptest.NewRequest("POST", "/api/send/logs?jobId=x", nil)
	rec := httptest.NewRecorder()
	handler.StreamLogs(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStreamLogs_ReplaysBacklog(t *testing.T) {
	handler, registry := newSSEFixture()

	jobID := common.NewJobID()
	pub := registry.Publisher(jobID)
	pub.Infof("Job received")
	pub.Warnf("one number skipped")
	pub.Image("png", "QkFTRTY0")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest("GET", "/api/send/logs?jobId="+jobID, nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.StreamLogs(rec, req)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	body := rec.Body.String()
	assert.Contains(t, body, "Job received")
	assert.Contains(t, body, "[WARN] one number skipped")
	assert.Contains(t, body, "event: image\ndata: QkFTRTY0\n\n")

	// Backlog order is preserved in the stream.
	assert.Less(t,
		strings.Index(body, "Job received"),
		strings.Index(body, "one number skipped"))
}

func TestStreamLogs_DeliversLiveLines(t *testing.T) {
	handler, registry := newSSEFixture()

	jobID := common.NewJobID()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/send/logs?jobId="+jobID, nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.StreamLogs(rec, req)
	}()

	// Wait until the handler has attached its subscriber.
	require.Eventually(t, func() bool {
		return registry.SubscriberCount(jobID) == 1
	}, time.Second, 5*time.Millisecond)

	registry.Publisher(jobID).Successf("+6591234567 message sent (check mark detected)")

	// Give the select loop a moment to flush, then disconnect.
	require.Eventually(t, func() bool {
		cancel()
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, rec.Body.String(), "+6591234567 message sent (check mark detected)")
}

func TestStreamLogs_UnknownJobGetsEmptyStream(t *testing.T) {
	handler, registry := newSSEFixture()

	// Attaching to an unknown-but-well-formed ID streams an empty log
	// rather than failing; the job may simply not have started yet.
	jobID := common.NewJobID()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest("GET", "/api/send/logs?jobId="+jobID, nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	handler.StreamLogs(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, registry.Exists(jobID))
	assert.NotContains(t, rec.Body.String(), "data: [")
}

func TestSendLine_ImageFraming(t *testing.T) {
	handler, _ := newSSEFixture()

	// The event data must be exactly the base64 payload with the marker
	// stripped; the subtype travels in the event name only.
	tests := []struct {
		name   string
		marker string
		frame  string
	}{
		{"png", models.ImageMarkerPNG, "event: image\ndata: AAAA\n\n"},
		{"jpeg", models.ImageMarkerJPEG, "event: image-jpeg\ndata: AAAA\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			line := models.NewImageLine(tt.marker + "AAAA")
			handler.sendLine(rec, rec, line)
			assert.Equal(t, tt.frame, rec.Body.String())
		})
	}
}
