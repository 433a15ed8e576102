package models

import (
	"strings"
	"time"
)

// JobStatus represents the lifecycle state of a send job
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// LogKind distinguishes plain text lines from encoded image payloads
type LogKind string

const (
	LogKindText  LogKind = "text"
	LogKindImage LogKind = "image"
)

// Log levels used for the leading tag convention on text lines.
// The UI parses these tags to pick a presentation style; the wire
// format itself stays an untyped text line.
const (
	LevelInfo    = "INFO"
	LevelWarn    = "WARN"
	LevelError   = "ERROR"
	LevelSuccess = "SUCCESS"
)

// Image payload markers. A line whose payload starts with one of these
// carries base64-encoded image data after the marker instead of text.
const (
	ImageMarkerJPEG = "__IMAGE_JPEG_BASE64__:"
	ImageMarkerPNG  = "__IMAGE_PNG_BASE64__:"
)

// LogLine is one unit of append-only job output. Once appended to a job's
// log its content and position are fixed.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      LogKind   `json:"kind"`
	Level     string    `json:"level,omitempty"`
	Payload   string    `json:"payload"`
	ImageType string    `json:"image_type,omitempty"` // "png" or "jpeg" for image lines
}

// NewTextLine creates a text log line stamped at publish time.
func NewTextLine(level, payload string) LogLine {
	return LogLine{
		Timestamp: time.Now(),
		Kind:      LogKindText,
		Level:     level,
		Payload:   payload,
	}
}

// NewImageLine creates an image log line from a marker-prefixed payload.
// The payload keeps its marker so late subscribers replaying the backlog
// see the same bytes live subscribers saw.
func NewImageLine(markedPayload string) LogLine {
	imageType, _, _ := DetectImageLine(markedPayload)
	return LogLine{
		Timestamp: time.Now(),
		Kind:      LogKindImage,
		Payload:   markedPayload,
		ImageType: imageType,
	}
}

// DetectImageLine reports whether payload carries a marker-tagged image.
// On match it returns the image subtype and the base64 data with the
// marker stripped.
func DetectImageLine(payload string) (imageType, data string, ok bool) {
	switch {
	case strings.HasPrefix(payload, ImageMarkerPNG):
		return "png", strings.TrimPrefix(payload, ImageMarkerPNG), true
	case strings.HasPrefix(payload, ImageMarkerJPEG):
		return "jpeg", strings.TrimPrefix(payload, ImageMarkerJPEG), true
	default:
		return "", "", false
	}
}

// Render formats a text line for the wire: timestamp prefix, then the
// level tag, then the message. Image lines are returned verbatim since
// their payload is not human-readable text.
func (l LogLine) Render() string {
	if l.Kind == LogKindImage {
		return l.Payload
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(l.Timestamp.Format(time.RFC3339))
	b.WriteString("] ")
	if l.Level != "" && l.Level != LevelInfo {
		b.WriteString("[")
		b.WriteString(l.Level)
		b.WriteString("] ")
	}
	b.WriteString(l.Payload)
	return b.String()
}
