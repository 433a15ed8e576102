package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewJobID generates a unique job ID with the "job_" prefix
// Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// IsJobID reports whether s looks like an ID produced by NewJobID.
// Used to reject malformed job identifiers before opening a stream.
func IsJobID(s string) bool {
	if !strings.HasPrefix(s, "job_") {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(s, "job_"))
	return err == nil
}

// NewUploadName generates a collision-free staging file name that keeps
// the original file name visible for debugging.
func NewUploadName(original string) string {
	return uuid.New().String() + "-" + original
}
