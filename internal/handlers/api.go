package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/services/sender"
)

type APIHandler struct {
	runner *sender.Runner
	logger arbor.ILogger
}

func NewAPIHandler(runner *sender.Runner) *APIHandler {
	return &APIHandler{
		runner: runner,
		logger: common.GetLogger(),
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status with the active job count
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	active := 0
	if h.runner != nil {
		active = h.runner.ActiveCount()
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"active_jobs": active,
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
