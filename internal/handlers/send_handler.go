package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/services/sender"
	"github.com/ternarybob/nuntio/internal/services/uploads"
)

// SendHandler accepts the multipart job submission and hands it to the
// runner. The response returns as soon as the job is queued; progress is
// consumed over the log stream.
type SendHandler struct {
	runner  *sender.Runner
	staging *uploads.Service
	cfg     common.UploadsConfig
	logger  arbor.ILogger
}

func NewSendHandler(runner *sender.Runner, staging *uploads.Service, cfg common.UploadsConfig) *SendHandler {
	return &SendHandler{
		runner:  runner,
		staging: staging,
		cfg:     cfg,
		logger:  common.GetLogger(),
	}
}

// SubmitHandler handles POST /api/send.
//
// Multipart fields:
//   - namelist: spreadsheet with a "Mobile Number" column (required)
//   - message:  template file, {Column} placeholders (required)
//   - images:   zero or more images attached to every recipient
//   - document: optional document attached to every recipient
//   - target_url: optional automation entry point override
func (h *SendHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	maxBytes := int64(h.cfg.MaxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	namelist, ok := h.formFile(r, "namelist")
	template, hasTemplate := h.templateFrom(r)
	if !ok || !hasTemplate {
		WriteError(w, http.StatusBadRequest, "Missing files: namelist and message are required")
		return
	}

	namelistPath, err := h.staging.Save(namelist)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to stage namelist upload")
		WriteError(w, http.StatusInternalServerError, "Failed to store namelist")
		return
	}

	var imagePaths []string
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["images"] {
			path, err := h.staging.Save(fh)
			if err != nil {
				h.logger.Warn().Err(err).Str("file", fh.Filename).Msg("Failed to stage image upload")
				continue
			}
			imagePaths = append(imagePaths, path)
		}
	}

	documentPath := ""
	if fh, ok := h.formFile(r, "document"); ok {
		documentPath, err = h.staging.Save(fh)
		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to stage document upload")
			documentPath = ""
		}
	}

	jobID, err := h.runner.Submit(r.Context(), sender.SubmitRequest{
		NamelistPath: namelistPath,
		Template:     template,
		ImagePaths:   imagePaths,
		DocumentPath: documentPath,
		TargetURL:    strings.TrimSpace(r.FormValue("target_url")),
	})
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"job_id": jobID})
}

// formFile returns the first file for the field, or false when absent.
func (h *SendHandler) formFile(r *http.Request, field string) (*multipart.FileHeader, bool) {
	if r.MultipartForm == nil {
		return nil, false
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, false
	}
	return files[0], true
}

// templateFrom reads the message template either from an uploaded file
// part or from a plain form value.
func (h *SendHandler) templateFrom(r *http.Request) (string, bool) {
	if fh, ok := h.formFile(r, "message"); ok {
		f, err := fh.Open()
		if err != nil {
			return "", false
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", false
		}
		return string(data), len(data) > 0
	}
	if v := r.FormValue("message"); v != "" {
		return v, true
	}
	return "", false
}
