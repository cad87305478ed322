package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"site-registry/internal/services"
	"site-registry/pkg/logging"
)

// ImportResponse is the summary returned after an upload
type ImportResponse struct {
	Filename string   `json:"filename"`
	Rows     int      `json:"rows"`
	Created  int      `json:"created"`
	Updated  int      `json:"updated"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors"`
}

// ImportSites handles POST /api/imports (multipart form, field "file")
func (h *SiteHandler) ImportSites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	defer func() {
		h.metrics.APIRequestDuration.WithLabelValues("/api/imports").Observe(time.Since(startTime).Seconds())
	}()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		if isTooLarge(err) {
			h.sendError(w, r, "uploaded file is too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.sendError(w, r, "expected a multipart form with a file field", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.sendError(w, r, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	report, err := h.importService.ImportFile(ctx, header.Filename, file)
	if err != nil {
		var fileErr *services.FileError
		if errors.As(err, &fileErr) {
			h.metrics.RecordAPIError("file_error", "/api/imports")
			h.sendError(w, r, fileErr.Error(), http.StatusUnprocessableEntity)
			return
		}

		h.logger.Error(ctx, "[API_IMPORT_ERROR] Import interrupted", logging.Fields{
			"filename": header.Filename,
		}, err)
		h.metrics.RecordAPIError("internal_error", "/api/imports")
		h.sendError(w, r, "import interrupted", http.StatusInternalServerError)
		return
	}

	response := ImportResponse{
		Filename: header.Filename,
		Rows:     len(report.Results),
		Created:  report.Created,
		Updated:  report.Updated,
		Failed:   report.Failed,
		Errors:   report.Errors(),
	}

	h.metrics.RecordAPIRequest("/api/imports", "POST", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// isTooLarge reports whether parsing stopped at the upload size limit. The
// multipart reader does not always wrap the underlying *http.MaxBytesError.
func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) ||
		errors.Is(err, multipart.ErrMessageTooLarge) ||
		strings.Contains(err.Error(), "request body too large")
}
