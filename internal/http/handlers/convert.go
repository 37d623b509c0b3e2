package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/vidmorph/vidmorph/internal/service/convert"
)

// ConvertHandler accepts multipart upload submissions. It is registered raw
// on chi: huma's typed pipeline buffers bodies, which defeats streaming large
// uploads to disk.
type ConvertHandler struct {
	service       *convert.Service
	maxUploadSize int64
	logger        *slog.Logger
}

// NewConvertHandler creates the upload handler.
func NewConvertHandler(service *convert.Service, maxUploadSize int64, logger *slog.Logger) *ConvertHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConvertHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
		logger:        logger.With("component", "convert_handler"),
	}
}

// RegisterRoutes registers the upload endpoint on a chi-style router.
func (h *ConvertHandler) RegisterRoutes(router interface {
	Post(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Post("/api/v1/convert", h.HandleConvert)
}

// submitResponse is the 202 body for an accepted conversion.
type submitResponse struct {
	JobID    string `json:"job_id"`
	OutputID string `json:"output_id"`
}

// HandleConvert accepts a multipart form with fields file, input_format and
// output_format. Formats are validated before the upload is persisted, so an
// invalid request writes nothing to disk.
func (h *ConvertHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)

	// Form fields stream through the multipart reader; only small fields
	// are held in memory.
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "malformed multipart request")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	inputFormat := r.FormValue("input_format")
	if inputFormat == "" {
		// Fall back to the uploaded filename's extension.
		inputFormat = strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	}
	outputFormat := r.FormValue("output_format")
	if outputFormat == "" {
		writeJSONError(w, http.StatusBadRequest, "missing output_format field")
		return
	}

	job, err := h.service.Submit(r.Context(), file, inputFormat, outputFormat)
	if err != nil {
		writeJSONError(w, statusForError(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(submitResponse{
		JobID:    job.ID,
		OutputID: job.OutputID,
	})
}
