package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidmorph/vidmorph/internal/service/convert"
	"github.com/vidmorph/vidmorph/internal/storage"
)

// FilesHandler serves converted artifacts for download.
type FilesHandler struct {
	service   *convert.Service
	workspace *storage.Workspace
	logger    *slog.Logger
}

// NewFilesHandler creates the artifact download handler.
func NewFilesHandler(service *convert.Service, ws *storage.Workspace, logger *slog.Logger) *FilesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilesHandler{
		service:   service,
		workspace: ws,
		logger:    logger.With("component", "files_handler"),
	}
}

// RegisterRoutes registers the download endpoint on a chi-style router.
func (h *FilesHandler) RegisterRoutes(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/files/{output_id}", h.HandleDownload)
}

// HandleDownload streams an artifact to the client. An expired, mid-delete
// or never-produced artifact is a clean 404, never a truncated success.
func (h *FilesHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	outputID := chi.URLParam(r, "output_id")

	path, err := h.service.OutputFile(outputID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "artifact not found")
		return
	}

	// The retention reaper may have deleted the file between the lookup
	// and here; opening before writing any header keeps the 404 clean.
	f, info, err := h.workspace.Open(path)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "artifact not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+outputID+`"`)
	http.ServeContent(w, r, outputID, info.ModTime(), f)
}
