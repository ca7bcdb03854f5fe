package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
	"github.com/greywolfdl/mangadex-wui/internal/models"
	"github.com/greywolfdl/mangadex-wui/internal/services/files"
)

// archiveContentType is sent for delivered archives; browsers treat it as
// a download rather than attempting to render
const archiveContentType = "application/octet-stream"

// FileHandler delivers cached archive files to the browser
type FileHandler struct {
	tasks  interfaces.TaskStorage
	files  *files.Service
	logger arbor.ILogger
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(tasks interfaces.TaskStorage, filesService *files.Service, logger arbor.ILogger) *FileHandler {
	return &FileHandler{
		tasks:  tasks,
		files:  filesService,
		logger: logger,
	}
}

// ServeTaskFileHandler handles GET /api/file/{task_id}/{filename}.
//
// The task must exist and be finished, and the path must be one of the
// task's result files; a task whose record expired returns 410 so the
// client can tell "result gone" from "never existed".
func (h *FileHandler) ServeTaskFileHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	taskID, rel, ok := splitTaskFilePath(r.URL.Path)
	if !ok {
		WriteError(w, http.StatusNotFound, "File not found")
		return
	}

	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTaskExpired):
			WriteError(w, http.StatusGone, "Task has expired")
		case errors.Is(err, models.ErrTaskNotFound):
			WriteError(w, http.StatusNotFound, "Task not found")
		default:
			h.logger.Error().Err(err).Str("task_id", taskID).Msg("Task lookup failed")
			WriteError(w, http.StatusInternalServerError, "Could not load task")
		}
		return
	}

	if task.Status != models.TaskStatusFinished {
		WriteError(w, http.StatusNotFound, "Task has no files")
		return
	}

	if !containsFile(task.ResultFiles, rel) {
		WriteError(w, http.StatusNotFound, "File not found")
		return
	}

	h.serve(w, r, rel)
}

// ServeCacheFileHandler handles GET /api/cache/{series}/{file}
func (h *FileHandler) ServeCacheFileHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/cache/")
	seriesKey, name, ok := strings.Cut(rest, "/")
	if !ok || seriesKey == "" || name == "" {
		WriteError(w, http.StatusNotFound, "File not found")
		return
	}

	resolved, err := h.files.ResolveSeriesFile(seriesKey, name)
	if err != nil {
		h.writeResolveError(w, r, err)
		return
	}
	h.writeFile(w, r, resolved)
}

func (h *FileHandler) serve(w http.ResponseWriter, r *http.Request, rel string) {
	resolved, err := h.files.Resolve(rel)
	if err != nil {
		h.writeResolveError(w, r, err)
		return
	}
	h.writeFile(w, r, resolved)
}

func (h *FileHandler) writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrPathTraversal):
		h.logger.Warn().
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("Path traversal attempt blocked")
		WriteError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, models.ErrBadExtension):
		WriteError(w, http.StatusForbidden, "Only archive files can be downloaded")
	case errors.Is(err, models.ErrFileNotFound):
		WriteError(w, http.StatusNotFound, "File not found")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("File resolution failed")
		WriteError(w, http.StatusInternalServerError, "Could not deliver file")
	}
}

func (h *FileHandler) writeFile(w http.ResponseWriter, r *http.Request, resolved *files.Resolved) {
	w.Header().Set("Content-Type", archiveContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachmentName(resolved)))
	http.ServeFile(w, r, resolved.AbsolutePath)
}

// attachmentName builds the download name shown to the browser: the
// sanitized series name prefixed onto the archive basename. Presentation
// only; the resolved filesystem path is untouched.
func attachmentName(resolved *files.Resolved) string {
	if resolved.SeriesKey == "" {
		return resolved.FileName
	}
	return models.SanitizeDisplayName(resolved.SeriesKey) + " - " + resolved.FileName
}

// splitTaskFilePath parses /api/file/{task_id}/{rel}; rel may itself
// contain the series subdirectory.
func splitTaskFilePath(path string) (taskID, rel string, ok bool) {
	rest := strings.TrimPrefix(path, "/api/file/")
	taskID, rel, found := strings.Cut(rest, "/")
	if !found || taskID == "" || rel == "" {
		return "", "", false
	}
	return taskID, rel, true
}

func containsFile(list []string, rel string) bool {
	for _, f := range list {
		if f == rel {
			return true
		}
	}
	return false
}
