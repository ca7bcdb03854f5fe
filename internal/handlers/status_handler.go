package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// StatusHandler handles task status queries
type StatusHandler struct {
	tasks  interfaces.TaskStorage
	logger arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(tasks interfaces.TaskStorage, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		tasks:  tasks,
		logger: logger,
	}
}

// taskResponse is the wire form of a task record, with per-file download
// links added for finished tasks
type taskResponse struct {
	*models.DownloadTask
	Files []taskFile `json:"files,omitempty"`
}

type taskFile struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// GetTaskHandler handles GET /api/status/{task_id}
func (h *StatusHandler) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	taskID := strings.TrimPrefix(r.URL.Path, "/api/status/")
	if taskID == "" || strings.Contains(taskID, "/") {
		WriteError(w, http.StatusNotFound, "Task not found")
		return
	}

	task, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		// Unknown and expired both read as not-found here; only file
		// delivery distinguishes them.
		if errors.Is(err, models.ErrTaskNotFound) || errors.Is(err, models.ErrTaskExpired) {
			WriteError(w, http.StatusNotFound, "Task not found")
			return
		}
		h.logger.Error().Err(err).Str("task_id", taskID).Msg("Task lookup failed")
		WriteError(w, http.StatusInternalServerError, "Could not load task")
		return
	}

	WriteJSON(w, http.StatusOK, newTaskResponse(task))
}

func newTaskResponse(task *models.DownloadTask) taskResponse {
	resp := taskResponse{DownloadTask: task}
	for _, rel := range task.ResultFiles {
		resp.Files = append(resp.Files, taskFile{
			Path: rel,
			URL:  fmt.Sprintf("/api/file/%s/%s", task.ID, escapePath(rel)),
		})
	}
	return resp
}

// escapePath percent-encodes each segment of a slash-separated path,
// keeping the separators literal
func escapePath(rel string) string {
	segments := strings.Split(rel, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
