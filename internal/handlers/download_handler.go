package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/greywolfdl/mangadex-wui/internal/common"
	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
	"github.com/greywolfdl/mangadex-wui/internal/models"
	"github.com/greywolfdl/mangadex-wui/internal/services/validation"
)

// maxSubmitBodySize bounds the accepted request body; a download request
// is a single URL and nothing else
const maxSubmitBodySize = 4096

// DownloadRequest is the submission payload
type DownloadRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

// DownloadHandler handles download task submission
type DownloadHandler struct {
	tasks     interfaces.TaskStorage
	queue     interfaces.QueueManager
	validator *validation.Validator
	payload   *validator.Validate
	limiter   *rate.Limiter
	newTask   func(url string) *models.DownloadTask
	logger    arbor.ILogger
}

// NewDownloadHandler creates a new DownloadHandler. The limiter may be nil
// when submission rate limiting is disabled.
func NewDownloadHandler(tasks interfaces.TaskStorage, queue interfaces.QueueManager, urlValidator *validation.Validator, limiter *rate.Limiter, newTask func(url string) *models.DownloadTask, logger arbor.ILogger) *DownloadHandler {
	return &DownloadHandler{
		tasks:     tasks,
		queue:     queue,
		validator: urlValidator,
		payload:   validator.New(),
		limiter:   limiter,
		newTask:   newTask,
		logger:    logger,
	}
}

// SubmitHandler handles POST /api/download.
//
// A valid URL that already has an active (queued or running) task returns
// that task instead of creating a duplicate; the response shape is the
// same either way, so clients need not care.
func (h *DownloadHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		WriteError(w, http.StatusTooManyRequests, "Too many download requests; slow down")
		return
	}

	var req DownloadRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBodySize))
	if err := decoder.Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if err := h.payload.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Field 'url' is required")
		return
	}

	if !h.validator.Validate(req.URL) {
		h.logger.Debug().Err(models.ErrInvalidURL).Str("url", req.URL).Msg("Rejected download URL")
		WriteError(w, http.StatusBadRequest, "URL must be an https MangaDex title or chapter link")
		return
	}

	// Soft dedup: piggyback on an in-flight task for the same URL
	if existing, err := h.tasks.FindActiveByURL(r.Context(), req.URL); err == nil {
		h.logger.Info().
			Str("task_id", existing.ID).
			Str("url", req.URL).
			Msg("Reusing active task for resubmitted URL")
		h.writeAccepted(w, existing)
		return
	} else if !errors.Is(err, models.ErrTaskNotFound) {
		h.logger.Warn().Err(err).Msg("Active-task lookup failed; submitting anyway")
	}

	task := h.newTask(req.URL)
	if err := h.tasks.SaveTask(r.Context(), task); err != nil {
		h.logger.Error().Err(err).Msg("Failed to persist download task")
		WriteError(w, http.StatusInternalServerError, "Could not create download task")
		return
	}

	msg := models.DownloadMessage{TaskID: task.ID, URL: req.URL}
	if err := h.queue.Enqueue(r.Context(), msg); err != nil {
		h.logger.Error().Err(err).Str("task_id", task.ID).Msg("Failed to enqueue download task")
		// Leave the record; it expires via TTL and never runs.
		WriteError(w, http.StatusInternalServerError, "Could not enqueue download task")
		return
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Str("url", req.URL).
		Msg("Download task queued")
	h.writeAccepted(w, task)
}

func (h *DownloadHandler) writeAccepted(w http.ResponseWriter, task *models.DownloadTask) {
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"task_id":    task.ID,
		"status":     string(task.Status),
		"status_url": fmt.Sprintf("/api/status/%s", task.ID),
	})
}

// NewTaskFactory builds the task constructor used at submission time
func NewTaskFactory(cfg *common.Config) func(url string) *models.DownloadTask {
	return func(url string) *models.DownloadTask {
		return models.NewDownloadTask(common.NewTaskID(), url, cfg.TaskTTL())
	}
}
