package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/greywolfdl/mangadex-wui/internal/common"
	"github.com/greywolfdl/mangadex-wui/internal/models"
)

func getTask(handler *StatusHandler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	handler.GetTaskHandler(rec, req)
	return rec
}

func TestGetTaskFinished(t *testing.T) {
	completed := time.Now().UTC()
	tasks := &mockTaskStorage{
		getFunc: func(ctx context.Context, taskID string) (*models.DownloadTask, error) {
			return &models.DownloadTask{
				ID:          taskID,
				Status:      models.TaskStatusFinished,
				SourceURL:   "https://mangadex.org/title/abc",
				ResultFiles: []string{"Some Title/Vol. 1 Ch. 1.cbz"},
				CompletedAt: &completed,
			}, nil
		},
	}
	handler := NewStatusHandler(tasks, common.GetLogger())

	rec := getTask(handler, "/api/status/task_1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Files  []struct {
			Path string `json:"path"`
			URL  string `json:"url"`
		} `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if resp.Status != "finished" {
		t.Errorf("status = %q", resp.Status)
	}
	if len(resp.Files) != 1 {
		t.Fatalf("files = %+v, want 1 entry", resp.Files)
	}
	if resp.Files[0].URL != "/api/file/task_1/Some%20Title/Vol.%201%20Ch.%201.cbz" {
		t.Errorf("file url = %q", resp.Files[0].URL)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	handler := NewStatusHandler(&mockTaskStorage{}, common.GetLogger())

	if rec := getTask(handler, "/api/status/task_unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetTaskExpiredReadsAsNotFound(t *testing.T) {
	tasks := &mockTaskStorage{
		getFunc: func(ctx context.Context, taskID string) (*models.DownloadTask, error) {
			return &models.DownloadTask{ID: taskID}, models.ErrTaskExpired
		},
	}
	handler := NewStatusHandler(tasks, common.GetLogger())

	if rec := getTask(handler, "/api/status/task_old"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for expired task", rec.Code)
	}
}

func TestGetTaskEmptyID(t *testing.T) {
	handler := NewStatusHandler(&mockTaskStorage{}, common.GetLogger())

	if rec := getTask(handler, "/api/status/"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
