package models

import (
	"time"
)

// TaskStatus represents the lifecycle state of a download task
type TaskStatus string

const (
	TaskStatusQueued   TaskStatus = "queued"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusFinished TaskStatus = "finished"
	TaskStatusFailed   TaskStatus = "failed"
)

// IsTerminal returns true for states that accept no further transitions
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusFinished || s == TaskStatusFailed
}

// CanTransitionTo reports whether moving to next is a legal lifecycle step.
// The machine is strictly queued -> running -> {finished, failed}; no state
// is skipped and no transition moves backward.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusQueued:
		return next == TaskStatusRunning
	case TaskStatusRunning:
		return next == TaskStatusFinished || next == TaskStatusFailed
	default:
		return false
	}
}

// DownloadProgress is best-effort progress parsed from the downloader's
// stdout while a task runs. The tool's output format is not a stable
// contract, so every field may stay zero for the whole run.
type DownloadProgress struct {
	CurrentChapter int `json:"current_chapter,omitempty"`
	TotalChapters  int `json:"total_chapters,omitempty"`
	SkippedCached  int `json:"skipped_cached,omitempty"`
}

// DownloadTask is the persisted record of one user-initiated download.
// It is owned exclusively by the task storage; workers mutate only the task
// they claimed, and the queue's single-delivery claim makes that exclusive.
type DownloadTask struct {
	ID        string     `json:"id" badgerhold:"key"`
	Status    TaskStatus `json:"status" badgerhold:"index"`
	SourceURL string     `json:"source_url" badgerhold:"index"`

	// ResultFiles holds cache-root-relative archive paths, populated only
	// when Status is finished.
	ResultFiles []string `json:"result_files,omitempty"`

	// Error is a short, non-sensitive failure detail, populated only when
	// Status is failed.
	Error string `json:"error,omitempty"`

	Progress *DownloadProgress `json:"progress,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

// NewDownloadTask creates a queued task for the given URL with the given record TTL
func NewDownloadTask(id, sourceURL string, ttl time.Duration) *DownloadTask {
	now := time.Now().UTC()
	return &DownloadTask{
		ID:        id,
		Status:    TaskStatusQueued,
		SourceURL: sourceURL,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired reports whether the record has outlived its TTL at the given instant
func (t *DownloadTask) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsActive reports whether the task still occupies (or awaits) a worker
func (t *DownloadTask) IsActive() bool {
	return t.Status == TaskStatusQueued || t.Status == TaskStatusRunning
}
