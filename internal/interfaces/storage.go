package interfaces

import (
	"context"
	"time"

	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// TaskStorage persists download task records
type TaskStorage interface {
	// SaveTask inserts or replaces a task record
	SaveTask(ctx context.Context, task *models.DownloadTask) error

	// GetTask returns a task by ID. An expired-but-unswept record is
	// returned with models.ErrTaskExpired so callers can distinguish
	// "gone" from "never existed" where their API allows it.
	GetTask(ctx context.Context, taskID string) (*models.DownloadTask, error)

	// UpdateTask applies fn to the stored record under a single
	// read-modify-write, enforcing the task state machine.
	UpdateTask(ctx context.Context, taskID string, fn func(*models.DownloadTask) error) error

	// FindActiveByURL returns the newest queued or running task for the
	// URL, or models.ErrTaskNotFound.
	FindActiveByURL(ctx context.Context, url string) (*models.DownloadTask, error)

	// ListActive returns every queued or running task.
	ListActive(ctx context.Context) ([]*models.DownloadTask, error)

	// DeleteExpired removes every record with ExpiresAt before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// SeriesStorage persists cached-series metadata records
type SeriesStorage interface {
	// UpsertSeries merges the given record into any existing record for
	// the same series key (file lists merged, display name and URL kept
	// if already set).
	UpsertSeries(ctx context.Context, series *models.CachedSeries) error

	GetSeries(ctx context.Context, seriesKey string) (*models.CachedSeries, error)

	// ListSeries returns all records sorted case-insensitively by key.
	ListSeries(ctx context.Context) ([]*models.CachedSeries, error)

	// ReplaceFiles overwrites the record's file list, deleting the record
	// entirely when names is empty.
	ReplaceFiles(ctx context.Context, seriesKey string, names []string) error

	DeleteSeries(ctx context.Context, seriesKey string) error
}

// StorageManager groups the storages behind one lifecycle
type StorageManager interface {
	TaskStorage() TaskStorage
	SeriesStorage() SeriesStorage
	Close() error
}
