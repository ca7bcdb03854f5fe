package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// TaskStorage implements the TaskStorage interface for Badger
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStorage {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TaskStorage) SaveTask(ctx context.Context, task *models.DownloadTask) error {
	if task.ID == "" {
		return fmt.Errorf("task ID is required")
	}

	if err := s.db.Store().Upsert(task.ID, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

func (s *TaskStorage) GetTask(ctx context.Context, taskID string) (*models.DownloadTask, error) {
	var task models.DownloadTask
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	// An expired record that the sweeper has not removed yet is already
	// "gone" from the API's point of view; callers fold this into
	// not-found unless they can say more (file delivery returns 410).
	if task.IsExpired(time.Now().UTC()) {
		return &task, models.ErrTaskExpired
	}

	return &task, nil
}

// UpdateTask applies fn under a read-modify-write and enforces legal status
// transitions. Status changes that skip a state or move backward are
// rejected with models.ErrInvalidTransition before anything is written.
func (s *TaskStorage) UpdateTask(ctx context.Context, taskID string, fn func(*models.DownloadTask) error) error {
	var task models.DownloadTask
	if err := s.db.Store().Get(taskID, &task); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.ErrTaskNotFound
		}
		return fmt.Errorf("failed to get task: %w", err)
	}

	before := task.Status
	if err := fn(&task); err != nil {
		return err
	}

	if task.Status != before && !before.CanTransitionTo(task.Status) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, before, task.Status)
	}

	if err := s.db.Store().Update(taskID, &task); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

func (s *TaskStorage) FindActiveByURL(ctx context.Context, url string) (*models.DownloadTask, error) {
	var tasks []models.DownloadTask
	query := badgerhold.Where("SourceURL").Eq(url).SortBy("CreatedAt").Reverse()
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to query tasks by URL: %w", err)
	}

	now := time.Now().UTC()
	for i := range tasks {
		if tasks[i].IsActive() && !tasks[i].IsExpired(now) {
			return &tasks[i], nil
		}
	}
	return nil, models.ErrTaskNotFound
}

func (s *TaskStorage) ListActive(ctx context.Context) ([]*models.DownloadTask, error) {
	var tasks []models.DownloadTask
	query := badgerhold.Where("Status").Eq(models.TaskStatusQueued).
		Or(badgerhold.Where("Status").Eq(models.TaskStatusRunning))
	if err := s.db.Store().Find(&tasks, query); err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}

	result := make([]*models.DownloadTask, len(tasks))
	for i := range tasks {
		result[i] = &tasks[i]
	}
	return result, nil
}

// DeleteExpired removes every task record past its TTL, regardless of
// status. Running tasks are eligible too; the worker's own terminal write
// will fail with not-found afterwards, which it tolerates.
func (s *TaskStorage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []models.DownloadTask
	if err := s.db.Store().Find(&expired, badgerhold.Where("ExpiresAt").Lt(now)); err != nil {
		return 0, fmt.Errorf("failed to find expired tasks: %w", err)
	}

	deleted := 0
	for i := range expired {
		if !expired[i].Status.IsTerminal() {
			s.logger.Warn().
				Str("task_id", expired[i].ID).
				Str("status", string(expired[i].Status)).
				Msg("Expiring task that never reached a terminal state")
		}
		if err := s.db.Store().Delete(expired[i].ID, &models.DownloadTask{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			s.logger.Warn().Err(err).Str("task_id", expired[i].ID).Msg("Failed to delete expired task")
			continue
		}
		deleted++
	}
	return deleted, nil
}
