// Package downloader contains the download orchestration: the job body a
// worker runs for one claimed task, the subprocess runner it delegates the
// actual work to, and the cache snapshots that determine what a run
// delivered.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// Service is the download orchestrator: the job body executed by a worker
// for one claimed task.
type Service struct {
	tasks         interfaces.TaskStorage
	series        interfaces.SeriesStorage
	runner        *Runner
	cacheRoot     string
	maxStderrSize int
	logger        arbor.ILogger
}

// NewService creates a download orchestrator
func NewService(tasks interfaces.TaskStorage, series interfaces.SeriesStorage, runner *Runner, cacheRoot string, maxStderrSize int, logger arbor.ILogger) *Service {
	if maxStderrSize <= 0 {
		maxStderrSize = 2048
	}
	return &Service{
		tasks:         tasks,
		series:        series,
		runner:        runner,
		cacheRoot:     cacheRoot,
		maxStderrSize: maxStderrSize,
		logger:        logger,
	}
}

// Execute runs one download task to a terminal state. Every fault -
// timeout, missing executable, filesystem error - is converted into a
// failed task here; nothing propagates to the worker as an unhandled
// error. The snapshot / invoke / snapshot / diff sequence is strictly
// ordered; the diff's correctness depends on it.
func (s *Service) Execute(ctx context.Context, msg *models.DownloadMessage) error {
	if err := s.markRunning(ctx, msg.TaskID); err != nil {
		// Claimed message for a record the sweeper already expired;
		// nothing left to report to.
		s.logger.Warn().Err(err).Str("task_id", msg.TaskID).Msg("Cannot start task")
		return nil
	}

	before, err := ScanArchives(s.cacheRoot)
	if err != nil {
		return s.fail(ctx, msg.TaskID, fmt.Sprintf("cache scan failed: %v", err))
	}

	result, runErr := s.runner.Run(ctx, msg.URL, s.cacheRoot, func(chunk string) {
		s.recordProgress(ctx, msg.TaskID, chunk)
	})

	if runErr != nil {
		switch {
		case errors.Is(runErr, models.ErrExecutableNotFound):
			return s.fail(ctx, msg.TaskID, "downloader executable is not installed")
		case errors.Is(runErr, models.ErrSubprocessTimeout):
			return s.fail(ctx, msg.TaskID, "download timed out")
		default:
			return s.fail(ctx, msg.TaskID, "download could not be started")
		}
	}

	after, err := ScanArchives(s.cacheRoot)
	if err != nil {
		return s.fail(ctx, msg.TaskID, fmt.Sprintf("cache scan failed: %v", err))
	}

	// The diff, not the exit code, decides what this task delivered: the
	// tool's own skip-cache makes a fully cached re-run produce zero new
	// files on a successful exit.
	newFiles := DiffArchives(before, after)

	if len(newFiles) == 0 && result.ExitCode != 0 {
		return s.fail(ctx, msg.TaskID, s.trimStderr(result.Stderr))
	}

	resultFiles := newFiles
	if len(newFiles) == 0 {
		// Fully cache-hit run: report everything this series already has
		// on disk instead of an empty (and, to the user, wrong) list.
		resultFiles = s.filesForURL(ctx, msg.URL, after)
	} else {
		s.recordSeries(ctx, msg.URL, newFiles)
	}

	return s.finish(ctx, msg.TaskID, resultFiles)
}

func (s *Service) markRunning(ctx context.Context, taskID string) error {
	return s.tasks.UpdateTask(ctx, taskID, func(t *models.DownloadTask) error {
		now := time.Now().UTC()
		t.Status = models.TaskStatusRunning
		t.StartedAt = &now
		return nil
	})
}

func (s *Service) recordProgress(ctx context.Context, taskID, chunk string) {
	err := s.tasks.UpdateTask(ctx, taskID, func(t *models.DownloadTask) error {
		t.Progress = ParseProgress(t.Progress, chunk)
		return nil
	})
	if err != nil {
		s.logger.Debug().Err(err).Str("task_id", taskID).Msg("Progress update dropped")
	}
}

// finish writes the terminal finished state with its result atomically
func (s *Service) finish(ctx context.Context, taskID string, files []string) error {
	err := s.tasks.UpdateTask(ctx, taskID, func(t *models.DownloadTask) error {
		now := time.Now().UTC()
		t.Status = models.TaskStatusFinished
		t.ResultFiles = files
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("Could not record finished task")
	}
	s.logger.Info().
		Str("task_id", taskID).
		Int("files", len(files)).
		Msg("Download task finished")
	return nil
}

// fail writes the terminal failed state with a short, non-sensitive detail
func (s *Service) fail(ctx context.Context, taskID, detail string) error {
	err := s.tasks.UpdateTask(ctx, taskID, func(t *models.DownloadTask) error {
		now := time.Now().UTC()
		t.Status = models.TaskStatusFailed
		t.Error = detail
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("Could not record failed task")
	}
	s.logger.Info().
		Str("task_id", taskID).
		Str("detail", detail).
		Msg("Download task failed")
	return nil
}

// recordSeries upserts one metadata record per series directory touched by
// the new files
func (s *Service) recordSeries(ctx context.Context, url string, newFiles []string) {
	bySeries := make(map[string][]string)
	for _, rel := range newFiles {
		key := SeriesKeyFromPath(rel)
		if key == "" {
			continue
		}
		bySeries[key] = append(bySeries[key], filepath.Base(rel))
	}

	now := time.Now().UTC()
	for key, names := range bySeries {
		record := &models.CachedSeries{
			SeriesKey:      key,
			SourceURL:      url,
			DisplayName:    models.SanitizeDisplayName(key),
			CachePath:      filepath.Join(s.cacheRoot, key),
			FileNames:      names,
			LastDownloadAt: now,
		}
		if err := s.series.UpsertSeries(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("series", key).Msg("Failed to upsert series metadata")
		}
	}
}

// filesForURL re-derives all on-disk files belonging to the series that a
// previous run of this URL produced
func (s *Service) filesForURL(ctx context.Context, url string, snapshot []string) []string {
	all, err := s.series.ListSeries(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list series metadata")
		return nil
	}

	var files []string
	for _, record := range all {
		if record.SourceURL != url {
			continue
		}
		prefix := record.SeriesKey + "/"
		for _, rel := range snapshot {
			if strings.HasPrefix(rel, prefix) {
				files = append(files, rel)
			}
		}
	}
	return files
}

func (s *Service) trimStderr(stderr string) string {
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = "downloader exited with an error"
	}
	if len(detail) > s.maxStderrSize {
		detail = detail[:s.maxStderrSize]
	}
	return detail
}
