// Package cleanup implements the periodic sweeper: expired task records,
// aged cache files, now-empty directories, stale temp entries, and the
// metadata reconciliation that follows file deletion.
package cleanup

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
	"github.com/greywolfdl/mangadex-wui/internal/services/downloader"
)

// tempMaxAge bounds how long scratch entries survive between sweeps
const tempMaxAge = 24 * time.Hour

// SweepStats summarizes one sweeper pass
type SweepStats struct {
	ExpiredTasks   int
	DeletedFiles   int
	RemovedDirs    int
	NarrowedSeries int
	DeletedSeries  int
	TempRemoved    int
}

// Service runs the cleanup passes on a cron schedule. Errors during a
// pass are per-item: logged, counted, and never allowed to abort the
// remainder of the sweep.
type Service struct {
	tasks       interfaces.TaskStorage
	series      interfaces.SeriesStorage
	cacheRoot   string
	tempDir     string
	cacheTTL    time.Duration // zero means cache files never expire
	graceWindow time.Duration
	schedule    string
	cron        *cron.Cron
	logger      arbor.ILogger
}

// NewService creates a cleanup sweeper
func NewService(tasks interfaces.TaskStorage, series interfaces.SeriesStorage, cacheRoot, tempDir string, cacheTTL, graceWindow time.Duration, schedule string, logger arbor.ILogger) *Service {
	return &Service{
		tasks:       tasks,
		series:      series,
		cacheRoot:   cacheRoot,
		tempDir:     tempDir,
		cacheTTL:    cacheTTL,
		graceWindow: graceWindow,
		schedule:    schedule,
		cron:        cron.New(cron.WithSeconds()),
		logger:      logger,
	}
}

// Start schedules the periodic sweep
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		stats := s.RunSweep(context.Background(), time.Now().UTC())
		s.logger.Info().
			Int("expired_tasks", stats.ExpiredTasks).
			Int("deleted_files", stats.DeletedFiles).
			Int("removed_dirs", stats.RemovedDirs).
			Int("narrowed_series", stats.NarrowedSeries).
			Int("deleted_series", stats.DeletedSeries).
			Int("temp_removed", stats.TempRemoved).
			Msg("Cleanup sweep finished")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cleanup sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("Cleanup sweeper started")
	return nil
}

// Stop stops the scheduler, waiting for a running sweep to finish
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Cleanup sweeper stopped")
}

// RunSweep executes the task and cache passes once. The passes are
// independent: the task sweep never touches the filesystem, and the cache
// sweep deletes files before reconciling metadata so records never retain
// names for files that are already gone.
func (s *Service) RunSweep(ctx context.Context, now time.Time) SweepStats {
	var stats SweepStats

	stats.ExpiredTasks = s.sweepTasks(ctx, now)
	s.sweepCache(ctx, now, &stats)
	stats.TempRemoved = s.sweepTemp(now)

	return stats
}

func (s *Service) sweepTasks(ctx context.Context, now time.Time) int {
	deleted, err := s.tasks.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Task sweep failed")
		return 0
	}
	return deleted
}

func (s *Service) sweepCache(ctx context.Context, now time.Time, stats *SweepStats) {
	// Cache TTL of zero means "never expire": the whole pass is skipped,
	// including directory collapse and metadata reconciliation, since
	// nothing can have changed.
	if s.cacheTTL <= 0 {
		return
	}

	protected := s.protectedSeries(ctx)

	stats.DeletedFiles = s.deleteExpiredFiles(now, protected)
	stats.RemovedDirs = s.removeEmptyDirs()
	s.reconcileMetadata(ctx, stats)
}

// protectedSeries returns the series keys that an in-flight task may be
// writing into. Files under those keys are skipped regardless of age.
func (s *Service) protectedSeries(ctx context.Context) map[string]struct{} {
	protected := make(map[string]struct{})

	active, err := s.tasks.ListActive(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not list active tasks; sweeping with grace window only")
		return protected
	}
	if len(active) == 0 {
		return protected
	}

	activeURLs := make(map[string]struct{}, len(active))
	for _, t := range active {
		activeURLs[t.SourceURL] = struct{}{}
	}

	all, err := s.series.ListSeries(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not list series metadata for sweep protection")
		return protected
	}
	for _, record := range all {
		if _, ok := activeURLs[record.SourceURL]; ok {
			protected[record.SeriesKey] = struct{}{}
		}
	}
	return protected
}

func (s *Service) deleteExpiredFiles(now time.Time, protected map[string]struct{}) int {
	deleted := 0

	err := filepath.WalkDir(s.cacheRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.cacheRoot {
				return filepath.SkipAll
			}
			s.logger.Warn().Err(err).Str("path", path).Msg("Cache sweep cannot visit entry")
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(s.cacheRoot, path)
		if relErr == nil {
			if key := downloader.SeriesKeyFromPath(rel); key != "" {
				if _, ok := protected[key]; ok {
					return nil
				}
			}
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Cache sweep cannot stat file")
			return nil
		}

		age := now.Sub(info.ModTime())
		if age < s.cacheTTL || age < s.graceWindow {
			return nil
		}

		if err := os.Remove(path); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("Cache sweep cannot delete file")
			return nil
		}
		deleted++
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cache sweep walk failed")
	}

	return deleted
}

// removeEmptyDirs collapses directories left empty by file deletion,
// deepest first, never touching the cache root itself
func (s *Service) removeEmptyDirs() int {
	var dirs []string
	err := filepath.WalkDir(s.cacheRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == s.cacheRoot {
				return filepath.SkipAll
			}
			return nil
		}
		if d.IsDir() && path != s.cacheRoot {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Empty directory scan failed")
		return 0
	}

	// Deeper paths sort later; removing in reverse collapses upward
	sort.Strings(dirs)

	removed := 0
	for i := len(dirs) - 1; i >= 0; i-- {
		entries, err := os.ReadDir(dirs[i])
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dirs[i]); err != nil {
			s.logger.Warn().Err(err).Str("path", dirs[i]).Msg("Cannot remove empty directory")
			continue
		}
		removed++
	}
	return removed
}

// reconcileMetadata narrows each series record to the files still on disk,
// deleting records whose last physical file aged out. Runs strictly after
// file deletion so it reads post-deletion disk state.
func (s *Service) reconcileMetadata(ctx context.Context, stats *SweepStats) {
	all, err := s.series.ListSeries(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Metadata reconciliation cannot list series")
		return
	}

	for _, record := range all {
		var remaining []string
		for _, name := range record.FileNames {
			if name == "" {
				continue
			}
			if _, err := os.Stat(filepath.Join(s.cacheRoot, record.SeriesKey, name)); err == nil {
				remaining = append(remaining, name)
			}
		}

		if len(remaining) == len(record.FileNames) {
			continue
		}

		if err := s.series.ReplaceFiles(ctx, record.SeriesKey, remaining); err != nil {
			s.logger.Warn().Err(err).Str("series", record.SeriesKey).Msg("Metadata reconciliation failed for series")
			continue
		}
		if len(remaining) == 0 {
			stats.DeletedSeries++
		} else {
			stats.NarrowedSeries++
		}
	}
}

func (s *Service) sweepTemp(now time.Time) int {
	if s.tempDir == "" {
		return 0
	}

	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.tempDir).Msg("Temp sweep cannot read directory")
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < tempMaxAge {
			continue
		}
		full := filepath.Join(s.tempDir, entry.Name())
		// Refuse to follow anything that resolves outside the temp dir
		if !strings.HasPrefix(full, filepath.Clean(s.tempDir)+string(os.PathSeparator)) {
			continue
		}
		if err := os.RemoveAll(full); err != nil {
			s.logger.Warn().Err(err).Str("path", full).Msg("Temp sweep cannot remove entry")
			continue
		}
		removed++
	}
	return removed
}
