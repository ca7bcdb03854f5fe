package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// SeriesStorage implements the SeriesStorage interface for Badger
type SeriesStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSeriesStorage creates a new SeriesStorage instance
func NewSeriesStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SeriesStorage {
	return &SeriesStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertSeries merges the incoming record into any existing record for the
// same key. At most one record exists per series key: re-downloads merge
// file lists instead of creating duplicates.
func (s *SeriesStorage) UpsertSeries(ctx context.Context, series *models.CachedSeries) error {
	if series.SeriesKey == "" {
		return fmt.Errorf("series key is required")
	}

	var existing models.CachedSeries
	err := s.db.Store().Get(series.SeriesKey, &existing)
	if err == nil {
		merged := existing
		merged.MergeFiles(series.FileNames)
		merged.LastDownloadAt = series.LastDownloadAt
		if merged.LastDownloadAt.IsZero() {
			merged.LastDownloadAt = time.Now().UTC()
		}
		if merged.SourceURL == "" {
			merged.SourceURL = series.SourceURL
		}
		if merged.DisplayName == "" {
			merged.DisplayName = series.DisplayName
		}
		if series.CachePath != "" {
			merged.CachePath = series.CachePath
		}
		if err := s.db.Store().Update(series.SeriesKey, &merged); err != nil {
			return fmt.Errorf("failed to update series metadata: %w", err)
		}
		return nil
	}
	if err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to check series metadata: %w", err)
	}

	record := *series
	if record.LastDownloadAt.IsZero() {
		record.LastDownloadAt = time.Now().UTC()
	}
	if record.DisplayName == "" {
		record.DisplayName = models.SanitizeDisplayName(record.SeriesKey)
	}
	if err := s.db.Store().Insert(record.SeriesKey, &record); err != nil {
		return fmt.Errorf("failed to insert series metadata: %w", err)
	}
	return nil
}

func (s *SeriesStorage) GetSeries(ctx context.Context, seriesKey string) (*models.CachedSeries, error) {
	var series models.CachedSeries
	if err := s.db.Store().Get(seriesKey, &series); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.ErrSeriesNotFound
		}
		return nil, fmt.Errorf("failed to get series metadata: %w", err)
	}
	return &series, nil
}

func (s *SeriesStorage) ListSeries(ctx context.Context) ([]*models.CachedSeries, error) {
	var all []models.CachedSeries
	if err := s.db.Store().Find(&all, badgerhold.Where("SeriesKey").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list series metadata: %w", err)
	}

	sort.Slice(all, func(i, j int) bool {
		return strings.ToLower(all[i].SeriesKey) < strings.ToLower(all[j].SeriesKey)
	})

	result := make([]*models.CachedSeries, len(all))
	for i := range all {
		result[i] = &all[i]
	}
	return result, nil
}

// ReplaceFiles narrows the record's file list after a sweep. An empty list
// means the last physical file aged out, so the record itself goes.
func (s *SeriesStorage) ReplaceFiles(ctx context.Context, seriesKey string, names []string) error {
	if len(names) == 0 {
		return s.DeleteSeries(ctx, seriesKey)
	}

	var series models.CachedSeries
	if err := s.db.Store().Get(seriesKey, &series); err != nil {
		if err == badgerhold.ErrNotFound {
			return models.ErrSeriesNotFound
		}
		return fmt.Errorf("failed to get series metadata: %w", err)
	}

	series.FileNames = append([]string(nil), names...)
	if err := s.db.Store().Update(seriesKey, &series); err != nil {
		return fmt.Errorf("failed to update series metadata: %w", err)
	}
	return nil
}

func (s *SeriesStorage) DeleteSeries(ctx context.Context, seriesKey string) error {
	err := s.db.Store().Delete(seriesKey, &models.CachedSeries{})
	if err == badgerhold.ErrNotFound {
		return models.ErrSeriesNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete series metadata: %w", err)
	}
	return nil
}
