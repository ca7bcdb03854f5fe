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
	"github.com/greywolfdl/mangadex-wui/internal/services/files"
)

// CacheHandler exposes the cached-series catalog
type CacheHandler struct {
	series interfaces.SeriesStorage
	files  *files.Service
	logger arbor.ILogger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(series interfaces.SeriesStorage, filesService *files.Service, logger arbor.ILogger) *CacheHandler {
	return &CacheHandler{
		series: series,
		files:  filesService,
		logger: logger,
	}
}

type cacheSeriesResponse struct {
	SeriesKey      string          `json:"series_key"`
	DisplayName    string          `json:"display_name"`
	SourceURL      string          `json:"source_url,omitempty"`
	LastDownloadAt string          `json:"last_download_at"`
	Files          []cacheFileItem `json:"files"`
}

type cacheFileItem struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ListHandler handles GET /api/cache
func (h *CacheHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	all, err := h.series.ListSeries(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list cached series")
		WriteError(w, http.StatusInternalServerError, "Could not list cache")
		return
	}

	response := make([]cacheSeriesResponse, 0, len(all))
	for _, record := range all {
		item := cacheSeriesResponse{
			SeriesKey:      record.SeriesKey,
			DisplayName:    record.DisplayName,
			SourceURL:      record.SourceURL,
			LastDownloadAt: record.LastDownloadAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Files:          make([]cacheFileItem, 0, len(record.FileNames)),
		}
		for _, name := range record.FileNames {
			item.Files = append(item.Files, cacheFileItem{
				Name: name,
				URL:  fmt.Sprintf("/api/cache/%s/%s", url.PathEscape(record.SeriesKey), url.PathEscape(name)),
			})
		}
		response = append(response, item)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"series": response,
		"count":  len(response),
	})
}

// DeleteSeriesHandler handles DELETE /api/cache/{series}.
// Files are removed first; the metadata record goes second so a partial
// failure never leaves a record pointing at nothing.
func (h *CacheHandler) DeleteSeriesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	seriesKey := strings.TrimPrefix(r.URL.Path, "/api/cache/")
	if seriesKey == "" || strings.Contains(seriesKey, "/") {
		WriteError(w, http.StatusNotFound, "Series not found")
		return
	}

	err := h.files.RemoveSeries(seriesKey)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrSeriesNotFound):
		// No files on disk; only proceed if a stale metadata record
		// remains to be dropped, otherwise the series does not exist.
		if _, metaErr := h.series.GetSeries(r.Context(), seriesKey); errors.Is(metaErr, models.ErrSeriesNotFound) {
			WriteError(w, http.StatusNotFound, "Series not found")
			return
		}
	case errors.Is(err, models.ErrPathTraversal):
		WriteError(w, http.StatusForbidden, "Forbidden")
		return
	default:
		h.logger.Error().Err(err).Str("series", seriesKey).Msg("Failed to remove cached series files")
		WriteError(w, http.StatusInternalServerError, "Could not delete series")
		return
	}

	if err := h.series.DeleteSeries(r.Context(), seriesKey); err != nil && !errors.Is(err, models.ErrSeriesNotFound) {
		h.logger.Warn().Err(err).Str("series", seriesKey).Msg("Failed to delete series metadata")
	}

	h.logger.Info().Str("series", seriesKey).Msg("Cached series deleted")
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"series": seriesKey,
	})
}
