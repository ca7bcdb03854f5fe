package models

import (
	"strings"
	"time"
)

// CachedSeries is the metadata record for a previously completed download
// group. One record exists per series key; repeated downloads of the same
// title merge into it. The file list is advisory: the filesystem is the
// source of truth and both the sweeper and file delivery re-validate
// against disk before acting on it.
type CachedSeries struct {
	// SeriesKey is the directory name the external tool produced for this
	// title under the cache root.
	SeriesKey string `json:"series_key" badgerhold:"key"`

	SourceURL   string `json:"source_url" badgerhold:"index"`
	DisplayName string `json:"display_name"`

	// CachePath is the absolute path of the series subdirectory.
	CachePath string `json:"cache_path"`

	// FileNames are archive basenames known to exist, duplicates suppressed.
	FileNames []string `json:"file_names"`

	LastDownloadAt time.Time `json:"last_download_at"`
}

// MergeFiles adds the given basenames to the record, preserving order and
// suppressing duplicates
func (s *CachedSeries) MergeFiles(names []string) {
	seen := make(map[string]struct{}, len(s.FileNames))
	for _, existing := range s.FileNames {
		seen[existing] = struct{}{}
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		s.FileNames = append(s.FileNames, name)
	}
}

// SanitizeDisplayName derives a presentation-only name from a series
// directory name. Underscores become spaces and characters unsafe across
// common filesystems are stripped. The result must never be used to build
// filesystem paths.
func SanitizeDisplayName(seriesKey string) string {
	name := strings.ReplaceAll(seriesKey, "_", " ")
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			// unsafe on at least one common filesystem
		default:
			if r >= 0x20 {
				b.WriteRune(r)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
