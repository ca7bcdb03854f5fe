// Package files resolves browser-requested relative paths to real files
// under the cache root, refusing anything that escapes it.
package files

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/greywolfdl/mangadex-wui/internal/models"
	"github.com/greywolfdl/mangadex-wui/internal/services/downloader"
)

// Resolved describes a deliverable cache file
type Resolved struct {
	AbsolutePath string
	FileName     string
	SeriesKey    string
	Size         int64
}

// Service maps relative cache paths to deliverable files
type Service struct {
	cacheRoot string
}

// NewService creates a file delivery service rooted at cacheRoot
func NewService(cacheRoot string) *Service {
	return &Service{cacheRoot: filepath.Clean(cacheRoot)}
}

// Resolve validates rel and returns the file it names. The checks run in
// a fixed order so the caller's status mapping is stable: traversal first,
// then extension, then existence.
func (s *Service) Resolve(rel string) (*Resolved, error) {
	if rel == "" {
		return nil, models.ErrFileNotFound
	}

	// Reject dot-dot anywhere in the raw input before any normalization;
	// Clean would silently fold an escaping path back into the root.
	for _, segment := range strings.FieldsFunc(rel, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return nil, models.ErrPathTraversal
		}
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.HasPrefix(rel, "\\") {
		return nil, models.ErrPathTraversal
	}

	if !strings.EqualFold(filepath.Ext(rel), downloader.ArchiveExtension) {
		return nil, models.ErrBadExtension
	}

	full := filepath.Clean(filepath.Join(s.cacheRoot, filepath.FromSlash(rel)))
	if full != s.cacheRoot && !strings.HasPrefix(full, s.cacheRoot+string(os.PathSeparator)) {
		return nil, models.ErrPathTraversal
	}

	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return nil, models.ErrFileNotFound
	}

	return &Resolved{
		AbsolutePath: full,
		FileName:     filepath.Base(full),
		SeriesKey:    downloader.SeriesKeyFromPath(filepath.ToSlash(rel)),
		Size:         info.Size(),
	}, nil
}

// ResolveSeriesFile resolves a file constrained to one series directory
func (s *Service) ResolveSeriesFile(seriesKey, name string) (*Resolved, error) {
	if seriesKey == "" || name == "" {
		return nil, models.ErrFileNotFound
	}
	if strings.ContainsAny(seriesKey, "/\\") || strings.ContainsAny(name, "/\\") {
		return nil, models.ErrPathTraversal
	}
	resolved, err := s.Resolve(seriesKey + "/" + name)
	if err != nil {
		return nil, err
	}
	if resolved.SeriesKey != seriesKey {
		return nil, models.ErrPathTraversal
	}
	return resolved, nil
}

// RemoveSeries deletes a series directory from the cache. The key must be
// a bare directory name; anything with a separator is traversal.
func (s *Service) RemoveSeries(seriesKey string) error {
	if seriesKey == "" || seriesKey == "." || seriesKey == ".." {
		return models.ErrPathTraversal
	}
	if strings.ContainsAny(seriesKey, "/\\") {
		return models.ErrPathTraversal
	}

	full := filepath.Join(s.cacheRoot, seriesKey)
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.ErrSeriesNotFound
		}
		return err
	}
	return os.RemoveAll(full)
}
