package downloader

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ArchiveExtension is the only file type the downloader produces and the
// only one this system tracks or serves
const ArchiveExtension = ".cbz"

// ScanArchives walks root recursively and returns the relative paths of
// every archive file, sorted. The filesystem tree is the source of truth
// for what exists; metadata records are reconciled against it, never the
// other way round.
func ScanArchives(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A vanishing root yields an empty snapshot rather than an error:
			// before the first download the cache directory may not exist yet.
			if path == root {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ArchiveExtension) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// DiffArchives returns the entries of after that are absent from before,
// preserving after's order. The diff, not the tool's exit code, is the
// authoritative measure of what a run delivered.
func DiffArchives(before, after []string) []string {
	seen := make(map[string]struct{}, len(before))
	for _, f := range before {
		seen[f] = struct{}{}
	}

	var added []string
	for _, f := range after {
		if _, ok := seen[f]; !ok {
			added = append(added, f)
		}
	}
	return added
}

// SeriesKeyFromPath returns the top-level directory of a cache-relative
// archive path, which is the series key the external tool produced.
// A file sitting directly under the cache root has no series key.
func SeriesKeyFromPath(rel string) string {
	rel = filepath.ToSlash(rel)
	if idx := strings.IndexByte(rel, '/'); idx > 0 {
		return rel[:idx]
	}
	return ""
}
