package downloader

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// The downloader's stdout is not a stable contract. Progress parsing is
// best effort: anything unrecognized is ignored and never fatal.
var (
	chapterCountRe = regexp.MustCompile(`(?i)chapter\s+(\d+)\s+of\s+(\d+)`)
	skippedRe      = regexp.MustCompile(`(?i)skipped\s*\(already downloaded\)`)
)

// ParseProgress extracts chapter counts and cached-chapter skips from a
// chunk of downloader stdout, merging into prev (which may be nil).
func ParseProgress(prev *models.DownloadProgress, chunk string) *models.DownloadProgress {
	progress := prev
	if progress == nil {
		progress = &models.DownloadProgress{}
	}

	if m := chapterCountRe.FindStringSubmatch(chunk); m != nil {
		if current, err := strconv.Atoi(m[1]); err == nil {
			progress.CurrentChapter = current
		}
		if total, err := strconv.Atoi(m[2]); err == nil {
			progress.TotalChapters = total
		}
	}

	for _, line := range strings.Split(chunk, "\n") {
		if skippedRe.MatchString(line) {
			progress.SkippedCached++
		}
	}

	return progress
}
