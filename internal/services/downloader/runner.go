package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// Fixed argument set for the external downloader. The {manga.title} and
// volume/chapter placeholders are resolved by the tool itself; this system
// passes them verbatim and never interprets them.
const (
	saveAsFormat     = "cbz"
	titlePlaceholder = "{manga.title}"
	chapterTemplate  = "Vol. {chapter.volume} Ch. {chapter.chapter}"
)

// RunResult captures one subprocess invocation
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner invokes the external download tool. The URL must already be
// validated by the caller; no validation happens here.
type Runner struct {
	command string
	timeout time.Duration
	logger  arbor.ILogger
}

// NewRunner creates a subprocess runner for the given executable name
func NewRunner(command string, timeout time.Duration, logger arbor.ILogger) *Runner {
	return &Runner{
		command: command,
		timeout: timeout,
		logger:  logger,
	}
}

// BuildArgs returns the fixed argument vector for one invocation.
// Arguments are passed as a vector, never through a shell.
func (r *Runner) BuildArgs(url, cacheRoot string) []string {
	return []string{
		"--save-as", saveAsFormat,
		"--path", filepath.Join(cacheRoot, titlePlaceholder),
		"--filename-chapter", chapterTemplate,
		"--input-pos", "*",
		"--progress-bar-layout", "none",
		url,
	}
}

// Run executes the downloader against the cache root with a bounded
// timeout. On timeout the process is killed and models.ErrSubprocessTimeout
// is returned; CommandContext guarantees no orphan survives any exit path,
// including the caller's own cancellation.
func (r *Runner) Run(ctx context.Context, url, cacheRoot string, onStdout func(string)) (*RunResult, error) {
	binary, err := exec.LookPath(r.command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrExecutableNotFound, r.command)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := r.BuildArgs(url, cacheRoot)
	cmd := exec.CommandContext(runCtx, binary, args...)

	var stdout, stderr bytes.Buffer
	if onStdout != nil {
		cmd.Stdout = &tapWriter{buf: &stdout, tap: onStdout}
	} else {
		cmd.Stdout = &stdout
	}
	cmd.Stderr = &stderr

	r.logger.Debug().
		Str("command", binary).
		Str("url", url).
		Msg("Invoking downloader")

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := &RunResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if runErr != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			r.logger.Warn().
				Str("url", url).
				Dur("elapsed", elapsed).
				Msg("Downloader timed out and was terminated")
			return result, fmt.Errorf("%w after %s", models.ErrSubprocessTimeout, r.timeout)
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			// Nonzero exit is not interpreted here; the orchestrator
			// decides success from exit code plus produced files.
			return result, nil
		}
		return result, fmt.Errorf("failed to run downloader: %w", runErr)
	}

	r.logger.Debug().
		Str("url", url).
		Dur("elapsed", elapsed).
		Msg("Downloader finished")

	return result, nil
}

// tapWriter duplicates writes into a buffer and a line-agnostic callback
type tapWriter struct {
	buf *bytes.Buffer
	tap func(string)
}

func (w *tapWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	if w.tap != nil && n > 0 {
		w.tap(string(p[:n]))
	}
	return n, err
}
