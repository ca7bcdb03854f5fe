package models

import "errors"

// Error taxonomy for the download lifecycle. Expected conditions are
// sentinel errors matched with errors.Is; only genuinely unexpected faults
// propagate as wrapped causes, and even those are converted to a terminal
// failed task state at the worker boundary.
var (
	// ErrInvalidURL is returned for submissions that fail URL validation.
	// It never reaches the queue.
	ErrInvalidURL = errors.New("invalid download URL")

	// ErrTaskNotFound covers both an unknown task ID and an expired record.
	// The two are indistinguishable to callers by design.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExpired is returned while an expired record still exists,
	// before the sweeper removes it. File delivery maps it to a distinct
	// "gone" outcome; the status endpoint folds it into ErrTaskNotFound.
	ErrTaskExpired = errors.New("task expired")

	// ErrSeriesNotFound is returned for an unknown series key.
	ErrSeriesNotFound = errors.New("series not found")

	// ErrFileNotFound is returned when a requested cache file is absent
	// from disk.
	ErrFileNotFound = errors.New("file not found")

	// ErrPathTraversal is returned when a requested path would escape the
	// cache root.
	ErrPathTraversal = errors.New("path escapes cache root")

	// ErrBadExtension is returned for delivery requests outside the
	// archive extension whitelist.
	ErrBadExtension = errors.New("disallowed file extension")

	// ErrExecutableNotFound is returned when the external downloader is
	// missing from the environment.
	ErrExecutableNotFound = errors.New("downloader executable not found")

	// ErrSubprocessTimeout is returned when the downloader exceeded its
	// bounded execution time and was terminated.
	ErrSubprocessTimeout = errors.New("downloader timed out")

	// ErrInvalidTransition is returned for illegal task state changes.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrNoMessage is returned when the queue is empty.
	ErrNoMessage = errors.New("no messages in queue")
)
