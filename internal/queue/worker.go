package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// Handler executes the job body for a claimed download message. A nil
// return acks the message; errors are logged and the message is acked
// anyway, because the handler itself converts every failure into a
// terminal failed task state and retries are always new submissions.
type Handler func(ctx context.Context, msg *models.DownloadMessage) error

// WorkerPool runs a fixed number of workers that poll the queue.
// Each claimed task occupies exactly one worker for its full duration;
// the subprocess call blocks inside the handler.
type WorkerPool struct {
	queueMgr     interfaces.QueueManager
	handler      Handler
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queueMgr interfaces.QueueManager, handler Handler, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if concurrency < 1 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &WorkerPool{
		queueMgr:     queueMgr,
		handler:      handler,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Msg("Starting download worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
}

// Stop signals all workers to exit after their current poll
func (wp *WorkerPool) Stop() {
	wp.logger.Info().Msg("Stopping download worker pool")
	wp.cancel()
}

func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread polls across the interval
	staggerDelay := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		time.Sleep(staggerDelay)
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			if err := wp.processMessage(workerID); err != nil {
				if !errors.Is(err, ErrNoMessage) {
					wp.logger.Warn().
						Err(err).
						Int("worker_id", workerID).
						Msg("Error processing message")
				}
			}
		}
	}
}

func (wp *WorkerPool) processMessage(workerID int) error {
	msg, ack, err := wp.queueMgr.Receive(wp.ctx)
	if err != nil {
		return err
	}

	wp.logger.Debug().
		Int("worker_id", workerID).
		Str("task_id", msg.TaskID).
		Msg("Claimed download task")

	if err := wp.handler(wp.ctx, msg); err != nil {
		// The handler owns failure semantics; nothing to retry here
		wp.logger.Warn().
			Err(err).
			Int("worker_id", workerID).
			Str("task_id", msg.TaskID).
			Msg("Download handler returned error")
	}

	if err := ack(); err != nil {
		return err
	}
	return nil
}
