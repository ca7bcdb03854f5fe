// Package app wires configuration, storage, queue, services, and handlers
// into one application instance with a single lifecycle.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/greywolfdl/mangadex-wui/internal/common"
	"github.com/greywolfdl/mangadex-wui/internal/handlers"
	"github.com/greywolfdl/mangadex-wui/internal/interfaces"
	"github.com/greywolfdl/mangadex-wui/internal/queue"
	badgerstore "github.com/greywolfdl/mangadex-wui/internal/storage/badger"

	"github.com/greywolfdl/mangadex-wui/internal/services/cleanup"
	"github.com/greywolfdl/mangadex-wui/internal/services/downloader"
	"github.com/greywolfdl/mangadex-wui/internal/services/files"
	"github.com/greywolfdl/mangadex-wui/internal/services/validation"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	QueueManager   interfaces.QueueManager

	DownloadService *downloader.Service
	CleanupService  *cleanup.Service
	FilesService    *files.Service
	URLValidator    *validation.Validator
	WorkerPool      *queue.WorkerPool

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	PageHandler     *handlers.PageHandler
	DownloadHandler *handlers.DownloadHandler
	StatusHandler   *handlers.StatusHandler
	FileHandler     *handlers.FileHandler
	CacheHandler    *handlers.CacheHandler
}

// New constructs the application graph from configuration. Nothing starts
// here; Start launches the background components.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	if err := os.MkdirAll(config.Cache.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root: %w", err)
	}
	if config.Cache.TempDir != "" {
		if err := os.MkdirAll(config.Cache.TempDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
	}

	storageManager, err := badgerstore.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	queueManager, err := queue.NewManager(
		storageManager.DB().Badger(),
		config.Queue.QueueName,
		config.VisibilityTimeout(),
		config.Queue.MaxReceive,
	)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	tasks := storageManager.TaskStorage()
	series := storageManager.SeriesStorage()

	runner := downloader.NewRunner(config.Download.Command, config.DownloadTimeout(), logger)
	downloadService := downloader.NewService(tasks, series, runner, config.Cache.Root, config.Download.MaxStderrSize, logger)

	cleanupService := cleanup.NewService(
		tasks, series,
		config.Cache.Root, config.Cache.TempDir,
		config.CacheTTL(), config.SweepGraceWindow(),
		config.Cache.SweepSchedule,
		logger,
	)

	filesService := files.NewService(config.Cache.Root)
	urlValidator := validation.New(config.Download.AllowedHost)

	workerPool := queue.NewWorkerPool(
		queueManager,
		downloadService.Execute,
		config.Queue.Concurrency,
		config.PollInterval(),
		logger,
	)

	var limiter *rate.Limiter
	if interval := config.SubmissionRateLimit(); interval > 0 {
		limiter = rate.NewLimiter(rate.Every(interval), config.Download.RateBurst)
	}

	app := &App{
		Config:          config,
		Logger:          logger,
		StorageManager:  storageManager,
		QueueManager:    queueManager,
		DownloadService: downloadService,
		CleanupService:  cleanupService,
		FilesService:    filesService,
		URLValidator:    urlValidator,
		WorkerPool:      workerPool,

		APIHandler:      handlers.NewAPIHandler(logger),
		PageHandler:     handlers.NewPageHandler(logger),
		DownloadHandler: handlers.NewDownloadHandler(tasks, queueManager, urlValidator, limiter, handlers.NewTaskFactory(config), logger),
		StatusHandler:   handlers.NewStatusHandler(tasks, logger),
		FileHandler:     handlers.NewFileHandler(tasks, filesService, logger),
		CacheHandler:    handlers.NewCacheHandler(series, filesService, logger),
	}

	return app, nil
}

// Start launches the worker pool and the cleanup sweeper
func (a *App) Start() error {
	a.WorkerPool.Start()
	if err := a.CleanupService.Start(); err != nil {
		return err
	}
	a.Logger.Info().Msg("Application components started")
	return nil
}

// Shutdown stops background components and closes storage
func (a *App) Shutdown(ctx context.Context) error {
	a.WorkerPool.Stop()
	a.CleanupService.Stop()

	if err := a.QueueManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Queue close failed")
	}
	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("storage close failed: %w", err)
	}

	a.Logger.Info().Msg("Application components stopped")
	return nil
}
