package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/greywolfdl/mangadex-wui/internal/common"
	"github.com/greywolfdl/mangadex-wui/internal/models"
)

// memTaskStorage is an in-memory TaskStorage for orchestrator tests
type memTaskStorage struct {
	mu    sync.Mutex
	tasks map[string]*models.DownloadTask
}

func newMemTaskStorage() *memTaskStorage {
	return &memTaskStorage{tasks: make(map[string]*models.DownloadTask)}
}

func (m *memTaskStorage) SaveTask(ctx context.Context, task *models.DownloadTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *memTaskStorage) GetTask(ctx context.Context, taskID string) (*models.DownloadTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (m *memTaskStorage) UpdateTask(ctx context.Context, taskID string, fn func(*models.DownloadTask) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[taskID]
	if !ok {
		return models.ErrTaskNotFound
	}
	before := task.Status
	if err := fn(task); err != nil {
		return err
	}
	if task.Status != before && !before.CanTransitionTo(task.Status) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, before, task.Status)
	}
	return nil
}

func (m *memTaskStorage) FindActiveByURL(ctx context.Context, url string) (*models.DownloadTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if task.SourceURL == url && task.IsActive() {
			copied := *task
			return &copied, nil
		}
	}
	return nil, models.ErrTaskNotFound
}

func (m *memTaskStorage) ListActive(ctx context.Context) ([]*models.DownloadTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*models.DownloadTask
	for _, task := range m.tasks {
		if task.IsActive() {
			copied := *task
			active = append(active, &copied)
		}
	}
	return active, nil
}

func (m *memTaskStorage) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, task := range m.tasks {
		if task.IsExpired(now) {
			delete(m.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

// memSeriesStorage is an in-memory SeriesStorage for orchestrator tests
type memSeriesStorage struct {
	mu     sync.Mutex
	series map[string]*models.CachedSeries
}

func newMemSeriesStorage() *memSeriesStorage {
	return &memSeriesStorage{series: make(map[string]*models.CachedSeries)}
}

func (m *memSeriesStorage) UpsertSeries(ctx context.Context, series *models.CachedSeries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.series[series.SeriesKey]; ok {
		existing.MergeFiles(series.FileNames)
		existing.LastDownloadAt = series.LastDownloadAt
		return nil
	}
	copied := *series
	m.series[series.SeriesKey] = &copied
	return nil
}

func (m *memSeriesStorage) GetSeries(ctx context.Context, seriesKey string) (*models.CachedSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	series, ok := m.series[seriesKey]
	if !ok {
		return nil, models.ErrSeriesNotFound
	}
	copied := *series
	return &copied, nil
}

func (m *memSeriesStorage) ListSeries(ctx context.Context) ([]*models.CachedSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*models.CachedSeries
	for _, series := range m.series {
		copied := *series
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].SeriesKey < all[j].SeriesKey })
	return all, nil
}

func (m *memSeriesStorage) ReplaceFiles(ctx context.Context, seriesKey string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(names) == 0 {
		delete(m.series, seriesKey)
		return nil
	}
	series, ok := m.series[seriesKey]
	if !ok {
		return models.ErrSeriesNotFound
	}
	series.FileNames = append([]string(nil), names...)
	return nil
}

func (m *memSeriesStorage) DeleteSeries(ctx context.Context, seriesKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.series[seriesKey]; !ok {
		return models.ErrSeriesNotFound
	}
	delete(m.series, seriesKey)
	return nil
}

type orchestratorFixture struct {
	tasks     *memTaskStorage
	series    *memSeriesStorage
	cacheRoot string
}

func newOrchestrator(t *testing.T, command string) (*Service, *orchestratorFixture) {
	t.Helper()
	fixture := &orchestratorFixture{
		tasks:     newMemTaskStorage(),
		series:    newMemSeriesStorage(),
		cacheRoot: t.TempDir(),
	}
	runner := NewRunner(command, time.Minute, common.GetLogger())
	svc := NewService(fixture.tasks, fixture.series, runner, fixture.cacheRoot, 2048, common.GetLogger())
	return svc, fixture
}

func queueTask(t *testing.T, fixture *orchestratorFixture, id, url string) *models.DownloadMessage {
	t.Helper()
	task := models.NewDownloadTask(id, url, time.Hour)
	if err := fixture.tasks.SaveTask(context.Background(), task); err != nil {
		t.Fatalf("save task: %v", err)
	}
	return &models.DownloadMessage{TaskID: id, URL: url}
}

func TestExecuteDeliversNewFiles(t *testing.T) {
	svc, fixture := newOrchestrator(t, "placeholder")

	// Script creates two archives under one series directory
	script := writeScript(t, fmt.Sprintf(
		`mkdir -p %q && touch %q %q`,
		filepath.Join(fixture.cacheRoot, "Some Title"),
		filepath.Join(fixture.cacheRoot, "Some Title", "Vol. 1 Ch. 1.cbz"),
		filepath.Join(fixture.cacheRoot, "Some Title", "Vol. 1 Ch. 2.cbz"),
	))
	svc.runner = NewRunner(script, time.Minute, common.GetLogger())

	msg := queueTask(t, fixture, "task_1", "https://mangadex.org/title/abc")
	if err := svc.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	task, err := fixture.tasks.GetTask(context.Background(), "task_1")
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != models.TaskStatusFinished {
		t.Fatalf("status = %s (error %q), want finished", task.Status, task.Error)
	}
	want := []string{"Some Title/Vol. 1 Ch. 1.cbz", "Some Title/Vol. 1 Ch. 2.cbz"}
	if !reflect.DeepEqual(task.ResultFiles, want) {
		t.Errorf("result files = %v, want %v", task.ResultFiles, want)
	}
	if task.StartedAt == nil || task.CompletedAt == nil {
		t.Error("timestamps not recorded")
	}

	series, err := fixture.series.GetSeries(context.Background(), "Some Title")
	if err != nil {
		t.Fatalf("series record not created: %v", err)
	}
	if series.SourceURL != "https://mangadex.org/title/abc" {
		t.Errorf("series source URL = %q", series.SourceURL)
	}
	if len(series.FileNames) != 2 {
		t.Errorf("series file names = %v", series.FileNames)
	}
}

func TestExecuteFailureWithNoNewFiles(t *testing.T) {
	svc, fixture := newOrchestrator(t, "placeholder")
	script := writeScript(t, `echo "connection refused" >&2; exit 1`)
	svc.runner = NewRunner(script, time.Minute, common.GetLogger())

	msg := queueTask(t, fixture, "task_2", "https://mangadex.org/title/down")
	if err := svc.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	task, _ := fixture.tasks.GetTask(context.Background(), "task_2")
	if task.Status != models.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if !strings.Contains(task.Error, "connection refused") {
		t.Errorf("error detail = %q, want captured stderr", task.Error)
	}
}

func TestExecuteNonzeroExitWithNewFilesStillFinishes(t *testing.T) {
	svc, fixture := newOrchestrator(t, "placeholder")
	script := writeScript(t, fmt.Sprintf(
		`mkdir -p %q && touch %q; echo "one chapter failed" >&2; exit 1`,
		filepath.Join(fixture.cacheRoot, "Partial"),
		filepath.Join(fixture.cacheRoot, "Partial", "Vol. 1 Ch. 1.cbz"),
	))
	svc.runner = NewRunner(script, time.Minute, common.GetLogger())

	msg := queueTask(t, fixture, "task_3", "https://mangadex.org/title/partial")
	if err := svc.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	task, _ := fixture.tasks.GetTask(context.Background(), "task_3")
	if task.Status != models.TaskStatusFinished {
		t.Fatalf("status = %s, want finished: new files outrank the exit code", task.Status)
	}
	if !reflect.DeepEqual(task.ResultFiles, []string{"Partial/Vol. 1 Ch. 1.cbz"}) {
		t.Errorf("result files = %v", task.ResultFiles)
	}
}

func TestExecuteCacheHitReportsExistingFiles(t *testing.T) {
	svc, fixture := newOrchestrator(t, "placeholder")

	// Pre-populate the cache and its metadata from a previous run
	writeFile(t, filepath.Join(fixture.cacheRoot, "Cached Title", "Vol. 1 Ch. 1.cbz"))
	fixture.series.UpsertSeries(context.Background(), &models.CachedSeries{
		SeriesKey:      "Cached Title",
		SourceURL:      "https://mangadex.org/title/cached",
		FileNames:      []string{"Vol. 1 Ch. 1.cbz"},
		LastDownloadAt: time.Now().UTC(),
	})

	script := writeScript(t, `echo "1 skipped (already downloaded)"; exit 0`)
	svc.runner = NewRunner(script, time.Minute, common.GetLogger())

	msg := queueTask(t, fixture, "task_4", "https://mangadex.org/title/cached")
	if err := svc.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	task, _ := fixture.tasks.GetTask(context.Background(), "task_4")
	if task.Status != models.TaskStatusFinished {
		t.Fatalf("status = %s, want finished", task.Status)
	}
	if !reflect.DeepEqual(task.ResultFiles, []string{"Cached Title/Vol. 1 Ch. 1.cbz"}) {
		t.Errorf("cache-hit result files = %v, want existing series files", task.ResultFiles)
	}
}

func TestExecuteExecutableMissing(t *testing.T) {
	svc, fixture := newOrchestrator(t, "definitely-not-installed-downloader")

	msg := queueTask(t, fixture, "task_5", "https://mangadex.org/title/abc")
	if err := svc.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	task, _ := fixture.tasks.GetTask(context.Background(), "task_5")
	if task.Status != models.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", task.Status)
	}
	if !strings.Contains(task.Error, "not installed") {
		t.Errorf("error detail = %q", task.Error)
	}
}

func TestExecuteVanishedTaskDoesNotRun(t *testing.T) {
	svc, fixture := newOrchestrator(t, "definitely-not-installed-downloader")

	// No task record saved; the sweeper got there first.
	msg := &models.DownloadMessage{TaskID: "task_gone", URL: "https://mangadex.org/title/abc"}
	if err := svc.Execute(context.Background(), msg); err != nil {
		t.Fatalf("Execute must swallow vanished tasks, got %v", err)
	}

	if _, err := os.Stat(fixture.cacheRoot); err != nil {
		t.Fatalf("cache root disturbed: %v", err)
	}
}
