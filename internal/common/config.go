package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Cache       CacheConfig    `toml:"cache"`
	Tasks       TasksConfig    `toml:"tasks"`
	Queue       QueueConfig    `toml:"queue"`
	Download    DownloadConfig `toml:"download"`
	Logging     LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// CacheConfig controls the on-disk archive cache and its expiry sweep
type CacheConfig struct {
	Root          string `toml:"root"`           // Cache root directory for downloaded archives
	TempDir       string `toml:"temp_dir"`       // Scratch directory swept alongside the cache
	TTL           string `toml:"ttl"`            // e.g. "168h" - file age before expiry; "0" means never expire
	GraceWindow   string `toml:"grace_window"`   // Files newer than this are never swept, even past TTL
	SweepSchedule string `toml:"sweep_schedule"` // Cron schedule (with seconds) for the cleanup sweeper
}

// TasksConfig controls task record lifetime
type TasksConfig struct {
	TTL string `toml:"ttl"` // e.g. "1h" - task record lifetime after creation
}

type QueueConfig struct {
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "15m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before it is dropped
}

// DownloadConfig controls the external downloader invocation
type DownloadConfig struct {
	Command       string `toml:"command"`         // Downloader executable name, resolved via PATH
	Timeout       string `toml:"timeout"`         // Subprocess timeout as duration string
	RateLimit     string `toml:"rate_limit"`      // Minimum interval between accepted submissions
	RateBurst     int    `toml:"rate_burst"`      // Submission burst allowance
	AllowedHost   string `toml:"allowed_host"`    // Single host accepted by the URL validator
	MaxStderrSize int    `toml:"max_stderr_size"` // Max bytes of captured stderr surfaced on failure
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in mangadex-wui.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Cache: CacheConfig{
			Root:          "./downloads/cache",
			TempDir:       filepath.Join(os.TempDir(), "mangadex-wui"),
			TTL:           "168h", // 7 days
			GraceWindow:   "15m",
			SweepSchedule: "0 */5 * * * *", // Every 5 minutes (cron format with seconds)
		},
		Tasks: TasksConfig{
			TTL: "1h",
		},
		Queue: QueueConfig{
			QueueName:         "mangadex_downloads",
			PollInterval:      "1s",
			Concurrency:       3,
			VisibilityTimeout: "15m", // Longer than the subprocess timeout so claimed tasks are not redelivered mid-run
			MaxReceive:        1,     // Downloads are never retried automatically; retry is a new submission
		},
		Download: DownloadConfig{
			Command:       "mangadex-dl",
			Timeout:       "10m",
			RateLimit:     "1s",
			RateBurst:     5,
			AllowedHost:   "mangadex.org",
			MaxStderrSize: 2048,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files; environment variables override all files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("MDX_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("MDX_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("MDX_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("MDX_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Cache configuration
	if root := os.Getenv("MDX_CACHE_ROOT"); root != "" {
		config.Cache.Root = root
	}
	if tempDir := os.Getenv("MDX_CACHE_TEMP_DIR"); tempDir != "" {
		config.Cache.TempDir = tempDir
	}
	if ttl := os.Getenv("MDX_CACHE_TTL"); ttl != "" {
		config.Cache.TTL = ttl
	}
	if schedule := os.Getenv("MDX_CACHE_SWEEP_SCHEDULE"); schedule != "" {
		config.Cache.SweepSchedule = schedule
	}

	// Task configuration
	if ttl := os.Getenv("MDX_TASK_TTL"); ttl != "" {
		config.Tasks.TTL = ttl
	}

	// Queue configuration
	if name := os.Getenv("MDX_QUEUE_NAME"); name != "" {
		config.Queue.QueueName = name
	}
	if pollInterval := os.Getenv("MDX_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("MDX_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("MDX_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}

	// Download configuration
	if command := os.Getenv("MDX_DOWNLOAD_COMMAND"); command != "" {
		config.Download.Command = command
	}
	if timeout := os.Getenv("MDX_DOWNLOAD_TIMEOUT"); timeout != "" {
		config.Download.Timeout = timeout
	}

	// Logging configuration
	if level := os.Getenv("MDX_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("MDX_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks that duration and schedule strings parse
func (c *Config) Validate() error {
	durations := map[string]string{
		"cache.ttl":                c.Cache.TTL,
		"cache.grace_window":       c.Cache.GraceWindow,
		"tasks.ttl":                c.Tasks.TTL,
		"queue.poll_interval":      c.Queue.PollInterval,
		"queue.visibility_timeout": c.Queue.VisibilityTimeout,
		"download.timeout":         c.Download.Timeout,
		"download.rate_limit":      c.Download.RateLimit,
	}
	for name, value := range durations {
		if _, err := parseDurationOrZero(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q: %w", name, value, err)
		}
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.Cache.SweepSchedule); err != nil {
		return fmt.Errorf("invalid cache.sweep_schedule %q: %w", c.Cache.SweepSchedule, err)
	}

	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue.concurrency must be at least 1, got %d", c.Queue.Concurrency)
	}
	if c.Download.Command == "" {
		return fmt.Errorf("download.command must not be empty")
	}

	return nil
}

// CacheTTL returns the parsed cache TTL; zero means never expire
func (c *Config) CacheTTL() time.Duration {
	d, _ := parseDurationOrZero(c.Cache.TTL)
	return d
}

// SweepGraceWindow returns the parsed sweep grace window
func (c *Config) SweepGraceWindow() time.Duration {
	d, _ := parseDurationOrZero(c.Cache.GraceWindow)
	return d
}

// TaskTTL returns the parsed task record TTL
func (c *Config) TaskTTL() time.Duration {
	d, _ := parseDurationOrZero(c.Tasks.TTL)
	return d
}

// PollInterval returns the parsed queue poll interval
func (c *Config) PollInterval() time.Duration {
	d, _ := parseDurationOrZero(c.Queue.PollInterval)
	if d <= 0 {
		d = time.Second
	}
	return d
}

// VisibilityTimeout returns the parsed queue visibility timeout
func (c *Config) VisibilityTimeout() time.Duration {
	d, _ := parseDurationOrZero(c.Queue.VisibilityTimeout)
	return d
}

// DownloadTimeout returns the parsed subprocess timeout
func (c *Config) DownloadTimeout() time.Duration {
	d, _ := parseDurationOrZero(c.Download.Timeout)
	if d <= 0 {
		d = 10 * time.Minute
	}
	return d
}

// SubmissionRateLimit returns the parsed minimum interval between accepted submissions
func (c *Config) SubmissionRateLimit() time.Duration {
	d, _ := parseDurationOrZero(c.Download.RateLimit)
	return d
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// parseDurationOrZero parses a duration string, treating "" and "0" as zero
func parseDurationOrZero(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
