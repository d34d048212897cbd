package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string `yaml:"port"`

	// Auth; empty disables bearer authentication
	APIKey string `yaml:"api_key"`

	// Wiki revision fetches
	WikiAPIURL    string  `yaml:"wiki_api_url"`
	UserAgent     string  `yaml:"user_agent"`
	WikiRateLimit float64 `yaml:"wiki_rate_limit"`
	WikiBurst     int     `yaml:"wiki_burst"`

	// Comparison limits
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
	JobTimeout     time.Duration `yaml:"job_timeout"`
	MaxCells       int           `yaml:"max_cells"`

	// Worker pool
	WorkerCount  int `yaml:"worker_count"`
	MaxQueueSize int `yaml:"max_queue_size"`

	// Upload limits
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// Job state
	JobTTL time.Duration `yaml:"job_ttl"`

	// Rolling window for /api/stats/compare
	StatsWindow time.Duration `yaml:"stats_window"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Port:           "8090",
		WikiAPIURL:     "https://{lang}.wikipedia.org/w/api.php",
		UserAgent:      "docdiff/1.0 (https://github.com/dgallion1/docdiff)",
		WikiRateLimit:  5,
		WikiBurst:      5,
		DefaultTimeout: 2 * time.Second,
		MaxTimeout:     10 * time.Second,
		JobTimeout:     2 * time.Minute,
		MaxCells:       4_000_000,
		WorkerCount:    4,
		MaxQueueSize:   100,
		MaxUploadBytes: 52428800, // 50MB
		JobTTL:         1 * time.Hour,
		StatsWindow:    1 * time.Hour,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// DOCDIFF_CONFIG (if any), and environment variables, in that order.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("DOCDIFF_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("DOCDIFF_API_KEY", cfg.APIKey)

	cfg.WikiAPIURL = envOr("WIKI_API_URL", cfg.WikiAPIURL)
	cfg.UserAgent = envOr("WIKI_USER_AGENT", cfg.UserAgent)
	cfg.WikiRateLimit = envFloat("WIKI_RATE_LIMIT", cfg.WikiRateLimit)
	cfg.WikiBurst = envInt("WIKI_BURST", cfg.WikiBurst)

	cfg.DefaultTimeout = envDuration("DIFF_TIMEOUT", cfg.DefaultTimeout)
	cfg.MaxTimeout = envDuration("DIFF_MAX_TIMEOUT", cfg.MaxTimeout)
	cfg.JobTimeout = envDuration("JOB_TIMEOUT", cfg.JobTimeout)
	cfg.MaxCells = envInt("DIFF_MAX_CELLS", cfg.MaxCells)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)
	cfg.StatsWindow = envDuration("STATS_WINDOW", cfg.StatsWindow)

	def := Defaults()
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = def.MaxTimeout
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = def.MaxQueueSize
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = def.MaxUploadBytes
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = def.JobTTL
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = def.StatsWindow
	}
	if cfg.WikiBurst <= 0 {
		cfg.WikiBurst = def.WikiBurst
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if !strings.Contains(c.WikiAPIURL, "{lang}") {
		return fmt.Errorf("WIKI_API_URL must contain {lang}: %q", c.WikiAPIURL)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("WIKI_USER_AGENT is required")
	}
	if c.DefaultTimeout > c.MaxTimeout {
		return fmt.Errorf("DIFF_TIMEOUT (%s) exceeds DIFF_MAX_TIMEOUT (%s)", c.DefaultTimeout, c.MaxTimeout)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
