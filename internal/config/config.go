package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables. Per-invocation parameters
// (filters, sources, directories) come from CLI flags and override these.
type Config struct {
	BaseURL string `envconfig:"PREMIUMIZE_BASE_URL"`
	Auth    string `envconfig:"PREMIUMIZE_AUTH"`
	Token   string `envconfig:"PREMIUMIZE_TOKEN"`

	TargetDir           string        `envconfig:"TARGET_DIR" default:"."`
	RetentionDays       int           `envconfig:"RETENTION_DAYS"`
	DeleteAfterDownload bool          `envconfig:"DELETE_AFTER_DOWNLOAD"`
	SeenFile            string        `envconfig:"SEEN_FILE" default:".prev_transfers.txt"`
	Downloader          string        `envconfig:"DOWNLOADER" default:"http"`
	MaxParallel         int64         `envconfig:"MAX_PARALLEL" default:"2"`
	FetchWorkers        int           `envconfig:"FETCH_WORKERS" default:"4"`
	CacheTTL            time.Duration `envconfig:"CACHE_TTL" default:"5s"`
	PollInterval        time.Duration `envconfig:"POLL_INTERVAL" default:"2s"`
	LoadingTimeout      time.Duration `envconfig:"LOADING_TIMEOUT" default:"10m"`
	UpdateInterval      time.Duration `envconfig:"UPDATE_INTERVAL" default:"10m"`
	RateLimit           float64       `envconfig:"RATE_LIMIT" default:"4"`
	LogLevel            string        `envconfig:"LOG_LEVEL" default:"INFO"`
	WebhookURL          string        `envconfig:"WEBHOOK_URL"`

	Telemetry struct {
		Enabled        bool   `split_words:"true"`
		ServiceName    string `split_words:"true" default:"premiumize_downloader"`
		ServiceVersion string `split_words:"true" default:"dev"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

// Retention returns the configured retention window, or zero when the
// delete-after-download policy is inactive.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
