package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Links    LinksConfig    `yaml:"links"`
	Transfer TransferConfig `yaml:"transfer"`
	Retry    RetryConfig    `yaml:"retry"`
	Notify   NotifyConfig   `yaml:"notify"`
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Events   EventsConfig   `yaml:"events"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"` // local | s3 | gcs | mem
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	Endpoint    string `yaml:"endpoint"`
	Region      string `yaml:"region"`
	LocalDir    string `yaml:"local_dir"`
	SignBaseURL string `yaml:"sign_base_url"`
	SignSecret  string `yaml:"sign_secret"`
}

type LinksConfig struct {
	PlayerBaseURL string        `yaml:"player_base_url"`
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	ShareTTL      time.Duration `yaml:"share_ttl"`
	RegistrySize  int           `yaml:"registry_size"`
}

type TransferConfig struct {
	StagingDir            string        `yaml:"staging_dir"`
	MaxFileSize           int64         `yaml:"max_file_size"`
	ProgressInterval      time.Duration `yaml:"progress_interval"`
	MaxConcurrent         int           `yaml:"max_concurrent"`
	SizeMismatchTolerance float64       `yaml:"size_mismatch_tolerance"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type NotifyConfig struct {
	EditsPerSecond float64 `yaml:"edits_per_second"`
	Burst          int     `yaml:"burst"`
	Targets        int     `yaml:"targets"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

type EventsConfig struct {
	Mode     string `yaml:"mode"` // none | file | webhook
	Dir      string `yaml:"dir"`
	Endpoint string `yaml:"endpoint"`

	// QueueSize bounds events waiting for delivery; overflow is dropped.
	QueueSize   int           `yaml:"queue_size"`
	EmitTimeout time.Duration `yaml:"emit_timeout"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend:     "local",
			LocalDir:    "./data",
			SignBaseURL: "http://localhost:8080/files/",
		},
		Links: LinksConfig{
			PlayerBaseURL: "http://localhost:8080",
			DefaultTTL:    7 * 24 * time.Hour,
			ShareTTL:      24 * time.Hour,
			RegistrySize:  1000,
		},
		Transfer: TransferConfig{
			StagingDir:            os.TempDir(),
			MaxFileSize:           4 << 30,
			ProgressInterval:      2 * time.Second,
			MaxConcurrent:         4,
			SizeMismatchTolerance: 0.1,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Notify: NotifyConfig{
			EditsPerSecond: 1,
			Burst:          1,
			Targets:        1024,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "media_relay",
		},
		Logging: LoggingConfig{
			Format: "text",
			Level:  "info",
		},
		Events: EventsConfig{
			Mode:        "none",
			Dir:         "./events",
			QueueSize:   256,
			EmitTimeout: 10 * time.Second,
		},
	}
}

// Load reads defaults, then the YAML file at path (if non-empty), then
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Storage
	s.Backend = getenvDefault("STORAGE_BACKEND", s.Backend)
	s.Bucket = getenvDefault("STORAGE_BUCKET", s.Bucket)
	s.Prefix = getenvDefault("STORAGE_PREFIX", s.Prefix)
	s.Endpoint = getenvDefault("STORAGE_ENDPOINT", s.Endpoint)
	s.Region = getenvDefault("STORAGE_REGION", s.Region)
	s.LocalDir = getenvDefault("LOCAL_DIR", s.LocalDir)
	s.SignBaseURL = getenvDefault("SIGN_BASE_URL", s.SignBaseURL)
	s.SignSecret = getenvDefault("SIGN_SECRET", s.SignSecret)

	l := &cfg.Links
	l.PlayerBaseURL = getenvDefault("PLAYER_BASE_URL", l.PlayerBaseURL)
	l.DefaultTTL = parseDuration(os.Getenv("LINK_TTL"), l.DefaultTTL)
	l.ShareTTL = parseDuration(os.Getenv("SHARE_TTL"), l.ShareTTL)

	t := &cfg.Transfer
	t.StagingDir = getenvDefault("STAGING_DIR", t.StagingDir)
	t.MaxFileSize = parseInt64(os.Getenv("MAX_FILE_SIZE"), t.MaxFileSize)
	t.ProgressInterval = parseDuration(os.Getenv("PROGRESS_INTERVAL"), t.ProgressInterval)
	t.MaxConcurrent = int(parseInt64(os.Getenv("MAX_CONCURRENT_TRANSFERS"), int64(t.MaxConcurrent)))

	r := &cfg.Retry
	r.MaxAttempts = int(parseInt64(os.Getenv("RETRY_MAX_ATTEMPTS"), int64(r.MaxAttempts)))
	r.BaseDelay = parseDuration(os.Getenv("RETRY_BASE_DELAY"), r.BaseDelay)

	cfg.Server.Addr = getenvDefault("SERVER_ADDR", cfg.Server.Addr)
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	cfg.Logging.Format = getenvDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Level = getenvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Events.Mode = getenvDefault("EVENTS_MODE", cfg.Events.Mode)
	cfg.Events.Dir = getenvDefault("EVENTS_DIR", cfg.Events.Dir)
	cfg.Events.Endpoint = getenvDefault("EVENTS_ENDPOINT", cfg.Events.Endpoint)
	cfg.Events.QueueSize = int(parseInt64(os.Getenv("EVENTS_QUEUE_SIZE"), int64(cfg.Events.QueueSize)))
	cfg.Events.EmitTimeout = parseDuration(os.Getenv("EVENTS_EMIT_TIMEOUT"), cfg.Events.EmitTimeout)
}

// Validate rejects settings the relay cannot run with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "local", "mem":
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket required for %s backend", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	if c.Links.PlayerBaseURL == "" {
		return fmt.Errorf("links.player_base_url required")
	}
	if c.Links.DefaultTTL <= 0 || c.Links.ShareTTL <= 0 {
		return fmt.Errorf("link lifetimes must be positive")
	}
	if c.Transfer.ProgressInterval <= 0 {
		return fmt.Errorf("transfer.progress_interval must be positive")
	}
	if c.Transfer.MaxConcurrent < 1 {
		return fmt.Errorf("transfer.max_concurrent must be at least 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative")
	}
	switch c.Events.Mode {
	case "", "none", "file":
	case "webhook":
		if c.Events.Endpoint == "" {
			return fmt.Errorf("events.endpoint required for webhook mode")
		}
	default:
		return fmt.Errorf("unknown events mode: %s", c.Events.Mode)
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func parseInt64(v string, def int64) int64 {
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
