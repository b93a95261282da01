package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that reads from TOML strings such as "45s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds all application configuration. It is built once at startup and
// passed into every component constructor.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Staging   StagingConfig   `toml:"staging"`
	LLM       LLMConfig       `toml:"llm"`
	Notion    NotionConfig    `toml:"notion"`
	Firestore FirestoreConfig `toml:"firestore"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig holds listener configuration for the daemon.
type ServerConfig struct {
	GRPCAddr      string   `toml:"grpc_addr"`
	MetricsAddr   string   `toml:"metrics_addr"`
	LockPath      string   `toml:"lock_path"`
	SpoolDir      string   `toml:"spool_dir"`
	InboxDir      string   `toml:"inbox_dir"` // empty disables the drop folder
	InboxDebounce Duration `toml:"inbox_debounce"`
}

// PipelineConfig holds worker pool and orchestration settings.
type PipelineConfig struct {
	Workers              int               `toml:"workers"`
	QueueSize            int               `toml:"queue_size"`
	JobTimeout           Duration          `toml:"job_timeout"`
	MaxAttempts          int               `toml:"max_attempts"`
	RetryJitter          Duration          `toml:"retry_jitter"`
	ExtractionMode       string            `toml:"extraction_mode"`
	DeleteStagedAfterRun bool              `toml:"delete_staged_after_run"`
	RecordStore          string            `toml:"record_store"`
	DefaultTag           string            `toml:"default_tag"`
	DefaultStatus        string            `toml:"default_status"`
	UnknownAssigneeLabel string            `toml:"unknown_assignee_label"`
	AssigneeUserIDs      map[string]string `toml:"assignee_user_ids"`
}

// StagingConfig selects and configures the staging store backend.
type StagingConfig struct {
	Backend       string `toml:"backend"` // "local" or "gcs"
	Dir           string `toml:"dir"`
	PublicBaseURL string `toml:"public_base_url"`
	Bucket        string `toml:"bucket"`
	Prefix        string `toml:"prefix"`
	ProcessName   string `toml:"process_name"`
}

// LLMConfig holds vision-text service configuration.
type LLMConfig struct {
	Provider    string   `toml:"provider"` // "openai" or "vertex"
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	Temperature float32  `toml:"temperature"`
	Timeout     Duration `toml:"timeout"`
	ProjectID   string   `toml:"project_id"`
	Region      string   `toml:"region"`
}

// NotionConfig holds destination database configuration.
type NotionConfig struct {
	Token             string   `toml:"token"`
	DatabaseID        string   `toml:"database_id"`
	Version           string   `toml:"version"`
	BaseURL           string   `toml:"base_url"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// FirestoreConfig configures the Firestore record store backend.
type FirestoreConfig struct {
	ProjectID  string `toml:"project_id"`
	Collection string `toml:"collection"`
}

// LedgerConfig configures the run history database.
type LedgerConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "pgx"
	DSN    string `toml:"dsn"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Format string `toml:"format"` // "json", "text" or "auto"
	Level  string `toml:"level"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr:      ":8080",
			MetricsAddr:   ":9090",
			LockPath:      "./tmp/cardleadd.lock",
			SpoolDir:      "./tmp/spool",
			InboxDebounce: Duration{500 * time.Millisecond},
		},
		Pipeline: PipelineConfig{
			Workers:              4,
			QueueSize:            64,
			JobTimeout:           Duration{5 * time.Minute},
			MaxAttempts:          5,
			ExtractionMode:       "inferred",
			RecordStore:          "notion",
			DefaultTag:           "NexTech",
			DefaultStatus:        "メール予定",
			UnknownAssigneeLabel: "担当者不明",
		},
		Staging: StagingConfig{
			Backend:     "local",
			Dir:         "./staging",
			ProcessName: "notion_bizcard_processing",
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o",
			Timeout:  Duration{60 * time.Second},
			Region:   "us-central1",
		},
		Notion: NotionConfig{
			Version:           "2022-06-28",
			BaseURL:           "https://api.notion.com/v1",
			Timeout:           Duration{30 * time.Second},
			RequestsPerSecond: 3,
		},
		Firestore: FirestoreConfig{
			Collection: "leads",
		},
		Ledger: LedgerConfig{
			Driver: "sqlite",
			DSN:    "file:./tmp/cardlead.db?_pragma=busy_timeout(5000)",
		},
		Logging: LoggingConfig{
			Format: "auto",
			Level:  "info",
		},
	}
}

// LoadConfig reads path (if it exists) over the defaults, then applies
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, NewAppError("CONFIG_ERROR", "parse "+path, err)
			}
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.MetricsAddr = getEnv("METRICS_ADDR", c.Server.MetricsAddr)
	c.Server.SpoolDir = getEnv("SPOOL_DIR", c.Server.SpoolDir)
	c.Server.InboxDir = getEnv("INBOX_DIR", c.Server.InboxDir)

	c.Pipeline.Workers = getEnvAsInt("PIPELINE_WORKERS", c.Pipeline.Workers)
	c.Pipeline.QueueSize = getEnvAsInt("PIPELINE_QUEUE_SIZE", c.Pipeline.QueueSize)
	c.Pipeline.JobTimeout.Duration = getEnvAsDuration("PIPELINE_JOB_TIMEOUT", c.Pipeline.JobTimeout.Duration)
	c.Pipeline.MaxAttempts = getEnvAsInt("EXTRACT_MAX_ATTEMPTS", c.Pipeline.MaxAttempts)
	c.Pipeline.ExtractionMode = getEnv("EXTRACT_MODE", c.Pipeline.ExtractionMode)

	c.Staging.Backend = getEnv("STAGING_BACKEND", c.Staging.Backend)
	c.Staging.Dir = getEnv("STAGING_DIR", c.Staging.Dir)
	c.Staging.PublicBaseURL = getEnv("UPLOAD_URL", c.Staging.PublicBaseURL)
	c.Staging.Bucket = getEnv("STAGING_BUCKET", c.Staging.Bucket)

	c.LLM.Provider = getEnv("LLM_PROVIDER", c.LLM.Provider)
	c.LLM.APIKey = getEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = getEnv("OPENAI_BASE_URL", c.LLM.BaseURL)
	c.LLM.Model = getEnv("OPENAI_MODEL", c.LLM.Model)
	c.LLM.Temperature = getEnvAsFloat32("OPENAI_TEMPERATURE", c.LLM.Temperature)
	c.LLM.Timeout.Duration = getEnvAsDuration("OPENAI_TIMEOUT", c.LLM.Timeout.Duration)
	c.LLM.ProjectID = getEnv("GCP_PROJECT", c.LLM.ProjectID)

	c.Notion.Token = getEnv("NOTION_API_TOKEN", c.Notion.Token)
	c.Notion.DatabaseID = getEnv("NOTION_DATABASE_ID", c.Notion.DatabaseID)
	c.Notion.Version = getEnv("NOTION_VERSION", c.Notion.Version)

	c.Firestore.ProjectID = getEnv("FIRESTORE_PROJECT", c.Firestore.ProjectID)

	c.Ledger.Driver = getEnv("LEDGER_DRIVER", c.Ledger.Driver)
	c.Ledger.DSN = getEnv("LEDGER_DSN", c.Ledger.DSN)

	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the settings the daemon cannot run without.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("pipeline.extraction_mode", c.Pipeline.ExtractionMode, OneOf("inferred", "raw"))
	v.Field("pipeline.record_store", c.Pipeline.RecordStore, OneOf("notion", "firestore"))
	v.Field("staging.backend", c.Staging.Backend, OneOf("local", "gcs"))
	v.Field("llm.provider", c.LLM.Provider, OneOf("openai", "vertex"))
	v.Field("ledger.driver", c.Ledger.Driver, OneOf("sqlite", "pgx", "none"))

	switch c.Staging.Backend {
	case "local":
		v.Field("staging.dir", c.Staging.Dir, Required)
		v.Field("staging.public_base_url", c.Staging.PublicBaseURL, Required)
	case "gcs":
		v.Field("staging.bucket", c.Staging.Bucket, Required)
	}
	switch c.LLM.Provider {
	case "openai":
		v.Field("OPENAI_API_KEY", c.LLM.APIKey, Required)
	case "vertex":
		v.Field("llm.project_id", c.LLM.ProjectID, Required)
		v.Field("llm.region", c.LLM.Region, Required)
	}
	switch c.Pipeline.RecordStore {
	case "notion":
		v.Field("NOTION_API_TOKEN", c.Notion.Token, Required)
		v.Field("NOTION_DATABASE_ID", c.Notion.DatabaseID, Required)
	case "firestore":
		v.Field("firestore.project_id", c.Firestore.ProjectID, Required)
	}
	if c.Pipeline.Workers <= 0 {
		v.Add(ValidationError{Field: "pipeline.workers", Value: c.Pipeline.Workers, Message: "must be positive"})
	}
	if c.Pipeline.MaxAttempts <= 0 {
		v.Add(ValidationError{Field: "pipeline.max_attempts", Value: c.Pipeline.MaxAttempts, Message: "must be positive"})
	}
	if err := v.Error(); err != nil {
		return NewAppError("CONFIG_ERROR", "invalid configuration", fmt.Errorf("%w: %w", ErrConfig, err))
	}
	return nil
}
