package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"GRPC_ADDR", "METRICS_ADDR", "SPOOL_DIR", "INBOX_DIR",
		"PIPELINE_WORKERS", "PIPELINE_QUEUE_SIZE", "PIPELINE_JOB_TIMEOUT",
		"EXTRACT_MAX_ATTEMPTS", "EXTRACT_MODE",
		"STAGING_BACKEND", "STAGING_DIR", "UPLOAD_URL", "STAGING_BUCKET",
		"LLM_PROVIDER", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
		"OPENAI_TEMPERATURE", "OPENAI_TIMEOUT", "GCP_PROJECT",
		"NOTION_API_TOKEN", "NOTION_DATABASE_ID", "NOTION_VERSION", "FIRESTORE_PROJECT",
		"LEDGER_DRIVER", "LEDGER_DSN", "LOG_FORMAT", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cardlead.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[pipeline]
workers = 2
job_timeout = "90s"
extraction_mode = "raw"

[pipeline.assignee_user_ids]
"佐藤" = "user-1"

[staging]
public_base_url = "https://img.example.com/"
`), 0o644))
	t.Setenv("PIPELINE_WORKERS", "7")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.Workers)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.JobTimeout.Duration)
	assert.Equal(t, "raw", cfg.Pipeline.ExtractionMode)
	assert.Equal(t, "user-1", cfg.Pipeline.AssigneeUserIDs["佐藤"])
	assert.Equal(t, "https://img.example.com/", cfg.Staging.PublicBaseURL)
	assert.Equal(t, "sk-env", cfg.LLM.APIKey)
	assert.Equal(t, 64, cfg.Pipeline.QueueSize, "unset keys keep defaults")
}

func TestLoadConfig_BadTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cardlead.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pipeline\nworkers = "), 0o644))

	_, err := LoadConfig(path)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)
}

func TestLoadConfig_BadDurationInEnvIsIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("PIPELINE_JOB_TIMEOUT", "soon")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.JobTimeout.Duration)
}

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Staging.PublicBaseURL = "https://img.example.com/"
	cfg.LLM.APIKey = "sk-test"
	cfg.Notion.Token = "secret"
	cfg.Notion.DatabaseID = "db"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"mode", func(c *Config) { c.Pipeline.ExtractionMode = "guess" }, "pipeline.extraction_mode"},
		{"record store", func(c *Config) { c.Pipeline.RecordStore = "sheets" }, "pipeline.record_store"},
		{"gcs bucket", func(c *Config) { c.Staging.Backend = "gcs" }, "staging.bucket"},
		{"vertex project", func(c *Config) { c.LLM.Provider = "vertex" }, "llm.project_id"},
		{"notion token", func(c *Config) { c.Notion.Token = "" }, "NOTION_API_TOKEN"},
		{"firestore project", func(c *Config) { c.Pipeline.RecordStore = "firestore" }, "firestore.project_id"},
		{"workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"ledger", func(c *Config) { c.Ledger.Driver = "mysql" }, "ledger.driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
