package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyCoreDBURL(t *testing.T) {
	// Config loads successfully even without CORE_DATABASE_URL set.
	os.Unsetenv("CORE_DATABASE_URL")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "", cfg.CoreDatabaseURL)
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"HTTP_LISTEN_ADDR", "LOG_LEVEL", "EXECUTOR_TIMEOUT", "EMERGENCY_TIMEOUT",
		"SCANNER_TIMEOUT", "UPLOAD_MAX_BYTES", "STATS_JOB_WINDOW", "JOB_STALE_AFTER",
		"REAPER_INTERVAL", "SMTP_PORT", "S3_REGION",
	} {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ExecutorTimeout)
	assert.Equal(t, 5*time.Minute, cfg.EmergencyTimeout)
	assert.Equal(t, 60*time.Second, cfg.ScannerTimeout)
	assert.Equal(t, int64(50*1024*1024), cfg.UploadMaxBytes)
	assert.Equal(t, 100, cfg.StatsJobWindow)
	assert.Equal(t, 6*time.Hour, cfg.JobStaleAfter)
	assert.Equal(t, 5*time.Minute, cfg.ReaperInterval)
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, "us-east-1", cfg.S3Region)
}

func TestLoad_AllEnvVars(t *testing.T) {
	t.Setenv("CORE_DATABASE_URL", "postgres://core:5432/coredb")
	t.Setenv("HTTP_LISTEN_ADDR", ":7071")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("EXECUTOR_URL", "http://executor:8080/backup")
	t.Setenv("EXECUTOR_TIMEOUT", "10s")
	t.Setenv("SCANNER_URL", "http://scanner:8080/analyze")
	t.Setenv("UPLOAD_MAX_BYTES", "1024")
	t.Setenv("STATS_JOB_WINDOW", "25")
	t.Setenv("SMTP_PORT", "2525")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://core:5432/coredb", cfg.CoreDatabaseURL)
	assert.Equal(t, ":7071", cfg.HTTPListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://executor:8080/backup", cfg.ExecutorURL)
	assert.Equal(t, 10*time.Second, cfg.ExecutorTimeout)
	assert.Equal(t, "http://scanner:8080/analyze", cfg.ScannerURL)
	assert.Equal(t, int64(1024), cfg.UploadMaxBytes)
	assert.Equal(t, 25, cfg.StatsJobWindow)
	assert.Equal(t, 2525, cfg.SMTPPort)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("EXECUTOR_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXECUTOR_TIMEOUT")
}

func TestLoad_InvalidInt(t *testing.T) {
	t.Setenv("UPLOAD_MAX_BYTES", "big")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPLOAD_MAX_BYTES")
}

func TestValidate_CoreAPI_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("core-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORE_DATABASE_URL")
	assert.Contains(t, err.Error(), "HTTP_LISTEN_ADDR")
	assert.Contains(t, err.Error(), "EXECUTOR_URL")
	assert.Contains(t, err.Error(), "SCANNER_URL")
	assert.Contains(t, err.Error(), "CALLBACK_TOKEN")
}

func TestValidate_UnknownComponent(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate("worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown component")
}

func validConfig() *Config {
	return &Config{
		CoreDatabaseURL: "postgres://localhost/db",
		HTTPListenAddr:  ":8090",
		ExecutorURL:     "http://executor",
		ScannerURL:      "http://scanner",
		CallbackToken:   "secret",
		UploadMaxBytes:  50 << 20,
		StatsJobWindow:  100,
	}
}

func TestValidate_S3PartialCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.S3Bucket = "backups"
	cfg.S3AccessKey = "key"

	err := cfg.Validate("core-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_ACCESS_KEY and S3_SECRET_KEY must both be set")
}

func TestValidate_NonPositiveWindow(t *testing.T) {
	cfg := validConfig()
	cfg.StatsJobWindow = 0

	err := cfg.Validate("core-api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATS_JOB_WINDOW")
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate("core-api"))
	assert.False(t, cfg.S3Enabled())
	assert.False(t, cfg.SMTPEnabled())
}
