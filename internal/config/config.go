package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	CoreDatabaseURL   string
	HTTPListenAddr    string
	MetricsListenAddr string
	LogLevel          string
	ServiceName       string
	Environment       string

	// Backup executor and security scanner endpoints.
	ExecutorURL      string
	ExecutorToken    string
	ExecutorTimeout  time.Duration
	EmergencyTimeout time.Duration
	ScannerURL       string
	ScannerToken     string
	ScannerTimeout   time.Duration

	// Optional mTLS towards the executor and scanner.
	ExecutorTLSCert       string
	ExecutorTLSKey        string
	ExecutorTLSCACert     string
	ExecutorTLSServerName string

	// CallbackToken authenticates executor callbacks on /internal/v1.
	CallbackToken string

	UploadMaxBytes int64
	StatsJobWindow int
	JobStaleAfter  time.Duration
	ReaperInterval time.Duration

	SettingsDefaultsFile string

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func Load() (*Config, error) {
	cfg := &Config{
		CoreDatabaseURL:       getEnv("CORE_DATABASE_URL", ""),
		HTTPListenAddr:        getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsListenAddr:     getEnv("METRICS_LISTEN_ADDR", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		ServiceName:           getEnv("SERVICE_NAME", "safehouse"),
		Environment:           getEnv("ENVIRONMENT", "development"),
		ExecutorURL:           getEnv("EXECUTOR_URL", ""),
		ExecutorToken:         getEnv("EXECUTOR_TOKEN", ""),
		ScannerURL:            getEnv("SCANNER_URL", ""),
		ScannerToken:          getEnv("SCANNER_TOKEN", ""),
		ExecutorTLSCert:       getEnv("EXECUTOR_TLS_CERT", ""),
		ExecutorTLSKey:        getEnv("EXECUTOR_TLS_KEY", ""),
		ExecutorTLSCACert:     getEnv("EXECUTOR_TLS_CA_CERT", ""),
		ExecutorTLSServerName: getEnv("EXECUTOR_TLS_SERVER_NAME", ""),
		CallbackToken:         getEnv("CALLBACK_TOKEN", ""),
		SettingsDefaultsFile:  getEnv("SETTINGS_DEFAULTS_FILE", ""),
		S3Endpoint:            getEnv("S3_ENDPOINT", ""),
		S3Region:              getEnv("S3_REGION", "us-east-1"),
		S3Bucket:              getEnv("S3_BUCKET", ""),
		S3AccessKey:           getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:           getEnv("S3_SECRET_KEY", ""),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:              getEnv("SMTP_FROM", "safehouse@localhost"),
	}

	var err error
	if cfg.ExecutorTimeout, err = getDuration("EXECUTOR_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.EmergencyTimeout, err = getDuration("EMERGENCY_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ScannerTimeout, err = getDuration("SCANNER_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.JobStaleAfter, err = getDuration("JOB_STALE_AFTER", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReaperInterval, err = getDuration("REAPER_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.UploadMaxBytes, err = getInt64("UPLOAD_MAX_BYTES", 50<<20); err != nil {
		return nil, err
	}
	window, err := getInt64("STATS_JOB_WINDOW", 100)
	if err != nil {
		return nil, err
	}
	cfg.StatsJobWindow = int(window)
	port, err := getInt64("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}
	cfg.SMTPPort = int(port)

	return cfg, nil
}

// Validate checks that the settings a component needs are present.
func (c *Config) Validate(component string) error {
	var missing []string
	require := func(key, val string) {
		if val == "" {
			missing = append(missing, key)
		}
	}

	switch component {
	case "core-api":
		require("CORE_DATABASE_URL", c.CoreDatabaseURL)
		require("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
		require("EXECUTOR_URL", c.ExecutorURL)
		require("SCANNER_URL", c.ScannerURL)
		require("CALLBACK_TOKEN", c.CallbackToken)
	default:
		return fmt.Errorf("unknown component %q", component)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if c.StatsJobWindow <= 0 {
		return fmt.Errorf("STATS_JOB_WINDOW must be positive")
	}
	if c.S3Bucket != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY must both be set when S3_BUCKET is set")
	}
	return nil
}

// S3Enabled reports whether the artifact mirror is configured.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// SMTPEnabled reports whether alert e-mail delivery is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}
