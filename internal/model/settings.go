package model

import "time"

// SettingsVersion is the current schema version of both settings documents.
const SettingsVersion = 1

// Backup frequencies.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
	FrequencyCustom = "custom"
)

// Storage locations a backup may be written to.
const (
	StorageLocal  = "local"
	StorageS3     = "s3"
	StorageRemote = "remote"
)

// BackupSettings is the per-tenant backup configuration read by the executor.
type BackupSettings struct {
	Version            int        `json:"version" yaml:"version" validate:"eq=1"`
	Frequency          string     `json:"frequency" yaml:"frequency" validate:"required,oneof=daily weekly custom"`
	CustomSchedule     string     `json:"custom_schedule" yaml:"custom_schedule" validate:"required_if=Frequency custom"`
	Enabled            bool       `json:"enabled" yaml:"enabled"`
	BackupDatabase     bool       `json:"backup_database" yaml:"backup_database"`
	BackupFiles        bool       `json:"backup_files" yaml:"backup_files"`
	StorageLocations   []string   `json:"storage_locations" yaml:"storage_locations" validate:"required,min=1,dive,oneof=local s3 remote"`
	VersioningEnabled  bool       `json:"versioning_enabled" yaml:"versioning_enabled"`
	MaxVersions        int        `json:"max_versions" yaml:"max_versions" validate:"min=0,max=100"`
	CompressionEnabled bool       `json:"compression_enabled" yaml:"compression_enabled"`
	EncryptionEnabled  bool       `json:"encryption_enabled" yaml:"encryption_enabled"`
	RetentionDays      int        `json:"retention_days" yaml:"retention_days" validate:"min=1,max=3650"`
	AutoCleanupEnabled bool       `json:"auto_cleanup_enabled" yaml:"auto_cleanup_enabled"`
	LastBackupAt       *time.Time `json:"last_backup_at" yaml:"-"` // derived from completed jobs
	NextBackupAt       *time.Time `json:"next_backup_at" yaml:"-"`
}

// HasStorage reports whether loc is one of the configured targets.
func (s BackupSettings) HasStorage(loc string) bool {
	for _, l := range s.StorageLocations {
		if l == loc {
			return true
		}
	}
	return false
}

// DefaultBackupSettings returns the settings a tenant starts with.
func DefaultBackupSettings() BackupSettings {
	return BackupSettings{
		Version:            SettingsVersion,
		Frequency:          FrequencyDaily,
		Enabled:            true,
		BackupDatabase:     true,
		BackupFiles:        true,
		StorageLocations:   []string{StorageLocal},
		VersioningEnabled:  true,
		MaxVersions:        5,
		CompressionEnabled: true,
		EncryptionEnabled:  true,
		RetentionDays:      30,
		AutoCleanupEnabled: true,
	}
}

// SecuritySettings is the per-tenant security configuration.
type SecuritySettings struct {
	Version int `json:"version" yaml:"version" validate:"eq=1"`

	SSLEnforcement   bool `json:"ssl_enforcement" yaml:"ssl_enforcement"`
	HTTPSRedirect    bool `json:"https_redirect" yaml:"https_redirect"`
	HSTSEnabled      bool `json:"hsts_enabled" yaml:"hsts_enabled"`
	TwoFactorEnabled bool `json:"two_factor_enabled" yaml:"two_factor_enabled"`
	FirewallEnabled  bool `json:"firewall_enabled" yaml:"firewall_enabled"`
	MalwareScanning  bool `json:"malware_scanning" yaml:"malware_scanning"`
	AutoUpdates      bool `json:"auto_updates" yaml:"auto_updates"`
	DDoSProtection   bool `json:"ddos_protection" yaml:"ddos_protection"`
	LogMonitoring    bool `json:"log_monitoring" yaml:"log_monitoring"`
	DataEncryption   bool `json:"data_encryption" yaml:"data_encryption"`
	SecurityAlerts   bool `json:"security_alerts" yaml:"security_alerts"`

	PasswordMinLength        int  `json:"password_min_length" yaml:"password_min_length" validate:"min=1,max=128"`
	PasswordRequireUppercase bool `json:"password_require_uppercase" yaml:"password_require_uppercase"`
	PasswordRequireLowercase bool `json:"password_require_lowercase" yaml:"password_require_lowercase"`
	PasswordRequireNumbers   bool `json:"password_require_numbers" yaml:"password_require_numbers"`
	PasswordRequireSymbols   bool `json:"password_require_symbols" yaml:"password_require_symbols"`

	SessionTimeout   int `json:"session_timeout" yaml:"session_timeout" validate:"min=1"`
	MaxLoginAttempts int `json:"max_login_attempts" yaml:"max_login_attempts" validate:"min=1"`
	LockoutDuration  int `json:"lockout_duration" yaml:"lockout_duration" validate:"min=0"`

	// Alert destinations are only used while SecurityAlerts is on.
	AlertEmail string `json:"alert_email" yaml:"alert_email" validate:"omitempty,email"`
	AlertSMS   string `json:"alert_sms" yaml:"alert_sms" validate:"omitempty,e164"`
}

// AlertEmailTarget returns the address alerts go to, or "" when alerts are off.
func (s SecuritySettings) AlertEmailTarget() string {
	if !s.SecurityAlerts {
		return ""
	}
	return s.AlertEmail
}

// AlertSMSTarget returns the number alerts go to, or "" when alerts are off.
func (s SecuritySettings) AlertSMSTarget() string {
	if !s.SecurityAlerts {
		return ""
	}
	return s.AlertSMS
}

// DefaultSecuritySettings returns the settings a tenant starts with.
func DefaultSecuritySettings() SecuritySettings {
	return SecuritySettings{
		Version:                  SettingsVersion,
		SSLEnforcement:           true,
		HTTPSRedirect:            true,
		HSTSEnabled:              true,
		FirewallEnabled:          true,
		MalwareScanning:          true,
		AutoUpdates:              true,
		DDoSProtection:           true,
		LogMonitoring:            true,
		DataEncryption:           true,
		SecurityAlerts:           true,
		PasswordMinLength:        8,
		PasswordRequireUppercase: true,
		PasswordRequireLowercase: true,
		PasswordRequireNumbers:   true,
		SessionTimeout:           60,
		MaxLoginAttempts:         5,
		LockoutDuration:          15,
	}
}

// Statistics is the read-side projection shown on the backup & security dashboard.
type Statistics struct {
	TotalBackups      int      `json:"total_backups"`
	SuccessfulBackups int      `json:"successful_backups"`
	FailedBackups     int      `json:"failed_backups"`
	TotalStorageUsed  int64    `json:"total_storage_used"`
	ActiveThreats     int      `json:"active_threats"`
	CriticalEvents    int      `json:"critical_events"`
	SecurityScore     int      `json:"security_score"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Degraded reports whether any part of the statistics fell back to zero.
func (s Statistics) Degraded() bool {
	return len(s.Warnings) > 0
}
