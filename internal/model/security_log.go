package model

import "time"

// Security log severities, lowest first.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Event types written by the orchestrators.
const (
	EventBackupDeleted            = "backup_deleted"
	EventBackupRestoreRequested   = "backup_restore_requested"
	EventBackupVerificationFailed = "backup_verification_failed"
	EventSecurityScanFailed       = "security_scan_failed"
	EventSecuritySettingsChanged  = "security_settings_changed"
)

var severityRank = map[string]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// SeverityRank orders severities; unknown values rank 0.
func SeverityRank(s string) int {
	return severityRank[s]
}

// IsValidSeverity reports whether s is a known severity.
func IsValidSeverity(s string) bool {
	_, ok := severityRank[s]
	return ok
}

// SecurityLog is one entry of the tenant's security event log.
type SecurityLog struct {
	ID          string         `json:"id"`
	TenantID    string         `json:"tenant_id"`
	EventType   string         `json:"event_type"`
	Severity    string         `json:"severity"`
	UserID      *string        `json:"user_id,omitempty"`
	IPAddress   *string        `json:"ip_address,omitempty"`
	UserAgent   *string        `json:"user_agent,omitempty"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	Resolved    bool           `json:"resolved"`
	ResolvedBy  *string        `json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SecurityLogFilters narrows a security log listing.
type SecurityLogFilters struct {
	Severity  string
	EventType string
	Resolved  *bool
}

// Actor identifies who issued a command, for audit fields.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// ScanResult is returned after a security scan finished and the log was re-read.
type ScanResult struct {
	Logs       []SecurityLog `json:"logs"`
	Statistics Statistics    `json:"statistics"`
	AlertsSent int           `json:"alerts_sent"`
}

// ScoredControl is one of the toggles counted by the posture score.
type ScoredControl struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ScoreReport explains a security posture score.
type ScoreReport struct {
	Score    int             `json:"score"`
	Controls []ScoredControl `json:"controls"`
}
