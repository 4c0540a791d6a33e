package model

import "time"

// BackupJob is one backup lifecycle record.
type BackupJob struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenant_id"`
	JobType           string         `json:"job_type"`
	Status            string         `json:"status"`
	FilePath          *string        `json:"file_path,omitempty"`
	FileSize          int64          `json:"file_size"`
	BackupDuration    int64          `json:"backup_duration"`
	Checksum          *string        `json:"checksum,omitempty"`
	ErrorMessage      *string        `json:"error_message,omitempty"`
	Metadata          map[string]any `json:"metadata"`
	CancelRequestedAt *time.Time     `json:"cancel_requested_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Backup job types.
const (
	BackupTypeDatabase  = "database"
	BackupTypeFiles     = "files"
	BackupTypeFull      = "full"
	BackupTypeEmergency = "emergency"
	BackupTypeUpload    = "upload"
)

// IsScheduledBackupType reports whether t is produced asynchronously by the
// executor. Emergency and upload jobs have their own entry points.
func IsScheduledBackupType(t string) bool {
	switch t {
	case BackupTypeDatabase, BackupTypeFiles, BackupTypeFull:
		return true
	}
	return false
}

// BackupResult is what the executor reports for a finished job.
type BackupResult struct {
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	Duration int64  `json:"duration"`
	Checksum string `json:"checksum"`
}

// BackupArtifact is a downloadable payload for a job.
type BackupArtifact struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
	// Manifest is set when the real artifact was unavailable and a job
	// description was synthesized instead.
	Manifest bool `json:"manifest"`
}

// EmergencyPackage is the archive produced by a synchronous emergency backup.
type EmergencyPackage struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
	Checksum string `json:"checksum"`
	Mirrored bool   `json:"mirrored"`
}

// UploadFile is an externally produced backup handed in by an operator.
type UploadFile struct {
	Filename string
	Size     int64
	Data     []byte
}

// VerificationResult is the outcome of testing a completed backup.
type VerificationResult struct {
	JobID      string    `json:"job_id"`
	Valid      bool      `json:"valid"`
	VerifiedAt time.Time `json:"verified_at"`
}

// RestoreResult reports whether the executor accepted a restore request.
type RestoreResult struct {
	JobID    string `json:"job_id"`
	Accepted bool   `json:"accepted"`
}
