package model

// ExecutorCreateRequest asks the backup executor to produce a backup.
type ExecutorCreateRequest struct {
	JobID      string         `json:"jobId"`
	TenantID   string         `json:"tenantId"`
	BackupType string         `json:"backupType"`
	Settings   BackupSettings `json:"settings"`
}

// ExecutorCreateResponse is the executor's acknowledgement of a create.
type ExecutorCreateResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// EmergencyArchive is the synchronous response to an emergency create.
type EmergencyArchive struct {
	ZipBuffer string `json:"zipBuffer"`
	Filename  string `json:"filename"`
}

// ExecutorUploadResponse acknowledges an uploaded backup file.
type ExecutorUploadResponse struct {
	JobID string `json:"jobId"`
}

// Artifact encodings returned by the executor download action.
const (
	EncodingBinary = "binary"
	EncodingText   = "text"
)

// ExecutorArtifact is the executor's download payload. Binary content is
// base64 encoded on the wire.
type ExecutorArtifact struct {
	Content     string `json:"content"`
	Encoding    string `json:"encoding"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
}

// Executor callback events.
const (
	ExecutorEventAck       = "ack"
	ExecutorEventSuccess   = "success"
	ExecutorEventFailure   = "failure"
	ExecutorEventCancelled = "cancelled"
)

// ExecutorEvent is posted by the executor as a job progresses.
type ExecutorEvent struct {
	Event    string `json:"event" validate:"required,oneof=ack success failure cancelled"`
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size" validate:"min=0"`
	Duration int64  `json:"duration" validate:"min=0"`
	Checksum string `json:"checksum"`
	Error    string `json:"error"`
}
