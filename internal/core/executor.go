package core

import (
	"context"

	"github.com/edvin/safehouse/internal/model"
)

// BackupExecutor is the external service that produces, verifies, restores
// and serves backups.
type BackupExecutor interface {
	Create(ctx context.Context, req model.ExecutorCreateRequest) (*model.ExecutorCreateResponse, error)
	CreateEmergency(ctx context.Context, req model.ExecutorCreateRequest) (*model.EmergencyArchive, error)
	Upload(ctx context.Context, jobID, filename string, data []byte) (*model.ExecutorUploadResponse, error)
	Test(ctx context.Context, backupID string) (bool, error)
	Restore(ctx context.Context, backupID string) (bool, error)
	Download(ctx context.Context, backupID string) (*model.ExecutorArtifact, error)
	Cancel(ctx context.Context, backupID string) (bool, error)
}

// SecurityScanner runs a security analysis and writes its findings to the
// security log itself.
type SecurityScanner interface {
	Analyze(ctx context.Context, tenantID string) error
}

// ArtifactStore mirrors backup archives outside the executor.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Alerter delivers security alerts to an operator.
type Alerter interface {
	SendSecurityAlert(ctx context.Context, to, tenantID string, events []model.SecurityLog) error
}
