package core

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/safehouse/internal/metrics"
	"github.com/edvin/safehouse/internal/model"
)

// Default limits for backup orchestration.
const (
	DefaultExecutorTimeout  = 30 * time.Second
	DefaultEmergencyTimeout = 5 * time.Minute
	DefaultUploadMaxBytes   = 50 << 20
	DefaultJobStaleAfter    = 6 * time.Hour
)

var uploadExtensions = map[string]bool{
	".zip":  true,
	".sql":  true,
	".gz":   true,
	".tar":  true,
	".tgz":  true,
	".json": true,
	".bak":  true,
}

// BackupOrchestratorConfig holds the timeouts and limits of the orchestrator.
// Zero values fall back to the defaults.
type BackupOrchestratorConfig struct {
	ExecutorTimeout  time.Duration
	EmergencyTimeout time.Duration
	UploadMaxBytes   int64
	StaleAfter       time.Duration
}

// BackupOrchestrator validates backup commands against the job's current
// state, drives the executor and records the resulting transition.
type BackupOrchestrator struct {
	jobs      *BackupJobService
	logs      *SecurityLogService
	settings  *SettingsService
	executor  BackupExecutor
	artifacts ArtifactStore
	locks     *jobLocks
	cfg       BackupOrchestratorConfig
	logger    zerolog.Logger
	now       func() time.Time
}

// NewBackupOrchestrator creates a BackupOrchestrator. artifacts may be nil
// when no S3 mirror is configured.
func NewBackupOrchestrator(jobs *BackupJobService, logs *SecurityLogService, settings *SettingsService,
	executor BackupExecutor, artifacts ArtifactStore, cfg BackupOrchestratorConfig, logger zerolog.Logger) *BackupOrchestrator {
	if cfg.ExecutorTimeout <= 0 {
		cfg.ExecutorTimeout = DefaultExecutorTimeout
	}
	if cfg.EmergencyTimeout <= 0 {
		cfg.EmergencyTimeout = DefaultEmergencyTimeout
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = DefaultUploadMaxBytes
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultJobStaleAfter
	}
	return &BackupOrchestrator{
		jobs:      jobs,
		logs:      logs,
		settings:  settings,
		executor:  executor,
		artifacts: artifacts,
		locks:     newJobLocks(),
		cfg:       cfg,
		logger:    logger.With().Str("component", "backup-orchestrator").Logger(),
		now:       time.Now,
	}
}

// UploadMaxBytes is the largest accepted upload.
func (o *BackupOrchestrator) UploadMaxBytes() int64 {
	return o.cfg.UploadMaxBytes
}

// Get returns a job owned by the tenant.
func (o *BackupOrchestrator) Get(ctx context.Context, tenantID, id string) (*model.BackupJob, error) {
	job, err := o.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.TenantID != tenantID {
		return nil, notFoundErrorf("backup job %s", id)
	}
	return job, nil
}

func (o *BackupOrchestrator) List(ctx context.Context, tenantID string, filters BackupJobFilters, limit int, cursor string) ([]model.BackupJob, bool, error) {
	if filters.Status != "" && !isKnownStatus(filters.Status) {
		return nil, false, validationErrorf("unknown status %q", filters.Status)
	}
	return o.jobs.ListByTenant(ctx, tenantID, filters, limit, cursor)
}

// Create records a pending job and asks the executor to run it. When the
// executor cannot be reached the job is left failed with the error.
func (o *BackupOrchestrator) Create(ctx context.Context, tenantID, jobType string) (*model.BackupJob, error) {
	if !model.IsScheduledBackupType(jobType) {
		return nil, validationErrorf("unsupported backup type %q", jobType)
	}
	return o.create(ctx, tenantID, jobType, nil)
}

func (o *BackupOrchestrator) create(ctx context.Context, tenantID, jobType string, metadata map[string]any) (*model.BackupJob, error) {
	settings, err := o.settings.GetBackup(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	job := &model.BackupJob{TenantID: tenantID, JobType: jobType, Metadata: metadata}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	metrics.BackupJobsCreated.WithLabelValues(jobType).Inc()

	var resp *model.ExecutorCreateResponse
	err = o.callExecutor(ctx, "create", o.cfg.ExecutorTimeout, func(ctx context.Context) error {
		var err error
		resp, err = o.executor.Create(ctx, model.ExecutorCreateRequest{
			JobID:      job.ID,
			TenantID:   tenantID,
			BackupType: jobType,
			Settings:   *settings,
		})
		return err
	})
	if err != nil {
		o.failJob(ctx, job.ID, err)
		return nil, err
	}

	if resp.JobID != "" && resp.JobID != job.ID {
		if err := o.jobs.MergeMetadata(ctx, job.ID, map[string]any{"executor_job_id": resp.JobID}); err != nil {
			return nil, err
		}
		job.Metadata["executor_job_id"] = resp.JobID
	}
	if resp.Status == model.StatusRunning {
		// The executor's own callbacks may already have moved the job on.
		return o.markRunning(ctx, job.ID, func(status string) bool { return status != model.StatusPending })
	}
	return job, nil
}

// markRunning moves a job from pending to running. When the update finds the
// job elsewhere and settled accepts its current status, the current job is
// returned instead of the precondition error.
func (o *BackupOrchestrator) markRunning(ctx context.Context, id string, settled func(status string) bool) (*model.BackupJob, error) {
	job, err := o.jobs.MarkRunning(ctx, id)
	if errors.Is(err, ErrPreconditionFailed) {
		if current, getErr := o.jobs.GetByID(ctx, id); getErr == nil && settled(current.Status) {
			return current, nil
		}
	}
	return job, err
}

// Emergency produces a backup synchronously and returns the archive bytes.
// The job is recorded as completed with the archive's size and checksum.
func (o *BackupOrchestrator) Emergency(ctx context.Context, tenantID string) (*model.EmergencyPackage, error) {
	settings, err := o.settings.GetBackup(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	job := &model.BackupJob{
		TenantID: tenantID,
		JobType:  model.BackupTypeEmergency,
		Metadata: map[string]any{"synchronous": true},
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	metrics.BackupJobsCreated.WithLabelValues(model.BackupTypeEmergency).Inc()

	start := o.now()
	var archive *model.EmergencyArchive
	err = o.callExecutor(ctx, "create_emergency", o.cfg.EmergencyTimeout, func(ctx context.Context) error {
		var err error
		archive, err = o.executor.CreateEmergency(ctx, model.ExecutorCreateRequest{
			JobID:      job.ID,
			TenantID:   tenantID,
			BackupType: model.BackupTypeEmergency,
			Settings:   *settings,
		})
		return err
	})
	if err != nil {
		o.failJob(ctx, job.ID, err)
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(archive.ZipBuffer)
	if err != nil {
		err = executorError("create_emergency", fmt.Errorf("decode archive: %w", err))
		o.failJob(ctx, job.ID, err)
		return nil, err
	}
	duration := int64(o.now().Sub(start).Round(time.Second) / time.Second)

	pkg := &model.EmergencyPackage{
		JobID:    job.ID,
		Filename: archive.Filename,
		Data:     data,
		Checksum: checksum(data),
	}
	if pkg.Filename == "" {
		pkg.Filename = fmt.Sprintf("emergency-backup-%s.zip", job.ID)
	}

	filePath := pkg.Filename
	if o.artifacts != nil && settings.HasStorage(model.StorageS3) {
		key := artifactKey(tenantID, job.ID, pkg.Filename)
		if err := o.artifacts.Put(ctx, key, data, "application/zip"); err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("mirror emergency backup to artifact store")
		} else {
			filePath = key
			pkg.Mirrored = true
		}
	}

	// The archive exists now; record it even if the caller has gone away.
	writeCtx := context.WithoutCancel(ctx)
	if _, err := o.jobs.MarkRunning(writeCtx, job.ID); err != nil {
		return nil, err
	}
	if _, err := o.jobs.MarkCompleted(writeCtx, job.ID, model.BackupResult{
		FilePath: filePath,
		FileSize: int64(len(data)),
		Duration: duration,
		Checksum: pkg.Checksum,
	}); err != nil {
		return nil, err
	}
	return pkg, nil
}

// Upload records an externally produced backup and forwards it to the
// executor. Size and file type are checked before anything is written.
func (o *BackupOrchestrator) Upload(ctx context.Context, tenantID string, file model.UploadFile) (*model.BackupJob, error) {
	size := file.Size
	if int64(len(file.Data)) > size {
		size = int64(len(file.Data))
	}
	if size == 0 {
		return nil, validationErrorf("uploaded file is empty")
	}
	if size > o.cfg.UploadMaxBytes {
		return nil, validationErrorf("uploaded file is %d bytes, the limit is %d", size, o.cfg.UploadMaxBytes)
	}
	name := path.Base(strings.ReplaceAll(file.Filename, "\\", "/"))
	if name == "." || name == "/" || !uploadExtensions[strings.ToLower(path.Ext(name))] {
		return nil, validationErrorf("unsupported backup file type %q", file.Filename)
	}

	job := &model.BackupJob{
		TenantID: tenantID,
		JobType:  model.BackupTypeUpload,
		FileSize: size,
		Metadata: map[string]any{"original_filename": name},
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	metrics.BackupJobsCreated.WithLabelValues(model.BackupTypeUpload).Inc()

	err := o.callExecutor(ctx, "upload", o.cfg.ExecutorTimeout, func(ctx context.Context) error {
		_, err := o.executor.Upload(ctx, job.ID, name, file.Data)
		return err
	})
	if err != nil {
		o.failJob(ctx, job.ID, err)
		return nil, err
	}
	return o.jobs.MarkRunning(ctx, job.ID)
}

// Test asks the executor to verify a completed backup and records the
// outcome in the job metadata.
func (o *BackupOrchestrator) Test(ctx context.Context, tenantID, id string) (*model.VerificationResult, error) {
	release, err := o.locks.acquire(id, "test")
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := o.completedJob(ctx, tenantID, id, "test")
	if err != nil {
		return nil, err
	}

	var valid bool
	err = o.callExecutor(ctx, "test", o.cfg.ExecutorTimeout, func(ctx context.Context) error {
		var err error
		valid, err = o.executor.Test(ctx, job.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &model.VerificationResult{JobID: job.ID, Valid: valid, VerifiedAt: o.now().UTC()}
	if err := o.jobs.MergeMetadata(ctx, job.ID, map[string]any{
		"last_verified_at":        result.VerifiedAt.Format(time.RFC3339),
		"last_verification_valid": valid,
	}); err != nil {
		return nil, err
	}

	if !valid {
		if err := o.logs.Append(ctx, &model.SecurityLog{
			TenantID:    tenantID,
			EventType:   model.EventBackupVerificationFailed,
			Severity:    model.SeverityHigh,
			Description: fmt.Sprintf("Backup %s failed verification", job.ID),
			Metadata:    map[string]any{"backup_id": job.ID, "job_type": job.JobType},
		}); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Restore hands a completed backup to the executor for restoring. The job's
// own status never changes.
func (o *BackupOrchestrator) Restore(ctx context.Context, tenantID, id string, confirmed bool, actor model.Actor) (*model.RestoreResult, error) {
	if !confirmed {
		return nil, validationErrorf("restore requires confirmation")
	}
	release, err := o.locks.acquire(id, "restore")
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := o.completedJob(ctx, tenantID, id, "restore")
	if err != nil {
		return nil, err
	}

	var accepted bool
	err = o.callExecutor(ctx, "restore", o.cfg.ExecutorTimeout, func(ctx context.Context) error {
		var err error
		accepted, err = o.executor.Restore(ctx, job.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if accepted {
		if err := o.logs.Append(ctx, &model.SecurityLog{
			TenantID:    tenantID,
			EventType:   model.EventBackupRestoreRequested,
			Severity:    model.SeverityMedium,
			UserID:      nullableString(actor.UserID),
			IPAddress:   nullableString(actor.IPAddress),
			UserAgent:   nullableString(actor.UserAgent),
			Description: fmt.Sprintf("Restore of backup %s requested", job.ID),
			Metadata:    map[string]any{"backup_id": job.ID, "job_type": job.JobType},
		}); err != nil {
			return nil, err
		}
	}
	return &model.RestoreResult{JobID: job.ID, Accepted: accepted}, nil
}

// Download returns the backup artifact. It prefers the executor's copy, then
// the artifact store mirror, and finally a JSON manifest of the job.
func (o *BackupOrchestrator) Download(ctx context.Context, tenantID, id string) (*model.BackupArtifact, error) {
	release, err := o.locks.acquire(id, "download")
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := o.completedJob(ctx, tenantID, id, "download")
	if err != nil {
		return nil, err
	}

	var remote *model.ExecutorArtifact
	err = o.callExecutor(ctx, "download", o.cfg.ExecutorTimeout, func(ctx context.Context) error {
		var err error
		remote, err = o.executor.Download(ctx, job.ID)
		return err
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("executor download failed, falling back")
	} else if artifact, err := decodeArtifact(job, remote); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("executor returned an unusable artifact, falling back")
	} else {
		return artifact, nil
	}

	if o.artifacts != nil && job.FilePath != nil && *job.FilePath != "" {
		data, err := o.artifacts.Get(ctx, *job.FilePath)
		if err == nil {
			return &model.BackupArtifact{
				Filename:    path.Base(*job.FilePath),
				ContentType: "application/octet-stream",
				Data:        data,
			}, nil
		}
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("artifact store download failed, falling back")
	}

	manifest, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup manifest: %w", err)
	}
	return &model.BackupArtifact{
		Filename:    fmt.Sprintf("backup-%s-manifest.json", job.ID),
		ContentType: "application/json",
		Data:        manifest,
		Manifest:    true,
	}, nil
}

// Delete removes a job in any state and records a backup_deleted security
// log in the same statement. Unfinished jobs are cancelled at the executor
// first on a best-effort basis.
func (o *BackupOrchestrator) Delete(ctx context.Context, tenantID, id string, confirmed bool, actor model.Actor) (*model.SecurityLog, error) {
	if !confirmed {
		return nil, validationErrorf("delete requires confirmation")
	}
	release, err := o.locks.acquire(id, "delete")
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := o.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if model.IsCancellable(job.Status) {
		err := o.callExecutor(ctx, "cancel", o.cfg.ExecutorTimeout, func(ctx context.Context) error {
			_, err := o.executor.Cancel(ctx, job.ID)
			return err
		})
		if err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("cancel before delete failed")
		}
	}

	return o.jobs.Delete(ctx, tenantID, id, actor)
}

// Cancel asks the executor to stop an unfinished job. The job becomes
// cancelled once the executor confirms through its callback.
func (o *BackupOrchestrator) Cancel(ctx context.Context, tenantID, id string) (*model.BackupJob, error) {
	release, err := o.locks.acquire(id, "cancel")
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := o.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !model.IsCancellable(job.Status) {
		return nil, preconditionErrorf("backup job %s is %s and cannot be cancelled", id, job.Status)
	}

	var accepted bool
	err = o.callExecutor(ctx, "cancel", o.cfg.ExecutorTimeout, func(ctx context.Context) error {
		var err error
		accepted, err = o.executor.Cancel(ctx, job.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !accepted {
		return nil, preconditionErrorf("executor refused to cancel backup job %s", id)
	}
	return o.jobs.RequestCancel(ctx, job.ID)
}

// Retry starts a new job of the same type as a failed one. The failed job
// keeps its state; the new job references it in metadata.retry_of.
func (o *BackupOrchestrator) Retry(ctx context.Context, tenantID, id string) (*model.BackupJob, error) {
	release, err := o.locks.acquire(id, "retry")
	if err != nil {
		return nil, err
	}
	defer release()

	job, err := o.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusFailed {
		return nil, preconditionErrorf("backup job %s is %s; only failed jobs can be retried", id, job.Status)
	}
	if !model.IsScheduledBackupType(job.JobType) {
		return nil, preconditionErrorf("%s backups cannot be retried", job.JobType)
	}
	return o.create(ctx, tenantID, job.JobType, map[string]any{"retry_of": job.ID})
}

// HandleExecutorEvent applies a progress callback from the executor.
func (o *BackupOrchestrator) HandleExecutorEvent(ctx context.Context, id string, ev model.ExecutorEvent) (*model.BackupJob, error) {
	switch ev.Event {
	case model.ExecutorEventAck:
		// Repeated acks are harmless once the job is running.
		return o.markRunning(ctx, id, func(status string) bool { return status == model.StatusRunning })

	case model.ExecutorEventSuccess:
		job, err := o.jobs.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == model.StatusPending {
			if _, err := o.jobs.MarkRunning(ctx, id); err != nil {
				return nil, err
			}
		}
		return o.jobs.MarkCompleted(ctx, id, model.BackupResult{
			FilePath: ev.FilePath,
			FileSize: ev.FileSize,
			Duration: ev.Duration,
			Checksum: ev.Checksum,
		})

	case model.ExecutorEventFailure:
		return o.jobs.MarkFailed(ctx, id, ev.Error)

	case model.ExecutorEventCancelled:
		return o.jobs.MarkCancelled(ctx, id)
	}
	return nil, validationErrorf("unknown executor event %q", ev.Event)
}

// ReapStale fails jobs the executor never finished within the stale window.
func (o *BackupOrchestrator) ReapStale(ctx context.Context) (int, error) {
	ids, err := o.jobs.FailStale(ctx, o.now().Add(-o.cfg.StaleAfter), "executor timed out")
	for _, id := range ids {
		o.logger.Warn().Str("job_id", id).Msg("failed stale backup job")
	}
	metrics.StaleJobsFailed.Add(float64(len(ids)))
	return len(ids), err
}

// completedJob loads a tenant's job and requires it to be completed.
func (o *BackupOrchestrator) completedJob(ctx context.Context, tenantID, id, action string) (*model.BackupJob, error) {
	job, err := o.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.StatusCompleted {
		return nil, preconditionErrorf("backup job %s is %s; %s requires a completed backup", id, job.Status, action)
	}
	return job, nil
}

// callExecutor runs fn with the given timeout and records its metrics.
// Errors come back wrapped as ErrExecutorUnavailable.
func (o *BackupOrchestrator) callExecutor(ctx context.Context, action string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveExecutorCall(action, start, err)
	if err != nil {
		return executorError(action, err)
	}
	return nil
}

// failJob records an executor failure on a job that never started. The
// write is detached from ctx so a caller timeout still leaves the job failed.
func (o *BackupOrchestrator) failJob(ctx context.Context, id string, cause error) {
	if _, err := o.jobs.MarkFailed(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		o.logger.Error().Err(err).Str("job_id", id).Msg("mark backup job failed")
	}
}

func decodeArtifact(job *model.BackupJob, remote *model.ExecutorArtifact) (*model.BackupArtifact, error) {
	if remote == nil || remote.Content == "" {
		return nil, fmt.Errorf("empty artifact")
	}

	artifact := &model.BackupArtifact{
		Filename:    remote.Filename,
		ContentType: remote.ContentType,
	}
	switch remote.Encoding {
	case model.EncodingBinary, "":
		data, err := base64.StdEncoding.DecodeString(remote.Content)
		if err != nil {
			return nil, fmt.Errorf("decode artifact: %w", err)
		}
		artifact.Data = data
	case model.EncodingText:
		artifact.Data = []byte(remote.Content)
	default:
		return nil, fmt.Errorf("unknown artifact encoding %q", remote.Encoding)
	}

	if artifact.Filename == "" {
		artifact.Filename = fmt.Sprintf("backup-%s", job.ID)
	}
	if artifact.ContentType == "" {
		artifact.ContentType = "application/octet-stream"
	}
	return artifact, nil
}

func artifactKey(tenantID, jobID, filename string) string {
	return fmt.Sprintf("tenants/%s/backups/%s/%s", tenantID, jobID, path.Base(filename))
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isKnownStatus(status string) bool {
	for _, s := range model.AllStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// RunReaper calls ReapStale every interval until ctx is done.
func (o *BackupOrchestrator) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.ReapStale(ctx); err != nil && ctx.Err() == nil {
				o.logger.Error().Err(err).Msg("reap stale backup jobs")
			}
		}
	}
}
