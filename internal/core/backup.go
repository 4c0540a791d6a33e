package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edvin/safehouse/internal/model"
	"github.com/edvin/safehouse/internal/platform"
)

const backupJobColumns = `id, tenant_id, job_type, status, file_path, file_size, backup_duration,
	checksum, error_message, metadata, cancel_requested_at, created_at, completed_at, updated_at`

// BackupJobFilters narrows a backup job listing.
type BackupJobFilters struct {
	Status  string
	JobType string
}

// BackupJobService is the job registry: the source of truth for backup
// lifecycle state. Every status change is a conditional update on the
// expected previous status, so concurrent writers cannot skip a state.
type BackupJobService struct {
	db  DB
	now func() time.Time
}

func NewBackupJobService(db DB) *BackupJobService {
	return &BackupJobService{db: db, now: time.Now}
}

func scanBackupJob(row rowScanner) (*model.BackupJob, error) {
	var b model.BackupJob
	err := row.Scan(&b.ID, &b.TenantID, &b.JobType, &b.Status, &b.FilePath, &b.FileSize,
		&b.BackupDuration, &b.Checksum, &b.ErrorMessage, &b.Metadata, &b.CancelRequestedAt,
		&b.CreatedAt, &b.CompletedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}
	return &b, nil
}

// Create inserts a new job in pending state. ID and timestamps are filled in.
func (s *BackupJobService) Create(ctx context.Context, job *model.BackupJob) error {
	now := s.now()
	if job.ID == "" {
		job.ID = platform.NewID()
	}
	job.Status = model.StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now
	job.CompletedAt = nil
	job.ErrorMessage = nil
	if job.Metadata == nil {
		job.Metadata = map[string]any{}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO backup_jobs (id, tenant_id, job_type, status, file_size, backup_duration, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.TenantID, job.JobType, job.Status, job.FileSize, job.BackupDuration,
		job.Metadata, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert backup job: %w", err)
	}
	return nil
}

func (s *BackupJobService) GetByID(ctx context.Context, id string) (*model.BackupJob, error) {
	job, err := scanBackupJob(s.db.QueryRow(ctx,
		`SELECT `+backupJobColumns+` FROM backup_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "backup job", id)
	}
	return job, nil
}

// ListByTenant returns the tenant's jobs, newest first.
func (s *BackupJobService) ListByTenant(ctx context.Context, tenantID string, filters BackupJobFilters, limit int, cursor string) ([]model.BackupJob, bool, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argN := 2

	if filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argN))
		args = append(args, filters.Status)
		argN++
	}
	if filters.JobType != "" {
		conditions = append(conditions, fmt.Sprintf("job_type = $%d", argN))
		args = append(args, filters.JobType)
		argN++
	}
	if cursor != "" {
		conditions = append(conditions, fmt.Sprintf("created_at < (SELECT created_at FROM backup_jobs WHERE id = $%d)", argN))
		args = append(args, cursor)
		argN++
	}

	query := `SELECT ` + backupJobColumns + ` FROM backup_jobs WHERE ` + strings.Join(conditions, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argN)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list backup jobs for tenant %s: %w", tenantID, err)
	}
	defer rows.Close()

	var jobs []model.BackupJob
	for rows.Next() {
		job, err := scanBackupJob(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan backup job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate backup jobs: %w", err)
	}

	hasMore := len(jobs) > limit
	if hasMore {
		jobs = jobs[:limit]
	}
	return jobs, hasMore, nil
}

// MarkRunning applies the executor acknowledgement: pending -> running.
func (s *BackupJobService) MarkRunning(ctx context.Context, id string) (*model.BackupJob, error) {
	job, err := scanBackupJob(s.db.QueryRow(ctx,
		`UPDATE backup_jobs SET status = $1, updated_at = $2
		 WHERE id = $3 AND status = $4
		 RETURNING `+backupJobColumns,
		model.StatusRunning, s.now(), id, model.StatusPending))
	if err != nil {
		return nil, s.transitionError(ctx, err, id, model.StatusRunning)
	}
	return job, nil
}

// MarkCompleted records a successful executor result: running -> completed.
func (s *BackupJobService) MarkCompleted(ctx context.Context, id string, result model.BackupResult) (*model.BackupJob, error) {
	if result.FileSize < 0 || result.Duration < 0 {
		return nil, validationErrorf("file size and duration must not be negative")
	}
	now := s.now()
	job, err := scanBackupJob(s.db.QueryRow(ctx,
		`UPDATE backup_jobs SET status = $1, file_path = $2, file_size = $3, backup_duration = $4,
		        checksum = $5, completed_at = $6, updated_at = $6
		 WHERE id = $7 AND status = $8
		 RETURNING `+backupJobColumns,
		model.StatusCompleted, nullableString(result.FilePath), result.FileSize, result.Duration,
		nullableString(result.Checksum), now, id, model.StatusRunning))
	if err != nil {
		return nil, s.transitionError(ctx, err, id, model.StatusCompleted)
	}
	return job, nil
}

// MarkFailed records an executor failure from pending or running.
func (s *BackupJobService) MarkFailed(ctx context.Context, id, message string) (*model.BackupJob, error) {
	if message == "" {
		message = "backup failed"
	}
	now := s.now()
	job, err := scanBackupJob(s.db.QueryRow(ctx,
		`UPDATE backup_jobs SET status = $1, error_message = $2, completed_at = $3, updated_at = $3
		 WHERE id = $4 AND status IN ($5, $6)
		 RETURNING `+backupJobColumns,
		model.StatusFailed, message, now, id, model.StatusPending, model.StatusRunning))
	if err != nil {
		return nil, s.transitionError(ctx, err, id, model.StatusFailed)
	}
	return job, nil
}

// MarkCancelled applies the executor's confirmation of a cancel request.
func (s *BackupJobService) MarkCancelled(ctx context.Context, id string) (*model.BackupJob, error) {
	now := s.now()
	job, err := scanBackupJob(s.db.QueryRow(ctx,
		`UPDATE backup_jobs SET status = $1, completed_at = $2, updated_at = $2
		 WHERE id = $3 AND status IN ($4, $5)
		 RETURNING `+backupJobColumns,
		model.StatusCancelled, now, id, model.StatusPending, model.StatusRunning))
	if err != nil {
		return nil, s.transitionError(ctx, err, id, model.StatusCancelled)
	}
	return job, nil
}

// RequestCancel records cancellation intent. The status does not change
// until the executor confirms.
func (s *BackupJobService) RequestCancel(ctx context.Context, id string) (*model.BackupJob, error) {
	now := s.now()
	job, err := scanBackupJob(s.db.QueryRow(ctx,
		`UPDATE backup_jobs SET cancel_requested_at = COALESCE(cancel_requested_at, $1), updated_at = $1
		 WHERE id = $2 AND status IN ($3, $4)
		 RETURNING `+backupJobColumns,
		now, id, model.StatusPending, model.StatusRunning))
	if err != nil {
		return nil, s.transitionError(ctx, err, id, model.StatusCancelled)
	}
	return job, nil
}

// MergeMetadata merges fields into the job's metadata without touching status.
func (s *BackupJobService) MergeMetadata(ctx context.Context, id string, fields map[string]any) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE backup_jobs SET metadata = metadata || $1::jsonb, updated_at = $2 WHERE id = $3`,
		fields, s.now(), id,
	)
	if err != nil {
		return fmt.Errorf("update backup job %s metadata: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notFoundErrorf("backup job %s", id)
	}
	return nil
}

// Delete removes the job and appends the backup_deleted security log in one
// statement, so a deletion is never recorded without its audit entry.
func (s *BackupJobService) Delete(ctx context.Context, tenantID, id string, actor model.Actor) (*model.SecurityLog, error) {
	log, err := scanSecurityLog(s.db.QueryRow(ctx,
		`WITH deleted AS (
			DELETE FROM backup_jobs WHERE id = $1 AND tenant_id = $2
			RETURNING id, job_type, status, file_path, file_size
		)
		INSERT INTO security_logs (id, tenant_id, event_type, severity, user_id, ip_address, user_agent,
		                           description, metadata, resolved, created_at)
		SELECT $3::text, $2::text, $4::text, $5::text, $6::text, $7::text, $8::text,
		       'Backup ' || deleted.id || ' deleted',
		       jsonb_build_object('backup_id', deleted.id, 'job_type', deleted.job_type,
		                          'status', deleted.status, 'file_path', deleted.file_path,
		                          'file_size', deleted.file_size),
		       false, $9::timestamptz
		FROM deleted
		RETURNING `+securityLogColumns,
		id, tenantID, platform.NewID(), model.EventBackupDeleted, model.SeverityMedium,
		nullableString(actor.UserID), nullableString(actor.IPAddress), nullableString(actor.UserAgent),
		s.now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFoundErrorf("backup job %s", id)
		}
		return nil, fmt.Errorf("delete backup job %s: %w", id, err)
	}
	return log, nil
}

// FailStale fails pending or running jobs created before cutoff. It returns
// the ids that were failed.
func (s *BackupJobService) FailStale(ctx context.Context, cutoff time.Time, message string) ([]string, error) {
	now := s.now()
	rows, err := s.db.Query(ctx,
		`UPDATE backup_jobs SET status = $1, error_message = $2, completed_at = $3, updated_at = $3
		 WHERE status IN ($4, $5) AND created_at < $6
		 RETURNING id`,
		model.StatusFailed, message, now, model.StatusPending, model.StatusRunning, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("fail stale backup jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return ids, fmt.Errorf("scan stale job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return ids, fmt.Errorf("iterate stale jobs: %w", err)
	}
	return ids, nil
}

// transitionError explains why a conditional status update matched no row:
// either the job does not exist or it is in a state the transition does not
// leave from.
func (s *BackupJobService) transitionError(ctx context.Context, err error, id, to string) error {
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("set backup job %s status to %s: %w", id, to, err)
	}
	var status string
	if err := s.db.QueryRow(ctx, "SELECT status FROM backup_jobs WHERE id = $1", id).Scan(&status); err != nil {
		return notFoundOr(err, "backup job", id)
	}
	return preconditionErrorf("backup job %s cannot move from %s to %s", id, status, to)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
