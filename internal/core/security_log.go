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

const securityLogColumns = `id, tenant_id, event_type, severity, user_id, ip_address, user_agent,
	description, metadata, resolved, resolved_by, resolved_at, created_at`

// SecurityLogService is the append-mostly security event log. Entries are
// never deleted; the only mutation is the one-way resolve transition.
type SecurityLogService struct {
	db  DB
	now func() time.Time
}

func NewSecurityLogService(db DB) *SecurityLogService {
	return &SecurityLogService{db: db, now: time.Now}
}

func scanSecurityLog(row rowScanner) (*model.SecurityLog, error) {
	var l model.SecurityLog
	err := row.Scan(&l.ID, &l.TenantID, &l.EventType, &l.Severity, &l.UserID, &l.IPAddress,
		&l.UserAgent, &l.Description, &l.Metadata, &l.Resolved, &l.ResolvedBy, &l.ResolvedAt,
		&l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if l.Metadata == nil {
		l.Metadata = map[string]any{}
	}
	return &l, nil
}

// Append writes a new, unresolved log entry.
func (s *SecurityLogService) Append(ctx context.Context, log *model.SecurityLog) error {
	if !model.IsValidSeverity(log.Severity) {
		return validationErrorf("unknown severity %q", log.Severity)
	}
	if log.EventType == "" {
		return validationErrorf("event type is required")
	}

	log.ID = platform.NewID()
	log.CreatedAt = s.now()
	log.Resolved = false
	log.ResolvedAt = nil
	log.ResolvedBy = nil
	if log.Metadata == nil {
		log.Metadata = map[string]any{}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO security_logs (id, tenant_id, event_type, severity, user_id, ip_address, user_agent,
		                            description, metadata, resolved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10)`,
		log.ID, log.TenantID, log.EventType, log.Severity, log.UserID, log.IPAddress, log.UserAgent,
		log.Description, log.Metadata, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append security log: %w", err)
	}
	return nil
}

// GetByID returns a tenant's log entry.
func (s *SecurityLogService) GetByID(ctx context.Context, tenantID, id string) (*model.SecurityLog, error) {
	log, err := scanSecurityLog(s.db.QueryRow(ctx,
		`SELECT `+securityLogColumns+` FROM security_logs WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if err != nil {
		return nil, notFoundOr(err, "security log", id)
	}
	return log, nil
}

// List returns a tenant's log entries, newest first.
func (s *SecurityLogService) List(ctx context.Context, tenantID string, filters model.SecurityLogFilters, limit int, cursor string) ([]model.SecurityLog, bool, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	conditions := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argN := 2

	if filters.Severity != "" {
		conditions = append(conditions, fmt.Sprintf("severity = $%d", argN))
		args = append(args, filters.Severity)
		argN++
	}
	if filters.EventType != "" {
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", argN))
		args = append(args, filters.EventType)
		argN++
	}
	if filters.Resolved != nil {
		conditions = append(conditions, fmt.Sprintf("resolved = $%d", argN))
		args = append(args, *filters.Resolved)
		argN++
	}
	if cursor != "" {
		conditions = append(conditions, fmt.Sprintf("created_at < (SELECT created_at FROM security_logs WHERE id = $%d)", argN))
		args = append(args, cursor)
		argN++
	}

	query := `SELECT ` + securityLogColumns + ` FROM security_logs WHERE ` + strings.Join(conditions, " AND ") +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argN)
	args = append(args, limit+1)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list security logs: %w", err)
	}
	defer rows.Close()

	var logs []model.SecurityLog
	for rows.Next() {
		log, err := scanSecurityLog(rows)
		if err != nil {
			return nil, false, fmt.Errorf("scan security log: %w", err)
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate security logs: %w", err)
	}

	hasMore := len(logs) > limit
	if hasMore {
		logs = logs[:limit]
	}
	return logs, hasMore, nil
}

// DatabaseNow reads the database clock, which stamps rows written without an
// explicit created_at.
func (s *SecurityLogService) DatabaseNow(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.QueryRow(ctx, "SELECT now()").Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("read database clock: %w", err)
	}
	return now, nil
}

// ListUnresolvedSince returns unresolved entries at or above minSeverity
// created at or after since.
func (s *SecurityLogService) ListUnresolvedSince(ctx context.Context, tenantID, minSeverity string, since time.Time) ([]model.SecurityLog, error) {
	var severities []string
	for _, sev := range []string{model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical} {
		if model.SeverityRank(sev) >= model.SeverityRank(minSeverity) {
			severities = append(severities, sev)
		}
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+securityLogColumns+` FROM security_logs
		 WHERE tenant_id = $1 AND NOT resolved AND severity = ANY($2) AND created_at >= $3
		 ORDER BY created_at DESC`,
		tenantID, severities, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list unresolved security logs: %w", err)
	}
	defer rows.Close()

	var logs []model.SecurityLog
	for rows.Next() {
		log, err := scanSecurityLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan security log: %w", err)
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security logs: %w", err)
	}
	return logs, nil
}

// Resolve marks an entry resolved. resolved_at and resolved_by are written
// once; resolving an already resolved entry returns it unchanged with
// changed=false.
func (s *SecurityLogService) Resolve(ctx context.Context, tenantID, id, resolvedBy string) (log *model.SecurityLog, changed bool, err error) {
	log, err = scanSecurityLog(s.db.QueryRow(ctx,
		`UPDATE security_logs SET resolved = true, resolved_by = $1, resolved_at = $2
		 WHERE id = $3 AND tenant_id = $4 AND NOT resolved
		 RETURNING `+securityLogColumns,
		resolvedBy, s.now(), id, tenantID))
	if err == nil {
		return log, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("resolve security log %s: %w", id, err)
	}

	existing, err := s.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
