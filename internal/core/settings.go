package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/edvin/safehouse/internal/model"
)

var (
	settingsValidate = validator.New(validator.WithRequiredStructEnabled())
	scheduleParser   = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
)

func init() {
	settingsValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Schedules used for the fixed frequencies. Backups run at 02:00.
const (
	dailySchedule  = "0 2 * * *"
	weeklySchedule = "0 2 * * 0"
)

// SettingsDefaults are the documents a tenant without stored settings gets.
type SettingsDefaults struct {
	Backup   model.BackupSettings   `yaml:"backup"`
	Security model.SecuritySettings `yaml:"security"`
}

// LoadSettingsDefaults reads a YAML defaults file. Keys missing from the file
// keep the built-in defaults. An empty path returns the built-in defaults.
func LoadSettingsDefaults(path string) (SettingsDefaults, error) {
	defaults := SettingsDefaults{
		Backup:   model.DefaultBackupSettings(),
		Security: model.DefaultSecuritySettings(),
	}
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, fmt.Errorf("read settings defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return defaults, fmt.Errorf("parse settings defaults %s: %w", path, err)
	}
	if err := validateBackupSettings(&defaults.Backup); err != nil {
		return defaults, fmt.Errorf("settings defaults %s: %w", path, err)
	}
	if err := validateSecuritySettings(&defaults.Security); err != nil {
		return defaults, fmt.Errorf("settings defaults %s: %w", path, err)
	}
	return defaults, nil
}

// SettingsService stores the per-tenant backup and security settings as
// versioned JSONB documents. Saves replace the whole document; the last
// writer wins.
type SettingsService struct {
	db       DB
	defaults SettingsDefaults
	now      func() time.Time
}

// NewSettingsService creates a SettingsService. A zero-valued document in
// defaults is replaced by the built-in defaults.
func NewSettingsService(db DB, defaults SettingsDefaults) *SettingsService {
	if defaults.Backup.Version == 0 {
		defaults.Backup = model.DefaultBackupSettings()
	}
	if defaults.Security.Version == 0 {
		defaults.Security = model.DefaultSecuritySettings()
	}
	return &SettingsService{db: db, defaults: defaults, now: time.Now}
}

// GetBackup returns the tenant's backup settings, or the defaults when none
// were saved yet. last_backup_at is the completion time of the tenant's
// newest completed job.
func (s *SettingsService) GetBackup(ctx context.Context, tenantID string) (*model.BackupSettings, error) {
	settings := s.defaults.Backup
	settings.StorageLocations = slices.Clone(settings.StorageLocations)

	var lastBackupAt *time.Time
	row := s.db.QueryRow(ctx,
		`SELECT COALESCE(s.version, 0), s.document, j.last_backup_at
		 FROM (SELECT max(completed_at) AS last_backup_at FROM backup_jobs
		       WHERE tenant_id = $1 AND status = '`+model.StatusCompleted+`') j
		 LEFT JOIN backup_settings s ON s.tenant_id = $1`, tenantID)
	if _, err := decodeDocument(row, "backup_settings", tenantID, &settings, &lastBackupAt); err != nil {
		return nil, err
	}
	settings.LastBackupAt = lastBackupAt
	// The stored value goes stale once the run passes.
	settings.NextBackupAt = nextBackupAt(settings, s.now())
	return &settings, nil
}

// SaveBackup validates and stores the tenant's backup settings. Storage
// locations are deduplicated and next_backup_at is recomputed.
// last_backup_at is derived from the job registry and never stored.
func (s *SettingsService) SaveBackup(ctx context.Context, tenantID string, settings model.BackupSettings) (*model.BackupSettings, error) {
	if err := validateBackupSettings(&settings); err != nil {
		return nil, err
	}
	settings.LastBackupAt = nil
	settings.NextBackupAt = nextBackupAt(settings, s.now())

	if _, err := s.writeDocument(ctx, "backup_settings", tenantID, settings.Version, settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// GetSecurity returns the tenant's security settings, or the defaults.
func (s *SettingsService) GetSecurity(ctx context.Context, tenantID string) (*model.SecuritySettings, error) {
	settings := s.defaults.Security
	if _, err := s.readDocument(ctx, "security_settings", tenantID, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// SaveSecurity validates and stores the tenant's security settings. It also
// returns the settings that were replaced (the defaults if none were stored).
func (s *SettingsService) SaveSecurity(ctx context.Context, tenantID string, settings model.SecuritySettings) (saved, previous *model.SecuritySettings, err error) {
	if err := validateSecuritySettings(&settings); err != nil {
		return nil, nil, err
	}

	prevDoc, err := s.writeDocument(ctx, "security_settings", tenantID, settings.Version, settings)
	if err != nil {
		return nil, nil, err
	}

	prev := s.defaults.Security
	if prevDoc != nil {
		if err := json.Unmarshal(prevDoc, &prev); err != nil {
			return nil, nil, fmt.Errorf("decode previous security settings: %w", err)
		}
	}
	return &settings, &prev, nil
}

// readDocument decodes the stored document over dst. It reports false when
// the tenant has no row.
func (s *SettingsService) readDocument(ctx context.Context, table, tenantID string, dst any) (bool, error) {
	row := s.db.QueryRow(ctx, `SELECT version, document FROM `+table+` WHERE tenant_id = $1`, tenantID)
	return decodeDocument(row, table, tenantID, dst)
}

// decodeDocument scans a (version, document, extra...) row. A missing row or
// a NULL document leaves dst untouched and reports false.
func decodeDocument(row pgx.Row, table, tenantID string, dst any, extra ...any) (bool, error) {
	var version int
	var doc []byte
	err := row.Scan(append([]any{&version, &doc}, extra...)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s for tenant %s: %w", table, tenantID, err)
	}
	if doc == nil {
		return false, nil
	}
	if version != model.SettingsVersion {
		return false, fmt.Errorf("%s for tenant %s has unsupported version %d", table, tenantID, version)
	}
	if err := json.Unmarshal(doc, dst); err != nil {
		return false, fmt.Errorf("decode %s for tenant %s: %w", table, tenantID, err)
	}
	return true, nil
}

// writeDocument upserts the document and returns the one it replaced, or nil.
func (s *SettingsService) writeDocument(ctx context.Context, table, tenantID string, version int, v any) ([]byte, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", table, err)
	}

	var previous []byte
	err = s.db.QueryRow(ctx,
		`WITH prev AS (SELECT document FROM `+table+` WHERE tenant_id = $1)
		 INSERT INTO `+table+` (tenant_id, version, document, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id) DO UPDATE
		   SET version = EXCLUDED.version, document = EXCLUDED.document, updated_at = EXCLUDED.updated_at
		 RETURNING (SELECT document FROM prev)`,
		tenantID, version, doc, s.now(),
	).Scan(&previous)
	if err != nil {
		return nil, fmt.Errorf("save %s for tenant %s: %w", table, tenantID, err)
	}
	return previous, nil
}

func validateBackupSettings(s *model.BackupSettings) error {
	s.CustomSchedule = strings.TrimSpace(s.CustomSchedule)
	if err := settingsValidate.Struct(s); err != nil {
		return validationErrorf("backup settings: %s", describeValidation(err))
	}
	if s.Frequency == model.FrequencyCustom {
		if len(strings.Fields(s.CustomSchedule)) != 5 {
			return validationErrorf("custom_schedule must have 5 fields")
		}
		if _, err := scheduleParser.Parse(s.CustomSchedule); err != nil {
			return validationErrorf("custom_schedule: %s", err)
		}
	}
	if s.VersioningEnabled && s.MaxVersions < 1 {
		return validationErrorf("max_versions must be at least 1 when versioning is enabled")
	}

	slices.Sort(s.StorageLocations)
	s.StorageLocations = slices.Compact(s.StorageLocations)
	return nil
}

func validateSecuritySettings(s *model.SecuritySettings) error {
	s.AlertEmail = strings.TrimSpace(s.AlertEmail)
	s.AlertSMS = strings.TrimSpace(s.AlertSMS)
	if err := settingsValidate.Struct(s); err != nil {
		return validationErrorf("security settings: %s", describeValidation(err))
	}
	return nil
}

// describeValidation flattens validator errors into "field: rule" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, ", ")
}

// scheduleFor returns the cron expression a backup frequency runs on.
func scheduleFor(s model.BackupSettings) string {
	switch s.Frequency {
	case model.FrequencyWeekly:
		return weeklySchedule
	case model.FrequencyCustom:
		return s.CustomSchedule
	default:
		return dailySchedule
	}
}

// nextBackupAt returns the next scheduled run after now, or nil when backups
// are disabled or the schedule does not parse.
func nextBackupAt(s model.BackupSettings, now time.Time) *time.Time {
	if !s.Enabled {
		return nil
	}
	sched, err := scheduleParser.Parse(scheduleFor(s))
	if err != nil {
		return nil
	}
	next := sched.Next(now)
	if next.IsZero() {
		return nil
	}
	return &next
}
