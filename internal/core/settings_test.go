package core

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/safehouse/internal/model"
)

// Sunday, 2026-03-01 12:00 UTC.
var settingsNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSettingsService(db DB) *SettingsService {
	svc := NewSettingsService(db, SettingsDefaults{})
	svc.now = func() time.Time { return settingsNow }
	return svc
}

func documentRow(version int, v any) *mockRow {
	doc, _ := json.Marshal(v)
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = version
		*(dest[1].(*[]byte)) = doc
		return nil
	}}
}

// backupDocumentRow answers the backup settings read, which also carries the
// newest completed job time. A nil v is a tenant without stored settings.
func backupDocumentRow(v any, lastBackupAt *time.Time) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		if v != nil {
			doc, _ := json.Marshal(v)
			*(dest[0].(*int)) = 1
			*(dest[1].(*[]byte)) = doc
		}
		*(dest[2].(**time.Time)) = lastBackupAt
		return nil
	}}
}

func previousRow(v any) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		if v != nil {
			doc, _ := json.Marshal(v)
			*(dest[0].(*[]byte)) = doc
		}
		return nil
	}}
}

// ---------- Defaults ----------

func TestLoadSettingsDefaults_Builtin(t *testing.T) {
	defaults, err := LoadSettingsDefaults("")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultBackupSettings(), defaults.Backup)
	assert.Equal(t, model.DefaultSecuritySettings(), defaults.Security)
}

func TestLoadSettingsDefaults_FileOverridesKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backup:
  frequency: weekly
  retention_days: 90
  storage_locations: [s3, local, s3]
security:
  two_factor_enabled: true
  alert_email: ops@example.com
`), 0o600))

	defaults, err := LoadSettingsDefaults(path)
	require.NoError(t, err)

	assert.Equal(t, model.FrequencyWeekly, defaults.Backup.Frequency)
	assert.Equal(t, 90, defaults.Backup.RetentionDays)
	assert.Equal(t, []string{"local", "s3"}, defaults.Backup.StorageLocations)
	assert.Equal(t, 5, defaults.Backup.MaxVersions, "keys missing from the file keep the built-in default")
	assert.True(t, defaults.Security.TwoFactorEnabled)
	assert.Equal(t, "ops@example.com", defaults.Security.AlertEmail)
	assert.Equal(t, 8, defaults.Security.PasswordMinLength)
}

func TestLoadSettingsDefaults_InvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backup:\n  frequency: custom\n"), 0o600))

	_, err := LoadSettingsDefaults(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLoadSettingsDefaults_MissingFile(t *testing.T) {
	_, err := LoadSettingsDefaults(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read settings defaults")
}

// ---------- Backup settings ----------

func TestSettingsService_GetBackup_DefaultsWhenUnset(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContains("FROM backup_settings"), []any{"tenant-1"}).Return(errRow(pgx.ErrNoRows))

	settings, err := svc.GetBackup(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyDaily, settings.Frequency)
	assert.Equal(t, []string{model.StorageLocal}, settings.StorageLocations)
	require.NotNil(t, settings.NextBackupAt)
	assert.Equal(t, time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC), *settings.NextBackupAt)
	db.AssertExpectations(t)
}

func TestSettingsService_GetBackup_StoredDocument(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	stored := model.DefaultBackupSettings()
	stored.Frequency = model.FrequencyWeekly
	stored.StorageLocations = []string{model.StorageS3}
	db.On("QueryRow", ctx, sqlContains("FROM backup_settings"), mock.Anything).Return(documentRow(1, stored))

	settings, err := svc.GetBackup(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, []string{model.StorageS3}, settings.StorageLocations)
	require.NotNil(t, settings.NextBackupAt)
	assert.Equal(t, time.Date(2026, 3, 8, 2, 0, 0, 0, time.UTC), *settings.NextBackupAt)
}

func TestSettingsService_GetBackup_LastBackupFromJobs(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	completed := settingsNow.Add(-3 * time.Hour)
	stale := settingsNow.Add(-30 * 24 * time.Hour)
	stored := model.DefaultBackupSettings()
	stored.LastBackupAt = &stale
	db.On("QueryRow", ctx, sqlContains("max(completed_at)"), []any{"tenant-1"}).Return(backupDocumentRow(stored, &completed))

	settings, err := svc.GetBackup(ctx, "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, settings.LastBackupAt)
	assert.Equal(t, completed, *settings.LastBackupAt)
}

func TestSettingsService_GetBackup_NoSettingsRowKeepsDefaults(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	completed := settingsNow.Add(-time.Hour)
	db.On("QueryRow", ctx, sqlContains("LEFT JOIN backup_settings"), mock.Anything).Return(backupDocumentRow(nil, &completed))

	settings, err := svc.GetBackup(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, model.FrequencyDaily, settings.Frequency)
	assert.Equal(t, []string{model.StorageLocal}, settings.StorageLocations)
	require.NotNil(t, settings.LastBackupAt)
	assert.Equal(t, completed, *settings.LastBackupAt)
}

func TestSettingsService_GetBackup_UnsupportedVersion(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(documentRow(2, model.DefaultBackupSettings()))

	_, err := svc.GetBackup(ctx, "tenant-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported version 2")
}

func TestSettingsService_GetBackup_DBError(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(errRow(errors.New("db down")))

	_, err := svc.GetBackup(ctx, "tenant-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get backup_settings")
}

func TestSettingsService_SaveBackup_Normalizes(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContains("INSERT INTO backup_settings"), mock.MatchedBy(func(args []any) bool {
		return args[0] == "tenant-1" && args[1] == 1
	})).Return(previousRow(nil))

	in := model.DefaultBackupSettings()
	in.Frequency = model.FrequencyCustom
	in.CustomSchedule = " 30 4 * * 1 "
	in.StorageLocations = []string{"s3", "local", "s3", "remote"}

	saved, err := svc.SaveBackup(ctx, "tenant-1", in)
	require.NoError(t, err)
	assert.Equal(t, "30 4 * * 1", saved.CustomSchedule)
	assert.Equal(t, []string{"local", "remote", "s3"}, saved.StorageLocations)
	require.NotNil(t, saved.NextBackupAt)
	assert.Equal(t, time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC), *saved.NextBackupAt)
	db.AssertExpectations(t)
}

func TestSettingsService_SaveBackup_DoesNotStoreLastBackup(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContains("INSERT INTO backup_settings"), mock.MatchedBy(func(args []any) bool {
		var doc map[string]any
		if err := json.Unmarshal(args[2].([]byte), &doc); err != nil {
			return false
		}
		return doc["last_backup_at"] == nil
	})).Return(previousRow(nil))

	in := model.DefaultBackupSettings()
	forged := settingsNow.Add(time.Hour)
	in.LastBackupAt = &forged

	saved, err := svc.SaveBackup(ctx, "tenant-1", in)
	require.NoError(t, err)
	assert.Nil(t, saved.LastBackupAt)
	db.AssertExpectations(t)
}

func TestSettingsService_SaveBackup_DisabledHasNoNextRun(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(previousRow(nil))

	in := model.DefaultBackupSettings()
	in.Enabled = false
	saved, err := svc.SaveBackup(ctx, "tenant-1", in)
	require.NoError(t, err)
	assert.Nil(t, saved.NextBackupAt)
}

func TestSettingsService_SaveBackup_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *model.BackupSettings)
		want   string
	}{
		{"custom without schedule", func(s *model.BackupSettings) { s.Frequency = model.FrequencyCustom }, "custom_schedule"},
		{"custom with bad cron", func(s *model.BackupSettings) {
			s.Frequency = model.FrequencyCustom
			s.CustomSchedule = "61 * * * *"
		}, "custom_schedule"},
		{"custom with six fields", func(s *model.BackupSettings) {
			s.Frequency = model.FrequencyCustom
			s.CustomSchedule = "0 0 2 * * *"
		}, "5 fields"},
		{"unknown frequency", func(s *model.BackupSettings) { s.Frequency = "hourly" }, "frequency"},
		{"no storage", func(s *model.BackupSettings) { s.StorageLocations = nil }, "storage_locations"},
		{"unknown storage", func(s *model.BackupSettings) { s.StorageLocations = []string{"tape"} }, "storage_locations"},
		{"versioning without versions", func(s *model.BackupSettings) { s.MaxVersions = 0 }, "max_versions"},
		{"retention out of range", func(s *model.BackupSettings) { s.RetentionDays = 0 }, "retention_days"},
		{"wrong version", func(s *model.BackupSettings) { s.Version = 2 }, "version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{}
			svc := newTestSettingsService(db)

			in := model.DefaultBackupSettings()
			tt.mutate(&in)

			_, err := svc.SaveBackup(context.Background(), "tenant-1", in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
			db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSettingsService_SaveBackup_MaxVersionsIgnoredWithoutVersioning(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(previousRow(nil))

	in := model.DefaultBackupSettings()
	in.VersioningEnabled = false
	in.MaxVersions = 0
	_, err := svc.SaveBackup(ctx, "tenant-1", in)
	require.NoError(t, err)
}

// ---------- Security settings ----------

func TestSettingsService_GetSecurity_DefaultsWhenUnset(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContains("FROM security_settings"), mock.Anything).Return(errRow(pgx.ErrNoRows))

	settings, err := svc.GetSecurity(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSecuritySettings(), *settings)
}

func TestSettingsService_SaveSecurity_ReturnsPrevious(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	prev := model.DefaultSecuritySettings()
	prev.FirewallEnabled = false
	db.On("QueryRow", ctx, sqlContains("INSERT INTO security_settings"), mock.Anything).Return(previousRow(prev))

	in := model.DefaultSecuritySettings()
	in.TwoFactorEnabled = true
	saved, previous, err := svc.SaveSecurity(ctx, "tenant-1", in)
	require.NoError(t, err)
	assert.True(t, saved.TwoFactorEnabled)
	assert.False(t, previous.FirewallEnabled)
	db.AssertExpectations(t)
}

func TestSettingsService_SaveSecurity_FirstSaveComparesWithDefaults(t *testing.T) {
	db := &mockDB{}
	svc := newTestSettingsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(previousRow(nil))

	_, previous, err := svc.SaveSecurity(ctx, "tenant-1", model.DefaultSecuritySettings())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSecuritySettings(), *previous)
}

func TestSettingsService_SaveSecurity_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *model.SecuritySettings)
		want   string
	}{
		{"password length zero", func(s *model.SecuritySettings) { s.PasswordMinLength = 0 }, "password_min_length"},
		{"bad alert email", func(s *model.SecuritySettings) { s.AlertEmail = "not-an-email" }, "alert_email"},
		{"bad alert sms", func(s *model.SecuritySettings) { s.AlertSMS = "12345" }, "alert_sms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{}
			svc := newTestSettingsService(db)

			in := model.DefaultSecuritySettings()
			tt.mutate(&in)

			_, _, err := svc.SaveSecurity(context.Background(), "tenant-1", in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSettingsService_AlertTargetsIgnoredWhenAlertsOff(t *testing.T) {
	s := model.DefaultSecuritySettings()
	s.AlertEmail = "ops@example.com"
	s.AlertSMS = "+4712345678"
	s.SecurityAlerts = false

	assert.Empty(t, s.AlertEmailTarget())
	assert.Empty(t, s.AlertSMSTarget())
	assert.Equal(t, "ops@example.com", s.AlertEmail, "destinations are kept")
}
