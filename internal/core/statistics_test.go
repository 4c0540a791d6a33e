package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/safehouse/internal/model"
)

func newTestStatisticsService(db DB) *StatisticsService {
	svc := NewStatisticsService(db, newTestSettingsService(db), 0, zerolog.Nop())
	svc.now = func() time.Time { return settingsNow }
	return svc
}

func jobCountsRow(total, ok, failed int, storage int64) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = total
		*(dest[1].(*int)) = ok
		*(dest[2].(*int)) = failed
		*(dest[3].(*int64)) = storage
		return nil
	}}
}

func threatCountsRow(active, critical int) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int)) = active
		*(dest[1].(*int)) = critical
		return nil
	}}
}

func TestStatisticsService_Compute(t *testing.T) {
	db := &mockDB{}
	svc := newTestStatisticsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContains("FROM backup_jobs"), []any{"tenant-1", DefaultStatsJobWindow}).
		Return(jobCountsRow(12, 9, 2, 1<<30))
	db.On("QueryRow", ctx, sqlContains("FROM security_logs"), []any{"tenant-1", settingsNow.Add(-24 * time.Hour)}).
		Return(threatCountsRow(3, 1))
	db.On("QueryRow", ctx, sqlContains("FROM security_settings"), mock.Anything).Return(errRow(pgx.ErrNoRows))

	stats := svc.Compute(ctx, "tenant-1")

	assert.Equal(t, 12, stats.TotalBackups)
	assert.Equal(t, 9, stats.SuccessfulBackups)
	assert.Equal(t, 2, stats.FailedBackups)
	assert.Equal(t, int64(1<<30), stats.TotalStorageUsed)
	assert.Equal(t, 3, stats.ActiveThreats)
	assert.Equal(t, 1, stats.CriticalEvents)
	assert.Equal(t, 90, stats.SecurityScore)
	assert.Empty(t, stats.Warnings)
	assert.False(t, stats.Degraded())
	db.AssertExpectations(t)
}

func TestStatisticsService_Compute_EmptyTenant(t *testing.T) {
	db := &mockDB{}
	svc := newTestStatisticsService(db)
	ctx := context.Background()

	allOff := model.SecuritySettings{
		Version:           model.SettingsVersion,
		PasswordMinLength: 8,
		SessionTimeout:    60,
		MaxLoginAttempts:  5,
	}
	db.On("QueryRow", ctx, sqlContains("FROM backup_jobs"), mock.Anything).Return(jobCountsRow(0, 0, 0, 0))
	db.On("QueryRow", ctx, sqlContains("FROM security_logs"), mock.Anything).Return(threatCountsRow(0, 0))
	db.On("QueryRow", ctx, sqlContains("FROM security_settings"), mock.Anything).Return(documentRow(1, allOff))

	stats := svc.Compute(ctx, "tenant-1")

	assert.Equal(t, model.Statistics{}, stats)
	assert.False(t, stats.Degraded())
	db.AssertExpectations(t)
}

func TestStatisticsService_Compute_JobsFailureDegrades(t *testing.T) {
	db := &mockDB{}
	svc := newTestStatisticsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContains("FROM backup_jobs"), mock.Anything).Return(errRow(errors.New("timeout")))
	db.On("QueryRow", ctx, sqlContains("FROM security_logs"), mock.Anything).Return(threatCountsRow(4, 2))
	db.On("QueryRow", ctx, sqlContains("FROM security_settings"), mock.Anything).Return(errRow(pgx.ErrNoRows))

	stats := svc.Compute(ctx, "tenant-1")

	assert.Zero(t, stats.TotalBackups)
	assert.Zero(t, stats.TotalStorageUsed)
	assert.Equal(t, 4, stats.ActiveThreats)
	assert.Equal(t, 2, stats.CriticalEvents)
	assert.Equal(t, []string{"backup statistics unavailable"}, stats.Warnings)
	assert.True(t, stats.Degraded())
}

func TestStatisticsService_Compute_LogsFailureDegrades(t *testing.T) {
	db := &mockDB{}
	svc := newTestStatisticsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContains("FROM backup_jobs"), mock.Anything).Return(jobCountsRow(1, 1, 0, 10))
	db.On("QueryRow", ctx, sqlContains("FROM security_logs"), mock.Anything).Return(errRow(errors.New("timeout")))
	db.On("QueryRow", ctx, sqlContains("FROM security_settings"), mock.Anything).Return(errRow(pgx.ErrNoRows))

	stats := svc.Compute(ctx, "tenant-1")

	assert.Equal(t, 1, stats.TotalBackups)
	assert.Zero(t, stats.ActiveThreats)
	assert.Zero(t, stats.CriticalEvents)
	assert.Equal(t, []string{"security event statistics unavailable"}, stats.Warnings)
}

func TestStatisticsService_Compute_EverythingFails(t *testing.T) {
	db := &mockDB{}
	svc := newTestStatisticsService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(errRow(errors.New("db down")))

	stats := svc.Compute(ctx, "tenant-1")

	assert.Zero(t, stats.TotalBackups)
	assert.Zero(t, stats.ActiveThreats)
	assert.Zero(t, stats.SecurityScore)
	require.Len(t, stats.Warnings, 3)
	assert.Equal(t, "backup statistics unavailable", stats.Warnings[0])
	assert.Equal(t, "security event statistics unavailable", stats.Warnings[1])
	assert.Equal(t, "security score unavailable", stats.Warnings[2])
}

func TestStatisticsService_CustomWindow(t *testing.T) {
	db := &mockDB{}
	svc := NewStatisticsService(db, newTestSettingsService(db), 25, zerolog.Nop())
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlContains("FROM backup_jobs"), []any{"tenant-1", 25}).Return(jobCountsRow(0, 0, 0, 0))
	db.On("QueryRow", ctx, sqlContains("FROM security_logs"), mock.Anything).Return(threatCountsRow(0, 0))
	db.On("QueryRow", ctx, sqlContains("FROM security_settings"), mock.Anything).Return(errRow(pgx.ErrNoRows))

	stats := svc.Compute(ctx, "tenant-1")
	assert.Empty(t, stats.Warnings)
	db.AssertExpectations(t)
}
