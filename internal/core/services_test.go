package core

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServices(t *testing.T) {
	db := &mockDB{}

	svcs := NewServices(db, Dependencies{
		Executor: &mockExecutor{},
		Scanner:  &mockScanner{},
	}, Options{}, zerolog.Nop())

	require.NotNil(t, svcs)
	assert.NotNil(t, svcs.BackupJob)
	assert.NotNil(t, svcs.SecurityLog)
	assert.NotNil(t, svcs.Settings)
	assert.NotNil(t, svcs.Statistics)
	assert.NotNil(t, svcs.Backup)
	assert.NotNil(t, svcs.Security)

	assert.Equal(t, DefaultExecutorTimeout, svcs.Backup.cfg.ExecutorTimeout)
	assert.Equal(t, DefaultEmergencyTimeout, svcs.Backup.cfg.EmergencyTimeout)
	assert.Equal(t, int64(DefaultUploadMaxBytes), svcs.Backup.cfg.UploadMaxBytes)
	assert.Equal(t, DefaultScannerTimeout, svcs.Security.scanTimeout)
	assert.Equal(t, DefaultStatsJobWindow, svcs.Statistics.window)
}
