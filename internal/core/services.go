package core

import (
	"time"

	"github.com/rs/zerolog"
)

// Dependencies are the external collaborators of the services. Artifacts and
// Alerter may be nil.
type Dependencies struct {
	Executor  BackupExecutor
	Scanner   SecurityScanner
	Artifacts ArtifactStore
	Alerter   Alerter
}

// Options tunes the services. Zero values fall back to the defaults.
type Options struct {
	Backup         BackupOrchestratorConfig
	ScannerTimeout time.Duration
	StatsJobWindow int
	Defaults       SettingsDefaults
}

type Services struct {
	BackupJob   *BackupJobService
	SecurityLog *SecurityLogService
	Settings    *SettingsService
	Statistics  *StatisticsService
	Backup      *BackupOrchestrator
	Security    *SecurityOrchestrator
}

func NewServices(db DB, deps Dependencies, opts Options, logger zerolog.Logger) *Services {
	jobs := NewBackupJobService(db)
	logs := NewSecurityLogService(db)
	settings := NewSettingsService(db, opts.Defaults)
	stats := NewStatisticsService(db, settings, opts.StatsJobWindow, logger)

	return &Services{
		BackupJob:   jobs,
		SecurityLog: logs,
		Settings:    settings,
		Statistics:  stats,
		Backup:      NewBackupOrchestrator(jobs, logs, settings, deps.Executor, deps.Artifacts, opts.Backup, logger),
		Security:    NewSecurityOrchestrator(logs, settings, stats, deps.Scanner, deps.Alerter, opts.ScannerTimeout, logger),
	}
}
