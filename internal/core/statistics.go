package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/safehouse/internal/metrics"
	"github.com/edvin/safehouse/internal/model"
)

// DefaultStatsJobWindow is how many of the most recent jobs the backup
// counters are computed over.
const DefaultStatsJobWindow = 100

// StatisticsService derives the dashboard statistics on demand. A failed
// read zeroes its own fields and adds a warning; Compute never fails.
type StatisticsService struct {
	db       DB
	settings *SettingsService
	window   int
	logger   zerolog.Logger
	now      func() time.Time
}

func NewStatisticsService(db DB, settings *SettingsService, window int, logger zerolog.Logger) *StatisticsService {
	if window <= 0 {
		window = DefaultStatsJobWindow
	}
	return &StatisticsService{
		db:       db,
		settings: settings,
		window:   window,
		logger:   logger.With().Str("component", "statistics").Logger(),
		now:      time.Now,
	}
}

// Compute reads backup counters, threat counters and the security score
// concurrently.
func (s *StatisticsService) Compute(ctx context.Context, tenantID string) model.Statistics {
	var stats model.Statistics
	var jobsErr, logsErr, scoreErr error

	var g errgroup.Group
	g.Go(func() error {
		jobsErr = s.db.QueryRow(ctx,
			`SELECT count(*),
			        count(*) FILTER (WHERE status = 'completed'),
			        count(*) FILTER (WHERE status = 'failed'),
			        COALESCE(sum(file_size), 0)::bigint
			 FROM (SELECT status, file_size FROM backup_jobs
			       WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2) recent`,
			tenantID, s.window,
		).Scan(&stats.TotalBackups, &stats.SuccessfulBackups, &stats.FailedBackups, &stats.TotalStorageUsed)
		return nil
	})
	g.Go(func() error {
		logsErr = s.db.QueryRow(ctx,
			`SELECT count(*) FILTER (WHERE severity = 'high'),
			        count(*) FILTER (WHERE severity = 'critical' AND created_at >= $2)
			 FROM security_logs
			 WHERE tenant_id = $1 AND NOT resolved`,
			tenantID, s.now().Add(-24*time.Hour),
		).Scan(&stats.ActiveThreats, &stats.CriticalEvents)
		return nil
	})
	g.Go(func() error {
		settings, err := s.settings.GetSecurity(ctx, tenantID)
		if err != nil {
			scoreErr = err
			return nil
		}
		stats.SecurityScore = SecurityScore(*settings)
		return nil
	})
	_ = g.Wait()

	if jobsErr != nil {
		stats.TotalBackups, stats.SuccessfulBackups, stats.FailedBackups, stats.TotalStorageUsed = 0, 0, 0, 0
		s.degrade(&stats, tenantID, "backups", "backup statistics unavailable", jobsErr)
	}
	if logsErr != nil {
		stats.ActiveThreats, stats.CriticalEvents = 0, 0
		s.degrade(&stats, tenantID, "security_logs", "security event statistics unavailable", logsErr)
	}
	if scoreErr != nil {
		stats.SecurityScore = 0
		s.degrade(&stats, tenantID, "security_score", "security score unavailable", scoreErr)
	}
	return stats
}

func (s *StatisticsService) degrade(stats *model.Statistics, tenantID, part, warning string, err error) {
	stats.Warnings = append(stats.Warnings, warning)
	metrics.StatsDegraded.WithLabelValues(part).Inc()
	s.logger.Warn().Err(err).Str("tenant_id", tenantID).Str("part", part).Msg(warning)
}
