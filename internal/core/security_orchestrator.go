package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/safehouse/internal/metrics"
	"github.com/edvin/safehouse/internal/model"
)

// DefaultScannerTimeout bounds a security scan.
const DefaultScannerTimeout = 60 * time.Second

// alertClockSkew widens the alert window for rows the scanner stamps with its
// own clock.
const alertClockSkew = 30 * time.Second

// SecurityOrchestrator runs security scans, resolves events and applies
// security settings changes.
type SecurityOrchestrator struct {
	logs        *SecurityLogService
	settings    *SettingsService
	stats       *StatisticsService
	scanner     SecurityScanner
	alerter     Alerter
	scanTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSecurityOrchestrator creates a SecurityOrchestrator. alerter may be nil
// when no mail transport is configured.
func NewSecurityOrchestrator(logs *SecurityLogService, settings *SettingsService, stats *StatisticsService,
	scanner SecurityScanner, alerter Alerter, scanTimeout time.Duration, logger zerolog.Logger) *SecurityOrchestrator {
	if scanTimeout <= 0 {
		scanTimeout = DefaultScannerTimeout
	}
	return &SecurityOrchestrator{
		logs:        logs,
		settings:    settings,
		stats:       stats,
		scanner:     scanner,
		alerter:     alerter,
		scanTimeout: scanTimeout,
		logger:      logger.With().Str("component", "security-orchestrator").Logger(),
		now:         time.Now,
	}
}

// RunScan triggers the scanner and then re-reads the log and statistics.
// A failed scan is recorded as a security_scan_failed event.
func (o *SecurityOrchestrator) RunScan(ctx context.Context, tenantID string) (*model.ScanResult, error) {
	started := o.now()
	since := o.alertWindowStart(ctx, tenantID)

	scanCtx, cancel := context.WithTimeout(ctx, o.scanTimeout)
	err := o.scanner.Analyze(scanCtx, tenantID)
	cancel()
	metrics.ObserveExecutorCall("scan", started, err)

	if err != nil {
		if appendErr := o.logs.Append(context.WithoutCancel(ctx), &model.SecurityLog{
			TenantID:    tenantID,
			EventType:   model.EventSecurityScanFailed,
			Severity:    model.SeverityMedium,
			Description: "Security scan failed",
			Metadata:    map[string]any{"error": err.Error()},
		}); appendErr != nil {
			o.logger.Error().Err(appendErr).Str("tenant_id", tenantID).Msg("record failed security scan")
		}
		return nil, executorError("scan", err)
	}

	logs, _, err := o.logs.List(ctx, tenantID, model.SecurityLogFilters{}, 0, "")
	if err != nil {
		return nil, err
	}

	return &model.ScanResult{
		Logs:       logs,
		Statistics: o.stats.Compute(ctx, tenantID),
		AlertsSent: o.sendAlerts(ctx, tenantID, since),
	}, nil
}

// alertWindowStart is the earliest created_at a scan's findings can carry.
func (o *SecurityOrchestrator) alertWindowStart(ctx context.Context, tenantID string) time.Time {
	now, err := o.logs.DatabaseNow(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("using local clock for alert window")
		now = o.now()
	}
	return now.Add(-alertClockSkew)
}

// sendAlerts mails unresolved high and critical events raised since the scan
// started. Delivery problems are logged, not returned.
func (o *SecurityOrchestrator) sendAlerts(ctx context.Context, tenantID string, since time.Time) int {
	settings, err := o.settings.GetSecurity(ctx, tenantID)
	if err != nil {
		o.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("load security settings for alerts")
		return 0
	}
	email, sms := settings.AlertEmailTarget(), settings.AlertSMSTarget()
	if email == "" && sms == "" {
		return 0
	}

	events, err := o.logs.ListUnresolvedSince(ctx, tenantID, model.SeverityHigh, since)
	if err != nil {
		o.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("load events for alerts")
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	if sms != "" {
		o.logger.Info().Str("tenant_id", tenantID).Int("events", len(events)).Msg("sms alert skipped: no sms transport")
	}
	if email == "" || o.alerter == nil {
		return 0
	}
	if err := o.alerter.SendSecurityAlert(ctx, email, tenantID, events); err != nil {
		o.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("send security alert")
		return 0
	}
	return 1
}

// Resolve marks a security log resolved by resolver. Resolving an already
// resolved entry returns it unchanged.
func (o *SecurityOrchestrator) Resolve(ctx context.Context, tenantID, id, resolver string) (*model.SecurityLog, error) {
	resolver = strings.TrimSpace(resolver)
	if resolver == "" {
		return nil, validationErrorf("resolver is required")
	}
	log, changed, err := o.logs.Resolve(ctx, tenantID, id, resolver)
	if err != nil {
		return nil, err
	}
	if !changed {
		o.logger.Debug().Str("log_id", id).Msg("security log already resolved")
	}
	return log, nil
}

func (o *SecurityOrchestrator) ListLogs(ctx context.Context, tenantID string, filters model.SecurityLogFilters, limit int, cursor string) ([]model.SecurityLog, bool, error) {
	if filters.Severity != "" && !model.IsValidSeverity(filters.Severity) {
		return nil, false, validationErrorf("unknown severity %q", filters.Severity)
	}
	return o.logs.List(ctx, tenantID, filters, limit, cursor)
}

// Score returns the tenant's posture score and the controls behind it.
func (o *SecurityOrchestrator) Score(ctx context.Context, tenantID string) (*model.ScoreReport, error) {
	settings, err := o.settings.GetSecurity(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	report := ScoreSecurity(*settings)
	return &report, nil
}

// UpdateSettings replaces the tenant's security settings and records the
// change with the score before and after.
func (o *SecurityOrchestrator) UpdateSettings(ctx context.Context, tenantID string, settings model.SecuritySettings, actor model.Actor) (*model.SecuritySettings, error) {
	saved, previous, err := o.settings.SaveSecurity(ctx, tenantID, settings)
	if err != nil {
		return nil, err
	}

	before, after := ScoreSecurity(*previous), ScoreSecurity(*saved)
	var changed []string
	for i, c := range after.Controls {
		if before.Controls[i].Enabled != c.Enabled {
			changed = append(changed, c.Name)
		}
	}

	if err := o.logs.Append(ctx, &model.SecurityLog{
		TenantID:    tenantID,
		EventType:   model.EventSecuritySettingsChanged,
		Severity:    model.SeverityLow,
		UserID:      nullableString(actor.UserID),
		IPAddress:   nullableString(actor.IPAddress),
		UserAgent:   nullableString(actor.UserAgent),
		Description: fmt.Sprintf("Security settings changed, score %d -> %d", before.Score, after.Score),
		Metadata: map[string]any{
			"old_score":        before.Score,
			"new_score":        after.Score,
			"changed_controls": changed,
		},
	}); err != nil {
		return nil, err
	}
	return saved, nil
}

// Statistics returns the tenant's dashboard statistics.
func (o *SecurityOrchestrator) Statistics(ctx context.Context, tenantID string) model.Statistics {
	return o.stats.Compute(ctx, tenantID)
}
