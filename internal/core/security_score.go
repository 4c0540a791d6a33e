package core

import (
	"math"

	"github.com/edvin/safehouse/internal/model"
)

// scoredControls lists the toggles that count toward the posture score.
// hsts_enabled is a sub-setting of https_redirect and is not scored.
func scoredControls(s model.SecuritySettings) []model.ScoredControl {
	return []model.ScoredControl{
		{Name: "ssl_enforcement", Enabled: s.SSLEnforcement},
		{Name: "https_redirect", Enabled: s.HTTPSRedirect},
		{Name: "two_factor_enabled", Enabled: s.TwoFactorEnabled},
		{Name: "firewall_enabled", Enabled: s.FirewallEnabled},
		{Name: "malware_scanning", Enabled: s.MalwareScanning},
		{Name: "auto_updates", Enabled: s.AutoUpdates},
		{Name: "ddos_protection", Enabled: s.DDoSProtection},
		{Name: "log_monitoring", Enabled: s.LogMonitoring},
		{Name: "data_encryption", Enabled: s.DataEncryption},
		{Name: "security_alerts", Enabled: s.SecurityAlerts},
	}
}

// SecurityScore returns round(100 * enabled / 10) over the scored controls.
func SecurityScore(s model.SecuritySettings) int {
	return ScoreSecurity(s).Score
}

// ScoreSecurity returns the score together with the controls it counted.
func ScoreSecurity(s model.SecuritySettings) model.ScoreReport {
	controls := scoredControls(s)
	enabled := 0
	for _, c := range controls {
		if c.Enabled {
			enabled++
		}
	}
	return model.ScoreReport{
		Score:    int(math.Round(100 * float64(enabled) / float64(len(controls)))),
		Controls: controls,
	}
}
