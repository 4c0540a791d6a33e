package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/safehouse/internal/model"
)

func allControlsOff() model.SecuritySettings {
	s := model.DefaultSecuritySettings()
	s.SSLEnforcement = false
	s.HTTPSRedirect = false
	s.HSTSEnabled = false
	s.TwoFactorEnabled = false
	s.FirewallEnabled = false
	s.MalwareScanning = false
	s.AutoUpdates = false
	s.DDoSProtection = false
	s.LogMonitoring = false
	s.DataEncryption = false
	s.SecurityAlerts = false
	return s
}

func TestSecurityScore_Bounds(t *testing.T) {
	assert.Equal(t, 0, SecurityScore(allControlsOff()))

	all := model.DefaultSecuritySettings()
	all.TwoFactorEnabled = true
	assert.Equal(t, 100, SecurityScore(all))
}

func TestSecurityScore_Defaults(t *testing.T) {
	// Every scored control except two-factor is on by default.
	assert.Equal(t, 90, SecurityScore(model.DefaultSecuritySettings()))
}

func TestSecurityScore_HSTSIsNotScored(t *testing.T) {
	s := allControlsOff()
	s.HSTSEnabled = true
	assert.Equal(t, 0, SecurityScore(s))
}

func TestSecurityScore_EachControlIsWorthTen(t *testing.T) {
	toggles := []func(s *model.SecuritySettings){
		func(s *model.SecuritySettings) { s.SSLEnforcement = true },
		func(s *model.SecuritySettings) { s.HTTPSRedirect = true },
		func(s *model.SecuritySettings) { s.TwoFactorEnabled = true },
		func(s *model.SecuritySettings) { s.FirewallEnabled = true },
		func(s *model.SecuritySettings) { s.MalwareScanning = true },
		func(s *model.SecuritySettings) { s.AutoUpdates = true },
		func(s *model.SecuritySettings) { s.DDoSProtection = true },
		func(s *model.SecuritySettings) { s.LogMonitoring = true },
		func(s *model.SecuritySettings) { s.DataEncryption = true },
		func(s *model.SecuritySettings) { s.SecurityAlerts = true },
	}

	s := allControlsOff()
	for i, enable := range toggles {
		enable(&s)
		assert.Equal(t, (i+1)*10, SecurityScore(s))
	}
}

func TestSecurityScore_Deterministic(t *testing.T) {
	s := model.DefaultSecuritySettings()
	assert.Equal(t, SecurityScore(s), SecurityScore(s))
}

func TestScoreSecurity_Controls(t *testing.T) {
	report := ScoreSecurity(model.DefaultSecuritySettings())

	require.Len(t, report.Controls, 10)
	assert.Equal(t, 90, report.Score)
	for _, c := range report.Controls {
		if c.Name == "two_factor_enabled" {
			assert.False(t, c.Enabled)
		} else {
			assert.True(t, c.Enabled, c.Name)
		}
	}
}
