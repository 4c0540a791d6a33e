package handler

import (
	"net/http"

	"github.com/edvin/safehouse/internal/api/middleware"
	"github.com/edvin/safehouse/internal/api/request"
	"github.com/edvin/safehouse/internal/api/response"
	"github.com/edvin/safehouse/internal/core"
	"github.com/edvin/safehouse/internal/model"
)

// Settings serves the per-tenant backup and security settings documents.
// A PUT replaces the whole document.
type Settings struct {
	settings *core.SettingsService
	security *core.SecurityOrchestrator
}

func NewSettings(settings *core.SettingsService, security *core.SecurityOrchestrator) *Settings {
	return &Settings{settings: settings, security: security}
}

func (h *Settings) GetBackup(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	settings, err := h.settings.GetBackup(r.Context(), tenantID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, settings)
}

func (h *Settings) UpdateBackup(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	var req model.BackupSettings
	if err := request.DecodeStrict(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.settings.SaveBackup(r.Context(), tenantID, req)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, saved)
}

func (h *Settings) GetSecurity(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	settings, err := h.settings.GetSecurity(r.Context(), tenantID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, settings)
}

// UpdateSecurity goes through the security orchestrator so the change is
// recorded in the security log.
func (h *Settings) UpdateSecurity(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	var req model.SecuritySettings
	if err := request.DecodeStrict(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.security.UpdateSettings(r.Context(), tenantID, req, middleware.ActorFromRequest(r))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, saved)
}
