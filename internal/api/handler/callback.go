package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/safehouse/internal/api/request"
	"github.com/edvin/safehouse/internal/api/response"
	"github.com/edvin/safehouse/internal/core"
	"github.com/edvin/safehouse/internal/model"
)

// ExecutorCallback receives job progress events from the backup executor.
type ExecutorCallback struct {
	svc *core.BackupOrchestrator
}

func NewExecutorCallback(svc *core.BackupOrchestrator) *ExecutorCallback {
	return &ExecutorCallback{svc: svc}
}

func (h *ExecutorCallback) Event(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var ev model.ExecutorEvent
	if err := request.Decode(r, &ev); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.HandleExecutorEvent(r.Context(), id, ev)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}
