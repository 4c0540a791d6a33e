package handler

import (
	"net/http"

	"github.com/edvin/safehouse/internal/api/middleware"
	"github.com/edvin/safehouse/internal/api/request"
	"github.com/edvin/safehouse/internal/api/response"
	"github.com/edvin/safehouse/internal/core"
)

type Security struct {
	svc *core.SecurityOrchestrator
}

func NewSecurity(svc *core.SecurityOrchestrator) *Security {
	return &Security{svc: svc}
}

func (h *Security) ListLogs(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	filters, err := request.ParseSecurityLogFilters(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	pg := request.ParsePagination(r)
	logs, hasMore, err := h.svc.ListLogs(r.Context(), tenantID, filters, pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	var nextCursor string
	if hasMore && len(logs) > 0 {
		nextCursor = logs[len(logs)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, logs, nextCursor, hasMore)
}

func (h *Security) Resolve(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}

	var req request.ResolveSecurityLog
	if r.ContentLength != 0 {
		if err := request.Decode(r, &req); err != nil {
			response.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.ResolvedBy == "" {
		req.ResolvedBy = middleware.ActorFromRequest(r).UserID
	}

	entry, err := h.svc.Resolve(r.Context(), tenantID, id, req.ResolvedBy)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, entry)
}

func (h *Security) Scan(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	result, err := h.svc.RunScan(r.Context(), tenantID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

func (h *Security) Score(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	report, err := h.svc.Score(r.Context(), tenantID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, report)
}

// Statistics never fails; degraded parts are listed in "warnings".
func (h *Security) Statistics(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	response.WriteJSON(w, http.StatusOK, h.svc.Statistics(r.Context(), tenantID))
}
