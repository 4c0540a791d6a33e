package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/safehouse/internal/api/request"
	"github.com/edvin/safehouse/internal/api/response"
)

// tenantAndID reads the {tenantID} and {id} URL parameters, writing a 400 when
// either is missing.
func tenantAndID(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	tenantID, err := request.RequireID(chi.URLParam(r, "tenantID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return tenantID, id, true
}

func tenantParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, err := request.RequireID(chi.URLParam(r, "tenantID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return tenantID, true
}
