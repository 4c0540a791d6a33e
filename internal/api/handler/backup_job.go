package handler

import (
	"net/http"
	"strconv"

	"github.com/edvin/safehouse/internal/api/middleware"
	"github.com/edvin/safehouse/internal/api/request"
	"github.com/edvin/safehouse/internal/api/response"
	"github.com/edvin/safehouse/internal/core"
)

type BackupJob struct {
	svc *core.BackupOrchestrator
}

func NewBackupJob(svc *core.BackupOrchestrator) *BackupJob {
	return &BackupJob{svc: svc}
}

func (h *BackupJob) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	pg := request.ParsePagination(r)
	jobs, hasMore, err := h.svc.List(r.Context(), tenantID, request.ParseBackupJobFilters(r), pg.Limit, pg.Cursor)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	var nextCursor string
	if hasMore && len(jobs) > 0 {
		nextCursor = jobs[len(jobs)-1].ID
	}
	response.WritePaginated(w, http.StatusOK, jobs, nextCursor, hasMore)
}

func (h *BackupJob) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	var req request.CreateBackupJob
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.Create(r.Context(), tenantID, req.Type)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, job)
}

// Emergency returns the archive itself; the job id and checksum travel in headers.
func (h *BackupJob) Emergency(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	pkg, err := h.svc.Emergency(r.Context(), tenantID)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}

	w.Header().Set("X-Backup-Job-ID", pkg.JobID)
	w.Header().Set("X-Checksum-SHA256", pkg.Checksum)
	w.Header().Set("X-Mirrored", strconv.FormatBool(pkg.Mirrored))
	response.WriteAttachment(w, pkg.Filename, "application/zip", pkg.Data)
}

func (h *BackupJob) Upload(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}

	file, err := request.ReadUpload(w, r, h.svc.UploadMaxBytes())
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.Upload(r.Context(), tenantID, file)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, job)
}

func (h *BackupJob) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.Get(r.Context(), tenantID, id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, job)
}

// Delete returns the security log entry written for the deletion.
func (h *BackupJob) Delete(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}

	confirmed, err := request.DecodeConfirm(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.svc.Delete(r.Context(), tenantID, id, confirmed, middleware.ActorFromRequest(r))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, entry)
}

func (h *BackupJob) Test(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Test(r.Context(), tenantID, id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

func (h *BackupJob) Restore(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}

	confirmed, err := request.DecodeConfirm(r)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Restore(r.Context(), tenantID, id, confirmed, middleware.ActorFromRequest(r))
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, result)
}

func (h *BackupJob) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.Cancel(r.Context(), tenantID, id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, job)
}

func (h *BackupJob) Retry(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.Retry(r.Context(), tenantID, id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, job)
}

func (h *BackupJob) Download(w http.ResponseWriter, r *http.Request) {
	tenantID, id, ok := tenantAndID(w, r)
	if !ok {
		return
	}

	artifact, err := h.svc.Download(r.Context(), tenantID, id)
	if err != nil {
		response.WriteServiceError(w, r, err)
		return
	}
	if artifact.Manifest {
		w.Header().Set("X-Backup-Manifest", "true")
	}
	response.WriteAttachment(w, artifact.Filename, artifact.ContentType, artifact.Data)
}
