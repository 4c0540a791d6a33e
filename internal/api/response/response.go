package response

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/edvin/safehouse/internal/core"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// ErrorBody is the JSON shape of a failed service call.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// StatusFor maps a service error kind to an HTTP status.
func StatusFor(err error) int {
	switch core.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "precondition_failed":
		return http.StatusPreconditionFailed
	case "not_found":
		return http.StatusNotFound
	case "conflict":
		return http.StatusConflict
	case "executor_unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError writes err with the status of its kind. Internal errors
// are logged through the request logger and not echoed to the client.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := ErrorBody{Error: err.Error(), Kind: core.Kind(err)}
	if status == http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Error = "internal error"
	}
	WriteJSON(w, status, body)
}

// WriteAttachment streams data as a file download.
func WriteAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// PaginatedResponse wraps a list with pagination metadata.
type PaginatedResponse struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// WritePaginated writes a paginated JSON response.
func WritePaginated(w http.ResponseWriter, status int, items any, nextCursor string, hasMore bool) {
	WriteJSON(w, status, PaginatedResponse{
		Items:      items,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	})
}
