package request

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/edvin/safehouse/internal/core"
	"github.com/edvin/safehouse/internal/model"
)

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Cursor string
}

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ParsePagination extracts limit and cursor from query parameters.
func ParsePagination(r *http.Request) Pagination {
	p := Pagination{
		Limit:  DefaultLimit,
		Cursor: r.URL.Query().Get("cursor"),
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 {
		p.Limit = min(limit, MaxLimit)
	}
	return p
}

// ParseBackupJobFilters reads ?status= and ?type=. Values are checked by the service.
func ParseBackupJobFilters(r *http.Request) core.BackupJobFilters {
	q := r.URL.Query()
	return core.BackupJobFilters{
		Status:  q.Get("status"),
		JobType: q.Get("type"),
	}
}

// ParseSecurityLogFilters reads ?severity=, ?event_type= and ?resolved=.
func ParseSecurityLogFilters(r *http.Request) (model.SecurityLogFilters, error) {
	q := r.URL.Query()
	filters := model.SecurityLogFilters{
		Severity:  q.Get("severity"),
		EventType: q.Get("event_type"),
	}
	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			return filters, fmt.Errorf("invalid resolved filter %q", v)
		}
		filters.Resolved = &resolved
	}
	return filters, nil
}
