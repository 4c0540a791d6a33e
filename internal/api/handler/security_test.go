package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/safehouse/internal/model"
)

func newTestSecurity() (*Security, *handlerMockDB, *handlerMockExecutor) {
	db := new(handlerMockDB)
	exec := new(handlerMockExecutor)
	return NewSecurity(newTestServices(db, exec).Security), db, exec
}

func TestSecurityListLogs_UnknownSeverity(t *testing.T) {
	h, db, _ := newTestSecurity()

	rec := httptest.NewRecorder()
	h.ListLogs(rec, withTenant(newRequest(http.MethodGet, "/security-logs?severity=apocalyptic", nil), ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	db.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestSecurityListLogs_BadResolvedFilter(t *testing.T) {
	h, _, _ := newTestSecurity()

	rec := httptest.NewRecorder()
	h.ListLogs(rec, withTenant(newRequest(http.MethodGet, "/security-logs?resolved=sometimes", nil), ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "invalid resolved filter")
}

func TestSecurityResolve_RequiresResolver(t *testing.T) {
	h, db, _ := newTestSecurity()

	// No identity and no body leaves the resolver empty.
	rec := httptest.NewRecorder()
	h.Resolve(rec, withTenant(newRequest(http.MethodPost, "/security-logs/"+validID+"/resolve", nil), validID))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeErrorResponse(rec)["error"], "resolver is required")
	db.AssertNotCalled(t, "QueryRow", mock.Anything, mock.Anything, mock.Anything)
}

func TestSecurityScan_ScannerDown(t *testing.T) {
	h, db, exec := newTestSecurity()
	exec.On("Analyze", mock.Anything, testTenant).Return(errors.New("dial tcp: connection refused"))
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	rec := httptest.NewRecorder()
	h.Scan(rec, withTenant(newRequest(http.MethodPost, "/security/scan", nil), ""))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "executor_unavailable", decodeErrorResponse(rec)["kind"])
	db.AssertNumberOfCalls(t, "Exec", 1)
}

func TestSecurityStatistics_DegradesInsteadOfFailing(t *testing.T) {
	h, db, _ := newTestSecurity()
	db.On("QueryRow", mock.Anything, mock.Anything, mock.Anything).Return(errRow{errors.New("db down")})

	rec := httptest.NewRecorder()
	h.Statistics(rec, withTenant(newRequest(http.MethodGet, "/statistics", nil), ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.TotalBackups)
	assert.Zero(t, stats.SecurityScore)
	assert.Equal(t, []string{
		"backup statistics unavailable",
		"security event statistics unavailable",
		"security score unavailable",
	}, stats.Warnings)
}
