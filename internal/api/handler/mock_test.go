package handler

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"

	"github.com/edvin/safehouse/internal/core"
	"github.com/edvin/safehouse/internal/model"
)

// handlerMockDB implements core.DB for handler tests.
type handlerMockDB struct {
	mock.Mock
}

func (m *handlerMockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *handlerMockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *handlerMockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// errRow is a pgx.Row whose Scan fails with err.
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

// handlerMockExecutor implements core.BackupExecutor and core.SecurityScanner.
type handlerMockExecutor struct {
	mock.Mock
}

func (m *handlerMockExecutor) Create(ctx context.Context, req model.ExecutorCreateRequest) (*model.ExecutorCreateResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*model.ExecutorCreateResponse)
	return resp, args.Error(1)
}

func (m *handlerMockExecutor) CreateEmergency(ctx context.Context, req model.ExecutorCreateRequest) (*model.EmergencyArchive, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*model.EmergencyArchive)
	return resp, args.Error(1)
}

func (m *handlerMockExecutor) Upload(ctx context.Context, jobID, filename string, data []byte) (*model.ExecutorUploadResponse, error) {
	args := m.Called(ctx, jobID, filename, data)
	resp, _ := args.Get(0).(*model.ExecutorUploadResponse)
	return resp, args.Error(1)
}

func (m *handlerMockExecutor) Test(ctx context.Context, backupID string) (bool, error) {
	args := m.Called(ctx, backupID)
	return args.Bool(0), args.Error(1)
}

func (m *handlerMockExecutor) Restore(ctx context.Context, backupID string) (bool, error) {
	args := m.Called(ctx, backupID)
	return args.Bool(0), args.Error(1)
}

func (m *handlerMockExecutor) Download(ctx context.Context, backupID string) (*model.ExecutorArtifact, error) {
	args := m.Called(ctx, backupID)
	resp, _ := args.Get(0).(*model.ExecutorArtifact)
	return resp, args.Error(1)
}

func (m *handlerMockExecutor) Cancel(ctx context.Context, backupID string) (bool, error) {
	args := m.Called(ctx, backupID)
	return args.Bool(0), args.Error(1)
}

func (m *handlerMockExecutor) Analyze(ctx context.Context, tenantID string) error {
	return m.Called(ctx, tenantID).Error(0)
}

func newTestServices(db *handlerMockDB, exec *handlerMockExecutor) *core.Services {
	return core.NewServices(db, core.Dependencies{Executor: exec, Scanner: exec}, core.Options{
		Backup: core.BackupOrchestratorConfig{UploadMaxBytes: 1024},
	}, zerolog.Nop())
}
