package core

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"github.com/edvin/safehouse/internal/model"
)

// ---------- Mock DB ----------

// mockDB implements the DB interface for testing.
type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDB) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Rows), args.Error(1)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// sqlContains matches a statement by a fragment of its text.
func sqlContains(fragment string) any {
	return mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, fragment)
	})
}

// ---------- Mock Row ----------

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (m *mockRow) Scan(dest ...any) error {
	return m.scanFunc(dest...)
}

func errRow(err error) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error { return err }}
}

// ---------- Mock Rows ----------

// mockRows implements pgx.Rows for testing.
// It iterates through a list of scan functions, one per row.
type mockRows struct {
	callIndex int
	scanFuncs []func(dest ...any) error
	err       error
}

func newMockRows(scanFuncs ...func(dest ...any) error) *mockRows {
	return &mockRows{scanFuncs: scanFuncs}
}

// newEmptyMockRows returns a mockRows that yields zero rows.
func newEmptyMockRows() *mockRows {
	return &mockRows{}
}

func (m *mockRows) Next() bool {
	return m.callIndex < len(m.scanFuncs)
}

func (m *mockRows) Scan(dest ...any) error {
	if m.callIndex < len(m.scanFuncs) {
		fn := m.scanFuncs[m.callIndex]
		m.callIndex++
		return fn(dest...)
	}
	return nil
}

func (m *mockRows) Err() error                                   { return m.err }
func (m *mockRows) Close()                                       {}
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Values() ([]any, error)                       { return nil, nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

// ---------- Row fixtures ----------

// backupJobScan fills a backup_jobs row in backupJobColumns order.
func backupJobScan(job model.BackupJob) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = job.ID
		*(dest[1].(*string)) = job.TenantID
		*(dest[2].(*string)) = job.JobType
		*(dest[3].(*string)) = job.Status
		*(dest[4].(**string)) = job.FilePath
		*(dest[5].(*int64)) = job.FileSize
		*(dest[6].(*int64)) = job.BackupDuration
		*(dest[7].(**string)) = job.Checksum
		*(dest[8].(**string)) = job.ErrorMessage
		*(dest[9].(*map[string]any)) = job.Metadata
		*(dest[10].(**time.Time)) = job.CancelRequestedAt
		*(dest[11].(*time.Time)) = job.CreatedAt
		*(dest[12].(**time.Time)) = job.CompletedAt
		*(dest[13].(*time.Time)) = job.UpdatedAt
		return nil
	}
}

func backupJobRow(job model.BackupJob) *mockRow {
	return &mockRow{scanFunc: backupJobScan(job)}
}

// securityLogScan fills a security_logs row in securityLogColumns order.
func securityLogScan(l model.SecurityLog) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = l.ID
		*(dest[1].(*string)) = l.TenantID
		*(dest[2].(*string)) = l.EventType
		*(dest[3].(*string)) = l.Severity
		*(dest[4].(**string)) = l.UserID
		*(dest[5].(**string)) = l.IPAddress
		*(dest[6].(**string)) = l.UserAgent
		*(dest[7].(*string)) = l.Description
		*(dest[8].(*map[string]any)) = l.Metadata
		*(dest[9].(*bool)) = l.Resolved
		*(dest[10].(**string)) = l.ResolvedBy
		*(dest[11].(**time.Time)) = l.ResolvedAt
		*(dest[12].(*time.Time)) = l.CreatedAt
		return nil
	}
}

func securityLogRow(l model.SecurityLog) *mockRow {
	return &mockRow{scanFunc: securityLogScan(l)}
}

// statusRow answers the status lookup done after a conditional update missed.
func statusRow(status string) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = status
		return nil
	}}
}

func testJob(id, status string) model.BackupJob {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return model.BackupJob{
		ID:        id,
		TenantID:  "tenant-1",
		JobType:   model.BackupTypeFull,
		Status:    status,
		Metadata:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func strPtr(s string) *string { return &s }

// ---------- Mock collaborators ----------

type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Create(ctx context.Context, req model.ExecutorCreateRequest) (*model.ExecutorCreateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExecutorCreateResponse), args.Error(1)
}

func (m *mockExecutor) CreateEmergency(ctx context.Context, req model.ExecutorCreateRequest) (*model.EmergencyArchive, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EmergencyArchive), args.Error(1)
}

func (m *mockExecutor) Upload(ctx context.Context, jobID, filename string, data []byte) (*model.ExecutorUploadResponse, error) {
	args := m.Called(ctx, jobID, filename, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExecutorUploadResponse), args.Error(1)
}

func (m *mockExecutor) Test(ctx context.Context, backupID string) (bool, error) {
	args := m.Called(ctx, backupID)
	return args.Bool(0), args.Error(1)
}

func (m *mockExecutor) Restore(ctx context.Context, backupID string) (bool, error) {
	args := m.Called(ctx, backupID)
	return args.Bool(0), args.Error(1)
}

func (m *mockExecutor) Download(ctx context.Context, backupID string) (*model.ExecutorArtifact, error) {
	args := m.Called(ctx, backupID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExecutorArtifact), args.Error(1)
}

func (m *mockExecutor) Cancel(ctx context.Context, backupID string) (bool, error) {
	args := m.Called(ctx, backupID)
	return args.Bool(0), args.Error(1)
}

type mockScanner struct {
	mock.Mock
}

func (m *mockScanner) Analyze(ctx context.Context, tenantID string) error {
	return m.Called(ctx, tenantID).Error(0)
}

type mockArtifacts struct {
	mock.Mock
}

func (m *mockArtifacts) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return m.Called(ctx, key, data, contentType).Error(0)
}

func (m *mockArtifacts) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) SendSecurityAlert(ctx context.Context, to, tenantID string, events []model.SecurityLog) error {
	return m.Called(ctx, to, tenantID, events).Error(0)
}
