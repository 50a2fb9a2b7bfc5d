package sqlkernel

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/leapnb/internal/testutil"
	"github.com/leapstack-labs/leapnb/pkg/adapter"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/leapstack-labs/leapnb/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapnb/pkg/adapters/sqlite"
)

// mockAdapter serves queries from go-sqlmock.
type mockAdapter struct {
	adapter.BaseSQLAdapter
}

func (m *mockAdapter) Connect(context.Context, core.AdapterConfig) error { return nil }
func (m *mockAdapter) DialectName() string                               { return "mockdb" }

func newMockKernel(t *testing.T, maxRows int) (*Kernel, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	k := NewWithAdapter(&mockAdapter{BaseSQLAdapter: adapter.BaseSQLAdapter{DB: db}}, Config{MaxRows: maxRows}, testutil.NewTestLogger(t))
	return k, mock
}

func execute(t *testing.T, k *Kernel, code string) ([]core.Chunk, error) {
	t.Helper()
	var got []core.Chunk
	err := k.Execute(context.Background(), core.ExecutionRequest{Code: code, Language: core.LanguageSQL}, func(c core.Chunk) {
		got = append(got, c)
	})
	return got, err
}

func TestExecute_EmptyCode(t *testing.T) {
	k, _ := newMockKernel(t, 0)
	for _, code := range []string{"", "  ;; ", "-- just a comment"} {
		got, err := execute(t, k, code)
		require.NoError(t, err)
		assert.Equal(t, []core.Chunk{core.Status("Nothing to execute.")}, got, "code %q", code)
	}
}

func TestExecute_Query(t *testing.T) {
	k, mock := newMockKernel(t, 0)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT \\* FROM users").WillReturnRows(
		sqlmock.NewRows([]string{"user_id", "email"}).
			AddRow("u001", "alice@example.com").
			AddRow("u002", "bob@example.com"),
	)

	got, err := execute(t, k, "SELECT * FROM users")
	require.NoError(t, err)

	assert.Equal(t, []core.Chunk{
		core.Status("Connecting to database..."),
		core.Status("Executing 1 statement against mockdb..."),
		core.Table([]string{"user_id", "email"}, []map[string]any{
			{"user_id": "u001", "email": "alice@example.com"},
			{"user_id": "u002", "email": "bob@example.com"},
		}),
		core.Status("Execution finished."),
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_MultipleStatements(t *testing.T) {
	k, mock := newMockKernel(t, 0)
	mock.ExpectPing()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count").WillReturnRows(sqlmock.NewRows([]string{"n"}))

	got, err := execute(t, k, "INSERT INTO users VALUES ('u003', 'c;d', '2024-01-01');\nCREATE INDEX idx ON users(email);\nSELECT count(*) AS n FROM users WHERE 1=0")
	require.NoError(t, err)

	assert.Equal(t, []core.Chunk{
		core.Status("Connecting to database..."),
		core.Status("Executing 3 statements against mockdb..."),
		core.Stdout("OK, 1 row affected\n"),
		core.Stdout("OK\n"),
		core.Stdout("Query returned no results.\n"),
		core.Status("Execution finished."),
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecute_Truncated(t *testing.T) {
	k, mock := newMockKernel(t, 2)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"i"}).AddRow(1).AddRow(2).AddRow(3))

	got, err := execute(t, k, "SELECT i FROM range(3)")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Len(t, got[2].Rows, 2)
	assert.Equal(t, core.Stdout("(showing first 2 rows)\n"), got[3])
}

func TestExecute_QueryErrorIsInBand(t *testing.T) {
	k, mock := newMockKernel(t, 0)
	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT").WillReturnError(errors.New(`Catalog Error: Table with name nope does not exist!`))

	got, err := execute(t, k, "CREATE TABLE t (id INT); SELECT * FROM nope; SELECT 1")
	require.NoError(t, err, "statement errors are reported in-band")

	require.Len(t, got, 4)
	assert.Equal(t, core.Stdout("OK\n"), got[2], "output before the failure is kept")
	assert.Equal(t, core.ChunkError, got[3].Type)
	assert.Contains(t, got[3].Message, "Table with name nope does not exist")
	assert.NoError(t, mock.ExpectationsWereMet(), "statements after the failure are not run")
}

func TestExecute_TransportErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(mock sqlmock.Sqlmock)
		code   string
		wantOp string
	}{
		{
			name:   "ping fails",
			setup:  func(mock sqlmock.Sqlmock) { mock.ExpectPing().WillReturnError(errors.New("connection refused")) },
			code:   "SELECT 1",
			wantOp: "ping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, mock := newMockKernel(t, 0)
			tt.setup(mock)

			got, err := execute(t, k, tt.code)
			require.Error(t, err)

			var terr *core.TransportError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, Name, terr.Kernel)
			assert.Equal(t, tt.wantOp, terr.Op)
			for _, c := range got {
				assert.NotEqual(t, core.ChunkError, c.Type)
			}
		})
	}
}

// brokenConnAdapter loses its connection on every query.
type brokenConnAdapter struct {
	mockAdapter
}

func (b *brokenConnAdapter) Ping(context.Context) error { return nil }

func (b *brokenConnAdapter) Query(context.Context, string) (*core.Rows, error) {
	return nil, fmt.Errorf("failed to execute query: %w", driver.ErrBadConn)
}

func TestExecute_ConnectionLostMidQuery(t *testing.T) {
	k := NewWithAdapter(&brokenConnAdapter{}, Config{}, nil)

	got, err := execute(t, k, "SELECT 1")
	var terr *core.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "query", terr.Op)
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Len(t, got, 2, "only status chunks before the failure")
}

func TestExecute_ConnectFailure(t *testing.T) {
	k := New(core.TargetConfig{Type: "sqlite", Database: "/nonexistent/dir/nb.db"}, Config{}, nil)

	_, err := execute(t, k, "SELECT 1")
	var terr *core.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "connect", terr.Op)
}

// refusingAdapter never connects and counts Close calls.
type refusingAdapter struct {
	mockAdapter
	closed *int
}

func (r *refusingAdapter) Connect(context.Context, core.AdapterConfig) error {
	return errors.New("connection refused")
}

func (r *refusingAdapter) Close() error {
	*r.closed++
	return nil
}

func TestExecute_ConnectFailureClosesAdapter(t *testing.T) {
	var closed int
	adapter.Register("refusing", func(*slog.Logger) adapter.Adapter {
		return &refusingAdapter{closed: &closed}
	})
	k := New(core.TargetConfig{Type: "refusing"}, Config{}, testutil.NewTestLogger(t))

	_, err := execute(t, k, "SELECT 1")
	var terr *core.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "connect", terr.Op)
	assert.Equal(t, 1, closed)
}

func TestExecute_DefaultTargetWithSampleData(t *testing.T) {
	tr, err := kernel.New(Name, kernel.Options{})
	require.NoError(t, err)
	k := tr.(*Kernel)
	defer func() { _ = k.Close() }()

	got, err := execute(t, k, "SELECT user_id, email FROM users ORDER BY user_id")
	require.NoError(t, err)

	require.Len(t, got, 4)
	table := got[2]
	assert.Equal(t, core.ChunkTable, table.Type)
	assert.Equal(t, []string{"user_id", "email"}, table.Columns)
	assert.Equal(t, []map[string]any{
		{"user_id": "u001", "email": "alice@example.com"},
		{"user_id": "u002", "email": "bob@example.com"},
	}, table.Rows)
}

func TestFactory_UnknownAdapter(t *testing.T) {
	_, err := kernel.New(Name, kernel.Options{Target: &core.TargetConfig{Type: "oracle"}})
	var unknown *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknown)
}

func TestClose_Reconnects(t *testing.T) {
	k := New(core.TargetConfig{Type: "sqlite"}, Config{}, nil)
	ctx := context.Background()

	first, err := k.Adapter(ctx)
	require.NoError(t, err)
	require.NoError(t, k.Close())
	require.NoError(t, k.Close(), "close is idempotent")

	second, err := k.Adapter(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	require.NoError(t, k.Close())
}
