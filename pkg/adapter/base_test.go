package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBase(t *testing.T) (*BaseSQLAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &BaseSQLAdapter{DB: db}, mock
}

func TestBaseSQLAdapter_NotConnected(t *testing.T) {
	ctx := context.Background()
	base := &BaseSQLAdapter{}

	assert.False(t, base.IsConnected())
	assert.Nil(t, base.SQLDB())
	assert.NoError(t, base.Close())

	for name, err := range map[string]error{
		"ping": base.Ping(ctx),
		"exec": base.Exec(ctx, "SELECT 1"),
	} {
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), "database connection not established", name)
	}

	rows, err := base.Query(ctx, "SELECT 1")
	require.Error(t, err)
	assert.Nil(t, rows)
}

func TestBaseSQLAdapter_Ping(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		expectErr bool
	}{
		{
			name:      "alive",
			setupMock: func(mock sqlmock.Sqlmock) { mock.ExpectPing() },
		},
		{
			name:      "gone",
			setupMock: func(mock sqlmock.Sqlmock) { mock.ExpectPing().WillReturnError(errors.New("broken pipe")) },
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, mock := newMockBase(t)
			tt.setupMock(mock)

			err := base.Ping(context.Background())
			if tt.expectErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to ping database")
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBaseSQLAdapter_Exec(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		sql       string
		errMsg    string
	}{
		{
			name: "exec success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("CREATE TABLE users").WillReturnResult(sqlmock.NewResult(0, 0))
			},
			sql: "CREATE TABLE users (id INT)",
		},
		{
			name: "exec with error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INVALID SQL").WillReturnError(assert.AnError)
			},
			sql:    "INVALID SQL",
			errMsg: "failed to execute SQL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, mock := newMockBase(t)
			tt.setupMock(mock)

			err := base.Exec(context.Background(), tt.sql)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCollect(t *testing.T) {
	signup := time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		limit         int
		wantRows      []map[string]any
		wantTruncated bool
	}{
		{
			name:  "all rows",
			limit: 0,
			wantRows: []map[string]any{
				{"user_id": "u001", "email": "alice@example.com", "sign_up_date": "2023-01-15T00:00:00Z"},
				{"user_id": "u002", "email": "bob@example.com", "sign_up_date": "2023-01-15T00:00:00Z"},
			},
		},
		{
			name:  "limited",
			limit: 1,
			wantRows: []map[string]any{
				{"user_id": "u001", "email": "alice@example.com", "sign_up_date": "2023-01-15T00:00:00Z"},
			},
			wantTruncated: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, mock := newMockBase(t)
			mock.ExpectQuery("SELECT").WillReturnRows(
				sqlmock.NewRows([]string{"user_id", "email", "sign_up_date"}).
					AddRow([]byte("u001"), "alice@example.com", signup).
					AddRow("u002", []byte("bob@example.com"), signup),
			)

			rows, err := base.Query(context.Background(), "SELECT * FROM users")
			require.NoError(t, err)

			res, err := Collect(rows, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, []string{"user_id", "email", "sign_up_date"}, res.Columns)
			assert.Equal(t, tt.wantRows, res.Rows)
			assert.Equal(t, tt.wantTruncated, res.Truncated)
		})
	}
}

func TestCollect_EmptyResult(t *testing.T) {
	base, mock := newMockBase(t)
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := base.Query(context.Background(), "SELECT id FROM users WHERE 1=0")
	require.NoError(t, err)

	res, err := Collect(rows, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, res.Columns)
	assert.Empty(t, res.Rows)
	assert.NotNil(t, res.Rows)
}

func TestCollect_RowError(t *testing.T) {
	base, mock := newMockBase(t)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).RowError(1, errors.New("disk full")),
	)

	rows, err := base.Query(context.Background(), "SELECT id FROM t")
	require.NoError(t, err)

	_, err = Collect(rows, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
