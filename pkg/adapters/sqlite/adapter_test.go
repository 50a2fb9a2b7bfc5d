package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/leapnb/internal/testutil"
	"github.com/leapstack-labs/leapnb/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  adapter.Config
		want string
	}{
		{"empty path is memory", adapter.Config{}, ":memory:"},
		{"file", adapter.Config{Path: "data.db"}, "data.db"},
		{
			"pragmas",
			adapter.Config{Path: "data.db", Options: map[string]string{"journal_mode": "wal", "busy_timeout": "5000"}},
			"file:data.db?_pragma=busy_timeout%285000%29&_pragma=journal_mode%28wal%29",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildDSN(tt.cfg))
		})
	}
}

func TestAdapter_SeedAndQuery(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"in-memory", func(_ *testing.T) string { return ":memory:" }},
		{"file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nb.db") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			adp := New(testutil.NewTestLogger(t))
			require.NoError(t, adp.Connect(ctx, adapter.Config{Path: tt.path(t)}))
			defer func() { _ = adp.Close() }()

			require.NoError(t, adapter.Seed(ctx, adp))
			require.NoError(t, adapter.Seed(ctx, adp), "seeding twice is a no-op")

			rows, err := adp.Query(ctx, "SELECT user_id, email, sign_up_date FROM users ORDER BY user_id")
			require.NoError(t, err)
			res, err := adapter.Collect(rows, 0)
			require.NoError(t, err)

			require.Len(t, res.Rows, 2)
			assert.Equal(t, "u001", res.Rows[0]["user_id"])
			assert.Equal(t, "bob@example.com", res.Rows[1]["email"])
		})
	}
}

func TestAdapter_Registry(t *testing.T) {
	factory, ok := adapter.Get("sqlite")
	require.True(t, ok)
	assert.Equal(t, "sqlite", factory(nil).DialectName())
}
