package mock

import (
	"context"
	"testing"
	"time"

	"github.com/leapstack-labs/leapnb/internal/testutil"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, k *Kernel, req core.ExecutionRequest) []core.Chunk {
	t.Helper()
	var got []core.Chunk
	err := k.Execute(context.Background(), req, func(c core.Chunk) { got = append(got, c) })
	require.NoError(t, err)
	return got
}

func TestExecute_Sequences(t *testing.T) {
	k := New(Delays{}, testutil.NewTestLogger(t))

	tests := []struct {
		name string
		req  core.ExecutionRequest
		want []core.Chunk
	}{
		{
			name: "python with import",
			req:  core.ExecutionRequest{Code: "import pandas as pd", Language: core.LanguagePython},
			want: []core.Chunk{
				core.Status("Connecting to kernel..."),
				core.Status("Executing..."),
				core.Stdout("Module imported successfully.\n"),
				core.Stdout("Running Python script...\n"),
				core.Stdout("Result: 42\n"),
				core.Status("Execution finished."),
			},
		},
		{
			name: "empty python code",
			req:  core.ExecutionRequest{Code: "", Language: core.LanguagePython},
			want: []core.Chunk{
				core.Status("Connecting to kernel..."),
				core.Status("Executing..."),
				core.Stdout("Running Python script...\n"),
				core.Stdout("Result: 42\n"),
				core.Status("Execution finished."),
			},
		},
		{
			name: "sql without users",
			req:  core.ExecutionRequest{Code: "SELECT 1", Language: core.LanguageSQL},
			want: []core.Chunk{
				core.Status("Connecting to kernel..."),
				core.Status("Executing..."),
				core.Stdout("Executing query against database...\n"),
				core.Stdout("Query returned no results.\n"),
				core.Status("Execution finished."),
			},
		},
		{
			name: "python error",
			req:  core.ExecutionRequest{Code: "raise error", Language: core.LanguagePython},
			want: []core.Chunk{
				core.Status("Connecting to kernel..."),
				core.Status("Executing..."),
				core.Stdout("Running Python script...\n"),
				core.Stdout("Result: 42\n"),
				core.ErrorChunk("Simulated runtime error: Division by zero."),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, collect(t, k, tt.req))
		})
	}
}

func TestExecute_UsersTable(t *testing.T) {
	k := New(Delays{}, nil)
	got := collect(t, k, core.ExecutionRequest{Code: "SELECT * FROM users LIMIT 10", Language: core.LanguageSQL})

	require.Len(t, got, 5)
	table := got[3]
	assert.Equal(t, core.ChunkTable, table.Type)
	assert.Equal(t, []string{"user_id", "email", "sign_up_date"}, table.Columns)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "alice@example.com", table.Rows[0]["email"])
	assert.Equal(t, "u002", table.Rows[1]["user_id"])
	assert.Equal(t, core.Status("Execution finished."), got[4])
}

func TestExecute_ErrorChunkIsLast(t *testing.T) {
	k := New(Delays{}, nil)
	got := collect(t, k, core.ExecutionRequest{Code: "SELECT * FROM users -- error", Language: core.LanguageSQL})

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.True(t, last.IsTerminal())
	for _, c := range got[:len(got)-1] {
		assert.NotEqual(t, core.ChunkError, c.Type)
	}
}

func TestExecute_FixtureRowsAreNotShared(t *testing.T) {
	k := New(Delays{}, nil)
	req := core.ExecutionRequest{Code: "select * from users", Language: core.LanguageSQL}

	first := collect(t, k, req)
	first[3].Rows[0]["email"] = "mutated"

	second := collect(t, k, req)
	assert.Equal(t, "alice@example.com", second[3].Rows[0]["email"])
}

func TestExecute_Cancel(t *testing.T) {
	k := New(Delays{Connect: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var got []core.Chunk
	done := make(chan error, 1)
	go func() {
		done <- k.Execute(ctx, core.ExecutionRequest{Code: "x", Language: core.LanguagePython}, func(c core.Chunk) {
			got = append(got, c)
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("mock kernel ignored cancellation")
	}
	assert.Equal(t, []core.Chunk{core.Status("Connecting to kernel...")}, got)
}

func TestRegisteredFactory(t *testing.T) {
	tr, err := kernel.New(Name, kernel.Options{Settings: map[string]any{
		"delays": map[string]any{"connect": "1ms", "execute": "0s", "finish": 0},
	}})
	require.NoError(t, err)

	k, ok := tr.(*Kernel)
	require.True(t, ok)
	assert.Equal(t, time.Millisecond, k.delays.Connect)
	assert.Equal(t, time.Duration(0), k.delays.Execute)
	assert.Equal(t, 1200*time.Millisecond, k.delays.Query, "unset delays keep their defaults")
}
