package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_Validate(t *testing.T) {
	tests := []struct {
		name    string
		chunk   Chunk
		wantErr string
	}{
		{name: "status", chunk: Status("Executing...")},
		{name: "stdout", chunk: Stdout("hello\n")},
		{name: "error", chunk: ErrorChunk("boom")},
		{
			name: "table with shared columns",
			chunk: Table([]string{"id", "name"}, []map[string]any{
				{"id": 1, "name": "a"},
				{"id": 2, "name": "b"},
			}),
		},
		{
			name:    "table with missing column",
			chunk:   Table([]string{"id", "name"}, []map[string]any{{"id": 1, "other": "x"}}),
			wantErr: "missing column",
		},
		{
			name:    "table with extra column",
			chunk:   Table([]string{"id"}, []map[string]any{{"id": 1, "name": "x"}}),
			wantErr: "has 2 columns",
		},
		{name: "unknown type", chunk: Chunk{Type: "progress"}, wantErr: "unknown chunk type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chunk.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTable_InfersSortedColumns(t *testing.T) {
	c := Table(nil, []map[string]any{{"email": "a@x", "user_id": "u1"}})
	assert.Equal(t, []string{"email", "user_id"}, c.Columns)
}

func TestChunk_CloneIsolatesRows(t *testing.T) {
	orig := Table([]string{"id"}, []map[string]any{{"id": 1}})
	cp := orig.Clone()
	cp.Rows[0]["id"] = 99
	cp.Columns[0] = "changed"

	assert.Equal(t, 1, orig.Rows[0]["id"])
	assert.Equal(t, "id", orig.Columns[0])
}

func TestChunk_IsTerminal(t *testing.T) {
	assert.True(t, ErrorChunk("x").IsTerminal())
	assert.False(t, Status("x").IsTerminal())
	assert.False(t, Table(nil, nil).IsTerminal())
}

func TestParseCellKind(t *testing.T) {
	tests := []struct {
		in   string
		want CellKind
	}{
		{"markdown", Narrative()},
		{"md", Narrative()},
		{"python", Code(LanguagePython)},
		{"sql", Code(LanguageSQL)},
		{"chart", Visualization()},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCellKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, got.Validate())
		})
	}

	_, err := ParseCellKind("cobol")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "kind", verr.Field)
}

func TestCellKind_Validate(t *testing.T) {
	assert.Error(t, CellKind{Name: KindNarrative, Language: LanguageSQL}.Validate())
	assert.Error(t, CellKind{Name: KindCode}.Validate())
	assert.Error(t, CellKind{Name: "widget"}.Validate())
	assert.True(t, Code(LanguagePython).Executable())
	assert.False(t, Narrative().Executable())
}

func TestErrors(t *testing.T) {
	busy := &CellBusyError{CellID: "c1"}
	assert.ErrorIs(t, busy, ErrCellBusy)

	cause := errors.New("connection refused")
	te := &TransportError{Kernel: "remote", Op: "connect", Err: cause}
	assert.ErrorIs(t, te, cause)
	assert.True(t, IsTransportError(te))
	assert.False(t, IsTransportError(&ExecutionError{Message: "x"}))
	assert.Equal(t, "remote kernel: connect: connection refused", te.Error())

	fe := &FormatError{Path: "a.lnb", Reason: "missing cells"}
	assert.Equal(t, "invalid notebook a.lnb: missing cells", fe.Error())

	snap := CellSnapshot{State: CellFailed, ErrorMessage: "Division by zero."}
	var ee *ExecutionError
	require.ErrorAs(t, snap.Err(), &ee)
	assert.Equal(t, "Division by zero.", ee.Message)
}
