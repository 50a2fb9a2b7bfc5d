package starlark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

type decimal struct{ s string }

func (d decimal) String() string { return d.s }

func TestGoToStarlark(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantStr string
		wantErr bool
	}{
		{name: "string", input: "hello", wantStr: `"hello"`},
		{name: "int", input: 42, wantStr: "42"},
		{name: "int32", input: int32(7), wantStr: "7"},
		{name: "int64", input: int64(123456789), wantStr: "123456789"},
		{name: "float64", input: 3.14, wantStr: "3.14"},
		{name: "bool", input: true, wantStr: "True"},
		{name: "nil", input: nil, wantStr: "None"},
		{name: "string slice", input: []string{"a", "b"}, wantStr: `["a", "b"]`},
		{name: "any slice", input: []any{"x", 1, true}, wantStr: `["x", 1, True]`},
		{name: "map keys sorted", input: map[string]any{"b": 2, "a": 1}, wantStr: `{"a": 1, "b": 2}`},
		{
			name:    "query rows",
			input:   []map[string]any{{"id": int64(1)}, {"id": int64(2)}},
			wantStr: `[{"id": 1}, {"id": 2}]`,
		},
		{name: "stringer", input: decimal{"12.50"}, wantStr: `"12.50"`},
		{name: "unsupported", input: struct{}{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GoToStarlark(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStr, got.String())
		})
	}
}

func TestToGo(t *testing.T) {
	dict := starlark.NewDict(2)
	require.NoError(t, dict.SetKey(starlark.String("n"), starlark.MakeInt(3)))
	require.NoError(t, dict.SetKey(starlark.String("tags"), starlark.Tuple{starlark.String("a")}))

	tests := []struct {
		name  string
		input starlark.Value
		want  any
	}{
		{"none", starlark.None, nil},
		{"string", starlark.String("s"), "s"},
		{"bytes", starlark.Bytes("raw"), "raw"},
		{"int", starlark.MakeInt(5), int64(5)},
		{"float", starlark.Float(1.5), 1.5},
		{"bool", starlark.False, false},
		{"list", starlark.NewList([]starlark.Value{starlark.MakeInt(1)}), []any{int64(1)}},
		{"dict", dict, map[string]any{"n": int64(3), "tags": []any{"a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToGo(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToGo_NonStringKey(t *testing.T) {
	dict := starlark.NewDict(1)
	require.NoError(t, dict.SetKey(starlark.MakeInt(1), starlark.None))

	_, err := ToGo(dict)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dict key must be string")
}
