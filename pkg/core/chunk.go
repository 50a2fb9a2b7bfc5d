package core

import (
	"fmt"
	"slices"
	"sort"
)

// =============================================================================
// Language
// =============================================================================

// Language identifies the language an imperative cell is written in.
type Language string

// Supported languages.
const (
	// LanguagePython is the python-like imperative language.
	LanguagePython Language = "python"
	// LanguageSQL is the sql-like query language.
	LanguageSQL Language = "sql"
)

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return l == LanguagePython || l == LanguageSQL
}

// ParseLanguage converts a string to a Language.
// Accepts the canonical names plus a few common aliases.
func ParseLanguage(s string) (Language, error) {
	switch s {
	case "python", "py", "starlark", "python-like":
		return LanguagePython, nil
	case "sql", "sql-like", "query":
		return LanguageSQL, nil
	default:
		return "", &ValidationError{Field: "language", Message: fmt.Sprintf("unsupported language %q (want python or sql)", s)}
	}
}

// =============================================================================
// Execution request
// =============================================================================

// ExecutionRequest is the immutable value handed to a transport.
type ExecutionRequest struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

// =============================================================================
// Chunk
// =============================================================================

// ChunkType discriminates the Chunk tagged union.
type ChunkType string

// Chunk types.
const (
	ChunkStatus ChunkType = "status"
	ChunkStdout ChunkType = "stdout"
	ChunkStderr ChunkType = "stderr"
	ChunkTable  ChunkType = "table"
	ChunkError  ChunkType = "error"
)

// Chunk is one unit of streamed execution output.
//
// Which fields are meaningful depends on Type:
//   - status, error: Message
//   - stdout, stderr: Data
//   - table: Columns and Rows
type Chunk struct {
	Type    ChunkType        `json:"type"`
	Message string           `json:"message,omitempty"`
	Data    string           `json:"data,omitempty"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
}

// ChunkFunc receives chunks in the order a transport produces them.
type ChunkFunc func(Chunk)

// Status creates a status chunk.
func Status(message string) Chunk {
	return Chunk{Type: ChunkStatus, Message: message}
}

// Stdout creates a stdout chunk.
func Stdout(data string) Chunk {
	return Chunk{Type: ChunkStdout, Data: data}
}

// Stderr creates a stderr chunk.
func Stderr(data string) Chunk {
	return Chunk{Type: ChunkStderr, Data: data}
}

// ErrorChunk creates an error chunk.
func ErrorChunk(message string) Chunk {
	return Chunk{Type: ChunkError, Message: message}
}

// Table creates a table chunk. When columns is nil, the column set is taken
// from the first row in sorted order.
func Table(columns []string, rows []map[string]any) Chunk {
	if columns == nil && len(rows) > 0 {
		columns = make([]string, 0, len(rows[0]))
		for k := range rows[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	return Chunk{Type: ChunkTable, Columns: columns, Rows: rows}
}

// IsTerminal reports whether no further chunks are expected after c.
func (c Chunk) IsTerminal() bool {
	return c.Type == ChunkError
}

// Validate checks that the chunk is well formed.
// Table rows must all share the declared column set.
func (c Chunk) Validate() error {
	switch c.Type {
	case ChunkStatus, ChunkStdout, ChunkStderr, ChunkError:
		return nil
	case ChunkTable:
		for i, row := range c.Rows {
			if len(row) != len(c.Columns) {
				return fmt.Errorf("table row %d has %d columns, want %d", i, len(row), len(c.Columns))
			}
			for _, col := range c.Columns {
				if _, ok := row[col]; !ok {
					return fmt.Errorf("table row %d is missing column %q", i, col)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown chunk type %q", c.Type)
	}
}

// Clone returns a deep-enough copy of the chunk: slices and row maps are
// copied so consumers can't mutate a producer's buffers.
func (c Chunk) Clone() Chunk {
	out := c
	out.Columns = slices.Clone(c.Columns)
	if c.Rows != nil {
		out.Rows = make([]map[string]any, len(c.Rows))
		for i, row := range c.Rows {
			cp := make(map[string]any, len(row))
			for k, v := range row {
				cp[k] = v
			}
			out.Rows[i] = cp
		}
	}
	return out
}

// String returns a short human-readable form used in logs.
func (c Chunk) String() string {
	switch c.Type {
	case ChunkStatus, ChunkError:
		return fmt.Sprintf("%s: %s", c.Type, c.Message)
	case ChunkStdout, ChunkStderr:
		return fmt.Sprintf("%s: %q", c.Type, c.Data)
	case ChunkTable:
		return fmt.Sprintf("table: %d rows x %d columns", len(c.Rows), len(c.Columns))
	default:
		return string(c.Type)
	}
}
