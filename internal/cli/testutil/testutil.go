// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapnb/internal/cli/output"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
)

// mockConfig runs the mock kernel without delays.
const mockConfig = `kernel: mock
mock:
  delays:
    connect: 0s
    execute: 0s
    python: 0s
    query: 0s
    error: 0s
    finish: 0s
`

// SetupTestProject creates a temporary directory holding a leapnb.yaml for
// the instant mock kernel and changes into it.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "leapnb.yaml"), []byte(mockConfig), 0o644); err != nil {
		t.Fatalf("failed to create leapnb.yaml: %v", err)
	}
	t.Chdir(tmpDir)
	return tmpDir
}

// SampleCells are the cells WriteNotebook writes.
var SampleCells = []notebook.Cell{
	{Kind: core.Narrative(), Content: "# Users report"},
	{Kind: core.Code(core.LanguagePython), Content: "import pandas as pd\nprint(1)"},
	{Kind: core.Code(core.LanguageSQL), Content: "SELECT * FROM users"},
}

// WriteNotebook saves a notebook with the given cells to dir/name and
// returns its path and cell IDs.
func WriteNotebook(t *testing.T, dir, name string, cells ...notebook.Cell) (string, []string) {
	t.Helper()

	if len(cells) == 0 {
		cells = SampleCells
	}
	doc := notebook.New("Users report")
	ids := make([]string, 0, len(cells))
	for _, c := range cells {
		id, err := doc.InsertCell(c, -1)
		if err != nil {
			t.Fatalf("failed to insert cell: %v", err)
		}
		ids = append(ids, id)
	}

	path := filepath.Join(dir, name)
	if err := notebook.SaveFile(path, doc); err != nil {
		t.Fatalf("failed to save notebook: %v", err)
	}
	return path, ids
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode without a terminal.
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// Reset clears both output buffers.
func (tr *TestRenderer) Reset() {
	tr.Out.Reset()
	tr.ErrOut.Reset()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown checks for unclosed code fences and empty headings.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	if n := strings.Count(md, "```"); n%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", n)
	}
	for i, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
