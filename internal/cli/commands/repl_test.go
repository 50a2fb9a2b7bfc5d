package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	clitest "github.com/leapstack-labs/leapnb/internal/cli/testutil"
	"github.com/leapstack-labs/leapnb/internal/config"
	"github.com/leapstack-labs/leapnb/internal/testutil"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShell(t *testing.T) (*replShell, *clitest.TestRenderer) {
	t.Helper()

	clitest.SetupTestProject(t)
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	tr := clitest.NewTestRendererText()
	e := env{cfg: cfg, logger: testutil.NewTestLogger(t), r: tr.Renderer}
	s, closeSession, err := e.openSession("")
	require.NoError(t, err)
	t.Cleanup(closeSession)

	st := newStreamer(e.r, s.Cells())
	t.Cleanup(s.Subscribe(st.onEvent))

	return &replShell{e: e, s: s, st: st, lang: core.LanguagePython}, tr
}

func feed(p *replShell, lines ...string) bool {
	for _, line := range lines {
		if p.handleLine(context.Background(), line) {
			return true
		}
	}
	return false
}

func TestReplShell_PythonLine(t *testing.T) {
	p, tr := newTestShell(t)

	assert.Equal(t, "python> ", p.prompt())
	assert.False(t, feed(p, "print('hi')"))

	cells := p.s.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, core.Code(core.LanguagePython), cells[0].Kind)
	assert.Equal(t, "print('hi')\n", cells[0].Content)

	out := tr.Output()
	assert.Contains(t, out, "[1] python "+cells[0].ID)
	assert.Contains(t, out, "Result: 42")
	assert.Contains(t, out, "Completed")
}

func TestReplShell_PythonBlock(t *testing.T) {
	p, _ := newTestShell(t)

	feed(p, "for i in range(3):")
	assert.Equal(t, "   ...> ", p.prompt())
	feed(p, "    print(i)")
	assert.Empty(t, p.s.Cells(), "block is still open")

	feed(p, "")
	require.Len(t, p.s.Cells(), 1)
	assert.Equal(t, "for i in range(3):\n    print(i)\n\n", p.s.Cells()[0].Content)
	assert.Equal(t, "python> ", p.prompt())
}

func TestReplShell_SQLStatement(t *testing.T) {
	p, tr := newTestShell(t)

	feed(p, ".sql", "SELECT *")
	assert.Equal(t, "...> ", p.prompt())
	assert.Empty(t, p.s.Cells())

	feed(p, "FROM users;")
	cells := p.s.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, core.Code(core.LanguageSQL), cells[0].Kind)
	assert.Contains(t, tr.Output(), "alice@example.com")
}

func TestReplShell_FailedCell(t *testing.T) {
	p, tr := newTestShell(t)

	feed(p, "raise error")
	assert.Contains(t, tr.Output(), "Division by zero")

	tr.Reset()
	feed(p, ".status")
	assert.Contains(t, tr.Output(), "Notebook: Error")
}

func TestReplShell_DotCommands(t *testing.T) {
	p, tr := newTestShell(t)
	feed(p, "x = 1", ".sql", "SELECT 1;")
	ids := []string{p.s.Cells()[0].ID, p.s.Cells()[1].ID}

	t.Run("cells", func(t *testing.T) {
		tr.Reset()
		feed(p, ".cells")
		assert.Contains(t, tr.Output(), ids[0])
		assert.Contains(t, tr.Output(), ids[1])
	})

	t.Run("show", func(t *testing.T) {
		tr.Reset()
		feed(p, ".show 2")
		assert.Contains(t, tr.Output(), "SELECT 1;")
		assert.Contains(t, tr.Output(), "Query returned no results.")
	})

	t.Run("run again", func(t *testing.T) {
		tr.Reset()
		feed(p, ".run "+ids[0])
		snap, err := p.s.Snapshot(ids[0])
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Runs)
		assert.Contains(t, tr.Output(), "Result: 42")
	})

	t.Run("run all", func(t *testing.T) {
		tr.Reset()
		feed(p, ".run all")
		assert.Equal(t, 2, strings.Count(tr.Output(), "Completed"))
	})

	t.Run("lookup errors", func(t *testing.T) {
		tr.Reset()
		feed(p, ".show 9", ".rm", ".run nope")
		errOut := tr.ErrorOutput()
		assert.Contains(t, errOut, "no cell 9")
		assert.Contains(t, errOut, "expected one cell number or ID")
		assert.Contains(t, errOut, "nope")
	})

	t.Run("language", func(t *testing.T) {
		tr.Reset()
		feed(p, ".lang ruby", ".python")
		assert.Contains(t, tr.ErrorOutput(), "ruby")
		assert.Equal(t, core.LanguagePython, p.lang)
	})

	t.Run("save", func(t *testing.T) {
		tr.Reset()
		feed(p, ".save")
		assert.Contains(t, tr.ErrorOutput(), "usage: .save")

		path := filepath.Join(t.TempDir(), "session.lnb")
		feed(p, ".save "+path)
		doc, err := notebook.LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 2, doc.Len())
		assert.Equal(t, path, p.path)
	})

	t.Run("remove", func(t *testing.T) {
		feed(p, ".rm 1")
		require.Len(t, p.s.Cells(), 1)
		assert.Equal(t, ids[1], p.s.Cells()[0].ID)
	})

	t.Run("unknown and quit", func(t *testing.T) {
		tr.Reset()
		assert.False(t, feed(p, ".frobnicate"))
		assert.Contains(t, tr.ErrorOutput(), "unknown command: .frobnicate")
		assert.True(t, feed(p, ".quit"))
	})
}

func TestHistoryFile(t *testing.T) {
	assert.Equal(t, filepath.Join("work", ".leapnb_history"), historyFile(filepath.Join("work", "a.lnb")))
	if home, err := os.UserHomeDir(); err == nil {
		assert.Equal(t, filepath.Join(home, ".leapnb_history"), historyFile(""))
	}
}

func TestWatchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.lnb")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, testutil.NewTestLogger(t), func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// Writes to other files in the directory are ignored.
	require.Eventually(t, func() bool {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "other.lnb"), []byte("{}"), 0o644))
		require.NoError(t, os.WriteFile(path, []byte(`{"cells":[]}`), 0o644))
		select {
		case <-changed:
			return true
		default:
			return false
		}
	}, 5*time.Second, 200*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
