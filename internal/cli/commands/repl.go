package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/leapstack-labs/leapnb/internal/cli/output"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/leapstack-labs/leapnb/pkg/runtime"
	"github.com/spf13/cobra"
)

// ReplOptions holds options for the repl command.
type ReplOptions struct {
	Language string
}

// NewReplCommand creates the repl command.
func NewReplCommand() *cobra.Command {
	opts := &ReplOptions{}

	cmd := &cobra.Command{
		Use:   "repl [notebook]",
		Short: "Interactive notebook shell",
		Long: `Start an interactive shell. Every snippet you enter becomes a cell of
the notebook and runs right away.

Python blocks that open with a trailing colon continue until an empty line.
SQL statements continue until a semicolon. Type .help for commands.`,
		Example: `  leapnb repl
  leapnb repl analysis.lnb --language sql`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runRepl(cmd, path, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Language, "language", "l", string(core.LanguagePython), "Starting language (python|sql)")

	return cmd
}

func runRepl(cmd *cobra.Command, path string, opts *ReplOptions) error {
	e := envFrom(cmd)

	lang, err := core.ParseLanguage(opts.Language)
	if err != nil {
		return err
	}

	load := path
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			load = ""
		}
	}
	s, closeSession, err := e.openSession(load)
	if err != nil {
		return err
	}
	defer closeSession()

	st := newStreamer(e.r, s.Cells())
	defer s.Subscribe(st.onEvent)()

	repl := &replShell{e: e, s: s, st: st, path: path, lang: lang}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          repl.prompt(),
		HistoryFile:     historyFile(path),
		AutoComplete:    newReplCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
		Stdin:           io.NopCloser(cmd.InOrStdin()),
		Stdout:          e.r.Out(),
		Stderr:          e.r.ErrOut(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	title := s.Title()
	if title == "" {
		title = "untitled"
	}
	e.r.Printf("leapnb REPL (%s, kernel: %s, %d cells)\n", title, e.cfg.Kernel, len(s.Cells()))
	e.r.Println("Type .help for commands, .quit to exit")
	e.r.Println("")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			repl.buf.Reset()
			rl.SetPrompt(repl.prompt())
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if repl.handleLine(cmd.Context(), line) {
			break
		}
		rl.SetPrompt(repl.prompt())
	}
	return nil
}

// replShell holds the state of one REPL session. It is separate from the
// readline loop so lines can be fed to it directly.
type replShell struct {
	e    env
	s    *runtime.Session
	st   *streamer
	path string
	lang core.Language
	buf  strings.Builder
}

func (p *replShell) prompt() string {
	if p.buf.Len() > 0 {
		return strings.Repeat(" ", len(p.lang)-3) + "...> "
	}
	return string(p.lang) + "> "
}

// handleLine consumes one input line and reports whether the shell should exit.
func (p *replShell) handleLine(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)

	if p.buf.Len() == 0 {
		if trimmed == "" {
			return false
		}
		if strings.HasPrefix(trimmed, ".") {
			return p.dotCommand(ctx, trimmed)
		}
	}

	if p.buf.Len() > 0 || trimmed != "" {
		p.buf.WriteString(line)
		p.buf.WriteString("\n")
	}
	if !p.complete(trimmed) {
		return false
	}

	code := p.buf.String()
	p.buf.Reset()
	p.submit(ctx, code)
	return false
}

// complete reports whether the buffered snippet is ready to run.
func (p *replShell) complete(last string) bool {
	switch p.lang {
	case core.LanguageSQL:
		return strings.HasSuffix(last, ";")
	default:
		first, _, _ := strings.Cut(p.buf.String(), "\n")
		if strings.HasSuffix(strings.TrimSpace(first), ":") {
			return last == ""
		}
		return true
	}
}

// submit appends code as a new cell and runs it.
func (p *replShell) submit(ctx context.Context, code string) {
	id, err := p.s.InsertCell(notebook.Cell{Kind: core.Code(p.lang), Content: code}, -1)
	if err != nil {
		p.e.r.Warnf("%v", err)
		return
	}
	p.st.reset(p.s.Cells())
	p.run(ctx, id)
}

// run executes one cell; Ctrl+C cancels it without leaving the shell.
func (p *replShell) run(ctx context.Context, id string) {
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if _, err := p.s.RunAndWait(runCtx, id); err != nil {
		p.e.r.Warnf("%v", err)
	}
	p.e.r.Println("")
}

func (p *replShell) dotCommand(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printReplHelp(p.e.r.Out())

	case ".lang", ".language":
		if len(args) != 1 {
			p.e.r.Printf("Current language: %s\n", p.lang)
			break
		}
		lang, err := core.ParseLanguage(args[0])
		if err != nil {
			p.e.r.Warnf("%v", err)
			break
		}
		p.lang = lang

	case ".py", ".python":
		p.lang = core.LanguagePython

	case ".sql":
		p.lang = core.LanguageSQL

	case ".cells":
		infos := make([]cellInfo, 0)
		for i, c := range p.s.Cells() {
			infos = append(infos, cellInfo{Index: i, ID: c.ID, Kind: c.Kind.String(), Lines: lineCount(c.Content), Preview: preview(c.Content)})
		}
		renderCellTable(p.e, "", infos, false)

	case ".show":
		c, ok := p.lookup(args)
		if !ok {
			break
		}
		p.e.r.Println(strings.TrimSuffix(c.Content, "\n"))
		if snap, err := p.s.Snapshot(c.ID); err == nil && snap.Runs > 0 {
			p.e.r.Snapshot(snap)
		}

	case ".run":
		if len(args) == 1 && args[0] == "all" {
			p.st.reset(p.s.Cells())
			if _, err := p.s.RunAll(ctx, runtime.RunAllOptions{}); err != nil {
				p.e.r.Warnf("%v", err)
			}
			break
		}
		c, ok := p.lookup(args)
		if !ok {
			break
		}
		if !c.Kind.Executable() {
			p.e.r.Warnf("%s cells cannot be run", c.Kind)
			break
		}
		p.run(ctx, c.ID)

	case ".rm":
		c, ok := p.lookup(args)
		if !ok {
			break
		}
		if err := p.s.RemoveCell(c.ID); err != nil {
			p.e.r.Warnf("%v", err)
			break
		}
		p.st.reset(p.s.Cells())

	case ".status":
		status := p.s.Status()
		p.e.r.Printf("Notebook: %s (%d cells)\n", output.Label(string(status)), len(p.s.Cells()))

	case ".save":
		target := p.path
		if len(args) == 1 {
			target = args[0]
		}
		if target == "" {
			p.e.r.Warnf("usage: .save <file.lnb|file.ipynb>")
			break
		}
		if err := p.s.Save(target); err != nil {
			p.e.r.Warnf("%v", err)
			break
		}
		p.path = target
		p.e.r.Printf("Saved %s\n", target)

	case ".clear":
		p.e.r.Printf("\033[H\033[2J")

	default:
		p.e.r.Warnf("unknown command: %s (type .help for commands)", command)
	}
	return false
}

// lookup resolves a 1-based position or a cell ID.
func (p *replShell) lookup(args []string) (notebook.Cell, bool) {
	if len(args) != 1 {
		p.e.r.Warnf("expected one cell number or ID")
		return notebook.Cell{}, false
	}
	cells := p.s.Cells()
	if n, err := strconv.Atoi(args[0]); err == nil {
		if n < 1 || n > len(cells) {
			p.e.r.Warnf("no cell %d (notebook has %d)", n, len(cells))
			return notebook.Cell{}, false
		}
		return cells[n-1], true
	}
	c, err := p.s.Cell(args[0])
	if err != nil {
		p.e.r.Warnf("%v", err)
		return notebook.Cell{}, false
	}
	return c, true
}

func printReplHelp(w io.Writer) {
	help := `
Commands:
  .help              Show this help message
  .python / .sql     Switch the language of new cells
  .cells             List the cells of the notebook
  .show <n|id>       Show a cell and its last output
  .run <n|id|all>    Run a cell again, or every code cell
  .rm <n|id>         Remove a cell
  .status            Show the notebook status
  .save [file]       Save the notebook (.lnb or .ipynb)
  .clear             Clear the screen
  .quit / .exit      Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Python blocks ending in ':' continue until an empty line
  - Ctrl+C cancels a running cell
`
	_, _ = fmt.Fprintln(w, help)
}

func newReplCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(".help"),
		readline.PcItem(".python"),
		readline.PcItem(".sql"),
		readline.PcItem(".cells"),
		readline.PcItem(".show"),
		readline.PcItem(".run", readline.PcItem("all")),
		readline.PcItem(".rm"),
		readline.PcItem(".status"),
		readline.PcItem(".save"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
		readline.PcItem(".exit"),
	)
}

// historyFile keeps history next to the notebook, or in the home directory.
func historyFile(path string) string {
	if path != "" {
		return filepath.Join(filepath.Dir(path), ".leapnb_history")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".leapnb_history")
	}
	return ""
}
