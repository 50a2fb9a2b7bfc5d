// Package output renders command results for terminals, pipes and machines.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Mode selects how results are written.
type Mode string

// Output modes.
const (
	ModeAuto Mode = "auto" // text, styled only on a terminal
	ModeText Mode = "text"
	ModeJSON Mode = "json"
)

// Renderer writes command output. It is safe for concurrent use, so cell
// listeners running on different goroutines can share one.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	styles *Styles

	mu sync.Mutex
}

// NewRenderer creates a renderer, detecting whether out is a terminal.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, isTerminal(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state.
// Styles are only emitted on a TTY and when NO_COLOR is unset.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	if mode == "" {
		mode = ModeAuto
	}
	lr := lipgloss.NewRenderer(out)
	if !isTTY || termenv.EnvNoColor() {
		lr.SetColorProfile(termenv.Ascii)
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		isTTY:  isTTY,
		styles: NewStyles(lr),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Mode returns the effective mode; auto resolves to text.
func (r *Renderer) Mode() Mode {
	if r.mode == ModeAuto {
		return ModeText
	}
	return r.mode
}

// JSON reports whether output should be machine-readable.
func (r *Renderer) JSON() bool { return r.mode == ModeJSON }

// IsTTY reports whether output goes to a terminal.
func (r *Renderer) IsTTY() bool { return r.isTTY }

// Styles returns the style set.
func (r *Renderer) Styles() *Styles { return r.styles }

// Out returns the standard output writer.
func (r *Renderer) Out() io.Writer { return r.out }

// ErrOut returns the error output writer.
func (r *Renderer) ErrOut() io.Writer { return r.errOut }

// Println writes a line to standard output.
func (r *Renderer) Println(a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted text to standard output.
func (r *Renderer) Printf(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Warnf writes a styled warning line to error output.
func (r *Renderer) Warnf(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render("Warning: "+fmt.Sprintf(format, a...)))
}

// WriteJSON writes v as indented JSON to standard output.
func (r *Renderer) WriteJSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
