package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
)

// Chunk writes one chunk of cell output.
func (r *Renderer) Chunk(c core.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkLocked(c)
}

func (r *Renderer) chunkLocked(c core.Chunk) {
	switch c.Type {
	case core.ChunkStatus:
		_, _ = fmt.Fprintln(r.out, r.styles.Status.Render("· "+c.Message))
	case core.ChunkStdout:
		_, _ = fmt.Fprint(r.out, ensureNewline(c.Data))
	case core.ChunkStderr:
		_, _ = fmt.Fprint(r.out, r.styles.Stderr.Render(strings.TrimSuffix(c.Data, "\n"))+"\n")
	case core.ChunkTable:
		r.tableLocked(c.Columns, c.Rows)
	case core.ChunkError:
		_, _ = fmt.Fprintln(r.out, r.styles.Error.Render("Error: "+c.Message))
	}
}

// Table renders rows as a light box table followed by a row count.
func (r *Renderer) Table(cols []string, rows []map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tableLocked(cols, rows)
}

func (r *Renderer) tableLocked(cols []string, rows []map[string]any) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(r.out, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, result := range rows {
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[i] = notebook.FormatValue(result[col])
		}
		t.AppendRow(row)
	}

	t.Render()
	if len(rows) == 1 {
		_, _ = fmt.Fprintln(r.out, "(1 row)")
	} else {
		_, _ = fmt.Fprintf(r.out, "(%d rows)\n", len(rows))
	}
}

// CellHeader introduces the output of the cell at position index.
func (r *Renderer) CellHeader(index int, c notebook.Cell) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "%s %s\n",
		r.styles.CellHeader.Render(fmt.Sprintf("[%d] %s", index+1, c.Kind)),
		r.styles.CellID.Render(c.ID))
}

// CellResult writes the one-line outcome of a settled run.
func (r *Renderer) CellResult(snap core.CellSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := ""
	if !snap.StartedAt.IsZero() && !snap.FinishedAt.IsZero() {
		elapsed = " in " + snap.FinishedAt.Sub(snap.StartedAt).Round(time.Millisecond).String()
	}

	switch snap.State {
	case core.CellCompleted:
		_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.StatusSuccess.String(), r.styles.Muted.Render(Label(string(snap.State))+elapsed))
	case core.CellFailed:
		msg := snap.ErrorMessage
		if msg == "" && snap.TransportErr != nil {
			msg = snap.TransportErr.Error()
		}
		_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.StatusFailed.String(), r.styles.Error.Render(Label(string(snap.State))+elapsed+": "+msg))
	default:
		_, _ = fmt.Fprintf(r.out, "%s %s\n", r.StateIcon(snap.State), r.styles.Muted.Render(Label(string(snap.State))))
	}
}

// Snapshot writes a settled run in full: its chunks, then its outcome.
func (r *Renderer) Snapshot(snap core.CellSnapshot) {
	r.mu.Lock()
	for _, c := range snap.Output {
		r.chunkLocked(c)
	}
	r.mu.Unlock()
	r.CellResult(snap)
}

// StateIcon returns the icon for a cell state.
func (r *Renderer) StateIcon(s core.CellState) string {
	switch s {
	case core.CellCompleted:
		return r.styles.StatusSuccess.String()
	case core.CellFailed:
		return r.styles.StatusFailed.String()
	case core.CellRunning:
		return r.styles.StatusRunning.String()
	default:
		return r.styles.StatusIdle.String()
	}
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
