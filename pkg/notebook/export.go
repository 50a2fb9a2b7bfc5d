package notebook

import (
	"fmt"
	"io"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"golang.org/x/net/html"
)

// ExportOptions controls ExportMarkdown.
type ExportOptions struct {
	// Outputs maps cell IDs to the chunks of their last run.
	// Cells without an entry are exported without output.
	Outputs map[string][]core.Chunk
}

// ExportMarkdown writes d as a Markdown document.
//
// Narrative cells are copied as they are, except cells written in HTML, which
// are converted to Markdown. Code cells become fenced blocks followed by
// their outputs, if any.
func ExportMarkdown(w io.Writer, d *Document, opts ExportOptions) error {
	var b strings.Builder
	if d.Title != "" && !startsWithHeading(d.cells) {
		fmt.Fprintf(&b, "# %s\n\n", d.Title)
	}

	for _, c := range d.cells {
		switch c.Kind.Name {
		case core.KindNarrative:
			text := c.Content
			if isHTML(text) {
				md, err := htmltomarkdown.ConvertString(text)
				if err != nil {
					return fmt.Errorf("failed to convert cell %s to markdown: %w", c.ID, err)
				}
				text = md
			}
			b.WriteString(strings.TrimRight(text, "\n"))
			b.WriteString("\n\n")

		case core.KindCode, core.KindVisualization:
			fence := "```"
			for strings.Contains(c.Content, fence) {
				fence += "`"
			}
			lang := string(c.Kind.Language)
			if c.Kind.Name == core.KindVisualization {
				lang = "chart"
			}
			fmt.Fprintf(&b, "%s%s\n%s\n%s\n\n", fence, lang, strings.TrimRight(c.Content, "\n"), fence)
			writeOutputs(&b, opts.Outputs[c.ID])
		}
	}

	_, err := io.WriteString(w, strings.TrimRight(b.String(), "\n")+"\n")
	return err
}

func startsWithHeading(cells []*Cell) bool {
	return len(cells) > 0 && cells[0].Kind.Name == core.KindNarrative &&
		strings.HasPrefix(strings.TrimSpace(cells[0].Content), "# ")
}

// isHTML reports whether text opens with an HTML element.
func isHTML(text string) bool {
	z := html.NewTokenizer(strings.NewReader(strings.TrimSpace(text)))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			return true
		case html.TextToken:
			if strings.TrimSpace(string(z.Text())) != "" {
				return false
			}
		}
	}
}

func writeOutputs(b *strings.Builder, chunks []core.Chunk) {
	var text strings.Builder
	flush := func() {
		if text.Len() == 0 {
			return
		}
		fmt.Fprintf(b, "```text\n%s\n```\n\n", strings.TrimRight(text.String(), "\n"))
		text.Reset()
	}

	for _, c := range chunks {
		switch c.Type {
		case core.ChunkStdout, core.ChunkStderr:
			text.WriteString(c.Data)
		case core.ChunkTable:
			flush()
			b.WriteString(markdownTable(c))
			b.WriteString("\n\n")
		case core.ChunkError:
			flush()
			fmt.Fprintf(b, "> **Error:** %s\n\n", c.Message)
		}
	}
	flush()
}

func markdownTable(c core.Chunk) string {
	if len(c.Rows) == 0 {
		return "_(0 rows)_"
	}
	t := table.NewWriter()
	header := make(table.Row, len(c.Columns))
	for i, col := range c.Columns {
		header[i] = col
	}
	t.AppendHeader(header)
	for _, r := range c.Rows {
		row := make(table.Row, len(c.Columns))
		for i, col := range c.Columns {
			row[i] = FormatValue(r[col])
		}
		t.AppendRow(row)
	}
	return t.RenderMarkdown()
}

// FormatValue renders a table cell value for display.
func FormatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
