package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// CellsOptions holds options for the cells command.
type CellsOptions struct {
	Format  string
	Content bool
}

// cellInfo is one row of the cells listing.
type cellInfo struct {
	Index    int               `json:"index" yaml:"index"`
	ID       string            `json:"id" yaml:"id"`
	Kind     string            `json:"kind" yaml:"kind"`
	Lines    int               `json:"lines" yaml:"lines"`
	Preview  string            `json:"preview,omitempty" yaml:"preview,omitempty"`
	Content  string            `json:"content,omitempty" yaml:"content,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// previewWidth caps the preview column.
const previewWidth = 48

// NewCellsCommand creates the cells command.
func NewCellsCommand() *cobra.Command {
	opts := &CellsOptions{}

	cmd := &cobra.Command{
		Use:     "cells <notebook>",
		Aliases: []string{"ls"},
		Short:   "List the cells of a notebook",
		Example: `  leapnb cells analysis.lnb
  leapnb cells analysis.ipynb --format yaml --content`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCells(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Format, "format", "", "Output format (text|json|yaml); default follows --output")
	cmd.Flags().BoolVar(&opts.Content, "content", false, "Include full cell content")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runCells(cmd *cobra.Command, path string, opts *CellsOptions) error {
	e := envFrom(cmd)

	doc, err := notebook.LoadFile(path)
	if err != nil {
		return err
	}

	cells := doc.Cells()
	infos := make([]cellInfo, len(cells))
	for i, c := range cells {
		infos[i] = cellInfo{
			Index:    i,
			ID:       c.ID,
			Kind:     c.Kind.String(),
			Lines:    lineCount(c.Content),
			Preview:  preview(c.Content),
			Metadata: c.Metadata,
		}
		if opts.Content {
			infos[i].Content = c.Content
		}
	}

	format := opts.Format
	if format == "" {
		format = string(e.r.Mode())
	}

	switch format {
	case "json":
		return e.r.WriteJSON(map[string]any{"title": doc.Title, "cells": infos})
	case "yaml":
		data, err := yaml.Marshal(map[string]any{"title": doc.Title, "cells": infos})
		if err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		_, err = e.r.Out().Write(data)
		return err
	case "text":
		renderCellTable(e, doc.Title, infos, opts.Content)
		return nil
	default:
		return fmt.Errorf("invalid format %q (expected text, json or yaml)", format)
	}
}

func renderCellTable(e env, title string, infos []cellInfo, withContent bool) {
	if title != "" {
		e.r.Println(e.r.Styles().Header1.Render(title))
	}
	if len(infos) == 0 {
		e.r.Println("(no cells)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(e.r.Out())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "ID", "Kind", "Lines", "Preview"})
	for _, info := range infos {
		t.AppendRow(table.Row{info.Index + 1, info.ID, info.Kind, info.Lines, info.Preview})
	}
	t.Render()

	if withContent {
		for _, info := range infos {
			e.r.Println("")
			e.r.Println(e.r.Styles().CellHeader.Render(fmt.Sprintf("[%d] %s", info.Index+1, info.Kind)) + " " + e.r.Styles().CellID.Render(info.ID))
			e.r.Println(strings.TrimSuffix(info.Content, "\n"))
		}
	}
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1
}

// preview returns the first non-blank line, shortened to previewWidth runes.
func preview(s string) string {
	for line := range strings.Lines(s) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > previewWidth {
			return string(r[:previewWidth-1]) + "…"
		}
		return line
	}
	return ""
}
