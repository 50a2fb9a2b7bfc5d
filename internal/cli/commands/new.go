package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/spf13/cobra"
)

// NewOptions holds options for the new command.
type NewOptions struct {
	Name          string
	Description   string
	Template      string
	Force         bool
	ListTemplates bool
}

// NewNewCommand creates the new command.
func NewNewCommand() *cobra.Command {
	opts := &NewOptions{}

	cmd := &cobra.Command{
		Use:   "new <notebook>",
		Short: "Create a notebook from a template",
		Long: `Create a notebook file from a starter template.

The format follows the file extension: .lnb for the leapnb interchange
format, .ipynb for Jupyter. The notebook name defaults to the file name.`,
		Example: `  leapnb new sales.lnb --template data-analysis
  leapnb new etl.ipynb -t etl-pipeline --description "Nightly order rollup"
  leapnb new --list-templates`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.ListTemplates {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.ListTemplates {
				return listTemplates(cmd)
			}
			return runNew(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Notebook name (default: file name)")
	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "Description, added as the first cell")
	cmd.Flags().StringVarP(&opts.Template, "template", "t", notebook.TemplateBlank, "Starter template")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&opts.ListTemplates, "list-templates", false, "List the available templates")

	_ = cmd.RegisterFlagCompletionFunc("template", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		var ids []string
		for _, t := range notebook.Templates() {
			ids = append(ids, t.ID)
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runNew(cmd *cobra.Command, path string, opts *NewOptions) error {
	e := envFrom(cmd)

	if !notebook.IsNotebookFile(path) {
		return fmt.Errorf("unsupported notebook extension %q (use %s or %s)", filepath.Ext(path), notebook.ExtNotebook, notebook.ExtJupyter)
	}
	if !opts.Force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists\nHint: use --force to overwrite", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	name := opts.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	doc, err := notebook.NewFromForm(notebook.NewNotebookForm{
		Name:        name,
		Description: opts.Description,
		Template:    opts.Template,
	})
	if err != nil {
		return err
	}
	if err := notebook.SaveFile(path, doc); err != nil {
		return err
	}

	if e.r.JSON() {
		return e.r.WriteJSON(map[string]any{"path": path, "title": doc.Title, "template": opts.Template, "cells": doc.Len()})
	}
	e.r.Printf("%s Created %s (%d cells, template %s)\n", e.r.Styles().StatusSuccess.String(), path, doc.Len(), opts.Template)
	return nil
}

func listTemplates(cmd *cobra.Command) error {
	e := envFrom(cmd)
	tmpls := notebook.Templates()

	if e.r.JSON() {
		type entry struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		out := make([]entry, len(tmpls))
		for i, t := range tmpls {
			out[i] = entry{ID: t.ID, Name: t.Name, Description: t.Description}
		}
		return e.r.WriteJSON(out)
	}

	t := table.NewWriter()
	t.SetOutputMirror(e.r.Out())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Template", "Name", "Description"})
	for _, tmpl := range tmpls {
		t.AppendRow(table.Row{tmpl.ID, tmpl.Name, tmpl.Description})
	}
	t.Render()
	return nil
}
