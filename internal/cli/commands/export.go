package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/leapstack-labs/leapnb/pkg/runtime"
	"github.com/spf13/cobra"
)

// ExportOptions holds options for the export command.
type ExportOptions struct {
	To  string
	Run bool
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export <notebook>",
		Short: "Export a notebook as Markdown",
		Long: `Write a notebook as a Markdown document.

Narrative cells are copied (HTML is converted to Markdown), code cells become
fenced code blocks. With --run the notebook is executed first and each cell
is followed by its output.`,
		Example: `  leapnb export analysis.lnb > analysis.md
  leapnb export analysis.lnb --run --to report.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&opts.Run, "run", false, "Run the notebook and include cell output")

	return cmd
}

func runExport(cmd *cobra.Command, path string, opts *ExportOptions) error {
	e := envFrom(cmd)

	var (
		doc     *notebook.Document
		outputs map[string][]core.Chunk
		runErr  error
	)
	if opts.Run {
		s, closeSession, err := e.openSession(path)
		if err != nil {
			return err
		}
		defer closeSession()

		_, runErr = s.RunAll(cmd.Context(), runtime.RunAllOptions{})
		var failed *runtime.CellFailedError
		if runErr != nil && !errors.As(runErr, &failed) {
			return runErr
		}
		doc = s.Document()
		outputs = s.Outputs()
	} else {
		var err error
		if doc, err = notebook.LoadFile(path); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	if err := notebook.ExportMarkdown(&buf, doc, notebook.ExportOptions{Outputs: outputs}); err != nil {
		return err
	}

	if opts.To == "" {
		_, err := e.r.Out().Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(opts.To, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.To, err)
	}
	if runErr != nil {
		e.r.Warnf("some cells failed; their errors are included in %s", opts.To)
	}
	e.r.Printf("%s Exported %s to %s\n", e.r.Styles().StatusSuccess.String(), path, opts.To)
	return nil
}
