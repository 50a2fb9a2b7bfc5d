package commands

import (
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/spf13/cobra"
)

// AddOptions holds options for the add command.
type AddOptions struct {
	At       int
	File     string
	Metadata map[string]string
}

// NewAddCommand creates the add command.
func NewAddCommand() *cobra.Command {
	opts := &AddOptions{}

	cmd := &cobra.Command{
		Use:   "add <notebook> <kind> [content|-]",
		Short: "Append a cell to a notebook",
		Long: `Add a cell to a notebook file and print its ID.

Kind is one of markdown, python, sql or chart; "auto" picks python or sql
from the content. Content is read from the argument, from --file, or from
stdin when the argument is "-". Without any the cell starts empty.`,
		Example: `  leapnb add analysis.lnb sql 'SELECT count(*) FROM orders'
  leapnb add analysis.lnb markdown --at 0 '# Orders'
  leapnb add analysis.lnb sql --meta instance=warehouse --meta table=orders -f query.sql`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.At, "at", -1, "Insert at this position (default: end)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read content from a file")
	cmd.Flags().StringToStringVar(&opts.Metadata, "meta", nil, "Cell metadata key=value (repeatable)")

	return cmd
}

func runAdd(cmd *cobra.Command, args []string, opts *AddOptions) error {
	e := envFrom(cmd)
	path, kindName := args[0], args[1]

	doc, err := notebook.LoadFile(path)
	if err != nil {
		return err
	}

	var content string
	if len(args) > 2 || opts.File != "" {
		if content, err = readSource(cmd, args[2:], opts.File); err != nil {
			return err
		}
	}

	var kind core.CellKind
	if kindName == "auto" {
		kind = core.Code(notebook.ClassifyLanguage(content))
	} else if kind, err = core.ParseCellKind(kindName); err != nil {
		return err
	}

	id, err := doc.InsertCell(notebook.Cell{Kind: kind, Content: content, Metadata: opts.Metadata}, opts.At)
	if err != nil {
		return err
	}
	if err := notebook.SaveFile(path, doc); err != nil {
		return err
	}

	if e.r.JSON() {
		return e.r.WriteJSON(map[string]string{"id": id, "kind": kind.String()})
	}
	e.r.Println(id)
	return nil
}
