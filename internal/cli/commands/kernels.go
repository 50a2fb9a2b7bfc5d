package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/leapstack-labs/leapnb/pkg/adapter"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/spf13/cobra"
)

var kernelDescriptions = map[string]string{
	"mock":     "Fixture kernel with canned output, for demos and tests",
	"starlark": "Python-like cells on an embedded Starlark interpreter",
	"sql":      "SQL cells on the configured database target",
	"local":    "Routes python cells to starlark and sql cells to sql",
	"remote":   "Forwards cells to a `leapnb serve` instance over HTTP",
}

// NewKernelsCommand creates the kernels command.
func NewKernelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "kernels",
		Short: "List available kernels and database adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)

			names := kernel.List()
			if e.r.JSON() {
				return e.r.WriteJSON(map[string]any{
					"kernels":  names,
					"current":  e.cfg.Kernel,
					"adapters": adapter.ListAdapters(),
				})
			}

			t := table.NewWriter()
			t.SetOutputMirror(e.r.Out())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"", "Kernel", "Description"})
			for _, name := range names {
				marker := ""
				if name == e.cfg.Kernel {
					marker = "*"
				}
				t.AppendRow(table.Row{marker, name, kernelDescriptions[name]})
			}
			t.Render()

			e.r.Println("")
			e.r.Printf("Database adapters: %v\n", adapter.ListAdapters())
			return nil
		},
	}
}
