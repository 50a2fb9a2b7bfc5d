// Package commands implements the leapnb subcommands.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/leapstack-labs/leapnb/internal/cli/output"
	"github.com/leapstack-labs/leapnb/internal/config"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/leapstack-labs/leapnb/pkg/runtime"
	"github.com/spf13/cobra"
)

// env bundles what every command pulls from the command context.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	r      *output.Renderer
}

func envFrom(cmd *cobra.Command) env {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	r, ok := output.Lookup(ctx)
	if !ok {
		r = output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.ModeAuto)
	}
	return env{
		cfg:    config.FromContext(ctx),
		logger: config.GetLogger(ctx),
		r:      r,
	}
}

// openSession loads the notebook at path (or starts an empty one when path
// is empty) on the configured kernel. The returned func closes the session
// and the kernel.
func (e env) openSession(path string) (*runtime.Session, func(), error) {
	doc := notebook.New("")
	if path != "" {
		var err error
		doc, err = notebook.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
	}

	t, err := e.cfg.NewTransport(e.logger)
	if err != nil {
		return nil, nil, err
	}

	s := runtime.NewSession(doc, runtime.Options{
		Transport:   t,
		ExecTimeout: e.cfg.ExecTimeout,
		Logger:      e.logger,
	})
	return s, func() {
		_ = s.Close()
		if err := kernel.Close(t); err != nil {
			e.logger.Warn("failed to close kernel", slog.String("error", err.Error()))
		}
	}, nil
}

// readSource returns code from the first argument, a file, or stdin ("-").
func readSource(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	case len(args) > 0 && args[0] != "-":
		return args[0], nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
}

// cellResult is the JSON form of a cell after a run.
type cellResult struct {
	ID     string       `json:"id"`
	Kind   string       `json:"kind"`
	State  string       `json:"state"`
	Output []core.Chunk `json:"output"`
	Error  string       `json:"error,omitempty"`
	Runs   int          `json:"runs"`
}

func newCellResult(c notebook.Cell, snap core.CellSnapshot) cellResult {
	res := cellResult{
		ID:     c.ID,
		Kind:   c.Kind.String(),
		State:  string(snap.State),
		Output: snap.Output,
		Runs:   snap.Runs,
	}
	if err := snap.Err(); err != nil {
		res.Error = err.Error()
	}
	return res
}
