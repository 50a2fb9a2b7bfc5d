package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/leapstack-labs/leapnb/pkg/runtime"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Cells       []string
	Parallel    bool
	StopOnError bool
	Watch       bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <notebook>",
		Short: "Run the code cells of a notebook",
		Long: `Execute the code cells of a notebook on the configured kernel.

Cells run one after another in document order and their output is streamed
as it arrives. Narrative and chart cells are skipped. The command fails when
any cell fails.`,
		Example: `  # Run every code cell
  leapnb run analysis.lnb

  # Run two cells by ID
  leapnb run analysis.lnb --cell 3f2a --cell 9c1d

  # Run all cells at once and stop at the first failure
  leapnb run analysis.lnb --parallel --stop-on-error

  # Re-run whenever the file is saved
  leapnb run analysis.lnb --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Cells, "cell", nil, "Run only this cell ID (repeatable)")
	cmd.Flags().BoolVar(&opts.Parallel, "parallel", false, "Start all cells at once")
	cmd.Flags().BoolVar(&opts.StopOnError, "stop-on-error", false, "Stop at the first failing cell")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-run when the notebook file changes")

	return cmd
}

func runRun(cmd *cobra.Command, path string, opts *RunOptions) error {
	e := envFrom(cmd)

	s, closeSession, err := e.openSession(path)
	if err != nil {
		return err
	}
	defer closeSession()

	stream := !e.r.JSON() && !opts.Parallel
	var st *streamer
	if stream {
		st = newStreamer(e.r, s.Cells())
		defer s.Subscribe(st.onEvent)()
	}

	if !opts.Watch {
		return runOnce(cmd.Context(), e, s, opts, stream)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	changed := make(chan struct{}, 1)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watchFile(gctx, path, e.logger, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	})
	g.Go(func() error {
		for {
			if err := runOnce(gctx, e, s, opts, stream); err != nil && gctx.Err() == nil {
				e.r.Warnf("%v", err)
			}
			if !e.r.JSON() {
				e.r.Println(e.r.Styles().Muted.Render("Watching " + path + " for changes (Ctrl+C to stop)"))
			}

			select {
			case <-gctx.Done():
				return nil
			case <-changed:
			}

			if err := s.Load(path); err != nil {
				e.r.Warnf("reload failed: %v", err)
				continue
			}
			e.logger.Info("notebook reloaded", slog.String("file", path))
			if st != nil {
				st.reset(s.Cells())
			}
		}
	})
	return g.Wait()
}

// runOnce executes the selected cells once and reports the outcome.
func runOnce(ctx context.Context, e env, s *runtime.Session, opts *RunOptions, streamed bool) error {
	var (
		snaps []core.CellSnapshot
		err   error
	)
	if len(opts.Cells) > 0 {
		snaps, err = runSelected(ctx, s, opts.Cells, opts.StopOnError)
	} else {
		snaps, err = s.RunAll(ctx, runtime.RunAllOptions{Parallel: opts.Parallel, StopOnError: opts.StopOnError})
	}

	var failed *runtime.CellFailedError
	if err != nil && !errors.As(err, &failed) {
		return err
	}

	cells := s.Cells()
	if e.r.JSON() {
		if jerr := e.r.WriteJSON(results(cells, snaps)); jerr != nil {
			return jerr
		}
	} else {
		if !streamed {
			renderSnapshots(e, cells, snaps)
		}
		renderSummary(e, snaps)
	}

	if n := countFailed(snaps); n > 0 {
		return fmt.Errorf("%d of %d cells failed", n, len(snaps))
	}
	return nil
}

// runSelected runs the given cells one after another.
func runSelected(ctx context.Context, s *runtime.Session, ids []string, stopOnError bool) ([]core.CellSnapshot, error) {
	var snaps []core.CellSnapshot
	var errs []error
	for _, id := range ids {
		snap, err := s.RunAndWait(ctx, id)
		if err != nil {
			return snaps, err
		}
		snaps = append(snaps, snap)
		if snap.Failed() {
			failure := &runtime.CellFailedError{CellID: id, Err: snap.Err()}
			if stopOnError {
				return snaps, failure
			}
			errs = append(errs, failure)
		}
	}
	return snaps, errors.Join(errs...)
}

func renderSnapshots(e env, cells []notebook.Cell, snaps []core.CellSnapshot) {
	index := make(map[string]int, len(cells))
	for i, c := range cells {
		index[c.ID] = i
	}
	for _, snap := range snaps {
		i, ok := index[snap.CellID]
		if !ok {
			continue
		}
		e.r.CellHeader(i, cells[i])
		e.r.Snapshot(snap)
	}
}

func renderSummary(e env, snaps []core.CellSnapshot) {
	counts := make(map[core.CellState]int)
	for _, s := range snaps {
		counts[s.State]++
	}
	line := fmt.Sprintf("Ran %d cells: %d completed, %d failed", len(snaps), counts[core.CellCompleted], counts[core.CellFailed])
	if n := counts[core.CellIdle]; n > 0 {
		line += fmt.Sprintf(", %d cancelled", n)
	}
	e.r.Println("")
	style := e.r.Styles().Success
	if counts[core.CellFailed] > 0 {
		style = e.r.Styles().Error
	}
	e.r.Println(style.Render(line))
}

func results(cells []notebook.Cell, snaps []core.CellSnapshot) []cellResult {
	byID := make(map[string]core.CellSnapshot, len(snaps))
	for _, s := range snaps {
		byID[s.CellID] = s
	}
	out := make([]cellResult, 0, len(snaps))
	for _, c := range cells {
		if snap, ok := byID[c.ID]; ok {
			out = append(out, newCellResult(c, snap))
		}
	}
	return out
}

func countFailed(snaps []core.CellSnapshot) int {
	n := 0
	for _, s := range snaps {
		if s.Failed() {
			n++
		}
	}
	return n
}
