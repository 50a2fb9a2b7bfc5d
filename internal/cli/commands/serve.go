package commands

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/leapstack-labs/leapnb/internal/server"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured kernel over HTTP",
		Long: `Expose the configured kernel so other machines can run cells on it
with the remote kernel. Output is streamed as server-sent events.

Endpoints:
  GET  /healthz        liveness probe
  GET  /api/kernels    kernel served and registered kernels
  GET  /api/activity   stream of in-flight execution counts
  POST /api/execute    run {"code", "language"} and stream chunks`,
		Example: `  leapnb serve --kernel local --port 8787
  leapnb run analysis.lnb --kernel remote --remote-url http://gpu-box:8787`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().Int("port", 0, "Port to listen on (default: server.port, 8787)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	e := envFrom(cmd)

	if e.cfg.Kernel == "remote" {
		e.r.Warnf("serving the remote kernel forwards every request to %v", e.cfg.Remote["url"])
	}

	t, err := e.cfg.NewTransport(e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := kernel.Close(t); err != nil {
			e.logger.Warn("failed to close kernel", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Config{
		Transport:  t,
		KernelName: e.cfg.Kernel,
		Port:       e.cfg.Server.Port,
		Logger:     e.logger,
	})

	e.r.Printf("Serving %s kernel on http://localhost:%d (Ctrl+C to stop)\n", e.cfg.Kernel, e.cfg.Server.Port)
	return srv.Serve(ctx)
}
