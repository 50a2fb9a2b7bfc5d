package config

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapnb/pkg/kernel"

	// Register adapters and kernels via init()
	_ "github.com/leapstack-labs/leapnb/pkg/adapters/duckdb"
	_ "github.com/leapstack-labs/leapnb/pkg/adapters/postgres"
	_ "github.com/leapstack-labs/leapnb/pkg/adapters/sqlite"
	_ "github.com/leapstack-labs/leapnb/pkg/kernels/mock"
	_ "github.com/leapstack-labs/leapnb/pkg/kernels/remote"
	_ "github.com/leapstack-labs/leapnb/pkg/kernels/router"
	_ "github.com/leapstack-labs/leapnb/pkg/kernels/sqlkernel"
	_ "github.com/leapstack-labs/leapnb/pkg/kernels/starlark"
)

// KernelOptions builds the factory options for the named kernel.
func (c *Config) KernelOptions(name string, logger *slog.Logger) kernel.Options {
	return kernel.Options{
		Logger:   logger,
		Target:   c.Target,
		Settings: c.KernelSettings(name),
	}
}

// NewTransport creates the configured kernel.
// Callers release it with kernel.Close.
func (c *Config) NewTransport(logger *slog.Logger) (kernel.Transport, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	t, err := kernel.New(c.Kernel, c.KernelOptions(c.Kernel, logger.With(slog.String("kernel", c.Kernel))))
	if err != nil {
		return nil, fmt.Errorf("failed to start kernel: %w", err)
	}
	return t, nil
}
