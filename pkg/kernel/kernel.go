// Package kernel defines the execution transport contract between notebook
// cells and a code-execution backend.
//
// A Transport turns one ExecutionRequest into an ordered stream of chunks.
// Concrete transports live in pkg/kernels/ subdirectories and register
// themselves by name:
//
//	import _ "github.com/leapstack-labs/leapnb/pkg/kernels/mock"
package kernel

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/leapnb/pkg/core"
)

// Transport executes code and streams the result.
//
// Contract:
//   - onChunk is invoked zero or more times, in production order, from a
//     single goroutine; chunks are never reordered or dropped.
//   - An in-band error chunk is a normal outcome: Execute returns nil.
//   - Execute returns a *core.TransportError only for infrastructure failures
//     before a terminal chunk.
//   - When ctx is cancelled Execute returns promptly with an error wrapping
//     ctx.Err(). Use Start for a handle that also gates late chunks.
type Transport interface {
	Execute(ctx context.Context, req core.ExecutionRequest, onChunk core.ChunkFunc) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req core.ExecutionRequest, onChunk core.ChunkFunc) error

// Execute calls f.
func (f TransportFunc) Execute(ctx context.Context, req core.ExecutionRequest, onChunk core.ChunkFunc) error {
	return f(ctx, req, onChunk)
}

// Closer is implemented by transports that hold resources (connections, pools).
type Closer interface {
	Close() error
}

// Options carries the dependencies a kernel factory may use.
type Options struct {
	Logger *slog.Logger

	// Target is the database target for SQL kernels.
	Target *core.TargetConfig

	// Settings holds kernel-specific values (e.g., "max_steps", "url", delays).
	// Factories decode what they need from it.
	Settings map[string]any
}

// logger returns the configured logger or a discard logger.
func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Close releases t if it holds resources.
func Close(t Transport) error {
	if c, ok := t.(Closer); ok {
		return c.Close()
	}
	return nil
}
