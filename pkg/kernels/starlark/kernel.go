// Package starlark provides the python-like kernel: cell code is executed by
// a Starlark interpreter (go.starlark.net).
//
// print() writes to stdout, eprint() to stderr and table() emits a table
// chunk. Top-level bindings of a successful cell are frozen and become
// visible to later cells of the same kernel, so values from earlier cells
// can be read but not mutated.
package starlark

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Name is the registry name of the python-like kernel.
const Name = "starlark"

// Config holds interpreter limits.
type Config struct {
	// MaxSteps bounds the computation of one cell (0 means unlimited).
	MaxSteps uint64 `mapstructure:"max_steps"`
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Kernel executes python-like cells.
type Kernel struct {
	cfg    Config
	open   OpenFunc
	target *core.TargetConfig
	logger *slog.Logger

	mu      sync.Mutex
	globals starlark.StringDict
}

// Option configures a Kernel.
type Option func(*Kernel)

// OpenFunc returns a connected database, opening it on first use.
type OpenFunc func(ctx context.Context) (core.Adapter, error)

// WithAdapter exposes a connected database to cells through query().
func WithAdapter(db core.Adapter, target *core.TargetConfig) Option {
	return WithDatabase(func(context.Context) (core.Adapter, error) { return db, nil }, target)
}

// WithDatabase exposes a lazily opened database to cells through query().
func WithDatabase(open OpenFunc, target *core.TargetConfig) Option {
	return func(k *Kernel) {
		k.open = open
		k.target = target
	}
}

// New creates a python-like kernel. A nil logger discards logs.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Kernel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	k := &Kernel{
		cfg:     cfg,
		logger:  logger,
		globals: make(starlark.StringDict),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func init() {
	kernel.Register(Name, func(opts kernel.Options) (kernel.Transport, error) {
		var cfg Config
		if err := kernel.DecodeSettings(opts.Settings, &cfg); err != nil {
			return nil, err
		}
		return New(cfg, opts.Logger), nil
	})
}

// Execute runs req.Code as a Starlark module.
//
// Interpreter errors (syntax, runtime, step limit) become an error chunk and
// Execute returns nil. Empty code emits a single status chunk.
func (k *Kernel) Execute(ctx context.Context, req core.ExecutionRequest, onChunk core.ChunkFunc) error {
	if strings.TrimSpace(req.Code) == "" {
		onChunk(core.Status("Nothing to execute."))
		return nil
	}

	onChunk(core.Status("Executing..."))

	env := &cellEnv{
		ctx:     ctx,
		emit:    onChunk,
		open:    k.open,
		target:  k.target,
		rowsCap: maxQueryRows,
	}
	predecl := predeclared(env)
	k.mu.Lock()
	for name, v := range k.globals {
		predecl[name] = v
	}
	k.mu.Unlock()

	thread := &starlark.Thread{
		Name: "cell",
		Print: func(_ *starlark.Thread, msg string) {
			onChunk(core.Stdout(msg + "\n"))
		},
	}
	if k.cfg.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(k.cfg.MaxSteps)
	}

	stop := context.AfterFunc(ctx, func() { thread.Cancel("execution cancelled") })
	defer stop()

	globals, err := starlark.ExecFileOptions(fileOptions, thread, "cell", req.Code, predecl)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		k.logger.Debug("cell failed", slog.String("error", err.Error()))
		onChunk(core.ErrorChunk(formatError(err)))
		return nil
	}

	globals.Freeze()
	k.mu.Lock()
	for name, v := range globals {
		k.globals[name] = v
	}
	k.mu.Unlock()

	onChunk(core.Status("Execution finished."))
	return nil
}

// Globals returns the names bound by previous cells (sorted).
func (k *Kernel) Globals() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	names := make([]string, 0, len(k.globals))
	for name := range k.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset forgets all bindings made by previous cells.
func (k *Kernel) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.globals = make(starlark.StringDict)
}

func formatError(err error) string {
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		return evalErr.Backtrace()
	}
	return err.Error()
}

// Ensure Kernel implements kernel.Transport interface
var _ kernel.Transport = (*Kernel)(nil)
