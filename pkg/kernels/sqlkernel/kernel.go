// Package sqlkernel provides the SQL kernel: cell code is executed against a
// database through the adapter layer.
//
// The connection is opened on first use. Errors reported by the database for
// a statement are in-band (an error chunk); failing to reach the database at
// all is a *core.TransportError.
package sqlkernel

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/leapnb/pkg/adapter"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
)

// Name is the registry name of the SQL kernel.
const Name = "sql"

// DefaultMaxRows caps the rows of one table chunk.
const DefaultMaxRows = 1000

// Config holds SQL kernel settings.
type Config struct {
	MaxRows int `mapstructure:"max_rows"`
}

// DefaultTarget is used when no target is configured: an in-memory DuckDB
// database with the sample tables loaded.
func DefaultTarget() core.TargetConfig {
	return core.TargetConfig{Type: "duckdb", Database: ":memory:", Seed: true}
}

// Kernel executes SQL cells.
type Kernel struct {
	target core.TargetConfig
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex
	db core.Adapter
}

// New creates a SQL kernel for target. The database is opened lazily.
func New(target core.TargetConfig, cfg Config, logger *slog.Logger) *Kernel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &Kernel{target: target, cfg: cfg, logger: logger}
}

// NewWithAdapter creates a SQL kernel over an already connected adapter.
func NewWithAdapter(db core.Adapter, cfg Config, logger *slog.Logger) *Kernel {
	k := New(core.TargetConfig{Type: db.DialectName()}, cfg, logger)
	k.db = db
	return k
}

func init() {
	kernel.Register(Name, func(opts kernel.Options) (kernel.Transport, error) {
		var cfg Config
		if err := kernel.DecodeSettings(opts.Settings, &cfg); err != nil {
			return nil, err
		}
		target := DefaultTarget()
		if opts.Target != nil && opts.Target.Type != "" {
			target = *opts.Target
		}
		if !adapter.IsRegistered(target.Type) {
			return nil, &adapter.UnknownAdapterError{Type: target.Type, Available: adapter.ListAdapters()}
		}
		return New(target, cfg, opts.Logger), nil
	})
}

// Adapter returns the kernel's database, connecting (and seeding, when the
// target asks for it) on first use.
func (k *Kernel) Adapter(ctx context.Context) (core.Adapter, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.db != nil {
		return k.db, nil
	}

	db, err := adapter.NewAdapter(k.target.ToAdapterConfig(), k.logger)
	if err != nil {
		return nil, err
	}
	if err := db.Connect(ctx, k.target.ToAdapterConfig()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if k.target.Seed {
		if err := adapter.Seed(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		k.logger.Debug("loaded sample data", slog.String("adapter", db.DialectName()))
	}

	k.db = db
	return db, nil
}

// Close releases the database connection.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.db == nil {
		return nil
	}
	err := k.db.Close()
	k.db = nil
	return err
}

// Execute runs each statement of req.Code in order.
//
// Statements that produce rows emit a table chunk (or a "no results" line),
// other statements emit a stdout line with the affected row count. The first
// failing statement ends the run with an error chunk.
func (k *Kernel) Execute(ctx context.Context, req core.ExecutionRequest, onChunk core.ChunkFunc) error {
	stmts := splitStatements(req.Code)
	if len(stmts) == 0 {
		onChunk(core.Status("Nothing to execute."))
		return nil
	}

	onChunk(core.Status("Connecting to database..."))
	db, err := k.Adapter(ctx)
	if err != nil {
		return k.transportErr(ctx, "connect", err)
	}
	if err := db.Ping(ctx); err != nil {
		return k.transportErr(ctx, "ping", err)
	}

	onChunk(core.Status(fmt.Sprintf("Executing %s against %s...", plural(len(stmts), "statement"), db.DialectName())))

	for _, stmt := range stmts {
		var err error
		if returnsRows(stmt) {
			err = k.query(ctx, db, stmt, onChunk)
		} else {
			err = k.exec(ctx, db, stmt, onChunk)
		}
		if err == nil {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, driver.ErrBadConn) {
			return k.transportErr(ctx, "query", err)
		}
		k.logger.Debug("statement failed", slog.String("error", err.Error()))
		onChunk(core.ErrorChunk(err.Error()))
		return nil
	}

	onChunk(core.Status("Execution finished."))
	return nil
}

func (k *Kernel) query(ctx context.Context, db core.Adapter, stmt string, onChunk core.ChunkFunc) error {
	rows, err := db.Query(ctx, stmt)
	if err != nil {
		return err
	}
	res, err := adapter.Collect(rows, k.cfg.MaxRows)
	if err != nil {
		return err
	}

	if len(res.Rows) == 0 {
		onChunk(core.Stdout("Query returned no results.\n"))
		return nil
	}
	onChunk(core.Table(res.Columns, res.Rows))
	if res.Truncated {
		onChunk(core.Stdout(fmt.Sprintf("(showing first %d rows)\n", k.cfg.MaxRows)))
	}
	return nil
}

func (k *Kernel) exec(ctx context.Context, db core.Adapter, stmt string, onChunk core.ChunkFunc) error {
	sqlDB := db.SQLDB()
	if sqlDB == nil {
		if err := db.Exec(ctx, stmt); err != nil {
			return err
		}
		onChunk(core.Stdout("OK\n"))
		return nil
	}

	res, err := sqlDB.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		onChunk(core.Stdout(fmt.Sprintf("OK, %s affected\n", plural(int(n), "row"))))
		return nil
	}
	onChunk(core.Stdout("OK\n"))
	return nil
}

func (k *Kernel) transportErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &core.TransportError{Kernel: Name, Op: op, Err: err}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// Ensure Kernel implements kernel.Transport interface
var _ kernel.Transport = (*Kernel)(nil)
