// Package mock provides the fixture kernel: a Transport that performs no real
// execution and streams a canned chunk sequence with artificial delays.
//
// It is the reference implementation of the execution contract and the
// default kernel for demos and tests.
package mock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
)

// Name is the registry name of the fixture kernel.
const Name = "mock"

// Delays controls the artificial latency between chunks.
type Delays struct {
	Connect time.Duration `mapstructure:"connect"` // after "Connecting to kernel..."
	Execute time.Duration `mapstructure:"execute"` // after "Executing..."
	Python  time.Duration `mapstructure:"python"`  // before the python result line
	Query   time.Duration `mapstructure:"query"`   // before the query result
	Error   time.Duration `mapstructure:"error"`   // before the simulated error
	Finish  time.Duration `mapstructure:"finish"`  // before "Execution finished."
}

// DefaultDelays mirrors the timings of the original dashboard fixture.
func DefaultDelays() Delays {
	return Delays{
		Connect: 500 * time.Millisecond,
		Execute: 1000 * time.Millisecond,
		Python:  800 * time.Millisecond,
		Query:   1200 * time.Millisecond,
		Error:   500 * time.Millisecond,
		Finish:  300 * time.Millisecond,
	}
}

// Settings is the decoded form of kernel.Options.Settings.
type Settings struct {
	Delays Delays `mapstructure:"delays"`
}

// Fixture rows returned for queries that mention the users table.
var usersFixture = []map[string]any{
	{"user_id": "u001", "email": "alice@example.com", "sign_up_date": "2023-01-15"},
	{"user_id": "u002", "email": "bob@example.com", "sign_up_date": "2023-02-20"},
}

var usersColumns = []string{"user_id", "email", "sign_up_date"}

// Kernel is the fixture transport.
type Kernel struct {
	delays Delays
	logger *slog.Logger
}

// New creates a fixture kernel. A nil logger discards logs.
func New(delays Delays, logger *slog.Logger) *Kernel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Kernel{delays: delays, logger: logger}
}

func init() {
	kernel.Register(Name, func(opts kernel.Options) (kernel.Transport, error) {
		s := Settings{Delays: DefaultDelays()}
		if err := kernel.DecodeSettings(opts.Settings, &s); err != nil {
			return nil, err
		}
		return New(s.Delays, opts.Logger), nil
	})
}

// Execute streams the fixture sequence for req.
//
// Every run starts with two status chunks. Python code prints a fixed
// result, SQL code returns the users table when the text mentions "users".
// Code containing "error" ends with an error chunk and nothing after it.
// Empty code is treated like any other input.
func (k *Kernel) Execute(ctx context.Context, req core.ExecutionRequest, onChunk core.ChunkFunc) error {
	k.logger.Debug("executing code", slog.String("language", string(req.Language)), slog.Int("bytes", len(req.Code)))

	onChunk(core.Status("Connecting to kernel..."))
	if err := sleep(ctx, k.delays.Connect); err != nil {
		return err
	}

	onChunk(core.Status("Executing..."))
	if err := sleep(ctx, k.delays.Execute); err != nil {
		return err
	}

	switch req.Language {
	case core.LanguagePython:
		if strings.Contains(req.Code, "import") {
			onChunk(core.Stdout("Module imported successfully.\n"))
		}
		onChunk(core.Stdout("Running Python script...\n"))
		if err := sleep(ctx, k.delays.Python); err != nil {
			return err
		}
		onChunk(core.Stdout("Result: 42\n"))

	case core.LanguageSQL:
		onChunk(core.Stdout("Executing query against database...\n"))
		if err := sleep(ctx, k.delays.Query); err != nil {
			return err
		}
		if strings.Contains(strings.ToLower(req.Code), "users") {
			onChunk(core.Table(usersColumns, cloneRows(usersFixture)))
		} else {
			onChunk(core.Stdout("Query returned no results.\n"))
		}

	default:
		onChunk(core.ErrorChunk(fmt.Sprintf("Unsupported language: %q", req.Language)))
		return nil
	}

	if strings.Contains(req.Code, "error") {
		if err := sleep(ctx, k.delays.Error); err != nil {
			return err
		}
		onChunk(core.ErrorChunk("Simulated runtime error: Division by zero."))
		return nil
	}

	if err := sleep(ctx, k.delays.Finish); err != nil {
		return err
	}
	onChunk(core.Status("Execution finished."))
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cloneRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		cp := make(map[string]any, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

// Ensure Kernel implements kernel.Transport interface
var _ kernel.Transport = (*Kernel)(nil)
