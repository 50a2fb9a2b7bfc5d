// Package runtime drives notebook execution: a CellRunner is the state
// machine of one cell, and a Session owns a document together with the
// runners of its cells.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
)

// CellRunner tracks the execution state of one cell.
//
// States move idle -> running -> completed | failed, and back to running on
// the next Run. At most one run is in flight; Run on a running cell returns
// a *core.CellBusyError. Chunks from a run that was cancelled or superseded
// are dropped.
type CellRunner struct {
	id        string
	transport kernel.Transport
	timeout   time.Duration
	logger    *slog.Logger
	onChange  func(core.CellSnapshot)

	mu           sync.Mutex
	kind         core.CellKind
	content      string
	state        core.CellState
	output       []core.Chunk
	errMsg       string
	transportErr error
	request      *core.ExecutionRequest
	runs         int
	startedAt    time.Time
	finishedAt   time.Time
	gen          uint64 // identifies the current run
	version      uint64 // bumped on every change
	exec         *kernel.Execution
	done         chan struct{}

	notifyMu     sync.Mutex
	lastNotified uint64
}

// RunnerOptions configures a CellRunner.
type RunnerOptions struct {
	// Timeout bounds each run. Zero means no limit.
	Timeout time.Duration

	// OnChange is called with a snapshot after every state change.
	// It must not block for long; it is called outside the runner's lock.
	OnChange func(core.CellSnapshot)

	Logger *slog.Logger
}

// NewCellRunner creates an idle runner for a cell.
func NewCellRunner(id string, kind core.CellKind, content string, t kernel.Transport, opts RunnerOptions) *CellRunner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CellRunner{
		id:        id,
		transport: t,
		timeout:   opts.Timeout,
		logger:    logger.With(slog.String("cell", id)),
		onChange:  opts.OnChange,
		kind:      kind,
		content:   content,
		state:     core.CellIdle,
	}
}

// ID returns the cell ID.
func (r *CellRunner) ID() string { return r.id }

// State returns the current state.
func (r *CellRunner) State() core.CellState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run starts executing the cell's current content and returns immediately.
// The output of any previous run is cleared before Run returns.
func (r *CellRunner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.state == core.CellRunning {
		r.mu.Unlock()
		return &core.CellBusyError{CellID: r.id}
	}
	if !r.kind.Executable() {
		r.mu.Unlock()
		return &core.ValidationError{Field: "cell", Message: fmt.Sprintf("%s cells cannot be run", r.kind)}
	}
	if r.exec != nil {
		// an earlier run ended in-band but its transport has not returned yet
		r.exec.Cancel()
	}

	req := core.ExecutionRequest{Code: r.content, Language: r.kind.Language}
	r.gen++
	gen := r.gen
	r.state = core.CellRunning
	r.output = nil
	r.errMsg = ""
	r.transportErr = nil
	r.request = &req
	r.runs++
	r.startedAt = time.Now()
	r.finishedAt = time.Time{}
	done := make(chan struct{})
	r.done = done

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}
	exec := kernel.Start(runCtx, r.transport, req, func(c core.Chunk) { r.apply(gen, c) })
	r.exec = exec
	v, snap := r.changedLocked()
	r.mu.Unlock()

	r.logger.Debug("cell run started", slog.String("execution", exec.ID), slog.String("language", string(req.Language)))
	r.notify(v, snap)

	go r.await(gen, exec, cancel, done)
	return nil
}

// apply records one chunk of run gen.
func (r *CellRunner) apply(gen uint64, c core.Chunk) {
	r.mu.Lock()
	if gen != r.gen || r.state != core.CellRunning {
		r.mu.Unlock()
		return
	}
	if c.Type == core.ChunkError {
		r.state = core.CellFailed
		r.errMsg = c.Message
		r.finishedAt = time.Now()
	} else {
		r.output = append(r.output, c)
	}
	v, snap := r.changedLocked()
	r.mu.Unlock()

	r.notify(v, snap)
}

// await settles run gen once its execution finishes.
func (r *CellRunner) await(gen uint64, exec *kernel.Execution, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	err := exec.Wait()
	cancel()

	r.mu.Lock()
	if r.exec == exec {
		r.exec = nil
	}
	if gen != r.gen || r.state != core.CellRunning {
		r.mu.Unlock()
		return
	}

	r.finishedAt = time.Now()
	switch {
	case err == nil:
		r.state = core.CellCompleted
	case errors.Is(err, context.Canceled):
		r.state = core.CellIdle
	default:
		r.state = core.CellFailed
		r.transportErr = asTransportError(err)
	}
	state := r.state
	v, snap := r.changedLocked()
	r.mu.Unlock()

	if err != nil {
		r.logger.Debug("cell run ended", slog.String("state", string(state)), slog.String("error", err.Error()))
	} else {
		r.logger.Debug("cell run ended", slog.String("state", string(state)))
	}
	r.notify(v, snap)
}

// asTransportError keeps every failed run inside the transport error class.
func asTransportError(err error) error {
	if core.IsTransportError(err) {
		return err
	}
	op := "execute"
	if errors.Is(err, context.DeadlineExceeded) {
		op = "timeout"
	}
	return &core.TransportError{Op: op, Err: err}
}

// Cancel abandons the current run. The cell returns to idle and keeps the
// output received so far. Reports whether a run was cancelled.
func (r *CellRunner) Cancel() bool {
	r.mu.Lock()
	if r.state != core.CellRunning {
		r.mu.Unlock()
		return false
	}
	r.gen++
	r.state = core.CellIdle
	r.finishedAt = time.Now()
	if r.exec != nil {
		r.exec.Cancel()
	}
	v, snap := r.changedLocked()
	r.mu.Unlock()

	r.logger.Debug("cell run cancelled")
	r.notify(v, snap)
	return true
}

// SetSource updates the cell's kind and content.
//
// While running the change only affects the next run. Otherwise the previous
// result is cleared and the cell returns to idle.
func (r *CellRunner) SetSource(kind core.CellKind, content string) {
	r.mu.Lock()
	if kind == r.kind && content == r.content {
		r.mu.Unlock()
		return
	}
	r.kind = kind
	r.content = content
	if r.state != core.CellRunning {
		r.state = core.CellIdle
		r.output = nil
		r.errMsg = ""
		r.transportErr = nil
	}
	v, snap := r.changedLocked()
	r.mu.Unlock()

	r.notify(v, snap)
}

// Wait blocks until the current run, if any, has settled and returns the
// resulting snapshot.
func (r *CellRunner) Wait(ctx context.Context) (core.CellSnapshot, error) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return r.Snapshot(), ctx.Err()
		}
	}
	return r.Snapshot(), nil
}

// Snapshot returns a copy of the current state.
func (r *CellRunner) Snapshot() core.CellSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *CellRunner) snapshotLocked() core.CellSnapshot {
	snap := core.CellSnapshot{
		CellID:       r.id,
		State:        r.state,
		Output:       slices.Clone(r.output),
		ErrorMessage: r.errMsg,
		TransportErr: r.transportErr,
		Runs:         r.runs,
		StartedAt:    r.startedAt,
		FinishedAt:   r.finishedAt,
	}
	if snap.Output == nil {
		snap.Output = []core.Chunk{}
	}
	if r.request != nil {
		req := *r.request
		snap.Request = &req
	}
	return snap
}

func (r *CellRunner) changedLocked() (uint64, core.CellSnapshot) {
	r.version++
	return r.version, r.snapshotLocked()
}

// notify delivers snap unless a newer snapshot was already delivered.
func (r *CellRunner) notify(version uint64, snap core.CellSnapshot) {
	if r.onChange == nil {
		return
	}
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	if version <= r.lastNotified {
		return
	}
	r.lastNotified = version
	r.onChange(snap)
}
