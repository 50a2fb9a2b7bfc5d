package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"golang.org/x/sync/errgroup"
)

// Event reports a change to one cell's execution state.
type Event struct {
	CellID   string
	Snapshot core.CellSnapshot
}

// Listener receives session events. Listeners are called from execution
// goroutines and must not call back into the session synchronously.
type Listener func(Event)

// Options configures a Session.
type Options struct {
	Transport kernel.Transport

	// ExecTimeout bounds each cell run. Zero means no limit.
	ExecTimeout time.Duration

	Logger *slog.Logger
}

// Session owns a notebook document and the runners of its cells.
// All document mutations go through the session, which serializes them.
type Session struct {
	transport   kernel.Transport
	execTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	doc     *notebook.Document
	runners map[string]*CellRunner
	closed  bool

	listenersMu sync.RWMutex
	listeners   map[int]Listener
	nextID      int
}

// NewSession creates a session over doc. The session takes ownership of doc.
func NewSession(doc *notebook.Document, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if doc == nil {
		doc = notebook.New("")
	}
	s := &Session{
		transport:   opts.Transport,
		execTimeout: opts.ExecTimeout,
		logger:      logger,
		doc:         doc,
		listeners:   make(map[int]Listener),
	}
	s.resetRunnersLocked()
	return s
}

func (s *Session) resetRunnersLocked() {
	s.runners = make(map[string]*CellRunner, s.doc.Len())
	for _, c := range s.doc.Cells() {
		s.runners[c.ID] = s.newRunner(c)
	}
}

func (s *Session) newRunner(c notebook.Cell) *CellRunner {
	return NewCellRunner(c.ID, c.Kind, c.Content, s.transport, RunnerOptions{
		Timeout:  s.execTimeout,
		OnChange: s.broadcast,
		Logger:   s.logger,
	})
}

// Subscribe registers l and returns a function that removes it.
func (s *Session) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Session) broadcast(snap core.CellSnapshot) {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()
	for _, l := range s.listeners {
		l(Event{CellID: snap.CellID, Snapshot: snap})
	}
}

// =============================================================================
// Document access
// =============================================================================

// Title returns the document title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Title
}

// Cells returns copies of the document's cells in order.
func (s *Session) Cells() []notebook.Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Cells()
}

// Cell returns a copy of one cell.
func (s *Session) Cell(id string) (notebook.Cell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Cell(id)
}

// Document returns a copy of the document.
func (s *Session) Document() *notebook.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// AddCell inserts an empty cell and returns its ID.
func (s *Session) AddCell(kind core.CellKind, at int) (string, error) {
	return s.InsertCell(notebook.Cell{Kind: kind}, at)
}

// InsertCell inserts a cell with content and returns its ID.
func (s *Session) InsertCell(c notebook.Cell, at int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", core.ErrClosed
	}

	id, err := s.doc.InsertCell(c, at)
	if err != nil {
		return "", err
	}
	cell, _ := s.doc.Cell(id)
	s.runners[id] = s.newRunner(cell)
	return id, nil
}

// RemoveCell removes a cell, cancelling its run if one is in flight.
func (s *Session) RemoveCell(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}

	if err := s.doc.RemoveCell(id); err != nil {
		return err
	}
	if r := s.runners[id]; r != nil {
		r.Cancel()
		delete(s.runners, id)
	}
	return nil
}

// UpdateCell merges patch into a cell. A running cell keeps running with the
// code it started with.
func (s *Session) UpdateCell(id string, patch notebook.CellPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}

	if err := s.doc.UpdateCell(id, patch); err != nil {
		return err
	}
	cell, _ := s.doc.Cell(id)
	s.runners[id].SetSource(cell.Kind, cell.Content)
	return nil
}

// MoveCell moves a cell to a new position.
func (s *Session) MoveCell(id string, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	return s.doc.MoveCell(id, to)
}

// Load replaces the document with the notebook at path, cancelling all runs.
// On error the session is unchanged.
func (s *Session) Load(path string) error {
	loaded, err := notebook.LoadFile(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	for _, r := range s.runners {
		r.Cancel()
	}
	s.doc = loaded
	s.resetRunnersLocked()
	s.logger.Debug("notebook loaded", slog.String("path", path), slog.Int("cells", loaded.Len()))
	return nil
}

// Save writes the document to path. Outputs are not saved.
func (s *Session) Save(path string) error {
	doc := s.Document()
	if err := notebook.SaveFile(path, doc); err != nil {
		return err
	}
	s.logger.Debug("notebook saved", slog.String("path", path))
	return nil
}

// =============================================================================
// Execution
// =============================================================================

func (s *Session) runner(id string) (*CellRunner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, core.ErrClosed
	}
	r, ok := s.runners[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrCellNotFound, id)
	}
	return r, nil
}

// Run starts a cell and returns without waiting for it.
func (s *Session) Run(ctx context.Context, id string) error {
	r, err := s.runner(id)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

// RunAndWait runs a cell and waits for the run to settle.
// A cell that fails still returns a nil error; inspect the snapshot.
func (s *Session) RunAndWait(ctx context.Context, id string) (core.CellSnapshot, error) {
	r, err := s.runner(id)
	if err != nil {
		return core.CellSnapshot{}, err
	}
	if err := r.Run(ctx); err != nil {
		return r.Snapshot(), err
	}
	return r.Wait(ctx)
}

// Wait blocks until the cell's current run settles.
func (s *Session) Wait(ctx context.Context, id string) (core.CellSnapshot, error) {
	r, err := s.runner(id)
	if err != nil {
		return core.CellSnapshot{}, err
	}
	return r.Wait(ctx)
}

// Cancel cancels a cell's run. Reports whether a run was cancelled.
func (s *Session) Cancel(id string) (bool, error) {
	r, err := s.runner(id)
	if err != nil {
		return false, err
	}
	return r.Cancel(), nil
}

// CancelAll cancels every running cell.
func (s *Session) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runners {
		r.Cancel()
	}
}

// Snapshot returns the execution state of one cell.
func (s *Session) Snapshot(id string) (core.CellSnapshot, error) {
	r, err := s.runner(id)
	if err != nil {
		return core.CellSnapshot{}, err
	}
	return r.Snapshot(), nil
}

// Snapshots returns the execution state of every cell in document order.
func (s *Session) Snapshots() []core.CellSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cells := s.doc.Cells()
	out := make([]core.CellSnapshot, 0, len(cells))
	for _, c := range cells {
		out = append(out, s.runners[c.ID].Snapshot())
	}
	return out
}

// Outputs returns the output of every cell that has any, keyed by cell ID.
// Error chunks are appended for failed cells.
func (s *Session) Outputs() map[string][]core.Chunk {
	out := make(map[string][]core.Chunk)
	for _, snap := range s.Snapshots() {
		chunks := snap.Output
		if snap.ErrorMessage != "" {
			chunks = append(chunks, core.ErrorChunk(snap.ErrorMessage))
		} else if snap.TransportErr != nil {
			chunks = append(chunks, core.ErrorChunk(snap.TransportErr.Error()))
		}
		if len(chunks) > 0 {
			out[snap.CellID] = chunks
		}
	}
	return out
}

// Status summarizes the state of all cells: running if any cell runs, else
// error if any failed, else completed if any completed, else idle.
func (s *Session) Status() core.NotebookStatus {
	var running, failed, completed bool
	for _, snap := range s.Snapshots() {
		switch snap.State {
		case core.CellRunning:
			running = true
		case core.CellFailed:
			failed = true
		case core.CellCompleted:
			completed = true
		}
	}
	switch {
	case running:
		return core.NotebookRunning
	case failed:
		return core.NotebookError
	case completed:
		return core.NotebookCompleted
	default:
		return core.NotebookIdle
	}
}

// RunAllOptions controls RunAll.
type RunAllOptions struct {
	// Parallel starts every code cell at once instead of one after another.
	Parallel bool

	// StopOnError stops at the first failed cell. In parallel mode the
	// remaining runs are cancelled.
	StopOnError bool
}

// CellFailedError reports the cell that stopped RunAll.
type CellFailedError struct {
	CellID string
	Err    error
}

func (e *CellFailedError) Error() string {
	return fmt.Sprintf("cell %s failed: %v", e.CellID, e.Err)
}

func (e *CellFailedError) Unwrap() error { return e.Err }

// RunAll runs every code cell in document order and returns their snapshots.
func (s *Session) RunAll(ctx context.Context, opts RunAllOptions) ([]core.CellSnapshot, error) {
	var ids []string
	for _, c := range s.Cells() {
		if c.Kind.Executable() {
			ids = append(ids, c.ID)
		}
	}
	s.logger.Info("running notebook", slog.Int("cells", len(ids)), slog.Bool("parallel", opts.Parallel))

	results := make([]core.CellSnapshot, len(ids))
	var err error
	if opts.Parallel {
		err = s.runParallel(ctx, ids, results, opts.StopOnError)
	} else {
		err = s.runSequential(ctx, ids, results, opts.StopOnError)
	}

	var ran []core.CellSnapshot
	for _, r := range results {
		if r.CellID != "" {
			ran = append(ran, r)
		}
	}
	return ran, err
}

func (s *Session) runSequential(ctx context.Context, ids []string, results []core.CellSnapshot, stopOnError bool) error {
	var errs []error
	for i, id := range ids {
		snap, err := s.RunAndWait(ctx, id)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		results[i] = snap
		if snap.Failed() {
			failure := &CellFailedError{CellID: id, Err: snap.Err()}
			if stopOnError {
				return failure
			}
			errs = append(errs, failure)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) runParallel(ctx context.Context, ids []string, results []core.CellSnapshot, stopOnError bool) error {
	g, gctx := errgroup.WithContext(ctx)
	runCtx := ctx
	if stopOnError {
		runCtx = gctx
	}

	var mu sync.Mutex
	var failures []error
	for i, id := range ids {
		g.Go(func() error {
			snap, err := s.RunAndWait(runCtx, id)
			if err != nil {
				return err
			}
			results[i] = snap
			if snap.Failed() {
				failure := &CellFailedError{CellID: id, Err: snap.Err()}
				if stopOnError {
					return failure
				}
				mu.Lock()
				failures = append(failures, failure)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(failures...)
}

// Close cancels all runs. Later calls that change the session return ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, r := range s.runners {
		r.Cancel()
	}
	return nil
}
