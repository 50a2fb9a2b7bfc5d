package core

import "time"

// CellSnapshot is a point-in-time copy of a cell's execution state.
// Snapshots are values; mutating one never affects the runner it came from.
type CellSnapshot struct {
	CellID string
	State  CellState

	// Output holds every non-error chunk of the current run, in arrival order.
	Output []Chunk

	// ErrorMessage is set when an in-band error chunk failed the run.
	ErrorMessage string

	// TransportErr is set when the run failed below the execution contract.
	TransportErr error

	// Request is the snapshot of code sent to the transport for the current run.
	Request *ExecutionRequest

	// Runs counts how many runs were started on this cell.
	Runs int

	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether the snapshot ended in failure.
func (s CellSnapshot) Failed() bool {
	return s.State == CellFailed
}

// Err returns the run failure as an error, or nil.
func (s CellSnapshot) Err() error {
	if s.TransportErr != nil {
		return s.TransportErr
	}
	if s.ErrorMessage != "" {
		return &ExecutionError{Message: s.ErrorMessage}
	}
	return nil
}
