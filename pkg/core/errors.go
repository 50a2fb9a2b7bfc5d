package core

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrCellNotFound is returned when a cell ID is not part of the document.
	ErrCellNotFound = errors.New("cell not found")

	// ErrCellBusy is returned when a run is requested for a cell that is already running.
	ErrCellBusy = errors.New("cell is already running")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// FormatError is returned when an interchange document is malformed or unsupported.
// The in-memory document is never modified when a FormatError is returned.
type FormatError struct {
	Path   string // file path, empty when decoding from memory
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("invalid notebook %s: %s", e.Path, msg)
	}
	return "invalid notebook: " + msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// ExecutionError is a backend-reported failure delivered in-band as an error chunk.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Message
}

// TransportError is an infrastructure failure before a terminal chunk arrived.
// It is distinct from ExecutionError so callers can offer retry semantics.
type TransportError struct {
	Kernel string // transport name, e.g. "remote"
	Op     string // operation that failed, e.g. "connect", "stream"
	Err    error
}

func (e *TransportError) Error() string {
	if e.Kernel != "" {
		return fmt.Sprintf("%s kernel: %s: %v", e.Kernel, e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ValidationError reports invalid user input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CellBusyError names the cell that rejected a concurrent run.
type CellBusyError struct {
	CellID string
}

func (e *CellBusyError) Error() string {
	return fmt.Sprintf("cell %s is already running", e.CellID)
}

func (e *CellBusyError) Is(target error) bool { return target == ErrCellBusy }

// IsTransportError reports whether err is, or wraps, a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
