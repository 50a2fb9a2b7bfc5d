package kernel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapnb/pkg/core"
)

// CancelGrace bounds how long a cancelled Execution waits for its transport
// to return before settling without it.
var CancelGrace = 2 * time.Second

// Execution is a handle on one in-flight Transport.Execute call.
//
// Once Cancel has been called no chunk whose delivery had not already begun
// reaches the callback, and Wait returns an error wrapping context.Canceled
// within CancelGrace.
type Execution struct {
	ID      string
	Request core.ExecutionRequest

	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Start runs req on t in a new goroutine and returns its handle.
func Start(ctx context.Context, t Transport, req core.ExecutionRequest, onChunk core.ChunkFunc) *Execution {
	ctx, cancel := context.WithCancel(ctx)
	e := &Execution{
		ID:      uuid.NewString(),
		Request: req,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	result := make(chan error, 1)
	go func() {
		result <- t.Execute(ctx, req, func(c core.Chunk) {
			if e.stopped.Load() {
				return
			}
			onChunk(c)
		})
	}()

	go e.settle(ctx, result)
	return e
}

// settle waits for the transport or for cancellation, whichever comes first.
func (e *Execution) settle(ctx context.Context, result <-chan error) {
	defer e.cancel()

	select {
	case err := <-result:
		if err == nil && ctx.Err() != nil {
			// returned in the same instant it was cancelled: cancel wins
			e.stopped.Store(true)
			err = fmt.Errorf("execution %s cancelled: %w", e.ID, ctx.Err())
		}
		e.finish(err)
	case <-ctx.Done():
		e.stopped.Store(true)
		cause := fmt.Errorf("execution %s cancelled: %w", e.ID, ctx.Err())
		timer := time.NewTimer(CancelGrace)
		defer timer.Stop()
		select {
		case <-result:
		case <-timer.C:
		}
		e.finish(cause)
	}
}

func (e *Execution) finish(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
	close(e.done)
}

// Cancel abandons the execution. Safe to call multiple times and after completion.
func (e *Execution) Cancel() {
	e.stopped.Store(true)
	e.cancel()
}

// Done is closed once the execution has settled.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the execution settles and returns its result.
func (e *Execution) Wait() error {
	<-e.done
	return e.Err()
}

// Err returns the settled result; nil while still running.
func (e *Execution) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
