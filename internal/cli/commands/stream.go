package commands

import (
	"sync"

	"github.com/leapstack-labs/leapnb/internal/cli/output"
	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/leapstack-labs/leapnb/pkg/runtime"
)

// streamer prints cell output as it arrives. Listener events may skip
// intermediate snapshots, so it prints the output it has not seen yet.
type streamer struct {
	r *output.Renderer

	mu       sync.Mutex
	cells    map[string]notebook.Cell
	index    map[string]int
	runs     map[string]int
	printed  map[string]int
	finished map[string]int
}

func newStreamer(r *output.Renderer, cells []notebook.Cell) *streamer {
	st := &streamer{
		r:        r,
		runs:     make(map[string]int),
		printed:  make(map[string]int),
		finished: make(map[string]int),
	}
	st.reset(cells)
	return st
}

// reset forgets all progress and indexes cells for headers.
func (st *streamer) reset(cells []notebook.Cell) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cells = make(map[string]notebook.Cell, len(cells))
	st.index = make(map[string]int, len(cells))
	for i, c := range cells {
		st.cells[c.ID] = c
		st.index[c.ID] = i
	}
	clear(st.runs)
	clear(st.printed)
	clear(st.finished)
}

func (st *streamer) onEvent(ev runtime.Event) {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := ev.Snapshot
	if snap.Runs == 0 || st.finished[ev.CellID] == snap.Runs {
		return
	}
	if snap.Runs != st.runs[ev.CellID] {
		st.runs[ev.CellID] = snap.Runs
		st.printed[ev.CellID] = 0
		st.r.CellHeader(st.index[ev.CellID], st.cells[ev.CellID])
	}

	n := min(st.printed[ev.CellID], len(snap.Output))
	for _, c := range snap.Output[n:] {
		st.r.Chunk(c)
	}
	st.printed[ev.CellID] = len(snap.Output)

	if snap.State != core.CellRunning {
		st.finished[ev.CellID] = snap.Runs
		st.r.CellResult(snap)
	}
}
