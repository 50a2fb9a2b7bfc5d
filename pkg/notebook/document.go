// Package notebook implements the notebook document model: an ordered list of
// narrative and code cells, edit operations, and conversion to and from the
// JSON interchange format.
//
// A Document is not safe for concurrent use; runtime.Session serializes access.
package notebook

import (
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/leapstack-labs/leapnb/pkg/core"
)

// Well-known cell metadata keys carried over from the dashboard editor.
const (
	MetaInstance = "instance"
	MetaDatabase = "database"
	MetaTable    = "table"
)

// Cell is one unit of a notebook.
type Cell struct {
	ID       string
	Kind     core.CellKind
	Content  string
	Metadata map[string]string

	// typed holds non-string metadata values as loaded, keyed like Metadata.
	typed map[string]any
}

func (c *Cell) clone() *Cell {
	cp := *c
	cp.Metadata = maps.Clone(c.Metadata)
	cp.typed = maps.Clone(c.typed)
	return &cp
}

// checkMetadata rejects keys the interchange format writes itself. Narrative
// cells only reserve the ID key.
func checkMetadata(kind core.CellKind, m map[string]string) error {
	for k := range m {
		if k == metaID || (kind.Name != core.KindNarrative && (k == metaLanguage || k == metaKind)) {
			return &core.ValidationError{
				Field:   "metadata",
				Message: fmt.Sprintf("key %q is reserved", k),
			}
		}
	}
	return nil
}

// CellPatch holds the fields UpdateCell merges into a cell. Nil fields are left alone.
type CellPatch struct {
	Content  *string
	Kind     *core.CellKind
	Metadata map[string]string // merged key by key; empty value deletes the key
}

// Document is an ordered collection of cells plus a display title.
type Document struct {
	Title string
	cells []*Cell
}

// New creates an empty document.
func New(title string) *Document {
	return &Document{Title: title}
}

// Len returns the number of cells.
func (d *Document) Len() int { return len(d.cells) }

// Cells returns copies of all cells in display order.
func (d *Document) Cells() []Cell {
	out := make([]Cell, len(d.cells))
	for i, c := range d.cells {
		out[i] = *c.clone()
	}
	return out
}

// Cell returns a copy of the cell with the given ID.
func (d *Document) Cell(id string) (Cell, error) {
	i := d.Index(id)
	if i < 0 {
		return Cell{}, fmt.Errorf("%w: %s", core.ErrCellNotFound, id)
	}
	return *d.cells[i].clone(), nil
}

// Index returns the position of the cell with the given ID, or -1.
func (d *Document) Index(id string) int {
	return slices.IndexFunc(d.cells, func(c *Cell) bool { return c.ID == id })
}

// AddCell inserts an empty cell of the given kind at index and returns its ID.
// An index of -1 appends.
func (d *Document) AddCell(kind core.CellKind, at int) (string, error) {
	return d.insert(&Cell{Kind: kind}, at)
}

// InsertCell inserts a cell with content at index. The cell's ID is ignored
// and a fresh one assigned.
func (d *Document) InsertCell(c Cell, at int) (string, error) {
	cp := c.clone()
	cp.ID = ""
	return d.insert(cp, at)
}

func (d *Document) insert(c *Cell, at int) (string, error) {
	if err := c.Kind.Validate(); err != nil {
		return "", err
	}
	if err := checkMetadata(c.Kind, c.Metadata); err != nil {
		return "", err
	}
	if at == -1 {
		at = len(d.cells)
	}
	if at < 0 || at > len(d.cells) {
		return "", &core.ValidationError{
			Field:   "index",
			Message: fmt.Sprintf("index %d out of range [0, %d]", at, len(d.cells)),
		}
	}
	c.ID = d.newID()
	d.cells = slices.Insert(d.cells, at, c)
	return c.ID, nil
}

func (d *Document) newID() string {
	for {
		id := uuid.NewString()
		if d.Index(id) < 0 {
			return id
		}
	}
}

// RemoveCell removes the cell with the given ID.
func (d *Document) RemoveCell(id string) error {
	i := d.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", core.ErrCellNotFound, id)
	}
	d.cells = slices.Delete(d.cells, i, i+1)
	return nil
}

// UpdateCell merges patch into the cell. The ID never changes.
func (d *Document) UpdateCell(id string, patch CellPatch) error {
	i := d.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", core.ErrCellNotFound, id)
	}
	if patch.Kind != nil {
		if err := patch.Kind.Validate(); err != nil {
			return err
		}
	}

	c := d.cells[i]
	kind := c.Kind
	if patch.Kind != nil {
		kind = *patch.Kind
	}
	if err := checkMetadata(kind, patch.Metadata); err != nil {
		return err
	}
	if kind.Name != core.KindNarrative {
		if err := checkMetadata(kind, c.Metadata); err != nil {
			return err
		}
	}

	if patch.Content != nil {
		c.Content = *patch.Content
	}
	if patch.Kind != nil {
		c.Kind = *patch.Kind
	}
	for k, v := range patch.Metadata {
		if v == "" {
			delete(c.Metadata, k)
			continue
		}
		if c.Metadata == nil {
			c.Metadata = make(map[string]string)
		}
		c.Metadata[k] = v
	}
	return nil
}

// MoveCell moves the cell with the given ID to index to.
func (d *Document) MoveCell(id string, to int) error {
	i := d.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", core.ErrCellNotFound, id)
	}
	if to < 0 || to >= len(d.cells) {
		return &core.ValidationError{
			Field:   "index",
			Message: fmt.Sprintf("index %d out of range [0, %d)", to, len(d.cells)),
		}
	}
	c := d.cells[i]
	d.cells = slices.Delete(d.cells, i, i+1)
	d.cells = slices.Insert(d.cells, to, c)
	return nil
}

// Clone returns a deep copy of d. Cell IDs are preserved.
func (d *Document) Clone() *Document {
	out := &Document{Title: d.Title, cells: make([]*Cell, len(d.cells))}
	for i, c := range d.cells {
		out.cells[i] = c.clone()
	}
	return out
}

// Replace swaps d's contents for other's.
// Used by loaders so a failed load never touches d.
func (d *Document) Replace(other *Document) {
	c := other.Clone()
	d.Title = c.Title
	d.cells = c.cells
}
