package core

import "fmt"

// CellKindName is the family a cell belongs to.
type CellKindName string

// Cell kind families.
const (
	KindNarrative     CellKindName = "narrative"
	KindCode          CellKindName = "code"
	KindVisualization CellKindName = "visualization"
)

// CellKind is the kind of a notebook cell. Language is set only for code cells.
type CellKind struct {
	Name     CellKindName `json:"name"`
	Language Language     `json:"language,omitempty"`
}

// Narrative returns the narrative-text kind.
func Narrative() CellKind { return CellKind{Name: KindNarrative} }

// Code returns the imperative-code kind for lang.
func Code(lang Language) CellKind { return CellKind{Name: KindCode, Language: lang} }

// Visualization returns the visualization kind.
func Visualization() CellKind { return CellKind{Name: KindVisualization} }

// Executable reports whether cells of this kind can be run.
func (k CellKind) Executable() bool {
	return k.Name == KindCode
}

// Validate checks the kind is one of the known shapes.
func (k CellKind) Validate() error {
	switch k.Name {
	case KindNarrative, KindVisualization:
		if k.Language != "" {
			return &ValidationError{Field: "kind", Message: fmt.Sprintf("%s cells do not take a language", k.Name)}
		}
		return nil
	case KindCode:
		if !k.Language.Valid() {
			return &ValidationError{Field: "kind", Message: fmt.Sprintf("unsupported language %q", k.Language)}
		}
		return nil
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown cell kind %q", k.Name)}
	}
}

// String renders the kind the way the CLI accepts it: "markdown", "python", "sql", "chart".
func (k CellKind) String() string {
	switch k.Name {
	case KindNarrative:
		return "markdown"
	case KindVisualization:
		return "chart"
	case KindCode:
		return string(k.Language)
	default:
		return string(k.Name)
	}
}

// ParseCellKind parses the CLI spelling of a cell kind.
func ParseCellKind(s string) (CellKind, error) {
	switch s {
	case "markdown", "md", "text", "narrative":
		return Narrative(), nil
	case "chart", "visualization":
		return Visualization(), nil
	}
	lang, err := ParseLanguage(s)
	if err != nil {
		return CellKind{}, &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown cell kind %q (want markdown, python, sql or chart)", s)}
	}
	return Code(lang), nil
}

// =============================================================================
// Cell lifecycle
// =============================================================================

// CellState is the execution state of a single cell.
type CellState string

// Cell states.
const (
	CellIdle      CellState = "idle"
	CellRunning   CellState = "running"
	CellCompleted CellState = "completed"
	CellFailed    CellState = "failed"
)

// Terminal reports whether the state ends a run.
func (s CellState) Terminal() bool {
	return s == CellCompleted || s == CellFailed
}

// NotebookStatus summarizes all cells of a notebook.
type NotebookStatus string

// Notebook statuses.
const (
	NotebookIdle      NotebookStatus = "idle"
	NotebookRunning   NotebookStatus = "running"
	NotebookCompleted NotebookStatus = "completed"
	NotebookError     NotebookStatus = "error"
)
