package notebook

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Interchange format version written on save. Only documents with the same
// major version can be loaded.
const (
	FormatVersion = 4
	FormatMinor   = 5
)

// Interchange cell kinds.
const (
	CellKindNarrative  = "narrative"
	CellKindImperative = "imperative"
)

// Reserved cellMetadata keys written by Serialize.
const (
	metaLanguage = "language"
	metaKind     = "kind"
	metaID       = "id"
)

//go:embed schema/*.json
var schemaFS embed.FS

// InterchangeDocument is the portable JSON form of a notebook.
type InterchangeDocument struct {
	FormatVersion    int               `json:"formatVersion"`
	FormatMinor      int               `json:"formatMinor"`
	DocumentMetadata DocumentMetadata  `json:"documentMetadata"`
	Cells            []InterchangeCell `json:"cells"`
}

// DocumentMetadata holds document-level metadata.
type DocumentMetadata struct {
	LanguageHint string `json:"languageHint,omitempty"`
	Title        string `json:"title,omitempty"`
}

// InterchangeCell is one cell of an InterchangeDocument.
type InterchangeCell struct {
	CellKind         string            `json:"cellKind"`
	SourceLines      []string          `json:"sourceLines"`
	CellMetadata     map[string]any    `json:"cellMetadata"`
	PriorOutputs     []json.RawMessage `json:"priorOutputs"`
	ExecutionCounter *int              `json:"executionCounter"`
}

// Serialize converts d to its interchange form. Outputs are never saved.
func (d *Document) Serialize() *InterchangeDocument {
	doc := &InterchangeDocument{
		FormatVersion: FormatVersion,
		FormatMinor:   FormatMinor,
		DocumentMetadata: DocumentMetadata{
			LanguageHint: string(d.languageHint()),
			Title:        d.Title,
		},
		Cells: make([]InterchangeCell, 0, len(d.cells)),
	}

	for _, c := range d.cells {
		meta := c.metadataValues()
		meta[metaID] = c.ID

		ic := InterchangeCell{
			CellKind:     CellKindImperative,
			SourceLines:  splitLines(c.Content),
			PriorOutputs: []json.RawMessage{},
		}
		switch c.Kind.Name {
		case core.KindNarrative:
			ic.CellKind = CellKindNarrative
		case core.KindVisualization:
			meta[metaKind] = string(core.KindVisualization)
		case core.KindCode:
			meta[metaLanguage] = string(c.Kind.Language)
		}
		ic.CellMetadata = meta
		doc.Cells = append(doc.Cells, ic)
	}
	return doc
}

// languageHint is the language of the first code cell, python by default.
func (d *Document) languageHint() core.Language {
	for _, c := range d.cells {
		if c.Kind.Name == core.KindCode {
			return c.Kind.Language
		}
	}
	return core.LanguagePython
}

// Marshal serializes d to indented JSON.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(d.Serialize(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notebook: %w", err)
	}
	return append(data, '\n'), nil
}

// Deserialize builds a Document from its interchange form.
//
// Code cells take their language from cellMetadata when it names a supported
// language and from ClassifyLanguage otherwise. Cell IDs saved in
// cellMetadata are kept when unique; other cells get fresh IDs.
func Deserialize(doc *InterchangeDocument) (*Document, error) {
	if doc == nil {
		return nil, &core.FormatError{Reason: "empty document"}
	}
	if doc.FormatVersion == 0 {
		return nil, &core.FormatError{Reason: "missing formatVersion"}
	}
	if doc.FormatVersion != FormatVersion {
		return nil, &core.FormatError{Reason: fmt.Sprintf("unsupported formatVersion %d (want %d)", doc.FormatVersion, FormatVersion)}
	}
	if doc.Cells == nil {
		return nil, &core.FormatError{Reason: "missing cells"}
	}

	out := New(doc.DocumentMetadata.Title)
	out.cells = make([]*Cell, 0, len(doc.Cells))
	for i, ic := range doc.Cells {
		c, err := decodeCell(ic)
		if err != nil {
			return nil, &core.FormatError{Reason: fmt.Sprintf("cell %d", i), Err: err}
		}
		if c.ID == "" || out.Index(c.ID) >= 0 {
			c.ID = out.newID()
		}
		out.cells = append(out.cells, c)
	}
	return out, nil
}

func decodeCell(ic InterchangeCell) (*Cell, error) {
	c := &Cell{Content: strings.Join(ic.SourceLines, "")}
	imperative := ic.CellKind == CellKindImperative

	var language, kind string
	for k, v := range ic.CellMetadata {
		switch {
		case k == metaID:
			c.ID, _ = v.(string)
		case k == metaLanguage && imperative:
			language, _ = v.(string)
		case k == metaKind && imperative:
			kind, _ = v.(string)
		default:
			c.setMetadata(k, v)
		}
	}

	switch ic.CellKind {
	case CellKindNarrative:
		c.Kind = core.Narrative()
	case CellKindImperative:
		switch {
		case kind == string(core.KindVisualization):
			c.Kind = core.Visualization()
		case core.Language(language).Valid():
			c.Kind = core.Code(core.Language(language))
		default:
			c.Kind = core.Code(ClassifyLanguage(c.Content))
		}
	default:
		return nil, fmt.Errorf("unknown cellKind %q", ic.CellKind)
	}
	return c, nil
}

// setMetadata stores v under k. Non-string values keep their JSON form in
// Metadata and their original value for saving.
func (c *Cell) setMetadata(k string, v any) {
	if c.Metadata == nil {
		c.Metadata = make(map[string]string)
	}
	s := metadataString(v)
	c.Metadata[k] = s
	if _, ok := v.(string); ok {
		return
	}
	if c.typed == nil {
		c.typed = make(map[string]any)
	}
	c.typed[k] = v
}

// metadataValues returns the cell's metadata for saving. A value loaded as a
// non-string is written back with its original type unless it was edited.
func (c *Cell) metadataValues() map[string]any {
	out := make(map[string]any, len(c.Metadata)+2)
	for k, s := range c.Metadata {
		if v, ok := c.typed[k]; ok && metadataString(v) == s {
			out[k] = v
			continue
		}
		out[k] = s
	}
	return out
}

func metadataString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Unmarshal parses and validates an interchange document.
func Unmarshal(data []byte) (*Document, error) {
	if err := validateSchema(interchangeSchema, data); err != nil {
		return nil, err
	}
	var doc InterchangeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &core.FormatError{Reason: "malformed JSON", Err: err}
	}
	return Deserialize(&doc)
}

// splitLines splits s after every newline, keeping the newlines.
func splitLines(s string) []string {
	lines := make([]string, 0, strings.Count(s, "\n")+1)
	for line := range strings.Lines(s) {
		lines = append(lines, line)
	}
	return lines
}

// =============================================================================
// Schema validation
// =============================================================================

const (
	interchangeSchema = "schema/interchange.schema.json"
	ipynbSchema       = "schema/ipynb.schema.json"
)

var compileSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	names := []string{interchangeSchema, ipynbSchema}
	for _, name := range names {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
	}

	schemas := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		s, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		schemas[name] = s
	}
	return schemas, nil
})

// validateSchema checks data against the named embedded schema.
func validateSchema(name string, data []byte) error {
	var instance any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return &core.FormatError{Reason: "malformed JSON", Err: err}
	}
	if _, ok := instance.(map[string]any); !ok {
		return &core.FormatError{Reason: "document is not a JSON object"}
	}

	schemas, err := compileSchemas()
	if err != nil {
		return fmt.Errorf("failed to load notebook schema: %w", err)
	}
	if err := schemas[name].Validate(instance); err != nil {
		return &core.FormatError{Reason: "document does not match the notebook schema", Err: err}
	}
	return nil
}

