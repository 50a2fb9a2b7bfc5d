package notebook

import (
	"encoding/json"
	"fmt"

	"github.com/leapstack-labs/leapnb/pkg/core"
)

// Jupyter notebook documents (.ipynb, nbformat 4) map onto the interchange
// model: markdown and raw cells become narrative cells, code cells become
// imperative cells.

type jupyterNotebook struct {
	NBFormat      int             `json:"nbformat"`
	NBFormatMinor int             `json:"nbformat_minor"`
	Metadata      jupyterMetadata `json:"metadata"`
	Cells         []jupyterCell   `json:"cells"`
}

type jupyterMetadata struct {
	Title        string               `json:"title,omitempty"`
	LanguageInfo *jupyterLanguageInfo `json:"language_info,omitempty"`
	KernelSpec   *jupyterKernelSpec   `json:"kernelspec,omitempty"`
}

type jupyterLanguageInfo struct {
	Name string `json:"name"`
}

type jupyterKernelSpec struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language,omitempty"`
}

type jupyterCell struct {
	ID             string            `json:"id,omitempty"`
	CellType       string            `json:"cell_type"`
	Source         jupyterSource     `json:"source"`
	Metadata       map[string]any    `json:"metadata"`
	Outputs        []json.RawMessage `json:"outputs,omitempty"`
	ExecutionCount *int              `json:"execution_count,omitempty"`
}

// MarshalJSON writes outputs and execution_count for code cells only, as
// nbformat requires.
func (c jupyterCell) MarshalJSON() ([]byte, error) {
	m := map[string]any{
		"cell_type": c.CellType,
		"source":    []string(c.Source),
		"metadata":  c.Metadata,
	}
	if c.ID != "" {
		m["id"] = c.ID
	}
	if c.CellType == "code" {
		outputs := c.Outputs
		if outputs == nil {
			outputs = []json.RawMessage{}
		}
		m["outputs"] = outputs
		m["execution_count"] = c.ExecutionCount
	}
	return json.Marshal(m)
}

// jupyterSource accepts both the string and the list-of-lines form.
type jupyterSource []string

func (s *jupyterSource) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = splitLines(one)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*s = lines
	return nil
}

// UnmarshalJupyter parses a Jupyter notebook.
//
// A code cell's language comes from its metadata, then from the notebook's
// kernel language when that is SQL, then from ClassifyLanguage.
func UnmarshalJupyter(data []byte) (*Document, error) {
	if err := validateSchema(ipynbSchema, data); err != nil {
		return nil, err
	}
	var nb jupyterNotebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return nil, &core.FormatError{Reason: "malformed JSON", Err: err}
	}
	if nb.NBFormat != FormatVersion {
		return nil, &core.FormatError{Reason: fmt.Sprintf("unsupported nbformat %d (want %d)", nb.NBFormat, FormatVersion)}
	}
	return Deserialize(nb.interchange())
}

func (nb *jupyterNotebook) kernelLanguage() string {
	if nb.Metadata.LanguageInfo != nil && nb.Metadata.LanguageInfo.Name != "" {
		return nb.Metadata.LanguageInfo.Name
	}
	if nb.Metadata.KernelSpec != nil {
		return nb.Metadata.KernelSpec.Language
	}
	return ""
}

func (nb *jupyterNotebook) interchange() *InterchangeDocument {
	doc := &InterchangeDocument{
		FormatVersion: nb.NBFormat,
		FormatMinor:   nb.NBFormatMinor,
		DocumentMetadata: DocumentMetadata{
			LanguageHint: nb.kernelLanguage(),
			Title:        nb.Metadata.Title,
		},
		Cells: make([]InterchangeCell, 0, len(nb.Cells)),
	}
	sqlKernel := doc.DocumentMetadata.LanguageHint == string(core.LanguageSQL)

	for _, jc := range nb.Cells {
		meta := make(map[string]any, len(jc.Metadata)+1)
		for k, v := range jc.Metadata {
			meta[k] = v
		}
		if jc.ID != "" {
			meta[metaID] = jc.ID
		}

		kind := CellKindNarrative
		if jc.CellType == "code" {
			kind = CellKindImperative
			if _, ok := meta[metaLanguage]; !ok && sqlKernel {
				meta[metaLanguage] = string(core.LanguageSQL)
			}
		}
		doc.Cells = append(doc.Cells, InterchangeCell{
			CellKind:     kind,
			SourceLines:  jc.Source,
			CellMetadata: meta,
		})
	}
	return doc
}

// MarshalJupyter serializes d as an nbformat 4.5 notebook.
func (d *Document) MarshalJupyter() ([]byte, error) {
	ic := d.Serialize()
	lang := ic.DocumentMetadata.LanguageHint

	nb := jupyterNotebook{
		NBFormat:      FormatVersion,
		NBFormatMinor: FormatMinor,
		Metadata: jupyterMetadata{
			Title:        ic.DocumentMetadata.Title,
			LanguageInfo: &jupyterLanguageInfo{Name: lang},
			KernelSpec:   &jupyterKernelSpec{Name: "leapnb-" + lang, DisplayName: "LeapNB (" + lang + ")", Language: lang},
		},
		Cells: make([]jupyterCell, 0, len(ic.Cells)),
	}

	for _, c := range ic.Cells {
		jc := jupyterCell{
			CellType: "markdown",
			Source:   c.SourceLines,
			Metadata: c.CellMetadata,
		}
		jc.ID, _ = c.CellMetadata[metaID].(string)
		delete(jc.Metadata, metaID)
		if c.CellKind == CellKindImperative {
			jc.CellType = "code"
		}
		nb.Cells = append(nb.Cells, jc)
	}

	data, err := json.MarshalIndent(nb, "", " ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notebook: %w", err)
	}
	return append(data, '\n'), nil
}
