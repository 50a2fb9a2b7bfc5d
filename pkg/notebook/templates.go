package notebook

import (
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leapnb/pkg/core"
)

// Template is a starter notebook.
type Template struct {
	ID          string
	Name        string
	Description string
	cells       []Cell
}

// TemplateBlank is used when no template is chosen.
const TemplateBlank = "blank"

var templates = []Template{
	{
		ID:          "data-analysis",
		Name:        "Data Analysis",
		Description: "Start with common data analysis imports and helper functions",
		cells: []Cell{
			{Kind: core.Narrative(), Content: "# Data Analysis Notebook\nUse this notebook to analyze your data.\n"},
			{Kind: core.Code(core.LanguageSQL), Content: "SELECT * FROM users LIMIT 10;\n"},
			{Kind: core.Code(core.LanguagePython), Content: "" +
				"rows = query(\"SELECT user_id, amount FROM orders\")\n" +
				"totals = {}\n" +
				"for r in rows:\n" +
				"    totals[r[\"user_id\"]] = totals.get(r[\"user_id\"], 0) + float(r[\"amount\"])\n" +
				"table([{\"user_id\": k, \"total\": v} for k, v in sorted(totals.items())])\n"},
		},
	},
	{
		ID:          "ml-training",
		Name:        "ML Model Training",
		Description: "Template for training and evaluating machine learning models",
		cells: []Cell{
			{Kind: core.Narrative(), Content: "# Model Training\nFit a least-squares line to a small sample.\n"},
			{Kind: core.Code(core.LanguagePython), Content: "" +
				"xs = [1.0, 2.0, 3.0, 4.0]\n" +
				"ys = [2.1, 3.9, 6.2, 7.8]\n" +
				"mx = 0.0\n" +
				"my = 0.0\n" +
				"for x, y in zip(xs, ys):\n" +
				"    mx += x / len(xs)\n" +
				"    my += y / len(ys)\n" +
				"num = 0.0\n" +
				"den = 0.0\n" +
				"for x, y in zip(xs, ys):\n" +
				"    num += (x - mx) * (y - my)\n" +
				"    den += (x - mx) * (x - mx)\n" +
				"slope = num / den\n" +
				"print(\"slope:\", slope, \"intercept:\", my - slope * mx)\n"},
			{Kind: core.Narrative(), Content: "## Evaluation\n"},
		},
	},
	{
		ID:          "etl-pipeline",
		Name:        "ETL Pipeline",
		Description: "Data extraction, transformation, and loading workflow",
		cells: []Cell{
			{Kind: core.Narrative(), Content: "# ETL Pipeline\nExtract orders, transform them into per-user totals, load the result.\n"},
			{Kind: core.Code(core.LanguageSQL), Content: "-- extract\nSELECT * FROM orders;\n"},
			{Kind: core.Code(core.LanguageSQL), Content: "" +
				"-- transform and load\n" +
				"CREATE TABLE IF NOT EXISTS user_totals AS\n" +
				"SELECT user_id, SUM(amount) AS total FROM orders GROUP BY user_id;\n"},
			{Kind: core.Code(core.LanguageSQL), Content: "SELECT * FROM user_totals ORDER BY user_id;\n"},
		},
	},
	{
		ID:          TemplateBlank,
		Name:        "Blank Notebook",
		Description: "Start from scratch with an empty notebook",
	},
}

// Templates returns the available templates.
func Templates() []Template {
	return slices.Clone(templates)
}

// LookupTemplate finds a template by ID.
func LookupTemplate(id string) (Template, bool) {
	i := slices.IndexFunc(templates, func(t Template) bool { return t.ID == id })
	if i < 0 {
		return Template{}, false
	}
	return templates[i], true
}

// NewNotebookForm holds the fields of the new-notebook form.
type NewNotebookForm struct {
	Name        string
	Description string
	Template    string // empty means blank
}

// Validate checks the form.
func (f NewNotebookForm) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return &core.ValidationError{Field: "name", Message: "notebook name is required"}
	}
	if f.Template != "" {
		if _, ok := LookupTemplate(f.Template); !ok {
			ids := make([]string, len(templates))
			for i, t := range templates {
				ids[i] = t.ID
			}
			return &core.ValidationError{
				Field:   "template",
				Message: fmt.Sprintf("unknown template %q (available: %s)", f.Template, strings.Join(ids, ", ")),
			}
		}
	}
	return nil
}

// NewFromForm validates f and builds the notebook it describes.
// A description becomes a leading narrative cell.
func NewFromForm(f NewNotebookForm) (*Document, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	id := f.Template
	if id == "" {
		id = TemplateBlank
	}
	tmpl, _ := LookupTemplate(id)

	doc := New(strings.TrimSpace(f.Name))
	if desc := strings.TrimSpace(f.Description); desc != "" {
		if _, err := doc.InsertCell(Cell{Kind: core.Narrative(), Content: desc + "\n"}, -1); err != nil {
			return nil, err
		}
	}
	for _, c := range tmpl.cells {
		if _, err := doc.InsertCell(c, -1); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
