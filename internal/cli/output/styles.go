package output

import (
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Styles holds the lipgloss styles used by the CLI.
// All styles come from one lipgloss renderer so they share its color profile.
type Styles struct {
	Header1 lipgloss.Style
	Header2 lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	// Cell output
	CellHeader lipgloss.Style
	CellID     lipgloss.Style
	Status     lipgloss.Style
	Stderr     lipgloss.Style

	// Status icons, rendered with String()
	StatusSuccess lipgloss.Style
	StatusFailed  lipgloss.Style
	StatusIdle    lipgloss.Style
	StatusRunning lipgloss.Style
}

// NewStyles builds the style set on lr.
func NewStyles(lr *lipgloss.Renderer) *Styles {
	green := lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#9a6700", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cf222e", Dark: "#f85149"}
	gray := lipgloss.AdaptiveColor{Light: "#6e7781", Dark: "#8b949e"}
	blue := lipgloss.AdaptiveColor{Light: "#0969da", Dark: "#58a6ff"}

	return &Styles{
		Header1: lr.NewStyle().Bold(true).Foreground(blue),
		Header2: lr.NewStyle().Bold(true),
		Bold:    lr.NewStyle().Bold(true),
		Muted:   lr.NewStyle().Foreground(gray),

		Success: lr.NewStyle().Foreground(green),
		Warning: lr.NewStyle().Foreground(yellow),
		Error:   lr.NewStyle().Foreground(red).Bold(true),

		CellHeader: lr.NewStyle().Bold(true).Foreground(blue),
		CellID:     lr.NewStyle().Foreground(gray),
		Status:     lr.NewStyle().Foreground(gray).Italic(true),
		Stderr:     lr.NewStyle().Foreground(yellow),

		StatusSuccess: lr.NewStyle().Foreground(green).SetString("✓"),
		StatusFailed:  lr.NewStyle().Foreground(red).SetString("✗"),
		StatusIdle:    lr.NewStyle().Foreground(gray).SetString("○"),
		StatusRunning: lr.NewStyle().Foreground(yellow).SetString("●"),
	}
}

// Label turns an identifier such as "completed" or "data-analysis" into a
// human label ("Completed", "Data-Analysis").
func Label(s string) string {
	return cases.Title(language.English).String(s)
}
