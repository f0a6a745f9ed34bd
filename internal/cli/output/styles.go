package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Styles holds the lipgloss styles used for terminal output.
type Styles struct {
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
	SQL     lipgloss.Style
	Prompt  lipgloss.Style

	HeaderColors text.Colors
}

// DefaultStyles returns the colored terminal styles.
func DefaultStyles() Styles {
	return Styles{
		Success:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		Warning:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		Muted:        lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		SQL:          lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		Prompt:       lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		HeaderColors: text.Colors{text.Bold, text.FgHiCyan},
	}
}

// PlainStyles returns styles that render text unchanged.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Success: plain,
		Warning: plain,
		Error:   plain,
		Muted:   plain,
		SQL:     plain,
		Prompt:  plain,
	}
}
