package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"
)

var (
	// HelpOverlayStyle defines the style for the help overlay container.
	HelpOverlayStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2).
				MarginTop(2)

	helpHeadingStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))
)

// mouseHelp describes pointer gestures, which have no key bindings.
var mouseHelp = []string{
	"click        select a card or list",
	"drag card    move it within or across lists",
	"drag header  reorder the list",
	"drop outside cancel the move",
	"wheel        scroll the selected list",
}

// HelpModel wraps the bubbles help component.
type HelpModel struct {
	help   help.Model
	keymap KeyMap
}

// NewHelpModel creates a new help overlay model.
func NewHelpModel(keymap KeyMap) HelpModel {
	h := help.New()
	h.ShowAll = true

	return HelpModel{
		help:   h,
		keymap: keymap,
	}
}

// View renders the help overlay: key bindings, then mouse gestures.
func (m HelpModel) View(width int) string {
	m.help.Width = width - 8 // Account for padding and border

	sections := []string{
		helpHeadingStyle.Render("Keys"),
		m.help.View(m.keymap),
		"",
		helpHeadingStyle.Render("Mouse"),
	}
	for _, line := range mouseHelp {
		sections = append(sections, m.help.Styles.FullDesc.Render(line))
	}
	return HelpOverlayStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}
