package tui

import (
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/h0rv/kanban/internal/domain"
)

// LabelSelectedMsg is emitted when the user picks a label to toggle.
type LabelSelectedMsg struct {
	LabelID string
}

// labelItem wraps a domain.Label for use in bubbles/list.
type labelItem struct {
	label   domain.Label
	applied bool
}

func (i labelItem) FilterValue() string {
	return i.label.Name
}

// labelDelegate renders a label with its color swatch.
type labelDelegate struct{}

func (d labelDelegate) Height() int                             { return 1 }
func (d labelDelegate) Spacing() int                            { return 0 }
func (d labelDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d labelDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(labelItem)
	if !ok {
		return
	}

	mark := "[ ]"
	if i.applied {
		mark = "[x]"
	}
	swatch := labelStyle(i.label).Render("●")
	str := fmt.Sprintf("%s %s", mark, i.label.Name)

	if index == m.Index() {
		fmt.Fprint(w, SelectedItemStyle.Render("> "+str)+" "+swatch)
	} else {
		fmt.Fprint(w, NormalItemStyle.Render("  "+str)+" "+swatch)
	}
}

// labelStyle colors text with the label's color, if it has one.
func labelStyle(l domain.Label) lipgloss.Style {
	if l.Color == "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(l.Color))
}

// LabelPickerModel toggles a board label on a card.
type LabelPickerModel struct {
	list list.Model
}

// NewLabelPickerModel creates a picker over the board's labels, marking those on the card.
func NewLabelPickerModel(labels []domain.Label, applied []string) LabelPickerModel {
	items := make([]list.Item, len(labels))
	for i, l := range labels {
		items[i] = labelItem{label: l, applied: slices.Contains(applied, l.ID)}
	}

	l := list.New(items, labelDelegate{}, 60, 12)
	l.Title = "Toggle Label"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle

	return LabelPickerModel{list: l}
}

// SetSize resizes the picker.
func (m *LabelPickerModel) SetSize(width, height int) {
	m.list.SetWidth(width)
	m.list.SetHeight(height)
}

// Update handles messages. Enter emits LabelSelectedMsg, esc emits pickerClosedMsg.
func (m LabelPickerModel) Update(msg tea.Msg) (LabelPickerModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && !m.list.SettingFilter() {
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(labelItem); ok {
				return m, func() tea.Msg {
					return LabelSelectedMsg{LabelID: item.label.ID}
				}
			}
		case "q", "esc":
			return m, func() tea.Msg { return pickerClosedMsg{} }
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the model.
func (m LabelPickerModel) View() string {
	return m.list.View()
}
