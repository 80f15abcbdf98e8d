package tui

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/h0rv/kanban/internal/domain"
)

// memberItem is a board member in the picker.
type memberItem struct {
	member   domain.Member
	assigned bool
}

func (i memberItem) FilterValue() string { return i.member.UserID }

// memberItemDelegate handles rendering of member items.
type memberItemDelegate struct{}

func (d memberItemDelegate) Height() int                             { return 1 }
func (d memberItemDelegate) Spacing() int                            { return 0 }
func (d memberItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d memberItemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(memberItem)
	if !ok {
		return
	}

	mark := "[ ]"
	if i.assigned {
		mark = "[x]"
	}
	str := fmt.Sprintf("%s %s (%s)", mark, i.member.UserID, strings.ToLower(string(i.member.Role)))

	fn := NormalItemStyle.Render
	if index == m.Index() {
		fn = func(s ...string) string {
			return SelectedItemStyle.Render("> " + s[0])
		}
	}

	fmt.Fprint(w, fn(str))
}

// MemberPickerModel toggles a card assignee among the board's members.
type MemberPickerModel struct {
	list list.Model
}

// NewMemberPickerModel creates a picker over members, marking those already assigned.
func NewMemberPickerModel(members []domain.Member, assigned []string) MemberPickerModel {
	items := make([]list.Item, len(members))
	for i, mem := range members {
		items[i] = memberItem{member: mem, assigned: slices.Contains(assigned, mem.UserID)}
	}

	l := list.New(items, memberItemDelegate{}, 60, 12)
	l.Title = "Assign Member"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle
	l.Styles.PaginationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	l.Styles.HelpStyle = HelpStyle

	return MemberPickerModel{list: l}
}

// SetSize resizes the picker.
func (m *MemberPickerModel) SetSize(width, height int) {
	m.list.SetWidth(width)
	m.list.SetHeight(height)
}

// Update handles messages. Enter emits MemberSelectedMsg, esc emits pickerClosedMsg.
func (m MemberPickerModel) Update(msg tea.Msg) (MemberPickerModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && !m.list.SettingFilter() {
		switch msg.String() {
		case "enter":
			if item, ok := m.list.SelectedItem().(memberItem); ok {
				return m, func() tea.Msg {
					return MemberSelectedMsg{UserID: item.member.UserID}
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
func (m MemberPickerModel) View() string {
	return m.list.View()
}
