package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/h0rv/kanban/internal/domain"
)

// boardItem wraps a domain.BoardSummary for use in bubbles/list.
type boardItem struct {
	board domain.BoardSummary
}

func (i boardItem) FilterValue() string {
	return i.board.Title
}

func (i boardItem) Title() string {
	return i.board.Title
}

func (i boardItem) Description() string {
	role := strings.ToLower(string(i.board.Role))
	if i.board.Role == domain.RoleOwner {
		return "yours"
	}
	return fmt.Sprintf("%s of %s's board", role, i.board.OwnerID)
}

// boardDelegate renders board items on two lines.
type boardDelegate struct{}

func (d boardDelegate) Height() int                             { return 2 }
func (d boardDelegate) Spacing() int                            { return 1 }
func (d boardDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d boardDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(boardItem)
	if !ok {
		return
	}

	str := fmt.Sprintf("%d. %s", index+1, i.Title())
	desc := i.Description()

	if index == m.Index() {
		fmt.Fprint(w, SelectedItemStyle.Render("> "+str))
		fmt.Fprint(w, "\n  "+NormalItemStyle.Render(desc))
	} else {
		fmt.Fprint(w, NormalItemStyle.Render("  "+str))
		fmt.Fprint(w, "\n  "+lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(desc))
	}
}

// BoardPickerModel displays the boards the user can open.
type BoardPickerModel struct {
	list list.Model
	err  error
}

// NewBoardPickerModel creates a new BoardPickerModel.
func NewBoardPickerModel(boards []domain.BoardSummary) BoardPickerModel {
	items := make([]list.Item, len(boards))
	for i, b := range boards {
		items[i] = boardItem{board: b}
	}

	l := list.New(items, boardDelegate{}, 80, 20)
	l.Title = "Select a Board"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle

	return BoardPickerModel{
		list: l,
	}
}

// Init initializes the model.
func (m BoardPickerModel) Init() tea.Cmd {
	return tea.WindowSize()
}

// Update handles messages and updates the model state.
func (m BoardPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width - 2)
		m.list.SetHeight(msg.Height - 2)
		return m, nil

	case tea.KeyMsg:
		if m.list.SettingFilter() {
			break
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, func() tea.Msg {
				return QuitMsg{}
			}
		case "enter":
			if item, ok := m.list.SelectedItem().(boardItem); ok {
				return m, func() tea.Msg {
					return BoardSelectedMsg{Board: item.board}
				}
			}
		}

	case ErrorMsg:
		m.err = msg.Err
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the model.
func (m BoardPickerModel) View() string {
	view := m.list.View()

	if m.err != nil {
		view += ErrorStyle.Render(fmt.Sprintf("\nError: %v", m.err))
	}

	return view
}
