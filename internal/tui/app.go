package tui

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/h0rv/kanban/internal/boardsync"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/remote"
)

// AppScreen represents the different screens in the application flow.
type AppScreen int

const (
	ScreenLoading AppScreen = iota
	ScreenBoardPicker
	ScreenBoard
	ScreenDetail
)

// AppOptions carries the values the app is started with.
type AppOptions struct {
	BoardID       string // Open this board directly, skipping the picker
	DragThreshold int
	Logger        *slog.Logger
}

// AppModel is the root Bubble Tea model that manages screen transitions.
// It runs board selection -> board view <-> card detail.
type AppModel struct {
	// Dependencies
	client *remote.Client
	ctx    context.Context
	log    *slog.Logger
	opts   AppOptions

	// Current state
	currentScreen AppScreen
	currentModel  tea.Model
	err           error
	loadingMsg    string

	// The open board, if any
	session *boardsync.Session

	// Cached models to preserve state across screen transitions
	boardModel *BoardModel
}

// NewAppModel creates a new app model.
func NewAppModel(ctx context.Context, client *remote.Client, opts AppOptions) *AppModel {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &AppModel{
		client:        client,
		ctx:           ctx,
		log:           log,
		opts:          opts,
		currentScreen: ScreenLoading,
		loadingMsg:    fmt.Sprintf("Connecting to %s...", client.BaseURL()),
	}
}

// Close releases the open board session. Call it after the program exits.
func (m *AppModel) Close() {
	if m.session != nil {
		_ = m.session.Close()
		m.session = nil
	}
}

// Init initializes the app model.
func (m *AppModel) Init() tea.Cmd {
	if m.opts.BoardID != "" {
		return m.openBoard(m.opts.BoardID)
	}
	return m.listBoards()
}

// Update handles messages and transitions between screens.
func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Global quit handler
		if msg.String() == "ctrl+c" && m.currentScreen != ScreenBoard {
			return m, tea.Quit
		}

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case QuitMsg:
		return m, tea.Quit

	case boardsLoadedMsg:
		m.currentScreen = ScreenBoardPicker
		picker := NewBoardPickerModel(msg.boards)
		m.currentModel = picker
		return m, picker.Init()

	case BoardSelectedMsg:
		m.currentModel = nil
		m.currentScreen = ScreenLoading
		m.loadingMsg = fmt.Sprintf("Opening %s...", msg.Board.Title)
		return m, m.openBoard(msg.Board.ID)

	case sessionOpenedMsg:
		m.Close()
		m.session = msg.session
		m.currentScreen = ScreenBoard
		board := NewBoardModel(m.ctx, m.session.Store(), m.session.Engine(), BoardOptions{
			User:          m.client.User(),
			Updates:       m.session.Updates(),
			BoardURL:      m.client.BoardURL(m.session.BoardID()),
			DragThreshold: m.opts.DragThreshold,
		})
		m.boardModel = &board
		m.currentModel = board
		return m, board.Init()

	case openDetailMsg:
		if m.session == nil {
			return m, nil
		}
		m.currentScreen = ScreenDetail
		detail := NewDetailModel(m.ctx, msg.cardID, m.session.Store(), m.session.Engine(), m.client)
		m.currentModel = detail
		return m, detail.Init()

	case closeDetailMsg:
		m.currentScreen = ScreenBoard
		if m.boardModel != nil {
			m.boardModel.rebuild()
			m.currentModel = *m.boardModel
		}
		// Request window size to ensure proper rendering
		return m, tea.WindowSize()

	case syncMsg:
		// Session updates always reach the board model so it keeps listening,
		// even while the detail view is in front.
		cmd := m.updateBoard(msg)
		if m.currentScreen != ScreenDetail || m.currentModel == nil {
			return m, cmd
		}
		var detailCmd tea.Cmd
		m.currentModel, detailCmd = m.currentModel.Update(msg)
		return m, tea.Batch(cmd, detailCmd)

	case commitMsg, crudMsg, refreshMsg:
		return m, m.updateBoard(msg)
	}

	// Delegate to current screen's model
	if m.currentModel != nil {
		var cmd tea.Cmd
		m.currentModel, cmd = m.currentModel.Update(msg)
		// Keep boardModel in sync when on board screen
		if m.currentScreen == ScreenBoard {
			if bm, ok := m.currentModel.(BoardModel); ok {
				m.boardModel = &bm
			}
		}
		return m, cmd
	}

	return m, nil
}

// updateBoard hands msg to the board model whichever screen is in front.
func (m *AppModel) updateBoard(msg tea.Msg) tea.Cmd {
	if m.boardModel == nil {
		return nil
	}
	updated, cmd := m.boardModel.Update(msg)
	bm := updated.(BoardModel)
	m.boardModel = &bm
	if m.currentScreen == ScreenBoard {
		m.currentModel = bm
	}
	return cmd
}

// View renders the current screen.
func (m *AppModel) View() string {
	if m.err != nil {
		return ErrorStyle.Render(fmt.Sprintf("Error: %v\n\nPress Ctrl+C to quit", m.err))
	}
	if m.currentModel != nil {
		return m.currentModel.View()
	}
	return m.loadingMsg + "\n\nPress Ctrl+C to quit"
}

// listBoards creates a command to list the boards the user can see.
func (m *AppModel) listBoards() tea.Cmd {
	ctx, client := m.ctx, m.client
	return func() tea.Msg {
		boards, err := client.ListBoards(ctx)
		if err != nil {
			return ErrorMsg{Err: fmt.Errorf("failed to list boards: %w", err)}
		}
		if len(boards) == 0 {
			return ErrorMsg{Err: fmt.Errorf("no boards found for %s; create one with 'kanban boards create'", client.User())}
		}
		return boardsLoadedMsg{boards: boards}
	}
}

// openBoard creates a command that opens a board session.
func (m *AppModel) openBoard(boardID string) tea.Cmd {
	ctx, client, log := m.ctx, m.client, m.log
	return func() tea.Msg {
		s, err := boardsync.Open(ctx, client, boardID, boardsync.WithLogger(log))
		if err != nil {
			return ErrorMsg{Err: err}
		}
		return sessionOpenedMsg{session: s}
	}
}

// Custom messages for app transitions.
type (
	boardsLoadedMsg struct {
		boards []domain.BoardSummary
	}

	sessionOpenedMsg struct {
		session *boardsync.Session
	}
)
