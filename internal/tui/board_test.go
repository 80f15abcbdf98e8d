package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/kanban/internal/boardsync"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/engine"
	"github.com/h0rv/kanban/internal/engine/mocks"
	"github.com/h0rv/kanban/internal/order"
	"github.com/h0rv/kanban/internal/store"
)

// createTestBoard returns three lists: To Do (A, B, C), Doing (D) and an
// approval-gated Done.
func createTestBoard() domain.Board {
	return domain.Board{
		ID:      "board_1",
		Title:   "Roadmap",
		OwnerID: "alice",
		Version: 1,
		Lists: []domain.List{
			{ID: "todo", BoardID: "board_1", Title: "To Do", Position: 1000, Cards: []domain.Card{
				{ID: "A", ListID: "todo", Title: "Task A", Position: 1000, Assignees: []string{"alice"}},
				{ID: "B", ListID: "todo", Title: "Task B", Position: 2000},
				{ID: "C", ListID: "todo", Title: "Task C", Position: 3000},
			}},
			{ID: "doing", BoardID: "board_1", Title: "Doing", Position: 2000, Cards: []domain.Card{
				{ID: "D", ListID: "doing", Title: "Task D", Position: 1000},
			}},
			{ID: "done", BoardID: "board_1", Title: "Done", Position: 3000, RequiresApproval: true},
		},
	}
}

func newTestBoard(t *testing.T) (BoardModel, *store.Store, *mocks.Persistence) {
	t.Helper()
	s := store.New()
	s.Load(createTestBoard())
	p := &mocks.Persistence{}
	t.Cleanup(func() { p.AssertExpectations(t) })

	m := NewBoardModel(context.Background(), s, engine.New(s, p), BoardOptions{User: "alice"})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return updated.(BoardModel), s, p
}

func keys(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send feeds msgs to the model in order and returns the last command.
func send(t *testing.T, m BoardModel, msgs ...tea.Msg) (BoardModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, msg := range msgs {
		var updated tea.Model
		updated, cmd = m.Update(msg)
		m = updated.(BoardModel)
	}
	return m, cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m BoardModel, cmd tea.Cmd) BoardModel {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = send(t, m, cmd())
	return m
}

func cardIDs(s *store.Store, listID string) []string {
	return order.IDs(s.Cards(listID))
}

func press(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft}
}

func motion(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionMotion, Button: tea.MouseButtonLeft}
}

func release(x, y int) tea.MouseMsg {
	return tea.MouseMsg{X: x, Y: y, Action: tea.MouseActionRelease, Button: tea.MouseButtonNone}
}

func TestBoardModel_Rebuild(t *testing.T) {
	board, _, _ := newTestBoard(t)

	require.Len(t, board.columns, 3)
	assert.Equal(t, []string{"todo", "doing", "done"}, order.IDs(board.columns))
	assert.Len(t, board.filteredCards["todo"], 3)
	assert.Len(t, board.filteredCards["doing"], 1)
	assert.Empty(t, board.filteredCards["done"])
}

func TestBoardModel_FilterText(t *testing.T) {
	board, _, _ := newTestBoard(t)

	board.filterText = "task b"
	board.rebuild()

	assert.Len(t, board.filteredCards["todo"], 1)
	assert.Empty(t, board.filteredCards["doing"])
}

func TestBoardModel_FilterMine(t *testing.T) {
	board, _, _ := newTestBoard(t)

	board, _ = send(t, board, keys("@"))
	require.Len(t, board.filteredCards["todo"], 1)
	assert.Equal(t, "A", board.filteredCards["todo"][0].ID)
	assert.True(t, board.filterActive())
}

func TestBoardModel_FilterInput(t *testing.T) {
	board, _, _ := newTestBoard(t)

	board, _ = send(t, board, keys("/"))
	assert.Equal(t, inputFilter, board.inputMode)

	board, _ = send(t, board, keys("C"), tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, inputNone, board.inputMode)
	assert.Equal(t, "C", board.filterText)
	assert.Len(t, board.filteredCards["todo"], 1)
}

func TestBoardModel_Navigation(t *testing.T) {
	board, _, _ := newTestBoard(t)

	assert.Equal(t, 0, board.selectedColumn)
	assert.Equal(t, 0, board.selectedCard["todo"])

	board, _ = send(t, board, keys("j"), keys("j"), keys("j"))
	assert.Equal(t, 2, board.selectedCard["todo"], "selection stops at the last card")

	board, _ = send(t, board, keys("l"))
	assert.Equal(t, 1, board.selectedColumn)

	board, _ = send(t, board, keys("l"), keys("l"))
	assert.Equal(t, 2, board.selectedColumn, "selection stops at the last list")

	board, _ = send(t, board, keys("h"))
	card, ok := board.selectedCardValue()
	require.True(t, ok)
	assert.Equal(t, "D", card.ID)
}

func TestBoardModel_View(t *testing.T) {
	board, _, _ := newTestBoard(t)

	view := board.View()
	assert.Contains(t, view, "Roadmap")
	assert.Contains(t, view, "To Do")
	assert.Contains(t, view, "Task A")
	assert.Contains(t, view, "Done")
	assert.Contains(t, view, "(empty)")
}

func TestBoardModel_KeyboardMove(t *testing.T) {
	board, s, p := newTestBoard(t)
	p.On("MoveCard", mock.Anything, "B", "doing", 2000.0).
		Return(domain.CardReceipt{Receipt: domain.Receipt{BoardID: "board_1", Version: 2}}, nil).Once()

	// Select B, pick it up and carry it one list right.
	board, _ = send(t, board, keys("j"), keys("m"), keys("l"))
	assert.True(t, board.drag.Keyboard())
	assert.Equal(t, []string{"D", "B"}, cardIDs(s, "doing"), "preview")
	assert.Contains(t, board.View(), "MOVE")

	board, cmd := send(t, board, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 1, board.pending)
	assert.Equal(t, []string{"D", "B"}, cardIDs(s, "doing"), "optimistic")

	card, ok := board.selectedCardValue()
	require.True(t, ok)
	assert.Equal(t, "B", card.ID, "selection follows the card")

	board = run(t, board, cmd)
	assert.Equal(t, 0, board.pending)
	assert.Empty(t, board.toast.text)
	assert.Equal(t, int64(2), s.Version())
}

func TestBoardModel_KeyboardCancel(t *testing.T) {
	board, s, _ := newTestBoard(t)

	board, _ = send(t, board, keys("m"), keys("j"), keys("l"))
	assert.Equal(t, []string{"D", "A"}, cardIDs(s, "doing"))

	board, cmd := send(t, board, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"A", "B", "C"}, cardIDs(s, "todo"))
	assert.Equal(t, []string{"D"}, cardIDs(s, "doing"))
	assert.False(t, board.drag.Active())
}

func TestBoardModel_KeyboardListMove(t *testing.T) {
	board, s, p := newTestBoard(t)
	p.On("ReorderLists", mock.Anything, "board_1", []string{"doing", "todo", "done"}).
		Return(domain.Receipt{BoardID: "board_1", Version: 2}, nil).Once()

	board, _ = send(t, board, keys("M"), keys("l"))
	board, cmd := send(t, board, keys(" "))
	assert.Equal(t, []string{"doing", "todo", "done"}, order.IDs(s.Lists()))
	assert.Equal(t, 1, board.selectedColumn)

	run(t, board, cmd)
}

func TestBoardModel_DragDisabledWhileFiltering(t *testing.T) {
	board, _, _ := newTestBoard(t)

	board, _ = send(t, board, keys("@"), keys("m"))
	assert.False(t, board.drag.Active())
	assert.Contains(t, board.toast.text, "filter")
}

func TestBoardModel_CommitFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind toastKind
		want string
	}{
		{"policy", domain.Reject("Done requires approval"), toastWarn, "Move rejected: Done requires approval"},
		{"transient", domain.ErrTransient, toastError, "Move failed"},
		{"stale", domain.ErrNotFound, toastInfo, "reloading"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			board, s, p := newTestBoard(t)
			p.On("MoveCard", mock.Anything, "A", "done", order.BasePosition).Return(nil, tt.err).Once()

			board, _ = send(t, board, keys("m"), keys("l"), keys("l"))
			board, cmd := send(t, board, tea.KeyMsg{Type: tea.KeyEnter})
			assert.Equal(t, []string{"A"}, cardIDs(s, "done"))

			require.NotNil(t, cmd)
			board, refetch := send(t, board, cmd())
			assert.Equal(t, tt.kind, board.toast.kind)
			assert.Contains(t, board.toast.text, tt.want)

			// Exactly the failed move is undone.
			assert.Equal(t, []string{"A", "B", "C"}, cardIDs(s, "todo"))
			assert.Empty(t, cardIDs(s, "done"))

			if tt.name == "stale" {
				require.NotNil(t, refetch, "stale failures refetch the board")
				assert.True(t, board.refreshing)
			}
		})
	}
}

func TestBoardModel_MouseMoveCard(t *testing.T) {
	board, s, p := newTestBoard(t)
	p.On("MoveCard", mock.Anything, "B", "doing", 2000.0).
		Return(domain.CardReceipt{Receipt: domain.Receipt{BoardID: "board_1", Version: 2}}, nil).Once()

	// Columns are 35 cells wide and start on row 2; cards start on row 4.
	board, _ = send(t, board, press(5, 5))
	card, ok := board.selectedCardValue()
	require.True(t, ok)
	assert.Equal(t, "B", card.ID, "press selects")

	board, _ = send(t, board, motion(40, 6))
	assert.Equal(t, []string{"D", "B"}, cardIDs(s, "doing"), "preview")

	board, cmd := send(t, board, release(40, 6))
	assert.Equal(t, []string{"D", "B"}, cardIDs(s, "doing"))
	run(t, board, cmd)
}

func TestBoardModel_MouseClickIsNotADrag(t *testing.T) {
	board, s, _ := newTestBoard(t)

	board, _ = send(t, board, press(40, 4), motion(41, 4))
	board, cmd := send(t, board, release(41, 4))
	assert.Nil(t, cmd)
	assert.Equal(t, 1, board.selectedColumn)
	assert.Equal(t, []string{"D"}, cardIDs(s, "doing"))
}

func TestBoardModel_MouseDropOutsideCancels(t *testing.T) {
	board, s, _ := newTestBoard(t)

	board, _ = send(t, board, press(5, 4), motion(40, 6))
	assert.Equal(t, []string{"D", "A"}, cardIDs(s, "doing"))

	board, cmd := send(t, board, release(40, 200))
	assert.Nil(t, cmd)
	assert.Equal(t, []string{"A", "B", "C"}, cardIDs(s, "todo"))
	assert.False(t, board.drag.Active())
}

func TestBoardModel_MouseMoveList(t *testing.T) {
	board, s, p := newTestBoard(t)
	p.On("ReorderLists", mock.Anything, "board_1", []string{"doing", "done", "todo"}).
		Return(domain.Receipt{BoardID: "board_1", Version: 2}, nil).Once()

	// The header row of To Do, then past the center of Done.
	board, _ = send(t, board, press(5, 3), motion(100, 3))
	board, cmd := send(t, board, release(100, 3))
	assert.Equal(t, []string{"doing", "done", "todo"}, order.IDs(s.Lists()))
	run(t, board, cmd)
}

func TestBoardModel_SyncUpdates(t *testing.T) {
	s := store.New()
	s.Load(createTestBoard())
	updates := make(chan boardsync.Update, 1)
	board := NewBoardModel(context.Background(), s, engine.New(s, &mocks.Persistence{}), BoardOptions{Updates: updates})

	updates <- boardsync.Update{Reconnected: true, Changed: true, Version: 2}
	cmd := board.waitForUpdate()
	require.NotNil(t, cmd)
	board, next := send(t, board, cmd())
	assert.Equal(t, "Reconnected", board.toast.text)
	assert.NotNil(t, next, "keeps listening")

	board, next = send(t, board, syncMsg{update: boardsync.Update{Deleted: true, Final: true}, ok: true})
	assert.Nil(t, next)
	assert.True(t, board.offline)
	assert.True(t, strings.Contains(board.View(), "offline"))
}

func TestBoardModel_NoUpdatesChannel(t *testing.T) {
	board, _, _ := newTestBoard(t)
	assert.Nil(t, board.waitForUpdate())
}

func TestBoardModel_CreateCard(t *testing.T) {
	board, s, p := newTestBoard(t)
	created := domain.Card{ID: "E", ListID: "todo", Title: "Task E", Position: 4000}
	p.On("CreateCard", mock.Anything, "todo", domain.NewCard{Title: "Task E"}).
		Return(domain.CardReceipt{Receipt: domain.Receipt{BoardID: "board_1", Version: 2}, Card: created}, nil).Once()

	board, _ = send(t, board, keys("n"))
	for _, r := range "Task E" {
		board, _ = send(t, board, keys(string(r)))
	}
	board, cmd := send(t, board, tea.KeyMsg{Type: tea.KeyEnter})
	board = run(t, board, cmd)

	assert.Equal(t, []string{"A", "B", "C", "E"}, cardIDs(s, "todo"))
	card, ok := board.selectedCardValue()
	require.True(t, ok)
	assert.Equal(t, "E", card.ID)
}

func TestBoardModel_ApproveRejected(t *testing.T) {
	board, _, p := newTestBoard(t)
	p.On("ApproveCard", mock.Anything, "A").Return(nil, domain.Reject("only admins can approve")).Once()

	board, cmd := send(t, board, keys("a"))
	board = run(t, board, cmd)
	assert.Equal(t, toastWarn, board.toast.kind)
	assert.Contains(t, board.toast.text, "only admins can approve")
}

func TestCardWindow(t *testing.T) {
	start, end, up, down := cardWindow(10, 0, 5)
	assert.Equal(t, 0, start)
	assert.Equal(t, 4, end)
	assert.False(t, up)
	assert.True(t, down)

	start, end, up, down = cardWindow(10, 7, 5)
	assert.Equal(t, 7, start)
	assert.Equal(t, 10, end)
	assert.True(t, up)
	assert.False(t, down)
}

func TestBoardModel_DeleteList(t *testing.T) {
	board, s, p := newTestBoard(t)
	p.On("DeleteList", mock.Anything, "todo").Return(domain.Receipt{BoardID: "board_1", Version: 2}, nil).Once()

	board, _ = send(t, board, keys("X"))
	assert.True(t, board.confirmDelete)
	assert.Contains(t, board.View(), `Delete list "To Do" and its 3 cards?`)

	board, cmd := send(t, board, keys("y"))
	board = run(t, board, cmd)

	assert.Len(t, s.Lists(), 2)
	assert.Empty(t, cardIDs(s, "todo"))
	l, ok := board.selectedList()
	require.True(t, ok)
	assert.Equal(t, "doing", l.ID)
}

func TestBoardModel_DeleteCancelled(t *testing.T) {
	board, s, _ := newTestBoard(t)

	board, _ = send(t, board, keys("d"), keys("n"))
	assert.False(t, board.confirmDelete)
	assert.Equal(t, []string{"A", "B", "C"}, cardIDs(s, "todo"))
}
