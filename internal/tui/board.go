package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/pkg/browser"

	"github.com/h0rv/kanban/internal/boardsync"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/drag"
	"github.com/h0rv/kanban/internal/engine"
	"github.com/h0rv/kanban/internal/order"
	"github.com/h0rv/kanban/internal/store"
)

// Layout constants
const (
	minColumnWidth = 20
	maxColumnWidth = 35
	pageJumpSize   = 10 // Number of items to jump with Ctrl+D/U
)

// Styles for the board view - base styles without width/height (set dynamically)
var (
	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	cardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	selectedCardStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205")).
				Bold(true)

	draggedCardStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205"))

	doneCardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Strikethrough(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	moveModeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("205")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)
)

// BoardOptions carries the optional collaborators of a BoardModel.
type BoardOptions struct {
	User          string                  // Current user, for the "assigned to me" filter
	Updates       <-chan boardsync.Update // Live session updates; nil disables them
	BoardURL      string                  // Opened by the browser key
	DragThreshold int                     // Pointer travel before a press becomes a drag
}

type inputPurpose int

const (
	inputNone inputPurpose = iota
	inputFilter
	inputNewCard
	inputNewList
)

type toastKind int

const (
	toastInfo toastKind = iota
	toastWarn
	toastError
)

type toast struct {
	kind toastKind
	text string
}

// BoardModel represents the main kanban board view
type BoardModel struct {
	// Dependencies
	ctx    context.Context
	store  *store.Store
	engine *engine.Engine
	drag   *drag.Controller
	opts   BoardOptions

	// UI components
	keymap  KeyMap
	help    HelpModel
	spinner spinner.Model
	input   textinput.Model

	// Board state
	columns        []domain.List            // Lists in board order
	filteredCards  map[string][]domain.Card // List ID -> visible cards
	selectedColumn int                      // Currently selected column
	columnOffset   int                      // Horizontal scroll offset (first visible column index)
	selectedCard   map[string]int           // List ID -> selected card index
	scrollOffset   map[string]int           // List ID -> scroll offset

	// View state
	width         int
	height        int
	showHelp      bool
	inputMode     inputPurpose
	filterText    string
	filterMyOnly  bool
	confirmDelete bool
	deleteList    bool // The pending confirmation is for the whole list
	pending       int // Commits in flight
	refreshing    bool
	offline       bool // Live updates have stopped
	toast         toast
}

// NewBoardModel creates a board view over a store and the engine that mutates it.
func NewBoardModel(ctx context.Context, s *store.Store, e *engine.Engine, opts BoardOptions) BoardModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.CharLimit = 200

	threshold := opts.DragThreshold
	if threshold <= 0 {
		threshold = drag.DefaultThreshold
	}

	m := BoardModel{
		ctx:           ctx,
		store:         s,
		engine:        e,
		drag:          drag.New(s, e, drag.WithThreshold(threshold)),
		opts:          opts,
		keymap:        DefaultKeyMap(),
		help:          NewHelpModel(DefaultKeyMap()),
		spinner:       sp,
		input:         ti,
		filteredCards: make(map[string][]domain.Card),
		selectedCard:  make(map[string]int),
		scrollOffset:  make(map[string]int),
	}
	m.rebuild()
	return m
}

// Init starts the spinner and the wait for session updates.
func (m BoardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.WindowSize(), m.waitForUpdate())
}

// Update handles messages
func (m BoardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		(&m).adjustColumnScroll()
		return m, nil

	case syncMsg:
		return m.handleSync(msg)

	case commitMsg:
		m.pending--
		(&m).report(msg.what, msg.outcome)
		m.rebuild()
		if msg.outcome.Refetch {
			cmd := m.refresh()
			return m, cmd
		}
		return m, nil

	case crudMsg:
		(&m).report(msg.what, msg.outcome)
		m.rebuild()
		if msg.outcome.OK() && msg.card.ID != "" {
			(&m).selectCard(msg.card.ID)
		}
		if msg.outcome.Refetch {
			cmd := m.refresh()
			return m, cmd
		}
		return m, nil

	case refreshMsg:
		m.refreshing = false
		if msg.err != nil {
			m.toast = toast{toastError, fmt.Sprintf("Refresh failed: %v", msg.err)}
		}
		m.rebuild()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)
	}

	return m, nil
}

func (m BoardModel) handleSync(msg syncMsg) (tea.Model, tea.Cmd) {
	if !msg.ok {
		m.offline = true
		return m, nil
	}
	u := msg.update
	switch {
	case u.Deleted:
		m.toast = toast{toastWarn, "This board was deleted"}
	case u.Err != nil && u.Final:
		m.toast = toast{toastError, fmt.Sprintf("Live updates stopped: %v", u.Err)}
	case u.Err != nil:
		m.toast = toast{toastError, fmt.Sprintf("Sync failed: %v", u.Err)}
	case u.Reconnected:
		m.toast = toast{toastInfo, "Reconnected"}
	}
	if u.Final {
		m.offline = true
	}
	m.rebuild()
	if u.Final {
		return m, nil
	}
	return m, m.waitForUpdate()
}

// report turns a failed outcome into a toast. Policy refusals are shown as a
// warning with the server's reason; everything else as an error.
func (m *BoardModel) report(what string, out engine.Outcome) {
	switch out.Kind {
	case domain.KindNone:
		return
	case domain.KindPolicy:
		reason := out.Err.Error()
		if pe, ok := domain.AsPolicy(out.Err); ok {
			reason = pe.Reason
		}
		m.toast = toast{toastWarn, fmt.Sprintf("%s rejected: %s", what, reason)}
	case domain.KindStale:
		m.toast = toast{toastInfo, fmt.Sprintf("%s undone: the board changed, reloading", what)}
	case domain.KindBusy:
		m.toast = toast{toastInfo, "Still saving, try again in a moment"}
	default:
		m.toast = toast{toastError, fmt.Sprintf("%s failed: %v", what, out.Err)}
	}
}

// handleKeyPress processes keyboard input
func (m BoardModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	// Help overlay
	if m.showHelp {
		if msg.String() == "?" || msg.String() == "q" || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	}

	if m.inputMode != inputNone {
		return m.handleInput(msg)
	}

	if m.confirmDelete {
		m.confirmDelete = false
		if msg.String() != "y" && msg.String() != "Y" {
			return m, nil
		}
		if m.deleteList {
			return m, m.deleteSelectedList()
		}
		return m, m.deleteSelected()
	}

	if m.drag.State() == drag.Dragging {
		return m.handleDragKeys(msg)
	}

	m.toast = toast{}
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Help):
		m.showHelp = true
	case key.Matches(msg, m.keymap.Filter):
		m.startInput(inputFilter, "/ ", "Filter...", m.filterText)
		return m, textinput.Blink
	case key.Matches(msg, m.keymap.Left):
		if m.selectedColumn > 0 {
			m.selectedColumn--
			(&m).adjustColumnScroll()
		}
	case key.Matches(msg, m.keymap.Right):
		if m.selectedColumn < len(m.columns)-1 {
			m.selectedColumn++
			(&m).adjustColumnScroll()
		}
	case key.Matches(msg, m.keymap.Down):
		(&m).moveCardSelection(1)
	case key.Matches(msg, m.keymap.Up):
		(&m).moveCardSelection(-1)
	case msg.String() == "g":
		(&m).jumpToCard(0)
	case msg.String() == "G":
		(&m).jumpToCard(-1)
	case msg.String() == "ctrl+d":
		(&m).moveCardSelection(pageJumpSize)
	case msg.String() == "ctrl+u":
		(&m).moveCardSelection(-pageJumpSize)
	case key.Matches(msg, m.keymap.Drag):
		if card, ok := m.selectedCardValue(); ok {
			cmd := m.beginKeyboardDrag(drag.KindCard, card.ID)
			return m, cmd
		}
	case key.Matches(msg, m.keymap.DragList):
		if l, ok := m.selectedList(); ok {
			cmd := m.beginKeyboardDrag(drag.KindList, l.ID)
			return m, cmd
		}
	case key.Matches(msg, m.keymap.Detail):
		if card, ok := m.selectedCardValue(); ok {
			return m, func() tea.Msg { return openDetailMsg{cardID: card.ID} }
		}
	case key.Matches(msg, m.keymap.NewCard):
		if _, ok := m.selectedList(); ok {
			m.startInput(inputNewCard, "New card: ", "Title", "")
			return m, textinput.Blink
		}
	case key.Matches(msg, m.keymap.NewList):
		m.startInput(inputNewList, "New list: ", "Title", "")
		return m, textinput.Blink
	case key.Matches(msg, m.keymap.Delete):
		if _, ok := m.selectedCardValue(); ok {
			m.confirmDelete, m.deleteList = true, false
		}
	case key.Matches(msg, m.keymap.DelList):
		if _, ok := m.selectedList(); ok {
			m.confirmDelete, m.deleteList = true, true
		}
	case key.Matches(msg, m.keymap.Approve):
		if card, ok := m.selectedCardValue(); ok {
			return m, m.approve(card.ID)
		}
	case key.Matches(msg, m.keymap.Complete):
		if card, ok := m.selectedCardValue(); ok {
			return m, m.toggleComplete(card)
		}
	case key.Matches(msg, m.keymap.Mine):
		m.filterMyOnly = !m.filterMyOnly
		m.rebuild()
	case key.Matches(msg, m.keymap.Refresh):
		cmd := m.refresh()
		return m, cmd
	case key.Matches(msg, m.keymap.Browser):
		if m.opts.BoardURL != "" {
			_ = browser.OpenURL(m.opts.BoardURL)
		}
	}

	return m, nil
}

func (m *BoardModel) startInput(purpose inputPurpose, prompt, placeholder, value string) {
	m.inputMode = purpose
	m.input.Prompt = prompt
	m.input.Placeholder = placeholder
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

func (m BoardModel) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.inputMode = inputNone
		m.input.Blur()
		return m, nil
	case "enter":
		purpose := m.inputMode
		value := strings.TrimSpace(m.input.Value())
		m.inputMode = inputNone
		m.input.Blur()
		switch purpose {
		case inputFilter:
			m.filterText = value
			m.rebuild()
		case inputNewCard:
			if l, ok := m.selectedList(); ok && value != "" {
				return m, m.createCard(l.ID, value)
			}
		case inputNewList:
			if value != "" {
				return m, m.createList(value)
			}
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleDragKeys moves a keyboard drag. Only one gesture runs at a time, so
// pointer input is ignored until it ends.
func (m BoardModel) handleDragKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var (
		changed bool
		err     error
	)
	switch {
	case key.Matches(msg, m.keymap.Cancel), msg.String() == "q":
		m.drag.Cancel()
		m.drag.Reset()
		m.rebuild()
		return m, nil
	case key.Matches(msg, m.keymap.Drop):
		_, id := m.drag.Item()
		in, err := m.drag.Drop()
		if err != nil {
			m.toast = toast{toastError, err.Error()}
		}
		cmd := m.submit(in, "Move")
		m.rebuild()
		m.follow(id)
		return m, cmd
	case key.Matches(msg, m.keymap.Left):
		changed, err = m.drag.Step(-1, 0)
	case key.Matches(msg, m.keymap.Right):
		changed, err = m.drag.Step(1, 0)
	case key.Matches(msg, m.keymap.Up):
		changed, err = m.drag.Step(0, -1)
	case key.Matches(msg, m.keymap.Down):
		changed, err = m.drag.Step(0, 1)
	}
	if err != nil {
		m.drag.Cancel()
		m.drag.Reset()
		m.toast = toast{toastError, fmt.Sprintf("Move cancelled: %v", err)}
	}
	if changed || err != nil {
		m.rebuild()
		_, id := m.drag.Item()
		m.follow(id)
	}
	return m, nil
}

func (m *BoardModel) beginKeyboardDrag(kind drag.Kind, id string) tea.Cmd {
	if m.filterActive() {
		m.toast = toast{toastInfo, "Clear the filter to move things"}
		return nil
	}
	if m.engine.InFlight(id) {
		m.toast = toast{toastInfo, "Still saving, try again in a moment"}
		return nil
	}
	if err := m.drag.BeginKeyboard(kind, id); err != nil {
		m.toast = toast{toastError, err.Error()}
	}
	m.rebuild()
	return nil
}

// handleMouse runs pointer drags: press arms, motion previews, release drops.
func (m BoardModel) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	p := drag.Point{X: msg.X, Y: msg.Y}

	switch {
	case msg.Button == tea.MouseButtonWheelDown:
		(&m).moveCardSelection(1)
		return m, nil
	case msg.Button == tea.MouseButtonWheelUp:
		(&m).moveCardSelection(-1)
		return m, nil
	}
	if m.drag.State() == drag.Dragging && m.drag.Keyboard() {
		return m, nil
	}

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft || m.showHelp || m.inputMode != inputNone {
			return m, nil
		}
		h, ok := m.hitTest(p)
		if !ok {
			return m, nil
		}
		m.selectColumn(h.listID)
		if h.cardID != "" {
			m.selectCard(h.cardID)
		}
		if m.filterActive() {
			return m, nil
		}
		kind, id := drag.KindList, h.listID
		if h.cardID != "" {
			kind, id = drag.KindCard, h.cardID
		}
		if m.engine.InFlight(id) {
			return m, nil
		}
		_ = m.drag.Press(kind, id, p)

	case tea.MouseActionMotion:
		kind, _ := m.drag.Item()
		changed, err := m.drag.Move(p, m.dragLayout(kind))
		if err != nil {
			m.drag.Cancel()
			m.drag.Reset()
			m.toast = toast{toastError, fmt.Sprintf("Move cancelled: %v", err)}
			changed = true
		}
		if changed {
			m.rebuild()
		}

	case tea.MouseActionRelease:
		kind, id := m.drag.Item()
		in, err := m.drag.Release(p, m.dragLayout(kind))
		m.drag.Reset()
		if err != nil {
			m.toast = toast{toastError, err.Error()}
		}
		cmd := m.submit(in, "Move")
		m.rebuild()
		m.follow(id)
		return m, cmd
	}
	return m, nil
}

// View renders the board - fills entire terminal exactly
func (m BoardModel) View() string {
	width, height := m.size()

	sections := []string{m.renderHeader(width), m.renderSecondHeader(width)}
	if m.inputMode != inputNone {
		sections = append(sections, m.input.View())
	}
	if banner := m.renderBanner(width); banner != "" {
		sections = append(sections, banner)
	}

	g := m.geometry()
	var mainContent string
	boardHeight := max(height-g.top, 5)
	switch {
	case m.showHelp:
		helpLines := strings.Split(m.help.View(width), "\n")
		if len(helpLines) > boardHeight {
			helpLines = helpLines[:boardHeight]
		}
		mainContent = strings.Join(helpLines, "\n")
	case !m.store.Loaded():
		mainContent = lipgloss.Place(width, boardHeight, lipgloss.Center, lipgloss.Center, m.spinner.View()+" Loading...")
	case len(m.columns) == 0:
		mainContent = lipgloss.Place(width, boardHeight, lipgloss.Center, lipgloss.Center, "No lists yet. Press 'N' to add one.")
	default:
		mainContent = m.renderBoard(g)
	}
	sections = append(sections, mainContent)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m BoardModel) size() (int, int) {
	width, height := m.width, m.height
	if width == 0 {
		width = 80
	}
	if height == 0 {
		height = 24
	}
	return width, height
}

// renderHeader renders a single header line with title on left and status on right
func (m BoardModel) renderHeader(width int) string {
	b, err := m.store.Board()
	if err != nil {
		return fitLine(titleStyle.Render("kanban"), width)
	}

	var statusParts []string
	if m.pending > 0 || m.refreshing {
		statusParts = append(statusParts, m.spinner.View()+"saving")
	}
	if m.offline {
		statusParts = append(statusParts, "offline")
	}

	total := 0
	for _, cards := range m.filteredCards {
		total += len(cards)
	}
	statusParts = append(statusParts, fmt.Sprintf("%d cards", total), fmt.Sprintf("v%d", b.Version))
	if m.filterMyOnly {
		statusParts = append(statusParts, "@me")
	}
	if m.filterText != "" {
		statusParts = append(statusParts, "/"+m.filterText)
	}
	statusParts = append(statusParts, "[?]help")

	return spread(titleStyle.Render(b.Title), dimStyle.Render(strings.Join(statusParts, " | ")), width)
}

// renderSecondHeader renders navigation hints, or the latest toast.
func (m BoardModel) renderSecondHeader(width int) string {
	left := dimStyle.Render("h/l:list j/k:card m:move M:move list enter:open n:new a:approve")
	if m.drag.State() == drag.Dragging && !m.drag.Keyboard() {
		// Pointer drags keep the header height so the board does not shift under the pointer.
		left = moveModeStyle.Render("MOVE") + dimStyle.Render(" release to drop, outside the board to cancel")
	}

	right := ""
	switch {
	case m.toast.text != "":
		style := infoStyle
		switch m.toast.kind {
		case toastWarn:
			style = WarningStyle
		case toastError:
			style = ErrorStyle
		}
		right = style.Render(m.toast.text)
	case len(m.columns) > 0:
		l := m.columns[m.selectedColumn]
		cards := m.filteredCards[l.ID]
		right = fmt.Sprintf("list %d/%d", m.selectedColumn+1, len(m.columns))
		if len(cards) > 0 {
			right = fmt.Sprintf("%s | card %d/%d", right, m.selectedCard[l.ID]+1, len(cards))
		}
	}
	return spread(left, right, width)
}

func (m BoardModel) renderBanner(width int) string {
	switch {
	case m.confirmDelete && m.deleteList:
		if l, ok := m.selectedList(); ok {
			return fitLine(WarningStyle.Render(fmt.Sprintf("Delete list %q and its %d cards? [y]es / any key to cancel", l.Title, len(m.store.Cards(l.ID)))), width)
		}
	case m.confirmDelete:
		if card, ok := m.selectedCardValue(); ok {
			return fitLine(WarningStyle.Render(fmt.Sprintf("Delete %q? [y]es / any key to cancel", card.Title)), width)
		}
	case m.drag.State() == drag.Dragging && m.drag.Keyboard():
		return fitLine(moveModeStyle.Render("MOVE")+" h/j/k/l to move, enter to drop, esc to cancel", width)
	}
	return ""
}

// spread places left and right on one line of the given width.
func spread(left, right string, width int) string {
	padding := max(width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return fitLine(left+strings.Repeat(" ", padding)+right, width)
}

// fitLine keeps a header on one terminal row, so mouse coordinates line up
// with the geometry the board was laid out with.
func fitLine(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return truncate.StringWithTail(s, uint(max(width-1, 1)), "…")
}

// boardGeometry is where the columns are drawn on screen.
type boardGeometry struct {
	top         int // Screen row of the columns' top border
	colWidth    int // Including border
	innerHeight int // Content rows inside a column border
	start, end  int // Visible column range
	leftArrow   bool
	rightArrow  bool
}

func (m BoardModel) geometry() boardGeometry {
	width, height := m.size()

	top := 2
	if m.inputMode != inputNone {
		top++
	}
	if m.renderBanner(width) != "" {
		top++
	}

	g := boardGeometry{top: top}
	g.innerHeight = max(max(height-top, 5)-2, 3)

	numCols := len(m.columns)
	visibleCols := min(max(width/minColumnWidth, 1), max(numCols, 1))
	g.colWidth = min(max(width/visibleCols, minColumnWidth), maxColumnWidth)

	g.start = m.columnOffset
	g.end = g.start + visibleCols
	if g.end > numCols {
		g.end = numCols
		g.start = max(g.end-visibleCols, 0)
	}
	g.leftArrow = g.start > 0
	g.rightArrow = g.end < numCols
	return g
}

// columnRect returns the screen rectangle of visible column i.
func (g boardGeometry) columnRect(i int) drag.Rect {
	x := (i - g.start) * g.colWidth
	if g.leftArrow {
		x += 2
	}
	return drag.Rect{X: x, Y: g.top, W: g.colWidth, H: g.innerHeight + 2}
}

// cardWindow returns which of n cards fit in slots rows when scrolled to offset.
func cardWindow(n, offset, slots int) (start, end int, up, down bool) {
	up = offset > 0
	avail := slots
	if up {
		avail--
	}
	end = min(offset+avail, n)
	if end < n {
		down = true
		avail--
		end = min(offset+avail, n)
	}
	return offset, end, up, down
}

// renderBoard renders the kanban columns.
// Implements horizontal scrolling (carousel) when columns overflow
func (m BoardModel) renderBoard(g boardGeometry) string {
	views := make([]string, 0, g.end-g.start+2)
	arrow := lipgloss.NewStyle().
		Width(2).
		Height(g.innerHeight+2).
		Foreground(lipgloss.Color("205")).
		Align(lipgloss.Center, lipgloss.Center)

	if g.leftArrow {
		views = append(views, arrow.Render("◀"))
	}
	for i := g.start; i < g.end; i++ {
		views = append(views, m.renderColumn(i, g))
	}
	if g.rightArrow {
		views = append(views, arrow.Render("▶"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

// renderColumn renders one list. Every card takes exactly one row so hit
// testing can map rows back to cards.
func (m BoardModel) renderColumn(i int, g boardGeometry) string {
	l := m.columns[i]
	cards := m.filteredCards[l.ID]
	selected := i == m.selectedColumn
	innerWidth := max(g.colWidth-4, 10)
	dragKind, dragID := m.drag.Item()
	dragging := m.drag.State() == drag.Dragging

	header := fmt.Sprintf("[%d] %s (%d)", i+1, l.Title, len(cards))
	if l.RequiresApproval {
		header += " ⚑"
	}
	headerStyle := columnHeaderStyle
	if dragging && dragKind == drag.KindList && dragID == l.ID {
		headerStyle = draggedCardStyle
	}
	lines := []string{headerStyle.Render(truncate.StringWithTail(header, uint(innerWidth), "…"))}

	offset := m.scrollOffset[l.ID]
	start, end, up, down := cardWindow(len(cards), offset, g.innerHeight-1)
	if up {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("↑ %d more", offset)))
	}
	for j := start; j < end; j++ {
		c := cards[j]
		text := m.formatCardText(c, innerWidth-2)
		switch {
		case dragging && dragKind == drag.KindCard && dragID == c.ID:
			lines = append(lines, draggedCardStyle.Render("≡ "+text))
		case selected && j == m.selectedCard[l.ID]:
			lines = append(lines, selectedCardStyle.Render("> "+text))
		case c.Completed:
			lines = append(lines, doneCardStyle.Render("  "+text))
		default:
			lines = append(lines, cardStyle.Render("  "+text))
		}
	}
	if down {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("↓ %d more", len(cards)-end)))
	}
	if len(cards) == 0 {
		lines = append(lines, dimStyle.Render("(empty)"))
	}

	borderColor := lipgloss.Color("240")
	if selected {
		borderColor = lipgloss.Color("205")
	}

	// Height sets the content area; the border adds two rows.
	return lipgloss.NewStyle().
		Width(g.colWidth - 2).
		Height(g.innerHeight).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(borderColor).
		Render(strings.Join(lines, "\n"))
}

// formatCardText formats a card for display with max width, right-aligning
// its badges.
func (m BoardModel) formatCardText(card domain.Card, maxWidth int) string {
	var badges []string
	if card.Approved {
		badges = append(badges, "✓")
	}
	if card.ChecklistCount > 0 {
		badges = append(badges, fmt.Sprintf("%d/%d", card.ChecklistDone, card.ChecklistCount))
	}
	if card.CommentCount > 0 {
		badges = append(badges, fmt.Sprintf("✎%d", card.CommentCount))
	}
	suffix := strings.Join(badges, " ")

	if suffix == "" {
		return truncate.StringWithTail(card.Title, uint(max(maxWidth, 1)), "…")
	}

	available := max(maxWidth-lipgloss.Width(suffix)-1, 5)
	title := truncate.StringWithTail(card.Title, uint(available), "…")
	padding := max(maxWidth-lipgloss.Width(title)-lipgloss.Width(suffix), 1)
	return title + strings.Repeat(" ", padding) + dimStyle.Render(suffix)
}

// rebuild refreshes the column structure and the filtered cards from the store.
func (m *BoardModel) rebuild() {
	m.columns = m.store.Lists()
	m.filteredCards = make(map[string][]domain.Card, len(m.columns))

	needle := strings.ToLower(m.filterText)
	for _, l := range m.columns {
		cards := m.store.Cards(l.ID)
		filtered := make([]domain.Card, 0, len(cards))
		for _, c := range cards {
			if needle != "" && !strings.Contains(strings.ToLower(c.Title), needle) {
				continue
			}
			if m.filterMyOnly && !slices.Contains(c.Assignees, m.opts.User) {
				continue
			}
			filtered = append(filtered, c)
		}
		m.filteredCards[l.ID] = filtered

		if m.selectedCard[l.ID] >= len(filtered) {
			m.selectedCard[l.ID] = max(len(filtered)-1, 0)
		}
	}

	if m.selectedColumn >= len(m.columns) {
		m.selectedColumn = max(len(m.columns)-1, 0)
	}
	m.adjustColumnScroll()
	if l, ok := m.selectedList(); ok {
		m.adjustScroll(l.ID)
	}
}

func (m BoardModel) filterActive() bool {
	return m.filterText != "" || m.filterMyOnly
}

// moveCardSelection moves the card selection up or down by delta
func (m *BoardModel) moveCardSelection(delta int) {
	l, ok := m.selectedList()
	if !ok {
		return
	}
	cards := m.filteredCards[l.ID]
	if len(cards) == 0 {
		return
	}
	m.selectedCard[l.ID] = max(0, min(m.selectedCard[l.ID]+delta, len(cards)-1))
	m.adjustScroll(l.ID)
}

// jumpToCard jumps to a specific card index. Use -1 to jump to last card.
func (m *BoardModel) jumpToCard(idx int) {
	l, ok := m.selectedList()
	if !ok {
		return
	}
	cards := m.filteredCards[l.ID]
	if len(cards) == 0 {
		return
	}
	if idx < 0 || idx >= len(cards) {
		idx = len(cards) - 1
	}
	m.selectedCard[l.ID] = idx
	m.adjustScroll(l.ID)
}

// adjustScroll ensures the selected card is visible
func (m *BoardModel) adjustScroll(listID string) {
	g := m.geometry()
	visible := max(g.innerHeight-3, 1) // header + both scroll indicators
	selectedIdx := m.selectedCard[listID]
	offset := m.scrollOffset[listID]

	if selectedIdx < offset {
		offset = selectedIdx
	}
	if selectedIdx >= offset+visible {
		offset = selectedIdx - visible + 1
	}
	m.scrollOffset[listID] = max(offset, 0)
}

// adjustColumnScroll ensures the selected column is visible (horizontal carousel)
func (m *BoardModel) adjustColumnScroll() {
	if len(m.columns) == 0 {
		m.columnOffset = 0
		return
	}
	width, _ := m.size()
	visibleCols := min(max(width/minColumnWidth, 1), len(m.columns))

	if m.selectedColumn < m.columnOffset {
		m.columnOffset = m.selectedColumn
	}
	if m.selectedColumn >= m.columnOffset+visibleCols {
		m.columnOffset = m.selectedColumn - visibleCols + 1
	}
	m.columnOffset = min(m.columnOffset, len(m.columns)-visibleCols)
}

func (m BoardModel) selectedList() (domain.List, bool) {
	if len(m.columns) == 0 {
		return domain.List{}, false
	}
	return m.columns[m.selectedColumn], true
}

// selectedCardValue returns the currently selected card
func (m BoardModel) selectedCardValue() (domain.Card, bool) {
	l, ok := m.selectedList()
	if !ok {
		return domain.Card{}, false
	}
	cards := m.filteredCards[l.ID]
	idx := m.selectedCard[l.ID]
	if idx >= len(cards) {
		return domain.Card{}, false
	}
	return cards[idx], true
}

func (m *BoardModel) selectColumn(listID string) {
	if i := order.IndexOf(m.columns, listID); i >= 0 {
		m.selectedColumn = i
		m.adjustColumnScroll()
	}
}

func (m *BoardModel) selectCard(cardID string) {
	p, err := m.store.CardPlacement(cardID)
	if err != nil {
		return
	}
	m.selectColumn(p.Container)
	if i := order.IndexOf(m.filteredCards[p.Container], cardID); i >= 0 {
		m.selectedCard[p.Container] = i
		m.adjustScroll(p.Container)
	}
}

// follow keeps the selection on a dragged item as it moves.
func (m *BoardModel) follow(id string) {
	if id == "" {
		return
	}
	if order.IndexOf(m.columns, id) >= 0 {
		m.selectColumn(id)
		return
	}
	m.selectCard(id)
}

type hit struct {
	listID string
	cardID string // Empty when the list header was hit
}

// hitTest finds the list header or card drawn at p.
func (m BoardModel) hitTest(p drag.Point) (hit, bool) {
	g := m.geometry()
	for i := g.start; i < g.end; i++ {
		r := g.columnRect(i)
		if !r.Contains(p) {
			continue
		}
		l := m.columns[i]
		row := p.Y - r.Y - 1 // Inside the top border
		if row <= 0 {
			return hit{listID: l.ID}, true
		}
		cards := m.filteredCards[l.ID]
		start, end, up, _ := cardWindow(len(cards), m.scrollOffset[l.ID], g.innerHeight-1)
		idx := start + row - 1
		if up {
			idx--
		}
		if idx >= start && idx < end {
			return hit{listID: l.ID, cardID: cards[idx].ID}, true
		}
		return hit{listID: l.ID}, true
	}
	return hit{}, false
}

// dragLayout describes the last frame for drop detection. Cards scrolled
// out of view still count: they get rectangles on the column's top or bottom
// edge so indices stay absolute.
func (m BoardModel) dragLayout(kind drag.Kind) drag.Layout {
	g := m.geometry()

	if kind == drag.KindList {
		board := drag.Container{ID: m.store.BoardID()}
		var first, last drag.Rect
		for i, l := range m.columns {
			var r drag.Rect
			switch {
			case i < g.start:
				r = drag.Rect{X: -1, Y: g.top, W: 1, H: g.innerHeight + 2}
			case i >= g.end:
				r = drag.Rect{X: 1 << 16, Y: g.top, W: 1, H: g.innerHeight + 2}
			default:
				r = g.columnRect(i)
				if first.W == 0 {
					first = r
				}
				last = r
			}
			board.Items = append(board.Items, drag.Item{ID: l.ID, Rect: r})
		}
		board.Rect = drag.Rect{X: first.X, Y: g.top, W: last.X + last.W - first.X, H: g.innerHeight + 2}
		return drag.Layout{Axis: drag.Horizontal, Containers: []drag.Container{board}}
	}

	layout := drag.Layout{Axis: drag.Vertical}
	for i := g.start; i < g.end; i++ {
		l := m.columns[i]
		r := g.columnRect(i)
		c := drag.Container{ID: l.ID, Rect: r}

		cards := m.filteredCards[l.ID]
		start, end, up, _ := cardWindow(len(cards), m.scrollOffset[l.ID], g.innerHeight-1)
		row := r.Y + 2
		if up {
			row++
		}
		for j, card := range cards {
			cr := drag.Rect{X: r.X + 1, W: r.W - 2, H: 1}
			switch {
			case j < start:
				cr.Y = r.Y
			case j >= end:
				cr.Y = r.Y + r.H
			default:
				cr.Y = row + j - start
			}
			c.Items = append(c.Items, drag.Item{ID: card.ID, Rect: cr})
		}
		layout.Containers = append(layout.Containers, c)
	}
	return layout
}

func (m BoardModel) waitForUpdate() tea.Cmd {
	ch := m.opts.Updates
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		u, ok := <-ch
		return syncMsg{update: u, ok: ok}
	}
}

// submit applies an intent to the store right away and commits it in the background.
func (m *BoardModel) submit(in engine.Intent, what string) tea.Cmd {
	if in == nil {
		return nil
	}
	ref, err := m.engine.Apply(in)
	if err != nil {
		m.report(what, engine.Outcome{Err: err, Kind: domain.Classify(err)})
		return nil
	}
	m.pending++
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		return commitMsg{what: what, outcome: e.Commit(ctx, ref)}
	}
}

func (m *BoardModel) refresh() tea.Cmd {
	m.refreshing = true
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		return refreshMsg{err: e.Refresh(ctx)}
	}
}

func (m BoardModel) createCard(listID, title string) tea.Cmd {
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		card, out := e.CreateCard(ctx, listID, domain.NewCard{Title: title})
		return crudMsg{what: "Create card", outcome: out, card: card}
	}
}

func (m BoardModel) createList(title string) tea.Cmd {
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		_, out := e.CreateList(ctx, title)
		return crudMsg{what: "Create list", outcome: out}
	}
}

func (m BoardModel) approve(cardID string) tea.Cmd {
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		card, out := e.ApproveCard(ctx, cardID)
		return crudMsg{what: "Approve", outcome: out, card: card}
	}
}

func (m BoardModel) toggleComplete(card domain.Card) tea.Cmd {
	ctx, e := m.ctx, m.engine
	done := !card.Completed
	return func() tea.Msg {
		updated, out := e.UpdateCard(ctx, card.ID, domain.CardPatch{Completed: &done})
		return crudMsg{what: "Update card", outcome: out, card: updated}
	}
}

func (m BoardModel) deleteSelected() tea.Cmd {
	card, ok := m.selectedCardValue()
	if !ok {
		return nil
	}
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		return crudMsg{what: "Delete card", outcome: e.DeleteCard(ctx, card.ID)}
	}
}

func (m BoardModel) deleteSelectedList() tea.Cmd {
	l, ok := m.selectedList()
	if !ok {
		return nil
	}
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		return crudMsg{what: "Delete list", outcome: e.DeleteList(ctx, l.ID)}
	}
}

// Message types
type (
	commitMsg struct {
		what    string
		outcome engine.Outcome
	}
	crudMsg struct {
		what    string
		outcome engine.Outcome
		card    domain.Card
	}
	refreshMsg    struct{ err error }
	openDetailMsg struct{ cardID string }
)
