package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pkg/browser"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/engine"
	"github.com/h0rv/kanban/internal/store"
)

// Layout constants
const (
	leftPanelRatio = 0.35 // Left panel takes 35% of width
	minLeftWidth   = 30
	maxLeftWidth   = 50
	headerHeight   = 1
	footerHeight   = 1
	borderSize     = 2 // Top + bottom border
)

// Detail view styles
var (
	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	detailLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	detailValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	commentAuthorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("212")).
				Bold(true)

	commentTimeStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	commentBodyStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	panelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	focusedPanelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("205"))

	scrollIndicatorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("205"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34"))
)

// CardDetails reads and writes the satellites of a card: comments, checklist
// items and attachments. *remote.Client implements it.
type CardDetails interface {
	ListComments(ctx context.Context, cardID string) ([]domain.Comment, error)
	ListChecklist(ctx context.Context, cardID string) ([]domain.ChecklistItem, error)
	ListAttachments(ctx context.Context, cardID string) ([]domain.Attachment, error)
	AddComment(ctx context.Context, cardID, body string) (domain.Comment, domain.Receipt, error)
	AddChecklistItem(ctx context.Context, cardID, title string) (domain.ChecklistItem, domain.Receipt, error)
	SetChecklistItem(ctx context.Context, itemID string, done bool) (domain.ChecklistItem, domain.Receipt, error)
}

// DetailModel represents the card detail view with split-screen layout
type DetailModel struct {
	// Dependencies
	ctx     context.Context
	store   *store.Store
	engine  *engine.Engine
	details CardDetails

	cardID      string
	comments    []domain.Comment
	checklist   []domain.ChecklistItem
	attachments []domain.Attachment

	// UI components
	spinner      spinner.Model
	commentInput textarea.Model
	itemInput    textinput.Model
	viewport     viewport.Model
	members      *MemberPickerModel
	labels       *LabelPickerModel

	// State
	commentMode   bool
	itemMode      bool
	confirmExit   bool // Show "unsaved changes" prompt
	openMode      bool // Next digit opens an attachment
	loading       bool
	loadingAction string
	loadingExtras bool
	extrasError   string
	errorMsg      string
	warnMsg       string
	successMsg    string

	// View dimensions
	width  int
	height int
}

// NewDetailModel creates a detail view for one card of the open board.
func NewDetailModel(ctx context.Context, cardID string, s *store.Store, e *engine.Engine, details CardDetails) DetailModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ta := textarea.New()
	ta.Placeholder = "Write your comment here..."
	ta.CharLimit = 65535
	ta.SetHeight(6)
	ta.SetWidth(40) // Will be resized
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle() // No highlight on cursor line
	ta.FocusedStyle.Base = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("228"))
	ta.BlurredStyle.Base = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240"))

	ti := textinput.New()
	ti.Prompt = "☐ "
	ti.Placeholder = "Checklist item"
	ti.CharLimit = 200

	vp := viewport.New(40, 10) // Will be resized in WindowSizeMsg
	vp.MouseWheelEnabled = true
	vp.MouseWheelDelta = 3

	return DetailModel{
		ctx:           ctx,
		store:         s,
		engine:        e,
		details:       details,
		cardID:        cardID,
		spinner:       sp,
		commentInput:  ta,
		itemInput:     ti,
		viewport:      vp,
		loadingExtras: true,
	}
}

// Init initializes the detail model
func (m DetailModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.WindowSize(), m.loadExtras())
}

// card returns the card as the store currently has it.
func (m DetailModel) card() (domain.Card, bool) {
	c, err := m.store.Card(m.cardID)
	return c, err == nil
}

// Update handles messages
func (m DetailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeComponents()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case extrasLoadedMsg:
		m.loadingExtras = false
		if msg.err != nil {
			m.extrasError = msg.err.Error()
			return m, nil
		}
		m.extrasError = ""
		m.comments = msg.comments
		m.checklist = msg.checklist
		m.attachments = msg.attachments
		m.updateViewportContent()
		return m, nil

	case detailDoneMsg:
		m.loading = false
		m.clearStatus()
		if !msg.outcome.OK() {
			m.reportFailure(msg.what, msg.outcome)
			return m, nil
		}
		m.successMsg = msg.what + " done"
		if msg.what == "Comment" {
			m.commentMode = false
			m.commentInput.Reset()
			m.commentInput.Blur()
		}
		m.updateViewportContent()
		return m, m.loadExtras()

	case MemberSelectedMsg:
		m.members = nil
		if c, ok := m.card(); ok {
			cmd := m.setAssignees(toggle(c.Assignees, msg.UserID))
			return m, cmd
		}
		return m, nil

	case LabelSelectedMsg:
		m.labels = nil
		if c, ok := m.card(); ok {
			cmd := m.setLabels(toggle(c.Labels, msg.LabelID))
			return m, cmd
		}
		return m, nil

	case pickerClosedMsg:
		m.members = nil
		m.labels = nil
		return m, nil

	case syncMsg:
		// The card may have changed under us; a deleted card closes the view.
		if _, ok := m.card(); !ok && m.store.Loaded() {
			return m, func() tea.Msg { return closeDetailMsg{} }
		}
		m.updateViewportContent()
		return m, nil

	case tea.KeyMsg:
		if m.members != nil {
			pm, cmd := m.members.Update(msg)
			m.members = &pm
			return m, cmd
		}
		if m.labels != nil {
			pm, cmd := m.labels.Update(msg)
			m.labels = &pm
			return m, cmd
		}
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		// Forward mouse events to viewport when not typing
		if !m.commentMode && !m.itemMode {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	// Keep the inputs blinking
	if m.commentMode {
		var cmd tea.Cmd
		m.commentInput, cmd = m.commentInput.Update(msg)
		cmds = append(cmds, cmd)
	}
	if m.itemMode {
		var cmd tea.Cmd
		m.itemInput, cmd = m.itemInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *DetailModel) clearStatus() {
	m.errorMsg = ""
	m.warnMsg = ""
	m.successMsg = ""
}

func (m *DetailModel) reportFailure(what string, out engine.Outcome) {
	if pe, ok := domain.AsPolicy(out.Err); ok {
		m.warnMsg = fmt.Sprintf("%s rejected: %s", what, pe.Reason)
		return
	}
	m.errorMsg = fmt.Sprintf("%s failed: %v", what, out.Err)
}

// resizeComponents calculates and sets component dimensions
func (m *DetailModel) resizeComponents() {
	leftWidth := min(max(int(float64(m.width)*leftPanelRatio), minLeftWidth), maxLeftWidth)

	// Right panel gets remaining width minus borders and gap
	rightWidth := max(m.width-leftWidth-3, 30)

	// Content height = total - header - footer - borders
	contentHeight := max(m.height-headerHeight-footerHeight-borderSize, 10)

	// Set viewport dimensions (account for border in right panel)
	m.viewport.Width = rightWidth - borderSize - 2     // -2 for padding
	m.viewport.Height = contentHeight - borderSize - 8 // Reserve space for comment input

	m.commentInput.SetWidth(rightWidth - borderSize - 4)
	m.itemInput.Width = leftWidth - borderSize - 4

	if m.members != nil {
		m.members.SetSize(m.width, m.height)
	}
	if m.labels != nil {
		m.labels.SetSize(m.width, m.height)
	}

	m.updateViewportContent()
}

// handleKeyPress processes keyboard input
func (m DetailModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	// Confirm exit dialog
	if m.confirmExit {
		switch msg.String() {
		case "y", "Y":
			// Discard and exit
			m.confirmExit = false
			m.commentMode = false
			m.commentInput.Reset()
			m.commentInput.Blur()
			return m, func() tea.Msg { return closeDetailMsg{} }
		case "n", "N", "esc":
			m.confirmExit = false
			return m, nil
		case "s", "S":
			m.confirmExit = false
			cmd := m.postComment()
			return m, cmd
		}
		return m, nil
	}

	// Comment mode - textarea gets all key events except special ones
	if m.commentMode {
		switch msg.String() {
		case "esc":
			if strings.TrimSpace(m.commentInput.Value()) != "" {
				m.confirmExit = true
				return m, nil
			}
			m.commentMode = false
			m.commentInput.Blur()
			return m, nil
		case "ctrl+s":
			cmd := m.postComment()
			return m, cmd
		default:
			var cmd tea.Cmd
			m.commentInput, cmd = m.commentInput.Update(msg)
			return m, cmd
		}
	}

	if m.itemMode {
		switch msg.String() {
		case "esc":
			m.itemMode = false
			m.itemInput.Blur()
			return m, nil
		case "enter":
			title := strings.TrimSpace(m.itemInput.Value())
			m.itemMode = false
			m.itemInput.Blur()
			m.itemInput.Reset()
			if title == "" {
				return m, nil
			}
			cmd := m.addChecklistItem(title)
			return m, cmd
		default:
			var cmd tea.Cmd
			m.itemInput, cmd = m.itemInput.Update(msg)
			return m, cmd
		}
	}

	if m.openMode {
		m.openMode = false
		if n, ok := digit(msg.String()); ok && n <= len(m.attachments) {
			_ = browser.OpenURL(m.attachments[n-1].URL)
		}
		return m, nil
	}

	card, ok := m.card()
	if !ok {
		return m, func() tea.Msg { return closeDetailMsg{} }
	}

	switch msg.String() {
	case "q", "esc":
		return m, func() tea.Msg { return closeDetailMsg{} }
	case "o":
		switch len(m.attachments) {
		case 0:
		case 1:
			_ = browser.OpenURL(m.attachments[0].URL)
		default:
			m.openMode = true
		}
	case "c":
		m.commentMode = true
		m.commentInput.Focus()
		m.clearStatus()
		return m, textarea.Blink
	case "t":
		m.itemMode = true
		m.itemInput.Focus()
		m.clearStatus()
		return m, textinput.Blink
	case "a":
		cmd := m.approve()
		return m, cmd
	case "x":
		cmd := m.setCompleted(!card.Completed)
		return m, cmd
	case "A":
		b, err := m.store.Board()
		if err != nil {
			return m, nil
		}
		picker := NewMemberPickerModel(b.Members, card.Assignees)
		picker.SetSize(m.width, m.height)
		m.members = &picker
	case "L":
		b, err := m.store.Board()
		if err != nil {
			return m, nil
		}
		if len(b.Labels) == 0 {
			m.warnMsg = "This board has no labels"
			return m, nil
		}
		picker := NewLabelPickerModel(b.Labels, card.Labels)
		picker.SetSize(m.width, m.height)
		m.labels = &picker
	case "j", "down":
		m.viewport.ScrollDown(1)
	case "k", "up":
		m.viewport.ScrollUp(1)
	case "ctrl+d":
		m.viewport.HalfPageDown()
	case "ctrl+u":
		m.viewport.HalfPageUp()
	case "g":
		m.viewport.GotoTop()
	case "G":
		m.viewport.GotoBottom()
	default:
		if n, ok := digit(msg.String()); ok && n <= len(m.checklist) {
			item := m.checklist[n-1]
			cmd := m.setChecklistItem(item.ID, !item.Done)
			return m, cmd
		}
	}

	return m, nil
}

func digit(s string) (int, bool) {
	if len(s) != 1 || s[0] < '1' || s[0] > '9' {
		return 0, false
	}
	return int(s[0] - '0'), true
}

// toggle adds id to ids, or removes it when already present.
func toggle(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(slices.Clone(ids), i, i+1)
	}
	return append(slices.Clone(ids), id)
}

// View renders the split-screen detail view
func (m DetailModel) View() string {
	if m.members != nil {
		return m.members.View()
	}
	if m.labels != nil {
		return m.labels.View()
	}

	width := m.width
	height := m.height
	if width == 0 {
		width = 100
	}
	if height == 0 {
		height = 30
	}

	card, ok := m.card()
	if !ok {
		return dimStyle.Render("This card no longer exists. Press q to go back.")
	}

	leftWidth := min(max(int(float64(width)*leftPanelRatio), minLeftWidth), maxLeftWidth)
	rightWidth := width - leftWidth - 1 // 1 char gap
	contentHeight := max(height-headerHeight-footerHeight, 10)

	header := m.renderHeader()

	leftContent := m.renderLeftPanel(card, leftWidth-borderSize, contentHeight-borderSize)
	leftBorder := panelBorderStyle
	if m.itemMode {
		leftBorder = focusedPanelBorderStyle
	}
	leftPanel := leftBorder.
		Width(leftWidth - borderSize).
		Height(contentHeight - borderSize).
		Render(leftContent)

	rightContent := m.renderRightPanel(card)
	rightBorder := focusedPanelBorderStyle
	if m.commentMode || m.itemMode {
		rightBorder = panelBorderStyle // Unfocus when typing elsewhere
	}
	rightPanel := rightBorder.
		Width(rightWidth - borderSize).
		Height(contentHeight - borderSize).
		Render(rightContent)

	panels := lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, " ", rightPanel)
	footer := m.renderFooter(width)

	return lipgloss.JoinVertical(lipgloss.Left, header, panels, footer)
}

// renderHeader renders the top help bar
func (m DetailModel) renderHeader() string {
	switch {
	case m.confirmExit:
		return WarningStyle.Render("Unsaved comment! [Y]discard [N]cancel [S]save and exit")
	case m.commentMode:
		return dimStyle.Render("[Ctrl+S]save [ESC]cancel") + "  " + commentAuthorStyle.Render("Writing comment...")
	case m.itemMode:
		return dimStyle.Render("[Enter]add [ESC]cancel") + "  " + commentAuthorStyle.Render("New checklist item...")
	case m.openMode:
		return dimStyle.Render(fmt.Sprintf("Open which attachment? [1-%d]", len(m.attachments)))
	}

	parts := []string{"[q]back", "[c]comment", "[t]item", "[1-9]check", "[x]done", "[a]approve", "[A]assign", "[L]label"}
	if len(m.attachments) > 0 {
		parts = append(parts, "[o]open")
	}
	return dimStyle.Render(strings.Join(parts, " "))
}

// renderFooter renders the bottom status bar
func (m DetailModel) renderFooter(width int) string {
	var left, right string

	switch {
	case m.loading:
		left = m.spinner.View() + " " + m.loadingAction
	case m.warnMsg != "":
		left = WarningStyle.Render("! " + m.warnMsg)
	case m.errorMsg != "":
		left = ErrorStyle.Render("✗ " + m.errorMsg)
	case m.successMsg != "":
		left = successStyle.Render("✓ " + m.successMsg)
	case m.commentMode:
		left = fmt.Sprintf("%d chars", len(m.commentInput.Value()))
	}

	if !m.commentMode && m.viewport.TotalLineCount() > m.viewport.Height {
		switch {
		case m.viewport.AtTop():
			right = "TOP"
		case m.viewport.AtBottom():
			right = "END"
		default:
			right = fmt.Sprintf("%d%%", int(m.viewport.ScrollPercent()*100))
		}
	}

	padding := max(width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return left + strings.Repeat(" ", padding) + dimStyle.Render(right)
}

// renderLeftPanel renders the card metadata and its checklist
func (m DetailModel) renderLeftPanel(card domain.Card, width, height int) string {
	var b strings.Builder

	if l, err := m.store.List(card.ListID); err == nil {
		b.WriteString(detailLabelStyle.Render(l.Title))
		b.WriteString("\n\n")
	}

	b.WriteString(detailTitleStyle.Render(wordwrap.String(card.Title, width-2)))
	b.WriteString("\n\n")

	field := func(name, value string, style lipgloss.Style) {
		b.WriteString(detailLabelStyle.Render(name + ": "))
		b.WriteString(style.Render(value))
		b.WriteString("\n")
	}

	state := "open"
	stateStyle := detailValueStyle
	switch {
	case card.Completed:
		state = "done"
		stateStyle = stateStyle.Foreground(lipgloss.Color("34"))
	case card.Approved:
		state = "approved"
		stateStyle = stateStyle.Foreground(lipgloss.Color("141"))
	}
	field("State", state, stateStyle)
	if card.Approved && card.ApprovedBy != "" {
		field("Approved by", card.ApprovedBy, detailValueStyle)
	}
	if card.CreatorID != "" {
		field("Created by", card.CreatorID, detailValueStyle)
	}
	if card.DueAt != nil {
		dueStyle := detailValueStyle
		if !card.Completed && card.DueAt.Before(time.Now()) {
			dueStyle = ErrorStyle
		}
		field("Due", card.DueAt.Format("Jan 2, 2006"), dueStyle)
	}
	if len(card.Assignees) > 0 {
		field("Assigned", wordwrap.String(strings.Join(card.Assignees, ", "), width-10), detailValueStyle)
	}
	if len(card.Labels) > 0 {
		b.WriteString(detailLabelStyle.Render("Labels: "))
		b.WriteString(m.renderLabels(card.Labels))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(detailLabelStyle.Render(fmt.Sprintf("Checklist (%d/%d)", card.ChecklistDone, card.ChecklistCount)))
	b.WriteString("\n")
	for i, item := range m.checklist {
		box := "☐"
		style := detailValueStyle
		if item.Done {
			box = "☑"
			style = dimStyle
		}
		line := fmt.Sprintf("%d %s %s", i+1, box, item.Title)
		b.WriteString(style.Render(wordwrap.String(line, width-2)))
		b.WriteString("\n")
	}
	if m.itemMode {
		b.WriteString(m.itemInput.View())
		b.WriteString("\n")
	}

	// Trim to the panel
	lines := strings.Split(b.String(), "\n")
	if len(lines) > height {
		lines = append(lines[:height-1], "...")
	}
	return strings.Join(lines, "\n")
}

func (m DetailModel) renderLabels(ids []string) string {
	b, err := m.store.Board()
	if err != nil {
		return strings.Join(ids, ", ")
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		i := slices.IndexFunc(b.Labels, func(l domain.Label) bool { return l.ID == id })
		if i < 0 {
			continue
		}
		parts = append(parts, labelStyle(b.Labels[i]).Render(b.Labels[i].Name))
	}
	return strings.Join(parts, " ")
}

// renderRightPanel renders the discussion panel with viewport
func (m DetailModel) renderRightPanel(card domain.Card) string {
	var b strings.Builder

	title := "Discussion"
	if n := len(m.comments); n > 0 {
		title = fmt.Sprintf("Discussion (%d)", n)
	}

	scrollHint := ""
	if !m.commentMode && m.viewport.TotalLineCount() > m.viewport.Height {
		switch {
		case m.viewport.AtTop():
			scrollHint = " ↓"
		case m.viewport.AtBottom():
			scrollHint = " ↑"
		default:
			scrollHint = " ↕"
		}
	}

	b.WriteString(detailLabelStyle.Render(title))
	b.WriteString(scrollIndicatorStyle.Render(scrollHint))
	b.WriteString("\n")

	if m.loadingExtras {
		b.WriteString("\n")
		b.WriteString(m.spinner.View() + " Loading comments...")
		return b.String()
	}

	if m.extrasError != "" {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render("Error: " + m.extrasError))
		return b.String()
	}

	if m.commentMode {
		b.WriteString("\n")
		b.WriteString(commentAuthorStyle.Render("New Comment"))
		b.WriteString("\n\n")
		b.WriteString(m.commentInput.View())
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("Ctrl+S to save • ESC to cancel"))

		if len(m.comments) > 0 {
			b.WriteString("\n\n")
			b.WriteString(detailLabelStyle.Render(fmt.Sprintf("── %d existing comments ──", len(m.comments))))
		}
		return b.String()
	}

	if card.Description == "" && len(m.comments) == 0 && len(m.attachments) == 0 {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("No description or comments"))
		b.WriteString("\n\n")
		b.WriteString(dimStyle.Render("Press 'c' to add a comment"))
		return b.String()
	}

	b.WriteString(m.viewport.View())
	return b.String()
}

// updateViewportContent formats the description, attachments and comments
// for viewport display
func (m *DetailModel) updateViewportContent() {
	card, ok := m.card()
	if !ok {
		return
	}

	var b strings.Builder
	wrapWidth := max(m.viewport.Width-4, 30)
	separator := func() {
		if b.Len() > 0 {
			b.WriteString("\n\n")
			b.WriteString(dimStyle.Render(strings.Repeat("─", min(20, wrapWidth))))
			b.WriteString("\n\n")
		}
	}

	if card.Description != "" {
		b.WriteString(detailLabelStyle.Render("Description"))
		b.WriteString("\n")
		b.WriteString(commentBodyStyle.Render(wordwrap.String(card.Description, wrapWidth)))
	}

	if len(m.attachments) > 0 {
		separator()
		b.WriteString(detailLabelStyle.Render("Attachments"))
		for i, a := range m.attachments {
			b.WriteString("\n")
			b.WriteString(fmt.Sprintf("%d %s ", i+1, a.Name))
			b.WriteString(commentTimeStyle.Render(fmt.Sprintf("%s · %s", formatSize(a.Size), formatTimeAgo(a.CreatedAt))))
		}
	}

	for _, c := range m.comments {
		separator()
		author := c.AuthorID
		if author == "" {
			author = "(deleted)"
		}
		b.WriteString(commentAuthorStyle.Render(author))
		b.WriteString(" ")
		b.WriteString(commentTimeStyle.Render(formatTimeAgo(c.CreatedAt)))
		b.WriteString("\n")
		b.WriteString(commentBodyStyle.Render(wordwrap.String(c.Body, wrapWidth)))
	}

	m.viewport.SetContent(b.String())
}

// loadExtras fetches comments, checklist items and attachments together.
func (m DetailModel) loadExtras() tea.Cmd {
	ctx, d, id := m.ctx, m.details, m.cardID
	return func() tea.Msg {
		comments, err := d.ListComments(ctx, id)
		if err != nil {
			return extrasLoadedMsg{err: err}
		}
		checklist, err := d.ListChecklist(ctx, id)
		if err != nil {
			return extrasLoadedMsg{err: err}
		}
		attachments, err := d.ListAttachments(ctx, id)
		if err != nil {
			return extrasLoadedMsg{err: err}
		}
		return extrasLoadedMsg{comments: comments, checklist: checklist, attachments: attachments}
	}
}

// satellite runs a satellite mutation and then refreshes the board, since the
// card's counters changed and our own events are not echoed back.
func (m *DetailModel) satellite(what string, call func(context.Context) error) tea.Cmd {
	m.loading = true
	m.loadingAction = what + "..."
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		if err := call(ctx); err != nil {
			return detailDoneMsg{what: what, outcome: engine.Outcome{Err: err, Kind: domain.Classify(err)}}
		}
		if err := e.Refresh(ctx); err != nil {
			return detailDoneMsg{what: what, outcome: engine.Outcome{Err: err, Kind: domain.Classify(err)}}
		}
		return detailDoneMsg{what: what}
	}
}

func (m *DetailModel) postComment() tea.Cmd {
	body := strings.TrimSpace(m.commentInput.Value())
	if body == "" {
		return nil
	}
	d, id := m.details, m.cardID
	return m.satellite("Comment", func(ctx context.Context) error {
		_, _, err := d.AddComment(ctx, id, body)
		return err
	})
}

func (m *DetailModel) addChecklistItem(title string) tea.Cmd {
	d, id := m.details, m.cardID
	return m.satellite("Checklist item", func(ctx context.Context) error {
		_, _, err := d.AddChecklistItem(ctx, id, title)
		return err
	})
}

func (m *DetailModel) setChecklistItem(itemID string, done bool) tea.Cmd {
	d := m.details
	return m.satellite("Checklist", func(ctx context.Context) error {
		_, _, err := d.SetChecklistItem(ctx, itemID, done)
		return err
	})
}

// cardCall runs an engine card call, which updates the store itself.
func (m *DetailModel) cardCall(what string, call func(context.Context, *engine.Engine) engine.Outcome) tea.Cmd {
	m.loading = true
	m.loadingAction = what + "..."
	ctx, e := m.ctx, m.engine
	return func() tea.Msg {
		return detailDoneMsg{what: what, outcome: call(ctx, e)}
	}
}

func (m *DetailModel) approve() tea.Cmd {
	id := m.cardID
	return m.cardCall("Approve", func(ctx context.Context, e *engine.Engine) engine.Outcome {
		_, out := e.ApproveCard(ctx, id)
		return out
	})
}

func (m *DetailModel) setCompleted(done bool) tea.Cmd {
	id := m.cardID
	return m.cardCall("Update", func(ctx context.Context, e *engine.Engine) engine.Outcome {
		_, out := e.UpdateCard(ctx, id, domain.CardPatch{Completed: &done})
		return out
	})
}

func (m *DetailModel) setAssignees(ids []string) tea.Cmd {
	id := m.cardID
	return m.cardCall("Assign", func(ctx context.Context, e *engine.Engine) engine.Outcome {
		_, out := e.UpdateCard(ctx, id, domain.CardPatch{Assignees: &ids})
		return out
	})
}

func (m *DetailModel) setLabels(ids []string) tea.Cmd {
	id := m.cardID
	return m.cardCall("Label", func(ctx context.Context, e *engine.Engine) engine.Outcome {
		_, out := e.UpdateCard(ctx, id, domain.CardPatch{Labels: &ids})
		return out
	})
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// formatTimeAgo converts a timestamp to relative time
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	case duration < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
	case duration < 30*24*time.Hour:
		return fmt.Sprintf("%dw ago", int(duration.Hours()/24/7))
	case duration < 365*24*time.Hour:
		return fmt.Sprintf("%dmo ago", int(duration.Hours()/24/30))
	default:
		return fmt.Sprintf("%dy ago", int(duration.Hours()/24/365))
	}
}

// Message types for detail view
type (
	closeDetailMsg  struct{}
	pickerClosedMsg struct{}
	detailDoneMsg   struct {
		what    string
		outcome engine.Outcome
	}
	extrasLoadedMsg struct {
		comments    []domain.Comment
		checklist   []domain.ChecklistItem
		attachments []domain.Attachment
		err         error
	}
)
