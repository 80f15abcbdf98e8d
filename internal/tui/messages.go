// Package tui provides Bubble Tea models for the interactive board client.
package tui

import (
	"github.com/h0rv/kanban/internal/boardsync"
	"github.com/h0rv/kanban/internal/domain"
)

// BoardSelectedMsg is emitted when the user picks a board.
type BoardSelectedMsg struct {
	Board domain.BoardSummary
}

// MemberSelectedMsg is emitted when the user picks a board member.
type MemberSelectedMsg struct {
	UserID string
}

// ErrorMsg is emitted when an error occurs.
type ErrorMsg struct {
	Err error
}

// QuitMsg is emitted when the user requests to quit.
type QuitMsg struct{}

// syncMsg carries one update from the board session. ok is false once the
// session's update channel is closed.
type syncMsg struct {
	update boardsync.Update
	ok     bool
}
