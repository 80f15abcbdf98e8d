// Package domain defines the board, list and card types shared by the server,
// the persistence layer and the terminal client.
// These types are plain records; ordering logic lives in the order package.
package domain

import "time"

// Role is a board member's role.
type Role string

// Role constants. The board owner is always treated as RoleOwner.
const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Member is a user's membership on a board.
type Member struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// Label is a board-scoped tag that can be attached to cards.
type Label struct {
	ID      string `json:"id"`
	BoardID string `json:"board_id"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
}

// Board is the full state of a board as returned by a fetch.
type Board struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	OwnerID   string    `json:"owner_id"`
	Members   []Member  `json:"members"`
	Labels    []Label   `json:"labels"`
	Lists     []List    `json:"lists"`
	Version   int64     `json:"version"` // Incremented by every persisted mutation of the board
	CreatedAt time.Time `json:"created_at"`
}

// RoleOf returns the role of userID on the board.
// The owner is implicitly a member with RoleOwner even without a member row.
func (b Board) RoleOf(userID string) (Role, bool) {
	if userID == "" {
		return "", false
	}
	if b.OwnerID == userID {
		return RoleOwner, true
	}
	for _, m := range b.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

// BoardSummary is a board as shown in a board picker.
type BoardSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	OwnerID string `json:"owner_id"`
	Role    Role   `json:"role"`
	Version int64  `json:"version"`
}

// List is an ordered column of cards within a board.
type List struct {
	ID               string  `json:"id"`
	BoardID          string  `json:"board_id"`
	Title            string  `json:"title"`
	Position         float64 `json:"position"`
	RequiresApproval bool    `json:"requires_approval"` // Only approved cards may be moved in
	Cards            []Card  `json:"cards,omitempty"`
}

// ElementID returns the list ID.
func (l List) ElementID() string { return l.ID }

// ElementPosition returns the list position within its board.
func (l List) ElementPosition() float64 { return l.Position }

// Card is a work item belonging to exactly one list.
type Card struct {
	ID          string     `json:"id"`
	ListID      string     `json:"list_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Position    float64    `json:"position"`
	CreatorID   string     `json:"creator_id"`
	Assignees   []string   `json:"assignees,omitempty"` // User IDs
	Labels      []string   `json:"labels,omitempty"`    // Label IDs
	DueAt       *time.Time `json:"due_at,omitempty"`
	Completed   bool       `json:"completed"`
	Approved    bool       `json:"approved"`
	ApprovedBy  string     `json:"approved_by,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`

	// Derived at read time, never stored
	CommentCount    int `json:"comment_count"`
	ChecklistCount  int `json:"checklist_count"`
	ChecklistDone   int `json:"checklist_done"`
	AttachmentCount int `json:"attachment_count"`
}

// ElementID returns the card ID.
func (c Card) ElementID() string { return c.ID }

// ElementPosition returns the card position within its list.
func (c Card) ElementPosition() float64 { return c.Position }

// Comment is a comment on a card.
type Comment struct {
	ID        string    `json:"id"`
	CardID    string    `json:"card_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ChecklistItem is a checkbox on a card.
type ChecklistItem struct {
	ID       string  `json:"id"`
	CardID   string  `json:"card_id"`
	Title    string  `json:"title"`
	Done     bool    `json:"done"`
	Position float64 `json:"position"`
}

func (i ChecklistItem) ElementID() string        { return i.ID }
func (i ChecklistItem) ElementPosition() float64 { return i.Position }

// Attachment is metadata about a file attached to a card.
// The file itself lives outside this system.
type Attachment struct {
	ID        string    `json:"id"`
	CardID    string    `json:"card_id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCard holds the fields a card is created with.
type NewCard struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// CardPatch is a partial card update. Nil fields are left untouched.
type CardPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	ClearDue    bool       `json:"clear_due,omitempty"`
	Completed   *bool      `json:"completed,omitempty"`
	Assignees   *[]string  `json:"assignees,omitempty"`
	Labels      *[]string  `json:"labels,omitempty"`
}

// ListPatch is a partial list update. Nil fields are left untouched.
type ListPatch struct {
	Title            *string `json:"title,omitempty"`
	RequiresApproval *bool   `json:"requires_approval,omitempty"`
}

// Receipt is returned by every persisted mutation.
type Receipt struct {
	BoardID string `json:"board_id"`
	Version int64  `json:"version"`
}

// CardReceipt is a Receipt carrying the card as persisted.
type CardReceipt struct {
	Receipt
	Card Card `json:"card"`
}

// ListReceipt is a Receipt carrying the list as persisted.
type ListReceipt struct {
	Receipt
	List List `json:"list"`
}
