package remote

import (
	"context"
	"fmt"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
)

// CreateBoard creates a board owned by the user.
func (c *Client) CreateBoard(ctx context.Context, title string) (domain.Board, error) {
	var b domain.Board
	if err := c.makeRequest(ctx, "POST", "/api/boards", api.TitleRequest{Title: title}, &b); err != nil {
		return domain.Board{}, fmt.Errorf("failed to create board: %w", err)
	}
	return b, nil
}

// DeleteBoard deletes a board. Only its owner may.
func (c *Client) DeleteBoard(ctx context.Context, boardID string) (domain.Receipt, error) {
	var r domain.Receipt
	if err := c.makeRequest(ctx, "DELETE", "/api/boards/"+escape(boardID), nil, &r); err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to delete board: %w", err)
	}
	return r, nil
}

// AddMember grants a user a role on a board.
func (c *Client) AddMember(ctx context.Context, boardID, userID string, role domain.Role) (domain.Receipt, error) {
	var r domain.Receipt
	req := api.MemberRequest{UserID: userID, Role: role}
	if err := c.makeRequest(ctx, "POST", "/api/boards/"+escape(boardID)+"/members", req, &r); err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to add member: %w", err)
	}
	return r, nil
}

// CreateLabel adds a label to a board.
func (c *Client) CreateLabel(ctx context.Context, boardID, name, color string) (domain.Label, error) {
	var r api.LabelResponse
	req := api.LabelRequest{Name: name, Color: color}
	if err := c.makeRequest(ctx, "POST", "/api/boards/"+escape(boardID)+"/labels", req, &r); err != nil {
		return domain.Label{}, fmt.Errorf("failed to create label: %w", err)
	}
	return r.Label, nil
}

// ReorderLists commits the complete order of a board's lists.
func (c *Client) ReorderLists(ctx context.Context, boardID string, orderedListIDs []string) (domain.Receipt, error) {
	var r domain.Receipt
	req := api.ReorderRequest{OrderedIDs: orderedListIDs}
	if err := c.makeRequest(ctx, "PUT", "/api/boards/"+escape(boardID)+"/lists/order", req, &r); err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to reorder lists: %w", err)
	}
	return r, nil
}

// ReorderCards commits the complete order of a list's cards.
func (c *Client) ReorderCards(ctx context.Context, listID string, orderedCardIDs []string) (domain.Receipt, error) {
	var r domain.Receipt
	req := api.ReorderRequest{OrderedIDs: orderedCardIDs}
	if err := c.makeRequest(ctx, "PUT", "/api/lists/"+escape(listID)+"/cards/order", req, &r); err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to reorder cards: %w", err)
	}
	return r, nil
}

// MoveCard moves a card into a list at position. The server may refuse the
// move with a policy error.
func (c *Client) MoveCard(ctx context.Context, cardID, targetListID string, position float64) (domain.CardReceipt, error) {
	var r domain.CardReceipt
	req := api.MoveRequest{TargetListID: targetListID, Position: position}
	if err := c.makeRequest(ctx, "POST", "/api/cards/"+escape(cardID)+"/move", req, &r); err != nil {
		return domain.CardReceipt{}, fmt.Errorf("failed to move card: %w", err)
	}
	return r, nil
}

// MoveCardInOrder moves a card into a list and renumbers that list to
// orderedCardIDs in the same server transaction.
func (c *Client) MoveCardInOrder(ctx context.Context, cardID, targetListID string, orderedCardIDs []string) (domain.CardReceipt, error) {
	var r domain.CardReceipt
	req := api.MoveRequest{TargetListID: targetListID, Order: orderedCardIDs}
	if err := c.makeRequest(ctx, "POST", "/api/cards/"+escape(cardID)+"/move", req, &r); err != nil {
		return domain.CardReceipt{}, fmt.Errorf("failed to move card: %w", err)
	}
	return r, nil
}

// CreateList appends a list to a board.
func (c *Client) CreateList(ctx context.Context, boardID, title string) (domain.ListReceipt, error) {
	var r domain.ListReceipt
	if err := c.makeRequest(ctx, "POST", "/api/boards/"+escape(boardID)+"/lists", api.TitleRequest{Title: title}, &r); err != nil {
		return domain.ListReceipt{}, fmt.Errorf("failed to create list: %w", err)
	}
	return r, nil
}

// UpdateList renames a list or toggles its approval gate.
func (c *Client) UpdateList(ctx context.Context, listID string, patch domain.ListPatch) (domain.ListReceipt, error) {
	var r domain.ListReceipt
	if err := c.makeRequest(ctx, "PATCH", "/api/lists/"+escape(listID), patch, &r); err != nil {
		return domain.ListReceipt{}, fmt.Errorf("failed to update list: %w", err)
	}
	return r, nil
}

// DeleteList deletes a list and its cards.
func (c *Client) DeleteList(ctx context.Context, listID string) (domain.Receipt, error) {
	var r domain.Receipt
	if err := c.makeRequest(ctx, "DELETE", "/api/lists/"+escape(listID), nil, &r); err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to delete list: %w", err)
	}
	return r, nil
}

// CreateCard appends a card to a list.
func (c *Client) CreateCard(ctx context.Context, listID string, in domain.NewCard) (domain.CardReceipt, error) {
	var r domain.CardReceipt
	if err := c.makeRequest(ctx, "POST", "/api/lists/"+escape(listID)+"/cards", in, &r); err != nil {
		return domain.CardReceipt{}, fmt.Errorf("failed to create card: %w", err)
	}
	return r, nil
}

// UpdateCard applies a partial update to a card.
func (c *Client) UpdateCard(ctx context.Context, cardID string, patch domain.CardPatch) (domain.CardReceipt, error) {
	var r domain.CardReceipt
	if err := c.makeRequest(ctx, "PATCH", "/api/cards/"+escape(cardID), patch, &r); err != nil {
		return domain.CardReceipt{}, fmt.Errorf("failed to update card: %w", err)
	}
	return r, nil
}

// ApproveCard approves a card. Approval cannot be undone.
func (c *Client) ApproveCard(ctx context.Context, cardID string) (domain.CardReceipt, error) {
	var r domain.CardReceipt
	if err := c.makeRequest(ctx, "POST", "/api/cards/"+escape(cardID)+"/approve", nil, &r); err != nil {
		return domain.CardReceipt{}, fmt.Errorf("failed to approve card: %w", err)
	}
	return r, nil
}

// DeleteCard deletes a card.
func (c *Client) DeleteCard(ctx context.Context, cardID string) (domain.Receipt, error) {
	var r domain.Receipt
	if err := c.makeRequest(ctx, "DELETE", "/api/cards/"+escape(cardID), nil, &r); err != nil {
		return domain.Receipt{}, fmt.Errorf("failed to delete card: %w", err)
	}
	return r, nil
}

// AddComment posts a comment on a card.
func (c *Client) AddComment(ctx context.Context, cardID, body string) (domain.Comment, domain.Receipt, error) {
	var r api.CommentResponse
	if err := c.makeRequest(ctx, "POST", "/api/cards/"+escape(cardID)+"/comments", api.CommentRequest{Body: body}, &r); err != nil {
		return domain.Comment{}, domain.Receipt{}, fmt.Errorf("failed to add comment: %w", err)
	}
	return r.Comment, r.Receipt, nil
}

// AddChecklistItem appends an item to a card's checklist.
func (c *Client) AddChecklistItem(ctx context.Context, cardID, title string) (domain.ChecklistItem, domain.Receipt, error) {
	var r api.ChecklistItemResponse
	if err := c.makeRequest(ctx, "POST", "/api/cards/"+escape(cardID)+"/checklist", api.TitleRequest{Title: title}, &r); err != nil {
		return domain.ChecklistItem{}, domain.Receipt{}, fmt.Errorf("failed to add checklist item: %w", err)
	}
	return r.Item, r.Receipt, nil
}

// SetChecklistItem ticks or unticks a checklist item.
func (c *Client) SetChecklistItem(ctx context.Context, itemID string, done bool) (domain.ChecklistItem, domain.Receipt, error) {
	var r api.ChecklistItemResponse
	if err := c.makeRequest(ctx, "PATCH", "/api/checklist/"+escape(itemID), api.ChecklistPatchRequest{Done: done}, &r); err != nil {
		return domain.ChecklistItem{}, domain.Receipt{}, fmt.Errorf("failed to update checklist item: %w", err)
	}
	return r.Item, r.Receipt, nil
}

// AddAttachment records a link to a file stored elsewhere.
func (c *Client) AddAttachment(ctx context.Context, cardID, name, fileURL string, size int64) (domain.Attachment, domain.Receipt, error) {
	var r api.AttachmentResponse
	req := api.AttachmentRequest{Name: name, URL: fileURL, Size: size}
	if err := c.makeRequest(ctx, "POST", "/api/cards/"+escape(cardID)+"/attachments", req, &r); err != nil {
		return domain.Attachment{}, domain.Receipt{}, fmt.Errorf("failed to add attachment: %w", err)
	}
	return r.Attachment, r.Receipt, nil
}
