package remote

import (
	"context"
	"fmt"
	"net/url"

	"github.com/h0rv/kanban/internal/domain"
)

func escape(id string) string { return url.PathEscape(id) }

// Health checks that the server and its database are up.
func (c *Client) Health(ctx context.Context) error {
	if err := c.makeRequest(ctx, "GET", "/api/health", nil, nil); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}

// ListBoards returns the boards the user can open.
func (c *Client) ListBoards(ctx context.Context) ([]domain.BoardSummary, error) {
	var out []domain.BoardSummary
	if err := c.makeRequest(ctx, "GET", "/api/boards", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	return out, nil
}

// GetBoard fetches the complete state of a board.
func (c *Client) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	var b domain.Board
	if err := c.makeRequest(ctx, "GET", "/api/boards/"+escape(boardID), nil, &b); err != nil {
		return domain.Board{}, fmt.Errorf("failed to get board: %w", err)
	}
	return b, nil
}

// ListComments returns a card's comments, oldest first.
func (c *Client) ListComments(ctx context.Context, cardID string) ([]domain.Comment, error) {
	var out []domain.Comment
	if err := c.makeRequest(ctx, "GET", "/api/cards/"+escape(cardID)+"/comments", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return out, nil
}

// ListChecklist returns a card's checklist.
func (c *Client) ListChecklist(ctx context.Context, cardID string) ([]domain.ChecklistItem, error) {
	var out []domain.ChecklistItem
	if err := c.makeRequest(ctx, "GET", "/api/cards/"+escape(cardID)+"/checklist", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list checklist: %w", err)
	}
	return out, nil
}

// ListAttachments returns a card's attachments.
func (c *Client) ListAttachments(ctx context.Context, cardID string) ([]domain.Attachment, error) {
	var out []domain.Attachment
	if err := c.makeRequest(ctx, "GET", "/api/cards/"+escape(cardID)+"/attachments", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return out, nil
}

// BoardURL returns the board's API address, for opening in a browser.
func (c *Client) BoardURL(boardID string) string {
	return c.baseURL + "/api/boards/" + escape(boardID)
}
