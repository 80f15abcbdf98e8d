package engine

import (
	"context"

	"github.com/h0rv/kanban/internal/domain"
)

// Persistence is the server-side collaborator the engine commits to.
// Reorders and moves are idempotent: sending the same payload twice leaves
// the same final order.
type Persistence interface {
	GetBoard(ctx context.Context, boardID string) (domain.Board, error)

	ReorderLists(ctx context.Context, boardID string, orderedListIDs []string) (domain.Receipt, error)
	ReorderCards(ctx context.Context, listID string, orderedCardIDs []string) (domain.Receipt, error)
	MoveCard(ctx context.Context, cardID, targetListID string, position float64) (domain.CardReceipt, error)
	// MoveCardInOrder moves a card and renumbers the target list atomically.
	MoveCardInOrder(ctx context.Context, cardID, targetListID string, orderedCardIDs []string) (domain.CardReceipt, error)

	CreateList(ctx context.Context, boardID, title string) (domain.ListReceipt, error)
	DeleteList(ctx context.Context, listID string) (domain.Receipt, error)
	CreateCard(ctx context.Context, listID string, in domain.NewCard) (domain.CardReceipt, error)
	UpdateCard(ctx context.Context, cardID string, patch domain.CardPatch) (domain.CardReceipt, error)
	ApproveCard(ctx context.Context, cardID string) (domain.CardReceipt, error)
	DeleteCard(ctx context.Context, cardID string) (domain.Receipt, error)
}
