package mocks

import (
	"context"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/stretchr/testify/mock"
)

// Persistence is a mock for engine.Persistence.
type Persistence struct {
	mock.Mock
}

func (m *Persistence) GetBoard(ctx context.Context, boardID string) (domain.Board, error) {
	args := m.Called(ctx, boardID)
	if b, ok := args.Get(0).(domain.Board); ok {
		return b, args.Error(1)
	}
	return domain.Board{}, args.Error(1)
}

func (m *Persistence) ReorderLists(ctx context.Context, boardID string, orderedListIDs []string) (domain.Receipt, error) {
	args := m.Called(ctx, boardID, orderedListIDs)
	return receipt(args.Get(0)), args.Error(1)
}

func (m *Persistence) ReorderCards(ctx context.Context, listID string, orderedCardIDs []string) (domain.Receipt, error) {
	args := m.Called(ctx, listID, orderedCardIDs)
	return receipt(args.Get(0)), args.Error(1)
}

func (m *Persistence) MoveCard(ctx context.Context, cardID, targetListID string, position float64) (domain.CardReceipt, error) {
	args := m.Called(ctx, cardID, targetListID, position)
	return cardReceipt(args.Get(0)), args.Error(1)
}

func (m *Persistence) MoveCardInOrder(ctx context.Context, cardID, targetListID string, orderedCardIDs []string) (domain.CardReceipt, error) {
	args := m.Called(ctx, cardID, targetListID, orderedCardIDs)
	return cardReceipt(args.Get(0)), args.Error(1)
}

func (m *Persistence) CreateList(ctx context.Context, boardID, title string) (domain.ListReceipt, error) {
	args := m.Called(ctx, boardID, title)
	if r, ok := args.Get(0).(domain.ListReceipt); ok {
		return r, args.Error(1)
	}
	return domain.ListReceipt{}, args.Error(1)
}

func (m *Persistence) DeleteList(ctx context.Context, listID string) (domain.Receipt, error) {
	args := m.Called(ctx, listID)
	return receipt(args.Get(0)), args.Error(1)
}

func (m *Persistence) CreateCard(ctx context.Context, listID string, in domain.NewCard) (domain.CardReceipt, error) {
	args := m.Called(ctx, listID, in)
	return cardReceipt(args.Get(0)), args.Error(1)
}

func (m *Persistence) UpdateCard(ctx context.Context, cardID string, patch domain.CardPatch) (domain.CardReceipt, error) {
	args := m.Called(ctx, cardID, patch)
	return cardReceipt(args.Get(0)), args.Error(1)
}

func (m *Persistence) ApproveCard(ctx context.Context, cardID string) (domain.CardReceipt, error) {
	args := m.Called(ctx, cardID)
	return cardReceipt(args.Get(0)), args.Error(1)
}

func (m *Persistence) DeleteCard(ctx context.Context, cardID string) (domain.Receipt, error) {
	args := m.Called(ctx, cardID)
	return receipt(args.Get(0)), args.Error(1)
}

func receipt(v any) domain.Receipt {
	if r, ok := v.(domain.Receipt); ok {
		return r
	}
	return domain.Receipt{}
}

func cardReceipt(v any) domain.CardReceipt {
	if r, ok := v.(domain.CardReceipt); ok {
		return r
	}
	return domain.CardReceipt{}
}
