package engine

import (
	"context"
	"fmt"

	"github.com/h0rv/kanban/internal/domain"
)

// The calls below are not optimistic: the store changes only once the server
// has answered, using what the server returned.

// Refresh fetches the board and replaces the store with it.
func (e *Engine) Refresh(ctx context.Context) error {
	boardID := e.store.BoardID()
	if boardID == "" {
		return fmt.Errorf("refresh: %w", domain.ErrInvalid)
	}
	b, err := e.persist.GetBoard(ctx, boardID)
	if err != nil {
		return fmt.Errorf("refresh board %s: %w", boardID, err)
	}
	e.Replace(b)
	return nil
}

// CreateList appends a list to the board.
func (e *Engine) CreateList(ctx context.Context, title string) (domain.List, Outcome) {
	r, err := e.persist.CreateList(ctx, e.store.BoardID(), title)
	if err != nil {
		return domain.List{}, e.failed(err)
	}
	e.store.UpsertList(r.List)
	return r.List, e.settled(r.Version)
}

// DeleteList removes a list and its cards.
func (e *Engine) DeleteList(ctx context.Context, listID string) Outcome {
	if e.InFlight(listID) {
		return e.failed(fmt.Errorf("%w: list %s", domain.ErrBusy, listID))
	}
	r, err := e.persist.DeleteList(ctx, listID)
	if err != nil {
		return e.failed(err)
	}
	e.store.RemoveList(listID)
	return e.settled(r.Version)
}

// CreateCard appends a card to a list.
func (e *Engine) CreateCard(ctx context.Context, listID string, in domain.NewCard) (domain.Card, Outcome) {
	r, err := e.persist.CreateCard(ctx, listID, in)
	if err != nil {
		return domain.Card{}, e.failed(err)
	}
	if err := e.store.UpsertCard(r.Card); err != nil {
		e.log.Debug("created card not stored", "card", r.Card.ID, "err", err)
	}
	return r.Card, e.settled(r.Version)
}

// UpdateCard edits card fields. Placement is not affected.
func (e *Engine) UpdateCard(ctx context.Context, cardID string, patch domain.CardPatch) (domain.Card, Outcome) {
	return e.cardCall(cardID, func() (domain.CardReceipt, error) {
		return e.persist.UpdateCard(ctx, cardID, patch)
	})
}

// ApproveCard approves a card. Approval is granted once.
func (e *Engine) ApproveCard(ctx context.Context, cardID string) (domain.Card, Outcome) {
	return e.cardCall(cardID, func() (domain.CardReceipt, error) {
		return e.persist.ApproveCard(ctx, cardID)
	})
}

// DeleteCard removes a card. Sibling positions are untouched.
func (e *Engine) DeleteCard(ctx context.Context, cardID string) Outcome {
	if e.InFlight(cardID) {
		return e.failed(fmt.Errorf("%w: card %s", domain.ErrBusy, cardID))
	}
	r, err := e.persist.DeleteCard(ctx, cardID)
	if err != nil {
		return e.failed(err)
	}
	e.store.RemoveCard(cardID)
	return e.settled(r.Version)
}

func (e *Engine) cardCall(cardID string, call func() (domain.CardReceipt, error)) (domain.Card, Outcome) {
	if e.InFlight(cardID) {
		return domain.Card{}, e.failed(fmt.Errorf("%w: card %s", domain.ErrBusy, cardID))
	}
	r, err := call()
	if err != nil {
		return domain.Card{}, e.failed(err)
	}
	if err := e.store.UpsertCard(r.Card); err != nil {
		e.log.Debug("updated card not stored", "card", r.Card.ID, "err", err)
	}
	return r.Card, e.settled(r.Version)
}

func (e *Engine) failed(err error) Outcome {
	kind := domain.Classify(err)
	return Outcome{Err: err, Kind: kind, Refetch: kind == domain.KindStale, Version: e.store.Version()}
}

func (e *Engine) settled(version int64) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Outcome{Refetch: !e.observeLocked(version), Version: e.store.Version()}
}
