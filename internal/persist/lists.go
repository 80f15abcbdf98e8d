package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/order"
	"github.com/h0rv/kanban/internal/policy"
)

func loadList(ctx context.Context, q querier, listID string) (domain.List, error) {
	var l domain.List
	err := q.QueryRowContext(ctx, `
		SELECT id, board_id, title, position, requires_approval FROM lists WHERE id=$1
	`, listID).Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.RequiresApproval)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.List{}, fmt.Errorf("list %s: %w", listID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.List{}, fmt.Errorf("load list: %w", err)
	}
	return l, nil
}

// CreateList appends a list to the end of the board.
func (s *Store) CreateList(ctx context.Context, actor, boardID, title string) (domain.ListReceipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.ListReceipt{}, err
	}
	title, err := requireTitle(title)
	if err != nil {
		return domain.ListReceipt{}, err
	}

	var rcpt domain.ListReceipt
	err = s.withTx(ctx, func(tx querier) error {
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return err
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionEdit); err != nil {
			return err
		}
		lists, err := loadLists(ctx, tx, boardID)
		if err != nil {
			return err
		}
		pos, _ := order.PositionAt(lists, len(lists))

		l := domain.List{ID: s.newID(), BoardID: boardID, Title: title, Position: pos}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO lists(id, board_id, title, position, requires_approval, created_at)
			VALUES($1, $2, $3, $4, $5, $6)
		`, l.ID, l.BoardID, l.Title, l.Position, l.RequiresApproval, s.timestamp())
		if err != nil {
			return fmt.Errorf("insert list: %w", err)
		}
		rcpt = domain.ListReceipt{Receipt: domain.Receipt{BoardID: boardID, Version: v}, List: l}
		return nil
	})
	return rcpt, err
}

// UpdateList renames a list or toggles its approval gate. Changing the gate
// needs the manage capability.
func (s *Store) UpdateList(ctx context.Context, actor, listID string, patch domain.ListPatch) (domain.ListReceipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.ListReceipt{}, err
	}
	if patch.Title != nil {
		title, err := requireTitle(*patch.Title)
		if err != nil {
			return domain.ListReceipt{}, err
		}
		patch.Title = &title
	}

	var rcpt domain.ListReceipt
	err := s.withTx(ctx, func(tx querier) error {
		boardID, err := boardOfList(ctx, tx, listID)
		if err != nil {
			return err
		}
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return err
		}
		action := policy.ActionEdit
		if patch.RequiresApproval != nil {
			action = policy.ActionManage
		}
		if _, err := authorize(ctx, tx, boardID, actor, action); err != nil {
			return err
		}

		l, err := loadList(ctx, tx, listID)
		if err != nil {
			return err
		}
		if patch.Title != nil {
			l.Title = *patch.Title
		}
		if patch.RequiresApproval != nil {
			l.RequiresApproval = *patch.RequiresApproval
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE lists SET title=$1, requires_approval=$2 WHERE id=$3
		`, l.Title, l.RequiresApproval, l.ID)
		if err != nil {
			return fmt.Errorf("update list: %w", err)
		}
		rcpt = domain.ListReceipt{Receipt: domain.Receipt{BoardID: boardID, Version: v}, List: l}
		return nil
	})
	return rcpt, err
}

// DeleteList removes a list and its cards. Sibling positions are untouched.
func (s *Store) DeleteList(ctx context.Context, actor, listID string) (domain.Receipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.Receipt{}, err
	}
	var rcpt domain.Receipt
	err := s.withTx(ctx, func(tx querier) error {
		boardID, err := boardOfList(ctx, tx, listID)
		if err != nil {
			return err
		}
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return err
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionEdit); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id=$1`, listID); err != nil {
			return fmt.Errorf("delete list: %w", err)
		}
		rcpt = domain.Receipt{BoardID: boardID, Version: v}
		return nil
	})
	return rcpt, err
}

// ReorderLists sets the complete order of the board's lists.
// ids must hold exactly the board's current lists; anything else is stale.
// Positions are evenly respread, so the call is idempotent.
func (s *Store) ReorderLists(ctx context.Context, actor, boardID string, ids []string) (domain.Receipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.Receipt{}, err
	}
	var rcpt domain.Receipt
	err := s.withTx(ctx, func(tx querier) error {
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return asStale(err)
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionEdit); err != nil {
			return err
		}
		lists, err := loadLists(ctx, tx, boardID)
		if err != nil {
			return err
		}
		if !order.SameSet(order.IDs(lists), ids) {
			return fmt.Errorf("list order does not match board %s: %w", boardID, domain.ErrStale)
		}
		for _, a := range order.Spread(ids) {
			if _, err := tx.ExecContext(ctx, `UPDATE lists SET position=$1 WHERE id=$2`, a.Position, a.ID); err != nil {
				return fmt.Errorf("update list position: %w", err)
			}
		}
		rcpt = domain.Receipt{BoardID: boardID, Version: v}
		return nil
	})
	return rcpt, err
}
