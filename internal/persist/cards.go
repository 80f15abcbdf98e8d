package persist

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/order"
	"github.com/h0rv/kanban/internal/policy"
)

const cardColumns = `
	c.id, c.list_id, c.title, c.description, c.position, c.creator_id,
	c.due_at, c.completed, c.approved, c.approved_by, c.approved_at,
	(SELECT COUNT(*) FROM comments x WHERE x.card_id = c.id),
	(SELECT COUNT(*) FROM checklist_items x WHERE x.card_id = c.id),
	(SELECT COUNT(*) FROM checklist_items x WHERE x.card_id = c.id AND x.done),
	(SELECT COUNT(*) FROM attachments x WHERE x.card_id = c.id)`

// queryCards loads cards matching where, which may refer to the card as c
// and its list as l. Assignee and label sets are filled in.
func queryCards(ctx context.Context, q querier, where string, args ...any) ([]domain.Card, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards c JOIN lists l ON l.id = c.list_id
		WHERE `+where+`
		ORDER BY c.position, c.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query cards: %w", err)
	}

	var cards []domain.Card
	index := make(map[string]int)
	for rows.Next() {
		var (
			c          domain.Card
			dueAt      sql.NullTime
			approvedAt sql.NullTime
		)
		err := rows.Scan(
			&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &c.CreatorID,
			&dueAt, &c.Completed, &c.Approved, &c.ApprovedBy, &approvedAt,
			&c.CommentCount, &c.ChecklistCount, &c.ChecklistDone, &c.AttachmentCount,
		)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan card: %w", err)
		}
		c.DueAt = timePtr(dueAt)
		c.ApprovedAt = timePtr(approvedAt)
		index[c.ID] = len(cards)
		cards = append(cards, c)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	if len(cards) == 0 {
		return cards, nil
	}

	assignees, err := cardSet(ctx, q, `card_assignees`, `user_id`, where, args...)
	if err != nil {
		return nil, err
	}
	labels, err := cardSet(ctx, q, `card_labels`, `label_id`, where, args...)
	if err != nil {
		return nil, err
	}
	for id, i := range index {
		cards[i].Assignees = assignees[id]
		cards[i].Labels = labels[id]
	}
	return cards, nil
}

func cardSet(ctx context.Context, q querier, table, column, where string, args ...any) (map[string][]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.card_id, s.`+column+`
		FROM `+table+` s
		JOIN cards c ON c.id = s.card_id
		JOIN lists l ON l.id = c.list_id
		WHERE `+where+`
		ORDER BY s.card_id, s.`+column,
		args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var cardID, v string
		if err := rows.Scan(&cardID, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out[cardID] = append(out[cardID], v)
	}
	return out, rows.Err()
}

func loadCard(ctx context.Context, q querier, cardID string) (domain.Card, error) {
	cards, err := queryCards(ctx, q, `c.id=$1`, cardID)
	if err != nil {
		return domain.Card{}, err
	}
	if len(cards) == 0 {
		return domain.Card{}, fmt.Errorf("card %s: %w", cardID, domain.ErrNotFound)
	}
	return cards[0], nil
}

// listCards returns id and position of every card in a list, in order.
func listCards(ctx context.Context, q querier, listID string) ([]domain.Card, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, list_id, position FROM cards WHERE list_id=$1 ORDER BY position, id
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("query list cards: %w", err)
	}
	defer rows.Close()

	var out []domain.Card
	for rows.Next() {
		var c domain.Card
		if err := rows.Scan(&c.ID, &c.ListID, &c.Position); err != nil {
			return nil, fmt.Errorf("scan list card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCard appends a card to the end of a list.
func (s *Store) CreateCard(ctx context.Context, actor, listID string, in domain.NewCard) (domain.CardReceipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.CardReceipt{}, err
	}
	title, err := requireTitle(in.Title)
	if err != nil {
		return domain.CardReceipt{}, err
	}

	var rcpt domain.CardReceipt
	err = s.withTx(ctx, func(tx querier) error {
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
		list, err := loadList(ctx, tx, listID)
		if err != nil {
			return err
		}
		// New cards are never approved, so a gated list refuses them too.
		if err := policy.CanEnter(domain.Card{}, list); err != nil {
			return err
		}

		siblings, err := listCards(ctx, tx, listID)
		if err != nil {
			return err
		}
		pos, _ := order.PositionAt(siblings, len(siblings))

		id := s.newID()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cards(id, list_id, title, description, position, creator_id, due_at, created_at)
			VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		`, id, listID, title, in.Description, pos, actor, nullTime(in.DueAt), s.timestamp())
		if err != nil {
			return fmt.Errorf("insert card: %w", err)
		}

		card, err := loadCard(ctx, tx, id)
		if err != nil {
			return err
		}
		rcpt = domain.CardReceipt{Receipt: domain.Receipt{BoardID: boardID, Version: v}, Card: card}
		return nil
	})
	return rcpt, err
}

// UpdateCard applies a partial update. Assignee and label sets are replaced
// wholesale when present.
func (s *Store) UpdateCard(ctx context.Context, actor, cardID string, patch domain.CardPatch) (domain.CardReceipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.CardReceipt{}, err
	}
	if patch.Title != nil {
		title, err := requireTitle(*patch.Title)
		if err != nil {
			return domain.CardReceipt{}, err
		}
		patch.Title = &title
	}

	var rcpt domain.CardReceipt
	err := s.withTx(ctx, func(tx querier) error {
		boardID, err := boardOfCard(ctx, tx, cardID)
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
		card, err := loadCard(ctx, tx, cardID)
		if err != nil {
			return err
		}

		if patch.Title != nil {
			card.Title = *patch.Title
		}
		if patch.Description != nil {
			card.Description = *patch.Description
		}
		if patch.DueAt != nil {
			card.DueAt = patch.DueAt
		}
		if patch.ClearDue {
			card.DueAt = nil
		}
		if patch.Completed != nil {
			card.Completed = *patch.Completed
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE cards SET title=$1, description=$2, due_at=$3, completed=$4 WHERE id=$5
		`, card.Title, card.Description, nullTime(card.DueAt), card.Completed, card.ID)
		if err != nil {
			return fmt.Errorf("update card: %w", err)
		}

		if patch.Assignees != nil {
			if err := s.replaceAssignees(ctx, tx, boardID, cardID, *patch.Assignees); err != nil {
				return err
			}
		}
		if patch.Labels != nil {
			if err := s.replaceLabels(ctx, tx, boardID, cardID, *patch.Labels); err != nil {
				return err
			}
		}

		card, err = loadCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		rcpt = domain.CardReceipt{Receipt: domain.Receipt{BoardID: boardID, Version: v}, Card: card}
		return nil
	})
	return rcpt, err
}

func uniq(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *Store) replaceAssignees(ctx context.Context, tx querier, boardID, cardID string, users []string) error {
	for _, u := range uniq(users) {
		if _, member, err := roleOf(ctx, tx, boardID, u); err != nil {
			return err
		} else if !member {
			return domain.Reject(fmt.Sprintf("assignee %s is not a member of this board", u))
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM card_assignees WHERE card_id=$1`, cardID); err != nil {
		return fmt.Errorf("clear assignees: %w", err)
	}
	for _, u := range uniq(users) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO card_assignees(card_id, user_id) VALUES($1, $2)`, cardID, u); err != nil {
			return fmt.Errorf("insert assignee: %w", err)
		}
	}
	return nil
}

func (s *Store) replaceLabels(ctx context.Context, tx querier, boardID, cardID string, labels []string) error {
	for _, id := range uniq(labels) {
		var n int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM labels WHERE id=$1 AND board_id=$2`, id, boardID).Scan(&n)
		if err != nil {
			return fmt.Errorf("check label: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("label %s is not on this board: %w", id, domain.ErrInvalid)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM card_labels WHERE card_id=$1`, cardID); err != nil {
		return fmt.Errorf("clear labels: %w", err)
	}
	for _, id := range uniq(labels) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO card_labels(card_id, label_id) VALUES($1, $2)`, cardID, id); err != nil {
			return fmt.Errorf("insert label: %w", err)
		}
	}
	return nil
}

// DeleteCard removes a card. Members may delete only cards they created.
// Sibling positions are untouched.
func (s *Store) DeleteCard(ctx context.Context, actor, cardID string) (domain.Receipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.Receipt{}, err
	}
	var rcpt domain.Receipt
	err := s.withTx(ctx, func(tx querier) error {
		boardID, err := boardOfCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return err
		}
		role, err := authorize(ctx, tx, boardID, actor, policy.ActionEdit)
		if err != nil {
			return err
		}
		card, err := loadCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		if err := policy.CanDeleteCard(role, actor, card); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id=$1`, cardID); err != nil {
			return fmt.Errorf("delete card: %w", err)
		}
		rcpt = domain.Receipt{BoardID: boardID, Version: v}
		return nil
	})
	return rcpt, err
}

// ReorderCards sets the complete order of a list's cards.
// ids must hold exactly the list's current cards; anything else is stale.
// Moving cards between lists is MoveCard's job.
func (s *Store) ReorderCards(ctx context.Context, actor, listID string, ids []string) (domain.Receipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.Receipt{}, err
	}
	var rcpt domain.Receipt
	err := s.withTx(ctx, func(tx querier) error {
		boardID, err := boardOfList(ctx, tx, listID)
		if err != nil {
			return asStale(err)
		}
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return asStale(err)
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionEdit); err != nil {
			return err
		}
		cards, err := listCards(ctx, tx, listID)
		if err != nil {
			return err
		}
		if !order.SameSet(order.IDs(cards), ids) {
			return fmt.Errorf("card order does not match list %s: %w", listID, domain.ErrStale)
		}
		for _, a := range order.Spread(ids) {
			if _, err := tx.ExecContext(ctx, `UPDATE cards SET position=$1 WHERE id=$2`, a.Position, a.ID); err != nil {
				return fmt.Errorf("update card position: %w", err)
			}
		}
		rcpt = domain.Receipt{BoardID: boardID, Version: v}
		return nil
	})
	return rcpt, err
}

// MoveCard places a card in targetListID at position. Entering a different
// list goes through the approval gate; a refusal leaves the card untouched.
func (s *Store) MoveCard(ctx context.Context, actor, cardID, targetListID string, position float64) (domain.CardReceipt, error) {
	if math.IsNaN(position) || math.IsInf(position, 0) {
		return domain.CardReceipt{}, fmt.Errorf("position must be finite: %w", domain.ErrInvalid)
	}
	return s.moveCard(ctx, actor, cardID, targetListID, position, nil)
}

// MoveCardInOrder moves a card into targetListID and renumbers the list to
// ids, which must hold the list's cards plus the moved one. Both happen in one
// transaction, so nobody observes the card moved but the list not yet
// renumbered.
func (s *Store) MoveCardInOrder(ctx context.Context, actor, cardID, targetListID string, ids []string) (domain.CardReceipt, error) {
	if len(ids) == 0 {
		return domain.CardReceipt{}, fmt.Errorf("empty card order: %w", domain.ErrInvalid)
	}
	return s.moveCard(ctx, actor, cardID, targetListID, 0, ids)
}

func (s *Store) moveCard(ctx context.Context, actor, cardID, targetListID string, position float64, ids []string) (domain.CardReceipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.CardReceipt{}, err
	}

	var rcpt domain.CardReceipt
	err := s.withTx(ctx, func(tx querier) error {
		boardID, err := boardOfCard(ctx, tx, cardID)
		if err != nil {
			return asStale(err)
		}
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return asStale(err)
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionEdit); err != nil {
			return err
		}

		card, err := loadCard(ctx, tx, cardID)
		if err != nil {
			return asStale(err)
		}
		target, err := loadList(ctx, tx, targetListID)
		if err != nil {
			return asStale(err)
		}
		if target.BoardID != boardID {
			return fmt.Errorf("list %s is on another board: %w", targetListID, domain.ErrInvalid)
		}
		if card.ListID != target.ID {
			if err := policy.CanEnter(card, target); err != nil {
				return err
			}
		}

		var spread []order.Assignment
		if ids != nil {
			siblings, err := listCards(ctx, tx, target.ID)
			if err != nil {
				return err
			}
			want := append(order.IDs(order.Without(siblings, cardID)), cardID)
			if !order.SameSet(want, ids) {
				return fmt.Errorf("card order does not match list %s: %w", target.ID, domain.ErrStale)
			}
			spread = order.Spread(ids)
			position = spread[slices.Index(ids, cardID)].Position
		}

		_, err = tx.ExecContext(ctx, `UPDATE cards SET list_id=$1, position=$2 WHERE id=$3`, target.ID, position, cardID)
		if err != nil {
			return fmt.Errorf("move card: %w", err)
		}
		for _, a := range spread {
			if _, err := tx.ExecContext(ctx, `UPDATE cards SET position=$1 WHERE id=$2`, a.Position, a.ID); err != nil {
				return fmt.Errorf("update card position: %w", err)
			}
		}
		card.ListID = target.ID
		card.Position = position
		rcpt = domain.CardReceipt{Receipt: domain.Receipt{BoardID: boardID, Version: v}, Card: card}
		return nil
	})
	return rcpt, err
}

// ApproveCard marks a card approved. Approval is granted once and never revoked.
func (s *Store) ApproveCard(ctx context.Context, actor, cardID string) (domain.CardReceipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.CardReceipt{}, err
	}
	var rcpt domain.CardReceipt
	err := s.withTx(ctx, func(tx querier) error {
		boardID, err := boardOfCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return err
		}
		role, member, err := roleOf(ctx, tx, boardID, actor)
		if err != nil {
			return err
		}
		if err := policy.Authorize(role, member, policy.ActionRead); err != nil {
			return err
		}
		card, err := loadCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		if err := policy.CanApprove(role, card); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE cards SET approved=$1, approved_by=$2, approved_at=$3 WHERE id=$4 AND approved=$5
		`, true, actor, s.timestamp(), cardID, false)
		if err != nil {
			return fmt.Errorf("approve card: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Reject("card already approved")
		}

		card, err = loadCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		rcpt = domain.CardReceipt{Receipt: domain.Receipt{BoardID: boardID, Version: v}, Card: card}
		return nil
	})
	return rcpt, err
}
