package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/order"
	"github.com/h0rv/kanban/internal/policy"
)

// cardMutation runs fn in a transaction scoped to cardID's board after
// bumping its version and checking action.
func (s *Store) cardMutation(ctx context.Context, actor, cardID string, action policy.Action, fn func(tx querier) error) (domain.Receipt, error) {
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
		if _, err := authorize(ctx, tx, boardID, actor, action); err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
		rcpt = domain.Receipt{BoardID: boardID, Version: v}
		return nil
	})
	return rcpt, err
}

func (s *Store) readCard(ctx context.Context, actor, cardID string, fn func(q querier) error) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx querier) error {
		boardID, err := boardOfCard(ctx, tx, cardID)
		if err != nil {
			return err
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionRead); err != nil {
			return err
		}
		return fn(tx)
	})
}

// ListComments returns a card's comments, oldest first.
func (s *Store) ListComments(ctx context.Context, actor, cardID string) ([]domain.Comment, error) {
	out := []domain.Comment{}
	err := s.readCard(ctx, actor, cardID, func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id, card_id, author_id, body, created_at
			FROM comments WHERE card_id=$1 ORDER BY created_at, id
		`, cardID)
		if err != nil {
			return fmt.Errorf("query comments: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var c domain.Comment
			if err := rows.Scan(&c.ID, &c.CardID, &c.AuthorID, &c.Body, &c.CreatedAt); err != nil {
				return fmt.Errorf("scan comment: %w", err)
			}
			c.CreatedAt = c.CreatedAt.UTC()
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}

// AddComment posts a comment on a card.
func (s *Store) AddComment(ctx context.Context, actor, cardID, body string) (domain.Comment, domain.Receipt, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Comment{}, domain.Receipt{}, fmt.Errorf("comment body is required: %w", domain.ErrInvalid)
	}
	c := domain.Comment{ID: s.newID(), CardID: cardID, AuthorID: actor, Body: body, CreatedAt: s.timestamp()}
	rcpt, err := s.cardMutation(ctx, actor, cardID, policy.ActionComment, func(tx querier) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments(id, card_id, author_id, body, created_at) VALUES($1, $2, $3, $4, $5)
		`, c.ID, c.CardID, c.AuthorID, c.Body, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Comment{}, domain.Receipt{}, err
	}
	return c, rcpt, nil
}

// ListChecklist returns a card's checklist in order.
func (s *Store) ListChecklist(ctx context.Context, actor, cardID string) ([]domain.ChecklistItem, error) {
	var out []domain.ChecklistItem
	err := s.readCard(ctx, actor, cardID, func(q querier) error {
		var err error
		out, err = loadChecklist(ctx, q, cardID)
		return err
	})
	return out, err
}

func loadChecklist(ctx context.Context, q querier, cardID string) ([]domain.ChecklistItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, card_id, title, done, position
		FROM checklist_items WHERE card_id=$1 ORDER BY position, id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("query checklist: %w", err)
	}
	defer rows.Close()

	out := []domain.ChecklistItem{}
	for rows.Next() {
		var it domain.ChecklistItem
		if err := rows.Scan(&it.ID, &it.CardID, &it.Title, &it.Done, &it.Position); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddChecklistItem appends an item to a card's checklist.
func (s *Store) AddChecklistItem(ctx context.Context, actor, cardID, title string) (domain.ChecklistItem, domain.Receipt, error) {
	title, err := requireTitle(title)
	if err != nil {
		return domain.ChecklistItem{}, domain.Receipt{}, err
	}
	it := domain.ChecklistItem{ID: s.newID(), CardID: cardID, Title: title}
	rcpt, err := s.cardMutation(ctx, actor, cardID, policy.ActionEdit, func(tx querier) error {
		items, err := loadChecklist(ctx, tx, cardID)
		if err != nil {
			return err
		}
		it.Position, _ = order.PositionAt(items, len(items))
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checklist_items(id, card_id, title, done, position) VALUES($1, $2, $3, $4, $5)
		`, it.ID, it.CardID, it.Title, it.Done, it.Position)
		if err != nil {
			return fmt.Errorf("insert checklist item: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ChecklistItem{}, domain.Receipt{}, err
	}
	return it, rcpt, nil
}

// SetChecklistItem ticks or unticks a checklist item.
func (s *Store) SetChecklistItem(ctx context.Context, actor, itemID string, done bool) (domain.ChecklistItem, domain.Receipt, error) {
	var cardID string
	err := s.conn().QueryRowContext(ctx, `SELECT card_id FROM checklist_items WHERE id=$1`, itemID).Scan(&cardID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChecklistItem{}, domain.Receipt{}, fmt.Errorf("checklist item %s: %w", itemID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ChecklistItem{}, domain.Receipt{}, fmt.Errorf("load checklist item: %w", err)
	}

	var it domain.ChecklistItem
	rcpt, err := s.cardMutation(ctx, actor, cardID, policy.ActionEdit, func(tx querier) error {
		res, err := tx.ExecContext(ctx, `UPDATE checklist_items SET done=$1 WHERE id=$2`, done, itemID)
		if err != nil {
			return fmt.Errorf("update checklist item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("checklist item %s: %w", itemID, domain.ErrNotFound)
		}
		return tx.QueryRowContext(ctx, `
			SELECT id, card_id, title, done, position FROM checklist_items WHERE id=$1
		`, itemID).Scan(&it.ID, &it.CardID, &it.Title, &it.Done, &it.Position)
	})
	if err != nil {
		return domain.ChecklistItem{}, domain.Receipt{}, err
	}
	return it, rcpt, nil
}

// ListAttachments returns a card's attachment metadata, oldest first.
func (s *Store) ListAttachments(ctx context.Context, actor, cardID string) ([]domain.Attachment, error) {
	out := []domain.Attachment{}
	err := s.readCard(ctx, actor, cardID, func(q querier) error {
		rows, err := q.QueryContext(ctx, `
			SELECT id, card_id, name, url, size, created_by, created_at
			FROM attachments WHERE card_id=$1 ORDER BY created_at, id
		`, cardID)
		if err != nil {
			return fmt.Errorf("query attachments: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var a domain.Attachment
			if err := rows.Scan(&a.ID, &a.CardID, &a.Name, &a.URL, &a.Size, &a.CreatedBy, &a.CreatedAt); err != nil {
				return fmt.Errorf("scan attachment: %w", err)
			}
			a.CreatedAt = a.CreatedAt.UTC()
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}

// AddAttachment records metadata for a file stored elsewhere.
func (s *Store) AddAttachment(ctx context.Context, actor, cardID string, in domain.Attachment) (domain.Attachment, domain.Receipt, error) {
	name, err := requireTitle(in.Name)
	if err != nil {
		return domain.Attachment{}, domain.Receipt{}, err
	}
	if u, err := url.Parse(in.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return domain.Attachment{}, domain.Receipt{}, fmt.Errorf("attachment url must be absolute: %w", domain.ErrInvalid)
	}
	if in.Size < 0 {
		return domain.Attachment{}, domain.Receipt{}, fmt.Errorf("attachment size must not be negative: %w", domain.ErrInvalid)
	}

	a := domain.Attachment{
		ID:        s.newID(),
		CardID:    cardID,
		Name:      name,
		URL:       in.URL,
		Size:      in.Size,
		CreatedBy: actor,
		CreatedAt: s.timestamp(),
	}
	rcpt, err := s.cardMutation(ctx, actor, cardID, policy.ActionEdit, func(tx querier) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attachments(id, card_id, name, url, size, created_by, created_at)
			VALUES($1, $2, $3, $4, $5, $6, $7)
		`, a.ID, a.CardID, a.Name, a.URL, a.Size, a.CreatedBy, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Attachment{}, domain.Receipt{}, err
	}
	return a, rcpt, nil
}
