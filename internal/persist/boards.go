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

// CreateBoard creates a board owned by actor.
func (s *Store) CreateBoard(ctx context.Context, actor, title string) (domain.Board, error) {
	if err := requireActor(actor); err != nil {
		return domain.Board{}, err
	}
	title, err := requireTitle(title)
	if err != nil {
		return domain.Board{}, err
	}

	b := domain.Board{
		ID:        s.newID(),
		Title:     title,
		OwnerID:   actor,
		Members:   []domain.Member{},
		Labels:    []domain.Label{},
		Lists:     []domain.List{},
		Version:   1,
		CreatedAt: s.timestamp(),
	}
	_, err = s.conn().ExecContext(ctx, `
		INSERT INTO boards(id, title, owner_id, version, created_at) VALUES($1, $2, $3, $4, $5)
	`, b.ID, b.Title, b.OwnerID, b.Version, b.CreatedAt)
	if err != nil {
		return domain.Board{}, fmt.Errorf("insert board: %w", err)
	}
	return b, nil
}

// ListBoards returns the boards actor owns or is a member of.
func (s *Store) ListBoards(ctx context.Context, actor string) ([]domain.BoardSummary, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	rows, err := s.conn().QueryContext(ctx, `
		SELECT b.id, b.title, b.owner_id, COALESCE(m.role, ''), b.version
		FROM boards b
		LEFT JOIN board_members m ON m.board_id = b.id AND m.user_id = $1
		WHERE b.owner_id = $1 OR m.user_id IS NOT NULL
		ORDER BY b.created_at, b.id
	`, actor)
	if err != nil {
		return nil, fmt.Errorf("query boards: %w", err)
	}
	defer rows.Close()

	out := []domain.BoardSummary{}
	for rows.Next() {
		var b domain.BoardSummary
		var role string
		if err := rows.Scan(&b.ID, &b.Title, &b.OwnerID, &role, &b.Version); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		if b.OwnerID == actor {
			b.Role = domain.RoleOwner
		} else {
			b.Role = policy.Normalize(role)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBoard returns the full board state: members, labels, lists and cards,
// with card counts derived at read time.
func (s *Store) GetBoard(ctx context.Context, actor, boardID string) (domain.Board, error) {
	if err := requireActor(actor); err != nil {
		return domain.Board{}, err
	}

	var b domain.Board
	err := s.withTx(ctx, func(tx querier) error {
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionRead); err != nil {
			return err
		}
		var err error
		b, err = loadBoard(ctx, tx, boardID)
		return err
	})
	return b, err
}

func loadBoard(ctx context.Context, q querier, boardID string) (domain.Board, error) {
	var b domain.Board
	err := q.QueryRowContext(ctx, `
		SELECT id, title, owner_id, version, created_at FROM boards WHERE id=$1
	`, boardID).Scan(&b.ID, &b.Title, &b.OwnerID, &b.Version, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Board{}, fmt.Errorf("board %s: %w", boardID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Board{}, fmt.Errorf("load board: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()

	if b.Members, err = loadMembers(ctx, q, boardID); err != nil {
		return domain.Board{}, err
	}
	if b.Labels, err = loadLabels(ctx, q, boardID); err != nil {
		return domain.Board{}, err
	}
	if b.Lists, err = loadLists(ctx, q, boardID); err != nil {
		return domain.Board{}, err
	}

	cards, err := queryCards(ctx, q, `l.board_id=$1`, boardID)
	if err != nil {
		return domain.Board{}, err
	}
	byList := make(map[string][]domain.Card, len(b.Lists))
	for _, c := range cards {
		byList[c.ListID] = append(byList[c.ListID], c)
	}
	for i := range b.Lists {
		b.Lists[i].Cards = byList[b.Lists[i].ID]
		order.Sort(b.Lists[i].Cards)
	}
	return b, nil
}

func loadMembers(ctx context.Context, q querier, boardID string) ([]domain.Member, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, role FROM board_members WHERE board_id=$1 ORDER BY added_at, user_id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	out := []domain.Member{}
	for rows.Next() {
		var m domain.Member
		var role string
		if err := rows.Scan(&m.UserID, &role); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = policy.Normalize(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func loadLabels(ctx context.Context, q querier, boardID string) ([]domain.Label, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, board_id, name, color FROM labels WHERE board_id=$1 ORDER BY position, id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	out := []domain.Label{}
	for rows.Next() {
		var l domain.Label
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Name, &l.Color); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func loadLists(ctx context.Context, q querier, boardID string) ([]domain.List, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, board_id, title, position, requires_approval
		FROM lists WHERE board_id=$1 ORDER BY position, id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	defer rows.Close()

	out := []domain.List{}
	for rows.Next() {
		var l domain.List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.RequiresApproval); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteBoard removes a board and everything on it. Only the owner may do this.
func (s *Store) DeleteBoard(ctx context.Context, actor, boardID string) (domain.Receipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.Receipt{}, err
	}
	var rcpt domain.Receipt
	err := s.withTx(ctx, func(tx querier) error {
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return err
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionDeleteBoard); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, boardID); err != nil {
			return fmt.Errorf("delete board: %w", err)
		}
		rcpt = domain.Receipt{BoardID: boardID, Version: v}
		return nil
	})
	return rcpt, err
}

// AddMember grants userID a role on the board, replacing any previous role.
func (s *Store) AddMember(ctx context.Context, actor, boardID, userID string, role domain.Role) (domain.Receipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.Receipt{}, err
	}
	if userID == "" || (role != domain.RoleAdmin && role != domain.RoleMember) {
		return domain.Receipt{}, fmt.Errorf("member needs a user and role ADMIN or MEMBER: %w", domain.ErrInvalid)
	}

	var rcpt domain.Receipt
	err := s.withTx(ctx, func(tx querier) error {
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return err
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionManage); err != nil {
			return err
		}
		var owner string
		if err := tx.QueryRowContext(ctx, `SELECT owner_id FROM boards WHERE id=$1`, boardID).Scan(&owner); err != nil {
			return fmt.Errorf("load board owner: %w", err)
		}
		if owner == userID {
			return fmt.Errorf("the owner is always a member: %w", domain.ErrInvalid)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO board_members(board_id, user_id, role, added_at) VALUES($1, $2, $3, $4)
			ON CONFLICT (board_id, user_id) DO UPDATE SET role = excluded.role
		`, boardID, userID, string(role), s.timestamp())
		if err != nil {
			return fmt.Errorf("upsert member: %w", err)
		}
		rcpt = domain.Receipt{BoardID: boardID, Version: v}
		return nil
	})
	return rcpt, err
}

// RemoveMember revokes userID's membership.
func (s *Store) RemoveMember(ctx context.Context, actor, boardID, userID string) (domain.Receipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.Receipt{}, err
	}
	var rcpt domain.Receipt
	err := s.withTx(ctx, func(tx querier) error {
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return err
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionManage); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM board_members WHERE board_id=$1 AND user_id=$2`, boardID, userID)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("member %s: %w", userID, domain.ErrNotFound)
		}
		rcpt = domain.Receipt{BoardID: boardID, Version: v}
		return nil
	})
	return rcpt, err
}

// CreateLabel adds a label to the board's palette.
func (s *Store) CreateLabel(ctx context.Context, actor, boardID, name, color string) (domain.Label, domain.Receipt, error) {
	if err := requireActor(actor); err != nil {
		return domain.Label{}, domain.Receipt{}, err
	}
	name, err := requireTitle(name)
	if err != nil {
		return domain.Label{}, domain.Receipt{}, err
	}

	var (
		label domain.Label
		rcpt  domain.Receipt
	)
	err = s.withTx(ctx, func(tx querier) error {
		v, err := bump(ctx, tx, boardID)
		if err != nil {
			return err
		}
		if _, err := authorize(ctx, tx, boardID, actor, policy.ActionManage); err != nil {
			return err
		}
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM labels WHERE board_id=$1`, boardID).Scan(&n); err != nil {
			return fmt.Errorf("count labels: %w", err)
		}
		label = domain.Label{ID: s.newID(), BoardID: boardID, Name: name, Color: color}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO labels(id, board_id, name, color, position) VALUES($1, $2, $3, $4, $5)
		`, label.ID, boardID, label.Name, label.Color, float64(n+1)*order.Gap)
		if err != nil {
			return fmt.Errorf("insert label: %w", err)
		}
		rcpt = domain.Receipt{BoardID: boardID, Version: v}
		return nil
	})
	return label, rcpt, err
}

// CheckRead reports whether actor may read boardID.
func (s *Store) CheckRead(ctx context.Context, actor, boardID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	_, err := authorize(ctx, s.conn(), boardID, actor, policy.ActionRead)
	return err
}
