// Package persist is the SQL persistence adapter for boards.
//
// Every mutation runs in a single transaction that first bumps the board's
// version. The bump takes the board row lock in Postgres and the write lock in
// SQLite, so mutations of one board are serialised and each gets a distinct
// version number. Capability and workflow checks are delegated to the policy
// package and surface as *domain.PolicyError.
package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/policy"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store persists boards in a SQL database.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
	newID  func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs overrides id generation.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// New creates a Store over an open, migrated database.
// driver is one of the names accepted by Open.
func New(db *sql.DB, driver string, opts ...Option) (*Store, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:     db,
		driver: driver,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) conn() querier {
	return wrap(s.db, s.driver)
}

func (s *Store) withTx(ctx context.Context, fn func(tx querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(wrap(tx, s.driver)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// bump increments the board version and returns the new value.
// It must be the first write of a mutation transaction.
func bump(ctx context.Context, q querier, boardID string) (int64, error) {
	var v int64
	err := q.QueryRowContext(ctx, `UPDATE boards SET version = version + 1 WHERE id=$1 RETURNING version`, boardID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("board %s: %w", boardID, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("bump board version: %w", err)
	}
	return v, nil
}

// roleOf returns the actor's role on a board. member is false for strangers.
func roleOf(ctx context.Context, q querier, boardID, actor string) (role domain.Role, member bool, err error) {
	var owner string
	err = q.QueryRowContext(ctx, `SELECT owner_id FROM boards WHERE id=$1`, boardID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("board %s: %w", boardID, domain.ErrNotFound)
	}
	if err != nil {
		return "", false, fmt.Errorf("load board owner: %w", err)
	}
	if owner == actor {
		return domain.RoleOwner, true, nil
	}

	var r string
	err = q.QueryRowContext(ctx, `SELECT role FROM board_members WHERE board_id=$1 AND user_id=$2`, boardID, actor).Scan(&r)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load board role: %w", err)
	}
	return policy.Normalize(r), true, nil
}

func authorize(ctx context.Context, q querier, boardID, actor string, action policy.Action) (domain.Role, error) {
	role, member, err := roleOf(ctx, q, boardID, actor)
	if err != nil {
		return "", err
	}
	if action == policy.ActionRead {
		return role, policy.AuthorizeRead(member)
	}
	return role, policy.Authorize(role, member, action)
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return domain.ErrUnauthorized
	}
	return nil
}

func requireTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("title is required: %w", domain.ErrInvalid)
	}
	return title, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// boardOfList returns the board owning listID.
func boardOfList(ctx context.Context, q querier, listID string) (string, error) {
	var boardID string
	err := q.QueryRowContext(ctx, `SELECT board_id FROM lists WHERE id=$1`, listID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("list %s: %w", listID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("load list board: %w", err)
	}
	return boardID, nil
}

// boardOfCard returns the board owning cardID.
func boardOfCard(ctx context.Context, q querier, cardID string) (string, error) {
	var boardID string
	err := q.QueryRowContext(ctx, `
		SELECT l.board_id FROM cards c JOIN lists l ON l.id = c.list_id WHERE c.id=$1
	`, cardID).Scan(&boardID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("card %s: %w", cardID, domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("load card board: %w", err)
	}
	return boardID, nil
}

// asStale turns a missing entity into a stale-state error. Ordering calls
// reference what the client last saw, so a missing id means its view is old.
func asStale(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %w", domain.ErrStale, err)
	}
	return err
}
