// Package engine applies ordering changes to the local store before the server
// confirms them, commits them through a Persistence, and rolls back exactly the
// failed mutation when a commit is refused or lost.
//
// Each mutation records the (container, position) of every entity it touched
// before and after it was applied. An entity may carry at most one uncommitted
// mutation; a second one is refused with domain.ErrBusy until the first
// resolves.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/order"
	"github.com/h0rv/kanban/internal/store"
)

// ErrUnknownRef indicates the mutation was already resolved or never applied.
var ErrUnknownRef = errors.New("unknown mutation reference")

// Ref identifies an applied, unresolved mutation.
type Ref string

// Outcome is the result of committing a mutation or running a CRUD call.
type Outcome struct {
	Ref     Ref
	Err     error
	Kind    domain.Kind
	Refetch bool  // The local view may have diverged; fetch the board again
	Version int64 // Board version known after the call
}

// OK reports whether the call succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

type op int

const (
	opReorderLists op = iota
	opReorderCards
	opMoveCard
)

func (o op) String() string {
	switch o {
	case opReorderLists:
		return "reorder_lists"
	case opReorderCards:
		return "reorder_cards"
	default:
		return "move_card"
	}
}

type placement struct {
	id        string
	card      bool
	container string
	position  float64
}

func (p placement) key() string {
	if p.card {
		return "card:" + p.id
	}
	return "list:" + p.id
}

type mutation struct {
	ref        Ref
	op         op
	boardID    string
	cardID     string
	listID     string // target list for card operations
	position   float64
	order      []string // full container order for reorders and rebalances
	rebalanced bool
	committing bool

	before []placement
	after  []placement
}

// Engine is the optimistic mutation engine for one board session.
type Engine struct {
	mu      sync.Mutex
	store   *store.Store
	persist Persistence
	log     *slog.Logger

	pending  map[Ref]*mutation
	applied  []Ref          // pending refs in apply order
	inflight map[string]Ref // entity key -> ref

	held   int
	parked *domain.Board
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an engine mutating s and committing through p.
func New(s *store.Store, p Persistence, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		persist:  p,
		log:      slog.New(slog.DiscardHandler),
		pending:  make(map[Ref]*mutation),
		inflight: make(map[string]Ref),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the store the engine mutates.
func (e *Engine) Store() *store.Store { return e.store }

// Apply updates the local store immediately and returns a reference that can
// later be committed or rolled back.
func (e *Engine) Apply(in Intent) (Ref, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		m   *mutation
		err error
	)
	switch in := in.(type) {
	case MoveCardIntent:
		m, err = e.planMoveCard(in)
	case ReorderListIntent:
		m, err = e.planReorderList(in)
	default:
		return "", fmt.Errorf("%w: unsupported intent %T", domain.ErrInvalid, in)
	}
	if err != nil {
		return "", err
	}
	if key, busy := e.busyLocked(m.before); busy {
		return "", fmt.Errorf("%w: %s", domain.ErrBusy, key)
	}

	m.ref = Ref(uuid.NewString())
	e.place(m.after)
	e.pending[m.ref] = m
	e.applied = append(e.applied, m.ref)
	for _, p := range m.before {
		e.inflight[p.key()] = m.ref
	}

	e.log.Debug("applied", "ref", m.ref, "op", m.op.String(), "touched", len(m.before))
	return m.ref, nil
}

// Submit applies and commits an intent in one call.
func (e *Engine) Submit(ctx context.Context, in Intent) Outcome {
	ref, err := e.Apply(in)
	if err != nil {
		return Outcome{Err: err, Kind: domain.Classify(err)}
	}
	return e.Commit(ctx, ref)
}

// Commit sends the mutation to the server. On failure exactly this mutation is
// rolled back; mutations on other entities are left alone.
func (e *Engine) Commit(ctx context.Context, ref Ref) Outcome {
	e.mu.Lock()
	m, ok := e.pending[ref]
	if !ok {
		e.mu.Unlock()
		return Outcome{Ref: ref, Err: ErrUnknownRef, Kind: domain.KindStale}
	}
	if m.committing {
		e.mu.Unlock()
		return Outcome{Ref: ref, Err: fmt.Errorf("%w: %s", domain.ErrBusy, ref), Kind: domain.KindBusy}
	}
	m.committing = true
	e.mu.Unlock()

	version, err := e.send(ctx, m)

	e.mu.Lock()
	defer e.mu.Unlock()

	out := Outcome{Ref: ref}
	if err != nil {
		e.rollbackLocked(m)
		out.Err = err
		out.Kind = domain.Classify(err)
		out.Refetch = out.Kind == domain.KindStale
		out.Version = e.store.Version()
		e.log.Warn("commit failed", "ref", ref, "op", m.op.String(), "kind", out.Kind.String(), "err", err)
		return out
	}

	e.finishLocked(m)
	out.Refetch = !e.observeLocked(version)
	out.Version = e.store.Version()
	e.log.Debug("committed", "ref", ref, "op", m.op.String(), "version", out.Version)
	return out
}

// Rollback reverts an applied mutation that has not been committed.
// A commit already in flight cannot be cancelled.
func (e *Engine) Rollback(ref Ref) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.pending[ref]
	if !ok {
		return ErrUnknownRef
	}
	if m.committing {
		return fmt.Errorf("%w: %s", domain.ErrBusy, ref)
	}
	e.rollbackLocked(m)
	return nil
}

// Pending returns the number of unresolved mutations.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// InFlight reports whether a card or list has an unresolved mutation.
func (e *Engine) InFlight(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, card := e.inflight["card:"+id]
	_, list := e.inflight["list:"+id]
	return card || list
}

// Notify handles a fan-out notification carrying a board version.
// It reports whether the board must be refetched; versions the store already
// reflects are no-ops.
func (e *Engine) Notify(version int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return version > e.store.Version()
}

// Replace swaps in a freshly fetched board. Unresolved mutations are applied on
// top so their optimistic placement survives until they resolve. While a drag
// holds the engine the board is parked and applied on Release.
// It reports whether the store changed.
func (e *Engine) Replace(b domain.Board) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held > 0 {
		e.parked = &b
		return false
	}
	return e.replaceLocked(b)
}

// Hold defers refetched boards until Release, so a drag's snapshot stays valid.
func (e *Engine) Hold() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held++
}

// Release ends a Hold and applies any parked board.
// It reports whether the store changed.
func (e *Engine) Release() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.held > 0 {
		e.held--
	}
	if e.held > 0 || e.parked == nil {
		return false
	}
	b := *e.parked
	e.parked = nil
	return e.replaceLocked(b)
}

func (e *Engine) replaceLocked(b domain.Board) bool {
	if e.store.Loaded() && e.store.BoardID() == b.ID && b.Version < e.store.Version() {
		e.log.Debug("ignoring older board", "board", b.ID, "version", b.Version, "known", e.store.Version())
		return false
	}
	e.store.Load(b)
	for _, ref := range e.applied {
		e.place(e.pending[ref].after)
	}
	return true
}

func (e *Engine) planMoveCard(in MoveCardIntent) (*mutation, error) {
	card, err := e.store.Card(in.CardID)
	if err != nil {
		return nil, err
	}
	if _, err := e.store.List(in.TargetListID); err != nil {
		return nil, err
	}
	target := e.store.Cards(in.TargetListID)

	m := &mutation{
		boardID: e.store.BoardID(),
		cardID:  card.ID,
		listID:  in.TargetListID,
	}

	if card.ListID == in.TargetListID {
		m.op = opReorderCards
		m.order = order.Insert(order.IDs(target), card.ID, in.Index)
		m.before = cardPlacements(target, in.TargetListID)
		m.after = spreadCards(m.order, in.TargetListID)
		return m, nil
	}

	m.op = opMoveCard
	plan := order.Plan(target, card.ID, in.Index)
	m.position = plan.Position
	m.before = []placement{{id: card.ID, card: true, container: card.ListID, position: card.Position}}
	m.after = []placement{{id: card.ID, card: true, container: in.TargetListID, position: plan.Position}}

	if len(plan.Rebalanced) > 0 {
		m.rebalanced = true
		m.order = make([]string, len(plan.Rebalanced))
		for i, a := range plan.Rebalanced {
			m.order[i] = a.ID
		}
		m.before = append(m.before, cardPlacements(target, in.TargetListID)...)
		m.after = spreadCards(m.order, in.TargetListID)
	}
	return m, nil
}

func (e *Engine) planReorderList(in ReorderListIntent) (*mutation, error) {
	lists := e.store.Lists()
	if order.IndexOf(lists, in.ListID) < 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrListNotFound, in.ListID)
	}

	boardID := e.store.BoardID()
	m := &mutation{
		op:      opReorderLists,
		boardID: boardID,
		listID:  in.ListID,
		order:   order.Insert(order.IDs(lists), in.ListID, in.Index),
	}
	for _, l := range lists {
		m.before = append(m.before, placement{id: l.ID, container: boardID, position: l.Position})
	}
	for _, a := range order.Spread(m.order) {
		m.after = append(m.after, placement{id: a.ID, container: boardID, position: a.Position})
	}
	return m, nil
}

func (e *Engine) send(ctx context.Context, m *mutation) (int64, error) {
	var (
		r   domain.Receipt
		err error
	)
	switch {
	case m.op == opReorderLists:
		r, err = e.persist.ReorderLists(ctx, m.boardID, m.order)
	case m.op == opReorderCards:
		r, err = e.persist.ReorderCards(ctx, m.listID, m.order)
	case m.rebalanced:
		var cr domain.CardReceipt
		cr, err = e.persist.MoveCardInOrder(ctx, m.cardID, m.listID, m.order)
		r = cr.Receipt
	default:
		var cr domain.CardReceipt
		cr, err = e.persist.MoveCard(ctx, m.cardID, m.listID, m.position)
		r = cr.Receipt
	}
	return r.Version, err
}

// observeLocked records a version from our own commit receipt. It reports
// false when versions were skipped, meaning someone else wrote in between.
func (e *Engine) observeLocked(v int64) bool {
	known := e.store.Version()
	switch {
	case v <= known:
		return true
	case v == known+1:
		e.store.SetVersion(v)
		return true
	default:
		return false
	}
}

func (e *Engine) busyLocked(ps []placement) (string, bool) {
	for _, p := range ps {
		if _, ok := e.inflight[p.key()]; ok {
			return p.key(), true
		}
	}
	return "", false
}

func (e *Engine) rollbackLocked(m *mutation) {
	e.place(m.before)
	e.finishLocked(m)
	e.log.Debug("rolled back", "ref", m.ref, "op", m.op.String())
}

func (e *Engine) finishLocked(m *mutation) {
	delete(e.pending, m.ref)
	for i, ref := range e.applied {
		if ref == m.ref {
			e.applied = append(e.applied[:i], e.applied[i+1:]...)
			break
		}
	}
	for _, p := range m.before {
		if e.inflight[p.key()] == m.ref {
			delete(e.inflight, p.key())
		}
	}
}

// place writes placements into the store. Entities removed by a refetch are skipped.
func (e *Engine) place(ps []placement) {
	for _, p := range ps {
		var err error
		if p.card {
			err = e.store.PlaceCard(p.id, p.container, p.position)
		} else {
			err = e.store.PlaceList(p.id, p.position)
		}
		if err != nil {
			e.log.Debug("placement skipped", "id", p.id, "err", err)
		}
	}
}

func cardPlacements(cards []domain.Card, listID string) []placement {
	out := make([]placement, len(cards))
	for i, c := range cards {
		out[i] = placement{id: c.ID, card: true, container: listID, position: c.Position}
	}
	return out
}

func spreadCards(ids []string, listID string) []placement {
	spread := order.Spread(ids)
	out := make([]placement, len(spread))
	for i, a := range spread {
		out[i] = placement{id: a.ID, card: true, container: listID, position: a.Position}
	}
	return out
}
