// Package store provides the in-memory ordering model for a single board.
// It owns lists and cards keyed by ID, so a card's list is a single field and a
// card can never appear in two lists at once. Readers always get cards and
// lists back in rendering order.
package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/order"
)

var (
	// ErrNoBoard indicates no board has been loaded into the store.
	ErrNoBoard = errors.New("no board loaded")
	// ErrCardNotFound indicates the requested card does not exist.
	ErrCardNotFound = errors.New("card not found")
	// ErrListNotFound indicates the requested list does not exist.
	ErrListNotFound = errors.New("list not found")
)

// Placement is where a card or list sits: its container and position.
// For lists the container is the board.
type Placement struct {
	Container string
	Position  float64
}

// Store manages the in-memory state of one board.
// It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	// Board metadata, Lists is always nil here
	board  *domain.Board
	loaded bool

	lists map[string]domain.List // ListID -> List (Cards always nil)
	cards map[string]domain.Card // CardID -> Card

	version int64
}

// New creates a new empty Store instance.
func New() *Store {
	return &Store{
		lists: make(map[string]domain.List),
		cards: make(map[string]domain.Card),
	}
}

// Load replaces the whole state with the given board.
func (s *Store) Load(b domain.Board) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := b
	meta.Lists = nil
	meta.Members = slices.Clone(b.Members)
	meta.Labels = slices.Clone(b.Labels)
	s.board = &meta
	s.loaded = true
	s.version = b.Version

	s.lists = make(map[string]domain.List, len(b.Lists))
	s.cards = make(map[string]domain.Card)
	for _, l := range b.Lists {
		for _, c := range l.Cards {
			c.ListID = l.ID
			s.cards[c.ID] = cloneCard(c)
		}
		l.Cards = nil
		s.lists[l.ID] = l
	}
}

// Loaded reports whether a board has been loaded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// BoardID returns the loaded board's ID, or "" if none.
func (s *Store) BoardID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.board == nil {
		return ""
	}
	return s.board.ID
}

// Board returns the full board with lists and cards in rendering order.
// Returns ErrNoBoard if nothing has been loaded.
func (s *Store) Board() (domain.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.board == nil {
		return domain.Board{}, ErrNoBoard
	}
	b := *s.board
	b.Version = s.version
	b.Members = slices.Clone(s.board.Members)
	b.Labels = slices.Clone(s.board.Labels)
	b.Lists = s.sortedLists()
	for i := range b.Lists {
		b.Lists[i].Cards = s.sortedCards(b.Lists[i].ID)
	}
	return b, nil
}

// Lists returns the lists in rendering order, without cards.
func (s *Store) Lists() []domain.List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLists()
}

// Cards returns the cards of a list in rendering order.
func (s *Store) Cards(listID string) []domain.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedCards(listID)
}

// List retrieves a list by ID, returning ErrListNotFound if not found.
func (s *Store) List(id string) (domain.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[id]
	if !ok {
		return domain.List{}, fmt.Errorf("%w: %s", ErrListNotFound, id)
	}
	return l, nil
}

// Card retrieves a card by ID, returning ErrCardNotFound if not found.
func (s *Store) Card(id string) (domain.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[id]
	if !ok {
		return domain.Card{}, fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}
	return cloneCard(c), nil
}

// CardPlacement returns the list and position of a card.
func (s *Store) CardPlacement(id string) (Placement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cards[id]
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}
	return Placement{Container: c.ListID, Position: c.Position}, nil
}

// ListPlacement returns the board and position of a list.
func (s *Store) ListPlacement(id string) (Placement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[id]
	if !ok {
		return Placement{}, fmt.Errorf("%w: %s", ErrListNotFound, id)
	}
	return Placement{Container: l.BoardID, Position: l.Position}, nil
}

// PlaceCard moves a card to a list and position.
// The card leaves its previous list in the same step.
func (s *Store) PlaceCard(id, listID string, position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cards[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}
	if _, ok := s.lists[listID]; !ok {
		return fmt.Errorf("%w: %s", ErrListNotFound, listID)
	}
	c.ListID = listID
	c.Position = position
	s.cards[id] = c
	return nil
}

// PlaceList sets the position of a list within the board.
func (s *Store) PlaceList(id string, position float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lists[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrListNotFound, id)
	}
	l.Position = position
	s.lists[id] = l
	return nil
}

// UpsertCard adds or replaces a card. Its list must exist.
func (s *Store) UpsertCard(c domain.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lists[c.ListID]; !ok {
		return fmt.Errorf("%w: %s", ErrListNotFound, c.ListID)
	}
	s.cards[c.ID] = cloneCard(c)
	return nil
}

// UpsertList adds or replaces a list. Any cards on l are ignored.
func (s *Store) UpsertList(l domain.List) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.Cards = nil
	s.lists[l.ID] = l
}

// RemoveCard deletes a card. Sibling positions are left untouched.
func (s *Store) RemoveCard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cards, id)
}

// RemoveList deletes a list together with its cards.
func (s *Store) RemoveList(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, id)
	maps.DeleteFunc(s.cards, func(_ string, c domain.Card) bool {
		return c.ListID == id
	})
}

// Version returns the board version the store reflects.
func (s *Store) Version() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetVersion records a newer board version without reloading.
func (s *Store) SetVersion(v int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// Snapshot is an immutable copy of the store's state.
type Snapshot struct {
	board   *domain.Board
	loaded  bool
	lists   map[string]domain.List
	cards   map[string]domain.Card
	version int64
}

// Snapshot captures the current state so it can be restored exactly.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		loaded:  s.loaded,
		lists:   maps.Clone(s.lists),
		cards:   make(map[string]domain.Card, len(s.cards)),
		version: s.version,
	}
	if s.board != nil {
		b := *s.board
		snap.board = &b
	}
	for id, c := range s.cards {
		snap.cards[id] = cloneCard(c)
	}
	return snap
}

// Restore puts the store back into the state captured by snap.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.board = snap.board
	s.loaded = snap.loaded
	s.lists = maps.Clone(snap.lists)
	if s.lists == nil {
		s.lists = make(map[string]domain.List)
	}
	s.cards = make(map[string]domain.Card, len(snap.cards))
	for id, c := range snap.cards {
		s.cards[id] = cloneCard(c)
	}
	s.version = snap.version
}

// Clear resets the store to empty state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = nil
	s.loaded = false
	s.lists = make(map[string]domain.List)
	s.cards = make(map[string]domain.Card)
	s.version = 0
}

func (s *Store) sortedLists() []domain.List {
	lists := slices.Collect(maps.Values(s.lists))
	order.Sort(lists)
	return lists
}

func (s *Store) sortedCards(listID string) []domain.Card {
	cards := make([]domain.Card, 0)
	for _, c := range s.cards {
		if c.ListID == listID {
			cards = append(cards, cloneCard(c))
		}
	}
	order.Sort(cards)
	return cards
}

func cloneCard(c domain.Card) domain.Card {
	c.Assignees = slices.Clone(c.Assignees)
	c.Labels = slices.Clone(c.Labels)
	return c
}
