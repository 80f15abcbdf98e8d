// Package fanout broadcasts board change notifications to connected clients.
//
// A notification is a refetch signal carrying the board version, never a
// delta. Delivery is at-most-once: a subscriber that cannot keep up loses
// events and catches up on its next refetch.
package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Event types.
const (
	TypeChanged = "board.changed"
	TypeDeleted = "board.deleted"
)

// Event announces a persisted mutation of a board.
type Event struct {
	Type     string `json:"type"`
	BoardID  string `json:"board_id"`
	Version  int64  `json:"version"`
	Origin   string `json:"origin,omitempty"` // Client ID of the session that caused it
	Entity   string `json:"entity,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}

// Publisher sends events to every subscriber of a board, wherever it is connected.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type subscriber struct {
	ch       chan []byte
	clientID string
}

// Hub holds the subscribers connected to this process.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
	log  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{subs: make(map[string]map[*subscriber]struct{}), log: log}
}

// Subscribe registers a subscriber for a board. Events whose Origin equals
// clientID are not delivered to it. cancel closes the channel and is safe to
// call more than once.
func (h *Hub) Subscribe(boardID, clientID string) (<-chan []byte, func()) {
	sub := &subscriber{ch: make(chan []byte, 16), clientID: clientID}

	h.mu.Lock()
	if h.subs[boardID] == nil {
		h.subs[boardID] = make(map[*subscriber]struct{})
	}
	h.subs[boardID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subs[boardID]; ok {
				delete(subs, sub)
				if len(subs) == 0 {
					delete(h.subs, boardID)
				}
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Deliver sends ev to local subscribers of its board.
func (h *Hub) Deliver(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event", "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[ev.BoardID] {
		if ev.Origin != "" && sub.clientID == ev.Origin {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			h.log.Warn("dropping event for slow subscriber", "board", ev.BoardID, "version", ev.Version)
		}
	}
}

// Publish delivers locally. It lets a Hub serve as the Publisher of a single instance.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Deliver(ev)
	return nil
}

// Subscribers returns the number of local subscribers of a board.
func (h *Hub) Subscribers(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[boardID])
}
